// cmd/detect.go - One-shot detection command implementation
package cmd

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"poolscan/internal/cache"
	"poolscan/internal/config"
	"poolscan/internal/detect"
	"poolscan/internal/imagery"
	"poolscan/internal/logging"
	"poolscan/internal/output"
	"poolscan/internal/pipeline"
)

var (
	detectParcelID     string
	detectGeometryPath string
	detectForceRefresh bool
	detectFormat       string
	detectOutput       string
	detectPretty       bool
)

// detectCmd runs the detection pipeline once for a single parcel
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect pools for a single parcel",
	Long: `Run the detection pipeline once for a single parcel polygon and
write the result to stdout or a file.

The geometry file must contain a GeoJSON Polygon geometry, or a
Feature wrapping one.

Examples:
  poolscan detect --parcel-id APN-1234 --geometry parcel.geojson
  poolscan detect --parcel-id APN-1234 --geometry parcel.geojson \
    --format geojson --pretty --output pools.geojson`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVar(&detectParcelID, "parcel-id", "", "parcel identifier (required)")
	detectCmd.Flags().StringVar(&detectGeometryPath, "geometry", "", "path to GeoJSON polygon file (required)")
	detectCmd.Flags().BoolVar(&detectForceRefresh, "force-refresh", false, "bypass the cache lookup")
	detectCmd.Flags().StringVar(&detectFormat, "format", "json", "output format (json, geojson)")
	detectCmd.Flags().StringVar(&detectOutput, "output", "", "output file (default stdout)")
	detectCmd.Flags().BoolVar(&detectPretty, "pretty", false, "pretty-print output")

	detectCmd.MarkFlagRequired("parcel-id")
	detectCmd.MarkFlagRequired("geometry")
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	formatter, err := output.NewFormatter(output.Format(detectFormat), detectPretty)
	if err != nil {
		return err
	}

	geometry, err := readGeometry(detectGeometryPath)
	if err != nil {
		return err
	}

	logger := logging.New(&cfg.Logging)

	store, err := cache.NewStore(&cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	fetcher := imagery.NewHTTPFetcher(cfg, logger)
	detector := detect.NewHTTPDetector(&cfg.Detection, logger)
	service := pipeline.New(cfg, store, fetcher, detector, logger)

	result, err := service.Detect(cmd.Context(), detectParcelID, geometry, detectForceRefresh)
	if err != nil {
		return err
	}

	data, err := formatter.Format(result)
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}

	return output.Write(data, detectOutput)
}

// readGeometry loads a GeoJSON geometry from a file, accepting either a
// bare geometry or a Feature wrapping one
func readGeometry(path string) (*geojson.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geometry file: %w", err)
	}

	if geometry, err := geojson.UnmarshalGeometry(data); err == nil {
		return geometry, nil
	}

	feature, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return nil, fmt.Errorf("geometry file is neither a GeoJSON geometry nor a feature: %w", err)
	}
	return geojson.NewGeometry(feature.Geometry), nil
}
