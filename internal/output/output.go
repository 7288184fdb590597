// internal/output/output.go - Detection result formatting and writing
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"poolscan/internal"
)

// Format identifies an output encoding for detection results
type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatJSON    Format = "json"
)

// Formatter renders detection results into an output encoding
type Formatter struct {
	format Format
	pretty bool
}

// NewFormatter creates a formatter for the requested encoding
func NewFormatter(format Format, pretty bool) (*Formatter, error) {
	switch format {
	case FormatGeoJSON, FormatJSON:
		return &Formatter{format: format, pretty: pretty}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Format renders a detection result
func (f *Formatter) Format(result *internal.DetectionResult) ([]byte, error) {
	var payload interface{}

	switch f.format {
	case FormatGeoJSON:
		payload = toFeatureCollection(result)
	default:
		payload = result
	}

	if f.pretty {
		return json.MarshalIndent(payload, "", "  ")
	}
	return json.Marshal(payload)
}

// toFeatureCollection converts a detection result to a GeoJSON
// FeatureCollection with confidence and class carried as properties
func toFeatureCollection(result *internal.DetectionResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, pool := range result.Pools {
		feature := geojson.NewFeature(pool.Geometry.Geometry())
		feature.Properties["parcelId"] = result.ParcelID
		feature.Properties["confidence"] = pool.Confidence
		if pool.ClassID != 0 {
			feature.Properties["classId"] = pool.ClassID
		}
		fc.Append(feature)
	}

	return fc
}

// Write sends formatted output to a file, or to stdout when the
// destination is empty or "-"
func Write(data []byte, destination string) error {
	if destination == "" || destination == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}

	if dir := filepath.Dir(destination); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(destination, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
