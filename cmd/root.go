// cmd/root.go - Root command implementation
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "poolscan",
	Short: "Detect swimming pools on land parcels from aerial imagery",
	Long: `PoolScan locates swimming pools on land parcels from aerial and satellite
tile imagery. Given a parcel polygon it plans the covering imagery tiles,
fetches them in parallel, hands the raster to an external detection
service, projects the detected boxes back into geographic polygons,
deduplicates overlapping detections, and caches the result per parcel.

Features:
- Web Mercator coverage planning with a configurable zoom step function
- Best-effort parallel tile fetching with per-tile timeouts
- Pluggable detection capability behind a single HTTP inference seam
- Geographic non-maximum suppression of duplicate detections
- Two-tier result cache (memory + disk) with TTL and capacity eviction

Examples:
  # Run the HTTP service
  poolscan serve --listen-addr :8000

  # Detect pools for a single parcel from a GeoJSON polygon
  poolscan detect --parcel-id APN-1234 --geometry parcel.geojson

  # Force a fresh run, writing a GeoJSON FeatureCollection
  poolscan detect --parcel-id APN-1234 --geometry parcel.geojson \
    --force-refresh --format geojson --output pools.geojson

  # Use a configuration file
  poolscan serve --config config.yaml`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.poolscan.yaml)")

	// Imagery flags. Flag defaults mirror the configuration defaults so
	// that binding an unset flag does not mask them.
	rootCmd.PersistentFlags().String("tile-url",
		"https://naip-analytic.s3-us-west-2.amazonaws.com/naip/{z}/{x}/{y}.jpg",
		"tile URL template with {z}/{x}/{y} placeholders")
	rootCmd.PersistentFlags().Duration("tile-timeout", 30*time.Second, "per-tile fetch timeout")
	rootCmd.PersistentFlags().Int("concurrency", 8, "number of concurrent tile fetches")

	// Detection flags
	rootCmd.PersistentFlags().String("inference-url", "", "detection inference service URL")
	rootCmd.PersistentFlags().Float64("min-confidence", 0.3, "minimum detection confidence")
	rootCmd.PersistentFlags().Float64("iou-threshold", 0.5, "IoU threshold for duplicate suppression")

	// Cache flags
	rootCmd.PersistentFlags().String("cache-dir", "/tmp/poolscan_cache", "durable cache directory")
	rootCmd.PersistentFlags().Duration("cache-ttl", 7*24*time.Hour, "cache entry time-to-live")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	viper.BindPFlag("imagery.url_template", rootCmd.PersistentFlags().Lookup("tile-url"))
	viper.BindPFlag("imagery.tile_timeout", rootCmd.PersistentFlags().Lookup("tile-timeout"))
	viper.BindPFlag("imagery.concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("detection.inference_url", rootCmd.PersistentFlags().Lookup("inference-url"))
	viper.BindPFlag("detection.min_confidence", rootCmd.PersistentFlags().Lookup("min-confidence"))
	viper.BindPFlag("detection.iou_threshold", rootCmd.PersistentFlags().Lookup("iou-threshold"))
	viper.BindPFlag("cache.directory", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("cache.ttl", rootCmd.PersistentFlags().Lookup("cache-ttl"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".poolscan" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".poolscan")
	}

	// Environment variables
	viper.SetEnvPrefix("POOLSCAN")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
