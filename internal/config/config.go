// internal/config/config.go - Configuration management
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"poolscan/pkg/geo"
)

// Config represents the complete application configuration
type Config struct {
	Imagery   ImageryConfig   `mapstructure:"imagery"`
	Detection DetectionConfig `mapstructure:"detection"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Server    ServerConfig    `mapstructure:"server"`
	Network   NetworkConfig   `mapstructure:"network"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ImageryConfig contains tile source and coverage planning configuration
type ImageryConfig struct {
	URLTemplate string         `mapstructure:"url_template"`
	TileTimeout time.Duration  `mapstructure:"tile_timeout"`
	Concurrency int            `mapstructure:"concurrency"`
	ZoomRules   []geo.ZoomRule `mapstructure:"zoom_rules"`
	FinestZoom  int            `mapstructure:"finest_zoom"`
}

// DetectionConfig contains the detection capability configuration
type DetectionConfig struct {
	InferenceURL  string        `mapstructure:"inference_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	IoUThreshold  float64       `mapstructure:"iou_threshold"`
}

// CacheConfig contains detection result cache configuration
type CacheConfig struct {
	Directory  string        `mapstructure:"directory"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// ServerConfig contains the HTTP service configuration
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// NetworkConfig contains network-related configuration
type NetworkConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	IdleConnTimeout  time.Duration `mapstructure:"idle_conn_timeout"`
	DisableKeepAlive bool          `mapstructure:"disable_keep_alive"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from config file, environment and flags
func Load() (*Config, error) {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults configures default values for all configuration options
func setDefaults() {
	// Imagery defaults
	viper.SetDefault("imagery.url_template", "https://naip-analytic.s3-us-west-2.amazonaws.com/naip/{z}/{x}/{y}.jpg")
	viper.SetDefault("imagery.tile_timeout", 30*time.Second)
	viper.SetDefault("imagery.concurrency", 8)
	viper.SetDefault("imagery.finest_zoom", geo.DefaultFinestZoom)
	viper.SetDefault("imagery.zoom_rules", defaultZoomRuleMaps())

	// Detection defaults
	viper.SetDefault("detection.timeout", 60*time.Second)
	viper.SetDefault("detection.min_confidence", 0.3)
	viper.SetDefault("detection.iou_threshold", 0.5)

	// Cache defaults
	viper.SetDefault("cache.directory", "/tmp/poolscan_cache")
	viper.SetDefault("cache.ttl", 7*24*time.Hour)
	viper.SetDefault("cache.max_entries", 1000)

	// Server defaults
	viper.SetDefault("server.listen_addr", ":8000")
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Network defaults
	viper.SetDefault("network.user_agent", "PoolScan/1.0")
	viper.SetDefault("network.max_idle_conns", 100)
	viper.SetDefault("network.idle_conn_timeout", 90*time.Second)
	viper.SetDefault("network.disable_keep_alive", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// defaultZoomRuleMaps expresses the default zoom step function in a shape
// viper can merge with file and environment overrides
func defaultZoomRuleMaps() []map[string]interface{} {
	rules := geo.DefaultZoomRules()
	maps := make([]map[string]interface{}, 0, len(rules))
	for _, rule := range rules {
		maps = append(maps, map[string]interface{}{
			"span_above": rule.SpanAbove,
			"zoom":       rule.Zoom,
		})
	}
	return maps
}

// TileURL builds a tile URL from the configured template
func (c *ImageryConfig) TileURL(z, x, y uint32) string {
	replacer := strings.NewReplacer(
		"{z}", fmt.Sprintf("%d", z),
		"{x}", fmt.Sprintf("%d", x),
		"{y}", fmt.Sprintf("%d", y),
	)
	return replacer.Replace(c.URLTemplate)
}
