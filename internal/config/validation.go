// internal/config/validation.go - Configuration validation
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate validates the configuration structure and values
func Validate(config *Config) error {
	if err := validateImagery(&config.Imagery); err != nil {
		return fmt.Errorf("imagery configuration invalid: %w", err)
	}

	if err := validateDetection(&config.Detection); err != nil {
		return fmt.Errorf("detection configuration invalid: %w", err)
	}

	if err := validateCache(&config.Cache); err != nil {
		return fmt.Errorf("cache configuration invalid: %w", err)
	}

	if err := validateNetwork(&config.Network); err != nil {
		return fmt.Errorf("network configuration invalid: %w", err)
	}

	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging configuration invalid: %w", err)
	}

	return nil
}

// validateImagery validates tile source and coverage planning parameters
func validateImagery(config *ImageryConfig) error {
	if config.URLTemplate == "" {
		return fmt.Errorf("url_template is required")
	}

	for _, placeholder := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(config.URLTemplate, placeholder) {
			return fmt.Errorf("url_template must contain %s", placeholder)
		}
	}

	if _, err := url.Parse(config.URLTemplate); err != nil {
		return fmt.Errorf("invalid url_template: %w", err)
	}

	if config.TileTimeout <= 0 {
		return fmt.Errorf("tile_timeout must be positive")
	}

	if config.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if config.Concurrency > 100 {
		return fmt.Errorf("concurrency must not exceed 100")
	}

	if config.FinestZoom < 0 || config.FinestZoom > 22 {
		return fmt.Errorf("finest_zoom must be between 0 and 22")
	}

	for i, rule := range config.ZoomRules {
		if rule.SpanAbove <= 0 {
			return fmt.Errorf("zoom rule %d: span_above must be positive", i)
		}
		if rule.Zoom < 0 || rule.Zoom > 22 {
			return fmt.Errorf("zoom rule %d: zoom must be between 0 and 22", i)
		}
		if i > 0 && rule.SpanAbove >= config.ZoomRules[i-1].SpanAbove {
			return fmt.Errorf("zoom rules must be ordered by decreasing span_above")
		}
	}

	return nil
}

// validateDetection validates detection capability parameters
func validateDetection(config *DetectionConfig) error {
	if config.InferenceURL != "" {
		if _, err := url.Parse(config.InferenceURL); err != nil {
			return fmt.Errorf("invalid inference_url: %w", err)
		}
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if config.MinConfidence < 0 || config.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1")
	}

	if config.IoUThreshold < 0 || config.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be between 0 and 1")
	}

	return nil
}

// validateCache validates cache configuration parameters
func validateCache(config *CacheConfig) error {
	if config.Directory == "" {
		return fmt.Errorf("directory is required")
	}

	if config.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if config.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be positive")
	}

	return nil
}

// validateNetwork validates network configuration parameters
func validateNetwork(config *NetworkConfig) error {
	if config.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}

	if config.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns must be non-negative")
	}

	if config.IdleConnTimeout < 0 {
		return fmt.Errorf("idle_conn_timeout must be non-negative")
	}

	return nil
}

// validateLogging validates logging configuration parameters
func validateLogging(config *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, config.Level) {
		return fmt.Errorf("invalid log level: %s, must be one of %v", config.Level, validLevels)
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid log format: %s, must be one of %v", config.Format, validFormats)
	}

	return nil
}

// contains checks if a string slice contains a specific string (case-insensitive)
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
