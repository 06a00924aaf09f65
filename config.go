package boardloop

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the numeric thresholds shared with the external
// configuration UI. Per-component configs are derived from it, loggers and
// stats trackers are wired by the caller.
type Config struct {
	// MaxAPICallsPerHour is the default hourly call budget per remote source.
	MaxAPICallsPerHour int `yaml:"max_api_calls_per_hour"`

	// DailyAPIBudget is the default daily call budget per remote source.
	DailyAPIBudget int `yaml:"daily_api_budget"`

	// CacheTTLHours is the payload and tile cache TTL.
	CacheTTLHours int `yaml:"cache_ttl_hours"`

	// CacheDir is the disk cache location.
	CacheDir string `yaml:"cache_dir"`

	// MinDuration and MaxDuration clamp the dynamic scroll duration.
	MinDuration time.Duration `yaml:"min_duration"`
	MaxDuration time.Duration `yaml:"max_duration"`

	// MaxDisplayTime is the hard ceiling of one content pass.
	MaxDisplayTime time.Duration `yaml:"max_display_time"`

	// SafetyBuffer pads the measured scroll duration, a fraction.
	SafetyBuffer float64 `yaml:"safety_buffer"`

	// ScrollSpeed is the nominal scroll advance in pixels per frame.
	ScrollSpeed float64 `yaml:"scroll_speed"`

	// TileProvider selects a known tile URL template.
	TileProvider string `yaml:"tile_provider"`

	// FadeIntensity dims the map background, 0 invisible, 1 opaque.
	FadeIntensity float64 `yaml:"fade_intensity"`

	// DisableOnCacheError trips the tile fetcher after repeated failures.
	DisableOnCacheError bool `yaml:"disable_on_cache_error"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAPICallsPerHour:  60,
		DailyAPIBudget:      1000,
		CacheTTLHours:       24,
		CacheDir:            ".boardloop/cache",
		MinDuration:         10 * time.Second,
		MaxDuration:         90 * time.Second,
		MaxDisplayTime:      120 * time.Second,
		SafetyBuffer:        0.1,
		ScrollSpeed:         1,
		TileProvider:        "osm",
		FadeIntensity:       0.4,
		DisableOnCacheError: true,
	}
}

// LoadConfig reads a YAML config file. A missing file yields defaults without
// error, invalid YAML or unknown fields are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}

	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// BudgetConfig derives the rate budget tracker configuration.
func (c Config) BudgetConfig() BudgetConfig {
	return BudgetConfig{
		HourlyLimit: c.MaxAPICallsPerHour,
		DailyLimit:  c.DailyAPIBudget,
	}
}

// ScrollConfig derives the scroll controller configuration.
func (c Config) ScrollConfig() ScrollConfig {
	return ScrollConfig{
		BufferFraction: c.SafetyBuffer,
		MinDuration:    c.MinDuration,
		MaxDuration:    c.MaxDuration,
		MaxDisplayTime: c.MaxDisplayTime,
	}
}

// TilesConfig derives the tile fetcher configuration over the given cache.
func (c Config) TilesConfig(cache ReadWriter) TilesConfig {
	threshold := 5
	if !c.DisableOnCacheError {
		threshold = -1
	}

	return TilesConfig{
		Cache:            cache,
		Provider:         c.TileProvider,
		TimeToLive:       time.Duration(c.CacheTTLHours) * time.Hour,
		FadeIntensity:    c.FadeIntensity,
		DisableThreshold: threshold,
	}
}

// DiskConfig derives the disk cache configuration.
func (c Config) DiskConfig() DiskConfig {
	return DiskConfig{
		Name:       "disk",
		Dir:        c.CacheDir,
		TimeToLive: time.Duration(c.CacheTTLHours) * time.Hour,
	}
}
