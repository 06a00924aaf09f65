package boardloop_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veartutop/boardloop"
)

func TestLoadConfig_missingFileYieldsDefaults(t *testing.T) {
	cfg, err := boardloop.LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, boardloop.DefaultConfig(), cfg)
}

func TestLoadConfig(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "board.yml")
	require.NoError(t, os.WriteFile(fn, []byte(`
max_api_calls_per_hour: 30
daily_api_budget: 400
cache_ttl_hours: 12
min_duration: 30s
max_display_time: 2m
tile_provider: carto-dark
fade_intensity: 0.25
disable_on_cache_error: false
`), 0o600))

	cfg, err := boardloop.LoadConfig(fn)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.MaxAPICallsPerHour)
	assert.Equal(t, 400, cfg.DailyAPIBudget)
	assert.Equal(t, 12, cfg.CacheTTLHours)
	assert.Equal(t, 30*time.Second, cfg.MinDuration)
	assert.Equal(t, 2*time.Minute, cfg.MaxDisplayTime)
	assert.Equal(t, "carto-dark", cfg.TileProvider)
	assert.InDelta(t, 0.25, cfg.FadeIntensity, 0.001)
	assert.False(t, cfg.DisableOnCacheError)

	// Untouched fields keep their defaults.
	assert.Equal(t, 90*time.Second, cfg.MaxDuration)
}

func TestLoadConfig_unknownFieldRejected(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "board.yml")
	require.NoError(t, os.WriteFile(fn, []byte("no_such_threshold: 1\n"), 0o600))

	_, err := boardloop.LoadConfig(fn)
	assert.Error(t, err)
}

func TestConfig_derivations(t *testing.T) {
	cfg := boardloop.DefaultConfig()

	bc := cfg.BudgetConfig()
	assert.Equal(t, 60, bc.HourlyLimit)
	assert.Equal(t, 1000, bc.DailyLimit)

	sc := cfg.ScrollConfig()
	assert.Equal(t, 120*time.Second, sc.MaxDisplayTime)
	assert.InDelta(t, 0.1, sc.BufferFraction, 0.001)

	tc := cfg.TilesConfig(boardloop.NoOp{})
	assert.Equal(t, 24*time.Hour, tc.TimeToLive)
	assert.Equal(t, 5, tc.DisableThreshold)

	cfg.DisableOnCacheError = false
	tc = cfg.TilesConfig(boardloop.NoOp{})
	assert.Equal(t, -1, tc.DisableThreshold)

	dc := cfg.DiskConfig()
	assert.Equal(t, cfg.CacheDir, dc.Dir)
}
