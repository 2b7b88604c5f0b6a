package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultFuzzyThreshold, cfg.FuzzyThreshold)
	assert.Equal(t, DefaultActionTimeoutMS, cfg.ActionTimeoutMS)
	assert.Equal(t, DefaultHistoryLimit, cfg.History.Limit)
	assert.Equal(t, DefaultFlushDelayMS, cfg.History.FlushDelayMS)
	assert.True(t, cfg.HistoryEnabled())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
fuzzy_threshold: 3
log_level: debug
history:
  enabled: false
  limit: 10
  flush_delay_ms: 500
events:
  queue_size: 16
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.FuzzyThreshold)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.HistoryEnabled())
	assert.Equal(t, 10, cfg.History.Limit)
	assert.Equal(t, 500, cfg.History.FlushDelayMS)
	assert.Equal(t, 16, cfg.Events.QueueSize)
	// Unset keys keep their defaults.
	assert.Equal(t, DefaultMaxConsecutiveDrops, cfg.Events.MaxConsecutiveDrops)
	assert.Equal(t, DefaultActionTimeoutMS, cfg.ActionTimeoutMS)
}

func TestHistoryEnabledDefaultsTrue(t *testing.T) {
	path := writeConfig(t, `
history:
  limit: 5
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.True(t, cfg.HistoryEnabled())
	assert.Equal(t, 5, cfg.History.Limit)
}

func TestLoadRejectsNegativeThreshold(t *testing.T) {
	path := writeConfig(t, "fuzzy_threshold: -1\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy_threshold")
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	path := writeConfig(t, "log_level: verbose\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "history: [broken\n")

	_, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestValidateFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultActionTimeoutMS, cfg.ActionTimeoutMS)
	assert.Equal(t, DefaultPollIntervalMS, cfg.PollIntervalMS)
	assert.Equal(t, DefaultHistoryLimit, cfg.History.Limit)
	assert.Equal(t, DefaultFlushDelayMS, cfg.History.FlushDelayMS)
	assert.Equal(t, DefaultQueueSize, cfg.Events.QueueSize)
	assert.Equal(t, "info", cfg.LogLevel)
}
