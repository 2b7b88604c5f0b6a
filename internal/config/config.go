package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HistoryConfig controls the undo/redo history subsystem.
type HistoryConfig struct {
	Enabled      *bool `yaml:"enabled"`        // default true
	Limit        int   `yaml:"limit"`          // max retained action records
	FlushDelayMS int   `yaml:"flush_delay_ms"` // debounce window for disk flushes
}

// EventsConfig controls per-subscriber delivery queues.
type EventsConfig struct {
	QueueSize           int `yaml:"queue_size"`            // bounded outbound queue per subscriber
	MaxConsecutiveDrops int `yaml:"max_consecutive_drops"` // kick threshold for lagging subscribers
}

// Config is the daemon configuration.
type Config struct {
	FuzzyThreshold  int           `yaml:"fuzzy_threshold"`   // max edit distance for fuzzy app matching
	ActionTimeoutMS int           `yaml:"action_timeout_ms"` // bound on a single window action
	PollIntervalMS  int           `yaml:"poll_interval_ms"`  // app snapshot refresh interval
	LogLevel        string        `yaml:"log_level"`         // debug, info, warn, error
	History         HistoryConfig `yaml:"history"`
	Events          EventsConfig  `yaml:"events"`
}

const (
	DefaultFuzzyThreshold      = 2
	DefaultActionTimeoutMS     = 5000
	DefaultPollIntervalMS      = 2000
	DefaultHistoryLimit        = 50
	DefaultFlushDelayMS        = 2000
	DefaultQueueSize           = 64
	DefaultMaxConsecutiveDrops = 32
)

// Default returns a config populated with defaults.
func Default() *Config {
	enabled := true
	return &Config{
		FuzzyThreshold:  DefaultFuzzyThreshold,
		ActionTimeoutMS: DefaultActionTimeoutMS,
		PollIntervalMS:  DefaultPollIntervalMS,
		LogLevel:        "info",
		History: HistoryConfig{
			Enabled:      &enabled,
			Limit:        DefaultHistoryLimit,
			FlushDelayMS: DefaultFlushDelayMS,
		},
		Events: EventsConfig{
			QueueSize:           DefaultQueueSize,
			MaxConsecutiveDrops: DefaultMaxConsecutiveDrops,
		},
	}
}

// HistoryEnabled reports whether history tracking is on.
func (c *Config) HistoryEnabled() bool {
	return c.History.Enabled == nil || *c.History.Enabled
}

// DefaultConfigPath returns ~/.config/sashd/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "sashd", "config.yaml"), nil
}

// Load reads the configuration from the standard location. A missing file
// yields the defaults.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from path, applying defaults for
// any omitted keys. A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.FuzzyThreshold < 0 {
		return fmt.Errorf("fuzzy_threshold must be >= 0, got %d", c.FuzzyThreshold)
	}
	if c.ActionTimeoutMS <= 0 {
		c.ActionTimeoutMS = DefaultActionTimeoutMS
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = DefaultPollIntervalMS
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must be >= 0, got %d", c.History.Limit)
	}
	if c.History.Limit == 0 {
		c.History.Limit = DefaultHistoryLimit
	}
	if c.History.FlushDelayMS < 0 {
		return fmt.Errorf("history.flush_delay_ms must be >= 0, got %d", c.History.FlushDelayMS)
	}
	if c.History.FlushDelayMS == 0 {
		c.History.FlushDelayMS = DefaultFlushDelayMS
	}
	if c.Events.QueueSize <= 0 {
		c.Events.QueueSize = DefaultQueueSize
	}
	if c.Events.MaxConsecutiveDrops <= 0 {
		c.Events.MaxConsecutiveDrops = DefaultMaxConsecutiveDrops
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}
