package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/pixelstorm/internal/engine/history"
)

// Config holds every pixelstorm setting.
type Config struct {
	History  History  `toml:"history" yaml:"history"`
	Limits   Limits   `toml:"limits" yaml:"limits"`
	Autosave Autosave `toml:"autosave" yaml:"autosave"`
	Preview  Preview  `toml:"preview" yaml:"preview"`
	Log      Log      `toml:"log" yaml:"log"`
}

// History bounds the undo history of each document. Zero disables a limit.
type History struct {
	MemoryLimit int    `toml:"memory_limit" yaml:"memory_limit"`
	MaxEntries  int    `toml:"max_entries" yaml:"max_entries"`
	Eviction    string `toml:"eviction" yaml:"eviction"`
}

// Policy returns the parsed eviction policy.
func (h History) Policy() (history.EvictionPolicy, error) {
	return history.ParseEvictionPolicy(h.Eviction)
}

// Limits bounds resource use of a sprite. Zero disables a limit.
type Limits struct {
	MaxImageBytes int `toml:"max_image_bytes" yaml:"max_image_bytes"`
}

// Autosave configures periodic snapshots of open documents.
type Autosave struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Dir      string   `toml:"dir" yaml:"dir"`
	InMemory bool     `toml:"in_memory" yaml:"in_memory"`
	Interval Duration `toml:"interval" yaml:"interval"`
	Keep     int      `toml:"keep" yaml:"keep"`
}

// Preview configures thumbnail rendering.
type Preview struct {
	Size     int      `toml:"size" yaml:"size"`
	Interval Duration `toml:"interval" yaml:"interval"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `toml:"level" yaml:"level"`
	Development bool   `toml:"development" yaml:"development"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		History: History{
			MemoryLimit: history.DefaultMemoryLimit,
			MaxEntries:  history.DefaultMaxEntries,
			Eviction:    history.EvictOldest.String(),
		},
		Limits: Limits{
			MaxImageBytes: 256 << 20,
		},
		Autosave: Autosave{
			Interval: Duration(30 * time.Second),
			Keep:     5,
		},
		Preview: Preview{
			Size:     128,
			Interval: Duration(250 * time.Millisecond),
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Validate checks every setting and reports all failures together.
func (c *Config) Validate() error {
	var errs error
	invalid := func(path, msg string, v any) {
		errs = multierr.Append(errs, &ValidationError{Path: path, Message: msg, Value: v})
	}

	if c.History.MemoryLimit < 0 {
		invalid("history.memory_limit", "must not be negative", c.History.MemoryLimit)
	}
	if c.History.MaxEntries < 0 {
		invalid("history.max_entries", "must not be negative", c.History.MaxEntries)
	}
	if _, err := c.History.Policy(); err != nil {
		invalid("history.eviction", err.Error(), c.History.Eviction)
	}
	if c.Limits.MaxImageBytes < 0 {
		invalid("limits.max_image_bytes", "must not be negative", c.Limits.MaxImageBytes)
	}
	if c.Autosave.Enabled {
		if c.Autosave.Dir == "" && !c.Autosave.InMemory {
			invalid("autosave.dir", "required unless autosave.in_memory is set", c.Autosave.Dir)
		}
		if c.Autosave.Interval.Std() <= 0 {
			invalid("autosave.interval", "must be positive", c.Autosave.Interval)
		}
	}
	if c.Autosave.Keep < 1 {
		invalid("autosave.keep", "must be at least 1", c.Autosave.Keep)
	}
	if c.Preview.Size < 1 || c.Preview.Size > 4096 {
		invalid("preview.size", "must be between 1 and 4096", c.Preview.Size)
	}
	if c.Preview.Interval.Std() < 0 {
		invalid("preview.interval", "must not be negative", c.Preview.Interval)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level", err.Error(), c.Log.Level)
	}
	return errs
}

// Logger builds the zap logger described by the log section.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
