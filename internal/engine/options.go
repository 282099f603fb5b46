package engine

import (
	"go.uber.org/zap"

	"github.com/dshills/pixelstorm/internal/engine/history"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/event"
)

// Default configuration values.
const (
	DefaultMemoryLimit = history.DefaultMemoryLimit
	DefaultMaxEntries  = history.DefaultMaxEntries
)

// Option configures a Document during creation.
type Option func(*Document)

// WithLogger sets the logger used by the document and its history.
func WithLogger(l *zap.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRegistry shares reg with other documents so object IDs are unique
// across all of them. By default each document owns a registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(d *Document) {
		if reg != nil {
			d.reg = reg
		}
	}
}

// WithBus publishes document notifications on bus instead of a private bus.
func WithBus(bus *event.Bus) Option {
	return func(d *Document) {
		if bus != nil {
			d.bus = bus
			d.ownsBus = false
		}
	}
}

// WithMemoryLimit sets the undo history memory budget in bytes.
func WithMemoryLimit(n int) Option {
	return func(d *Document) {
		if n > 0 {
			d.memoryLimit = n
		}
	}
}

// WithMaxEntries sets the maximum number of undo history entries.
func WithMaxEntries(n int) Option {
	return func(d *Document) {
		if n > 0 {
			d.maxEntries = n
		}
	}
}

// WithEviction selects which history entries are dropped first when a
// limit is exceeded.
func WithEviction(p history.EvictionPolicy) Option {
	return func(d *Document) {
		d.eviction = p
	}
}

// WithMaxImageBytes limits the size of any single pixel buffer.
func WithMaxImageBytes(n int) Option {
	return func(d *Document) {
		if n > 0 {
			d.maxImageBytes = n
		}
	}
}
