package history

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Default limits.
const (
	DefaultMaxEntries  = 1000
	DefaultMemoryLimit = 64 << 20
)

// EvictionPolicy chooses which entry goes first when a limit is exceeded.
type EvictionPolicy uint8

const (
	// EvictOldest removes entries in creation order: the base of the
	// current line or the leaf of any branch, whichever was created first.
	EvictOldest EvictionPolicy = iota

	// EvictAbandonedFirst removes leaves of abandoned branches first, then
	// the far end of the redo line, and only then the base of the current
	// line.
	EvictAbandonedFirst
)

// String returns the policy name.
func (p EvictionPolicy) String() string {
	switch p {
	case EvictOldest:
		return "oldest"
	case EvictAbandonedFirst:
		return "abandoned-first"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseEvictionPolicy converts a policy name.
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch s {
	case "oldest", "":
		return EvictOldest, nil
	case "abandoned-first", "abandoned":
		return EvictAbandonedFirst, nil
	}
	return 0, fmt.Errorf("unknown eviction policy %q", s)
}

type settings struct {
	memoryLimit int
	maxEntries  int
	policy      EvictionPolicy
	logger      *zap.Logger
	onEvict     func(StateInfo)
	now         func() time.Time
}

func defaultSettings() settings {
	return settings{
		memoryLimit: DefaultMemoryLimit,
		maxEntries:  DefaultMaxEntries,
		policy:      EvictOldest,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
}

// Option configures a History.
type Option func(*settings)

// WithMemoryLimit sets the byte budget for retained entries. Zero disables it.
func WithMemoryLimit(n int) Option {
	return func(s *settings) {
		s.memoryLimit = n
	}
}

// WithMaxEntries limits the number of retained entries. Zero disables it.
func WithMaxEntries(n int) Option {
	return func(s *settings) {
		s.maxEntries = n
	}
}

// WithEvictionPolicy sets the eviction order.
func WithEvictionPolicy(p EvictionPolicy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEvictHook registers a function called for every evicted entry.
func WithEvictHook(fn func(StateInfo)) Option {
	return func(s *settings) {
		s.onEvict = fn
	}
}

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
