// Package lock provides the non-blocking reader/writer lock that gates
// access to a document.
//
// Every operation is try-once: it either succeeds immediately or reports
// failure, and the caller decides whether and how to retry. Background
// workers use Acquire to poll at a bounded rate until their context ends.
package lock

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// Kind selects a read or write lock.
type Kind int

const (
	// Read allows any number of concurrent readers and no writer.
	Read Kind = iota
	// Write is exclusive.
	Write
)

// String returns the lock kind name.
func (k Kind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// ErrUnlocked is returned by Unlock when nothing is held.
var ErrUnlocked = errors.New("lock not held")

// Lock is a try-lock. The zero value is unlocked and ready to use.
type Lock struct {
	mu      sync.Mutex
	readers int
	writer  bool
}

// TryLock acquires the lock of the given kind if it is available.
func (l *Lock) TryLock(kind Kind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch kind {
	case Read:
		if l.writer {
			return false
		}
		l.readers++
		return true
	case Write:
		if l.writer || l.readers > 0 {
			return false
		}
		l.writer = true
		return true
	}
	return false
}

// LockToWrite upgrades the caller's read lock to a write lock. It succeeds
// only while the caller is the sole reader, so no other writer can slip in
// between the release of the read lock and the acquisition of the write one.
func (l *Lock) LockToWrite() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer || l.readers != 1 {
		return false
	}
	l.readers = 0
	l.writer = true
	return true
}

// UnlockToRead downgrades a write lock to a read lock.
func (l *Lock) UnlockToRead() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.writer || l.readers != 0 {
		return false
	}
	l.writer = false
	l.readers = 1
	return true
}

// Unlock releases the held lock: the write lock if a writer holds it,
// otherwise one read lock.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.writer:
		l.writer = false
	case l.readers > 0:
		l.readers--
	default:
		return ErrUnlocked
	}
	return nil
}

// Readers returns the number of held read locks.
func (l *Lock) Readers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers
}

// IsWriteLocked reports whether a writer holds the lock.
func (l *Lock) IsWriteLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer
}

// IsLocked reports whether anything holds the lock.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer || l.readers > 0
}

// Acquire polls TryLock until it succeeds or ctx is done. Attempts are paced
// by limiter; a nil limiter retries at most every millisecond.
func Acquire(ctx context.Context, l *Lock, kind Kind, limiter *rate.Limiter) error {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(1000), 1)
	}
	for {
		if l.TryLock(kind) {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
}
