// Package autosave periodically snapshots documents into a badger store.
//
// A Saver is a background reader. It waits for the document's read lock at
// a bounded rate, encodes the sprite under that lock and writes the bytes
// after releasing it. Autosaving does not mark the document saved: it is
// crash protection, not a user save.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

// DefaultInterval is how often a Saver checks for changes.
const DefaultInterval = 30 * time.Second

var snapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pixelstorm_autosave_snapshots_total",
	Help: "Autosave attempts by result",
}, []string{"result"})

// Option configures a Saver.
type Option func(*Saver)

// WithInterval sets the autosave period.
func WithInterval(d time.Duration) Option {
	return func(s *Saver) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLimiter paces read lock retries.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Saver) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Saver) {
		if l != nil {
			s.logger = l
		}
	}
}

// Saver snapshots one document whenever its history state changed since the
// last snapshot.
type Saver struct {
	doc      *engine.Document
	store    *Store
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger

	last    engine.StateID
	hasLast bool
}

// NewSaver creates a saver writing snapshots of doc to store.
func NewSaver(doc *engine.Document, store *Store, opts ...Option) *Saver {
	s := &Saver{
		doc:      doc,
		store:    store,
		interval: DefaultInterval,
		limiter:  rate.NewLimiter(rate.Every(10*time.Millisecond), 1),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.Stringer("document", doc.ID()))
	return s
}

// SaveNow writes a snapshot unless the document is unchanged since the last
// one. It reports whether a snapshot was written.
func (s *Saver) SaveNow(ctx context.Context) (bool, error) {
	var (
		data  []byte
		state engine.StateID
		skip  bool
	)
	err := s.doc.ReadWait(ctx, s.limiter, func(*sprite.Sprite) error {
		state = s.doc.CurrentState()
		if s.hasLast && state == s.last {
			skip = true
			return nil
		}
		var err error
		data, err = s.doc.Encode()
		return err
	})
	if err != nil {
		snapshotsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("autosave: %w", err)
	}
	if skip {
		snapshotsTotal.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	snap, err := s.store.Save(s.doc.ID(), uint64(state), data)
	if err != nil {
		snapshotsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("autosave: %w", err)
	}
	s.last, s.hasLast = state, true
	snapshotsTotal.WithLabelValues("saved").Inc()
	s.logger.Debug("autosaved",
		zap.Uint64("seq", snap.Seq),
		zap.Uint64("state", snap.State),
		zap.Int("bytes", len(data)))
	return true, nil
}

// Run autosaves every interval until ctx is done.
func (s *Saver) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		_, err := s.SaveNow(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, engine.ErrClosed):
			return nil
		default:
			s.logger.Warn("autosave failed", zap.Error(err))
		}
	}
}

// Restore opens the newest snapshot of doc as a new document.
func Restore(store *Store, doc uuid.UUID, opts ...engine.Option) (*engine.Document, error) {
	snap, err := store.Latest(doc)
	if err != nil {
		return nil, err
	}
	d, err := engine.Open(snap.Data, opts...)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", doc, err)
	}
	return d, nil
}
