package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/pixelstorm/internal/engine/dirty"
	"github.com/dshills/pixelstorm/internal/engine/history"
	"github.com/dshills/pixelstorm/internal/engine/lock"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
	"github.com/dshills/pixelstorm/internal/event/topic"
)

// Command is a reversible edit of a Document.
type Command = history.Command[*Document]

// StateID identifies a history state.
type StateID = history.StateID

// Document owns one sprite together with its undo history, selection mask
// and lock. Every recorded edit goes through a Transaction.
//
// The document lock is not taken implicitly except by Transact, Undo, Redo,
// MoveTo, Read and Close. Code driving a Transaction directly must hold the
// write lock itself.
type Document struct {
	id      uuid.UUID
	reg     *registry.Registry
	bus     *event.Bus
	ownsBus bool
	logger  *zap.Logger

	memoryLimit   int
	maxEntries    int
	eviction      history.EvictionPolicy
	maxImageBytes int

	sprite  *sprite.Sprite
	history *history.History[*Document]
	lock    lock.Lock
	dirty   *dirty.Tracker
	mask    *sprite.Mask

	mu           sync.Mutex // guards the fields below
	saved        history.StateID
	closed       bool
	tx           *Transaction
	inconsistent atomic.Bool
}

func newDocument(opts []Option) *Document {
	d := &Document{
		id:          uuid.New(),
		ownsBus:     true,
		logger:      zap.NewNop(),
		memoryLimit: DefaultMemoryLimit,
		maxEntries:  DefaultMaxEntries,
		eviction:    history.EvictOldest,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.reg == nil {
		d.reg = registry.New()
	}
	if d.bus == nil {
		d.bus = event.NewBus(event.WithLogger(d.logger.Named("event")))
	}
	d.logger = d.logger.With(zap.Stringer("document", d.id))
	return d
}

// New creates a document holding an empty sprite: one frame, a default
// palette and no layers.
func New(format sprite.PixelFormat, width, height int, opts ...Option) (*Document, error) {
	d := newDocument(opts)
	s, err := sprite.New(d.reg, format, width, height, sprite.WithMaxImageBytes(d.maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}
	d.adopt(s)
	return d, nil
}

// Open decodes a sprite into a new document with an empty history.
func Open(data []byte, opts ...Option) (*Document, error) {
	d := newDocument(opts)
	s, err := sprite.Decode(d.reg, data, sprite.WithMaxImageBytes(d.maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	d.adopt(s)
	return d, nil
}

func (d *Document) adopt(s *sprite.Sprite) {
	d.sprite = s
	d.dirty = dirty.NewTracker(s.Width(), s.Height())
	d.history = history.New(d,
		history.WithMemoryLimit(d.memoryLimit),
		history.WithMaxEntries(d.maxEntries),
		history.WithEvictionPolicy(d.eviction),
		history.WithLogger(d.logger.Named("history")),
		history.WithEvictHook(d.evicted),
	)
	d.saved = d.history.Current()
	d.logger.Debug("document created",
		zap.Stringer("format", s.Format()),
		zap.Int("width", s.Width()),
		zap.Int("height", s.Height()),
		zap.Int("frames", s.TotalFrames()))
}

func (d *Document) evicted(history.StateInfo) {
	evictedTotal.Inc()
}

// ============================================================================
// Accessors
// ============================================================================

// ID returns the document identity.
func (d *Document) ID() uuid.UUID { return d.id }

// Sprite returns the document's sprite. Readers must hold the document lock.
func (d *Document) Sprite() *sprite.Sprite { return d.sprite }

// Registry returns the registry the sprite's objects live in.
func (d *Document) Registry() *registry.Registry { return d.reg }

// Lock returns the document lock.
func (d *Document) Lock() *lock.Lock { return &d.lock }

// Bus returns the bus notifications are published on.
func (d *Document) Bus() *event.Bus { return d.bus }

// Dirty returns the tracker of canvas areas changed since the last render.
func (d *Document) Dirty() *dirty.Tracker { return d.dirty }

// Logger returns the document logger.
func (d *Document) Logger() *zap.Logger { return d.logger }

// Mask returns the current selection, or nil when nothing is selected.
func (d *Document) Mask() *sprite.Mask { return d.mask }

// SwapMask installs m as the selection and returns the previous one. It is
// meant for commands; a call outside a transaction is not recorded.
func (d *Document) SwapMask(m *sprite.Mask) *sprite.Mask {
	old := d.mask
	d.mask = m
	return old
}

// Notify publishes a notification about this document. Handler failures are
// logged by the bus and otherwise ignored.
func (d *Document) Notify(t topic.Topic, payload any) {
	err := d.bus.Publish(context.Background(), event.New(t, d.id, payload))
	if err != nil && !errors.Is(err, event.ErrBusClosed) {
		d.logger.Debug("notification not fully delivered", zap.Stringer("topic", t), zap.Error(err))
	}
}

// Encode serializes the sprite. The caller must hold the document lock.
func (d *Document) Encode() ([]byte, error) {
	return sprite.Encode(d.sprite)
}

// Read runs fn under a read lock taken on the first try.
func (d *Document) Read(fn func(*sprite.Sprite) error) error {
	if d.isClosed() {
		return ErrClosed
	}
	if !d.lock.TryLock(lock.Read) {
		return ErrLocked
	}
	defer d.unlock()
	return fn(d.sprite)
}

// ReadWait is Read for background workers: it retries the read lock at the
// pace of limiter until ctx is done.
func (d *Document) ReadWait(ctx context.Context, limiter *rate.Limiter, fn func(*sprite.Sprite) error) error {
	if d.isClosed() {
		return ErrClosed
	}
	if err := lock.Acquire(ctx, &d.lock, lock.Read, limiter); err != nil {
		return fmt.Errorf("read lock: %w", err)
	}
	defer d.unlock()
	return fn(d.sprite)
}

func (d *Document) unlock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Error("unlock document", zap.Error(err))
	}
}

// ============================================================================
// State
// ============================================================================

// IsModified reports whether the current history state differs from the
// one last marked saved.
func (d *Document) IsModified() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.Current() != d.saved
}

// MarkSaved records the current history state as the saved one.
func (d *Document) MarkSaved() {
	cur := d.history.Current()
	d.mu.Lock()
	d.saved = cur
	d.mu.Unlock()
	d.Notify(event.TopicDocSaved, event.HistoryPayload{Action: "saved", State: uint64(cur)})
}

// IsInconsistent reports whether a failed rollback or navigation left the
// document in an unknown state.
func (d *Document) IsInconsistent() bool { return d.inconsistent.Load() }

func (d *Document) markInconsistent(op string, err error) {
	if d.inconsistent.CompareAndSwap(false, true) {
		rollbackFailures.Inc()
		d.logger.Error("document left inconsistent", zap.String("op", op), zap.Error(err))
	}
}

func (d *Document) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Document) usable() error {
	if d.isClosed() {
		return ErrClosed
	}
	if d.inconsistent.Load() {
		return ErrInconsistent
	}
	return nil
}

// ============================================================================
// Transactions
// ============================================================================

// NewTransaction opens a transaction. Only one may be open at a time.
func (d *Document) NewTransaction(label string) (*Transaction, error) {
	if err := d.usable(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return nil, ErrTransactionActive
	}
	d.tx = &Transaction{doc: d, seq: history.NewSequence[*Document](label)}
	return d.tx, nil
}

func (d *Document) endTransaction(tx *Transaction) {
	d.mu.Lock()
	if d.tx == tx {
		d.tx = nil
	}
	d.mu.Unlock()
}

// Transact takes the write lock on the first try, runs fn in a new
// transaction and commits it. If fn fails or panics the transaction is
// rolled back.
func (d *Document) Transact(ctx context.Context, label string, fn func(*Transaction) error) (err error) {
	ctx, span := tracer.Start(ctx, "Document.Transact",
		trace.WithAttributes(attribute.String("transaction.label", label)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := d.usable(); err != nil {
		return err
	}
	if !d.lock.TryLock(lock.Write) {
		return ErrLocked
	}
	defer d.unlock()

	tx, err := d.NewTransaction(label)
	if err != nil {
		return err
	}
	defer tx.Close()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			return multierr.Append(err, rerr)
		}
		return err
	}
	if !tx.IsOpen() {
		return nil
	}
	return tx.Commit(ctx)
}

// ============================================================================
// History
// ============================================================================

// CanUndo reports whether an earlier state is retained.
func (d *Document) CanUndo() bool { return d.history.CanUndo() }

// CanRedo reports whether a later state is retained.
func (d *Document) CanRedo() bool { return d.history.CanRedo() }

// UndoLabel returns the label of the entry Undo would revert.
func (d *Document) UndoLabel() (string, bool) { return d.history.UndoLabel() }

// RedoLabel returns the label of the entry Redo would re-apply.
func (d *Document) RedoLabel() (string, bool) { return d.history.RedoLabel() }

// CurrentState returns the current history state.
func (d *Document) CurrentState() StateID { return d.history.Current() }

// States lists the retained history states.
func (d *Document) States() []history.StateInfo { return d.history.States() }

// HistorySize returns the estimated bytes retained by the history.
func (d *Document) HistorySize() int { return d.history.MemSize() }

// SetHistoryLimits changes the history memory budget and entry limit.
func (d *Document) SetHistoryLimits(memoryLimit, maxEntries int) {
	d.history.SetLimits(memoryLimit, maxEntries)
	historyBytes.Set(float64(d.history.MemSize()))
}

// SetEvictionPolicy changes the history eviction order.
func (d *Document) SetEvictionPolicy(p history.EvictionPolicy) {
	d.history.SetEvictionPolicy(p)
}

// Undo reverts the current history entry.
func (d *Document) Undo(ctx context.Context) error {
	return d.navigate(ctx, "undo", d.history.Undo)
}

// Redo re-applies the most recently visited child entry.
func (d *Document) Redo(ctx context.Context) error {
	return d.navigate(ctx, "redo", d.history.Redo)
}

// MoveTo navigates to any retained history state.
func (d *Document) MoveTo(ctx context.Context, id StateID) (err error) {
	ctx, span := tracer.Start(ctx, "Document.MoveTo",
		trace.WithAttributes(
			attribute.Int64("history.from", int64(d.history.Current())),
			attribute.Int64("history.to", int64(id)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return d.navigate(ctx, "move", func(ctx context.Context) error {
		return d.history.MoveTo(ctx, id)
	})
}

func (d *Document) navigate(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := d.usable(); err != nil {
		return err
	}
	if !d.lock.TryLock(lock.Write) {
		navigationTotal.WithLabelValues(op, "locked").Inc()
		return ErrLocked
	}
	defer d.unlock()

	err := fn(ctx)
	navigationTotal.WithLabelValues(op, resultLabel(err)).Inc()
	historyBytes.Set(float64(d.history.MemSize()))

	switch {
	case err == nil:
	case errors.Is(err, history.ErrNothingToUndo),
		errors.Is(err, history.ErrNothingToRedo),
		errors.Is(err, history.ErrUnknownState),
		errors.Is(err, history.ErrBusy),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		d.markInconsistent(op, err)
		return err
	}

	cur := d.history.Current()
	d.logger.Debug("history navigated", zap.String("op", op), zap.Uint64("state", uint64(cur)))
	d.Notify(event.TopicHistoryChange, event.HistoryPayload{Action: op, State: uint64(cur)})
	return nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Close rolls back an open transaction, disposes the history and removes
// every object of the sprite from the registry. The document cannot be
// used afterwards.
func (d *Document) Close() error {
	if d.isClosed() {
		return ErrClosed
	}
	if !d.lock.TryLock(lock.Write) {
		return ErrLocked
	}
	defer d.unlock()

	d.mu.Lock()
	tx := d.tx
	d.mu.Unlock()
	if tx != nil {
		tx.Close()
	}

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.history.Clear()
	err := d.sprite.Release()
	d.Notify(event.TopicDocClosed, nil)
	if d.ownsBus {
		d.bus.Close()
	}
	historyBytes.Set(0)
	if err != nil {
		d.logger.Error("release sprite", zap.Error(err))
	}
	d.logger.Debug("document closed")
	return err
}
