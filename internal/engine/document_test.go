package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/dshills/pixelstorm/internal/engine/history"
	"github.com/dshills/pixelstorm/internal/engine/lock"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
)

var errBoom = errors.New("boom")

// setDuration swaps the duration of frame 0.
type setDuration struct {
	ms       int
	failUndo bool
}

func (c *setDuration) swap(d *Document) error {
	s := d.Sprite()
	old := s.FrameDuration(0)
	if err := s.SetFrameDuration(0, c.ms); err != nil {
		return err
	}
	c.ms = old
	return nil
}

func (c *setDuration) OnExecute(d *Document) error { return c.swap(d) }

func (c *setDuration) OnUndo(d *Document) error {
	if c.failUndo {
		return errBoom
	}
	return c.swap(d)
}

func (c *setDuration) Label() string { return "Set Duration" }
func (c *setDuration) MemSize() int  { return 16 }

func newTestDocument(t *testing.T, opts ...Option) *Document {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	d, err := New(sprite.FormatRGB, 8, 8, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func duration(d *Document) int { return d.Sprite().FrameDuration(0) }

func TestNewDocument(t *testing.T) {
	d := newTestDocument(t)
	s := d.Sprite()

	assert.Equal(t, 8, s.Width())
	assert.Equal(t, 1, s.TotalFrames())
	assert.Empty(t, s.Layers())
	assert.False(t, d.IsModified())
	assert.False(t, d.CanUndo())
	assert.False(t, d.CanRedo())

	_, err := New(sprite.FormatRGB, 0, 8)
	require.ErrorIs(t, err, sprite.ErrInvalidSize)
}

func TestTransactCommitUndoRedo(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t)

	err := d.Transact(ctx, "Slow Down", func(tx *Transaction) error {
		require.NoError(t, tx.Execute(&setDuration{ms: 300}))
		return tx.Execute(&setDuration{ms: 500})
	})
	require.NoError(t, err)
	assert.Equal(t, 500, duration(d))
	assert.True(t, d.IsModified())

	label, ok := d.UndoLabel()
	require.True(t, ok)
	assert.Equal(t, "Slow Down", label)

	require.NoError(t, d.Undo(ctx))
	assert.Equal(t, sprite.DefaultFrameDuration, duration(d), "one undo reverts the whole transaction")
	assert.False(t, d.IsModified())

	require.NoError(t, d.Redo(ctx))
	assert.Equal(t, 500, duration(d))

	require.ErrorIs(t, d.Redo(ctx), ErrNothingToRedo)
	assert.False(t, d.IsInconsistent())
}

func TestTransactRollsBackOnError(t *testing.T) {
	d := newTestDocument(t)
	state := d.CurrentState()

	err := d.Transact(context.Background(), "fails", func(tx *Transaction) error {
		require.NoError(t, tx.Execute(&setDuration{ms: 300}))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, sprite.DefaultFrameDuration, duration(d))
	assert.Equal(t, state, d.CurrentState())
	assert.False(t, d.CanUndo())
}

func TestTransactRollsBackOnPanic(t *testing.T) {
	d := newTestDocument(t)

	assert.Panics(t, func() {
		_ = d.Transact(context.Background(), "panics", func(tx *Transaction) error {
			_ = tx.Execute(&setDuration{ms: 300})
			panic("oops")
		})
	})
	assert.Equal(t, sprite.DefaultFrameDuration, duration(d))

	// the lock and the transaction slot were released
	require.NoError(t, d.Transact(context.Background(), "after", func(tx *Transaction) error {
		return tx.Execute(&setDuration{ms: 20})
	}))
}

func TestEmptyTransactionRecordsNothing(t *testing.T) {
	d := newTestDocument(t)
	state := d.CurrentState()

	require.NoError(t, d.Transact(context.Background(), "nothing", func(*Transaction) error { return nil }))
	assert.Equal(t, state, d.CurrentState())
	assert.False(t, d.CanUndo())
}

func TestTransactionProtocol(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t)

	require.True(t, d.Lock().TryLock(lock.Write))
	defer func() { require.NoError(t, d.Lock().Unlock()) }()

	tx, err := d.NewTransaction("first")
	require.NoError(t, err)
	_, err = d.NewTransaction("second")
	require.ErrorIs(t, err, ErrTransactionActive)

	require.NoError(t, tx.Execute(&setDuration{ms: 10}))
	require.NoError(t, tx.Commit(ctx))
	assert.False(t, tx.IsOpen())

	var pe *history.ProtocolError
	assert.Panics(t, func() { _ = tx.Commit(ctx) })
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			require.ErrorAs(t, r.(error), &pe)
		}()
		_ = tx.Execute(&setDuration{ms: 20})
	}()
	tx.Close() // no-op after commit

	tx2, err := d.NewTransaction("third")
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
	assert.Panics(t, func() { _ = tx2.Rollback(ctx) })
}

func TestCommitRequiresWriteLock(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t)

	tx, err := d.NewTransaction("unlocked")
	require.NoError(t, err)
	require.NoError(t, tx.Execute(&setDuration{ms: 10}))

	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			var pe *history.ProtocolError
			require.ErrorAs(t, r.(error), &pe)
			assert.Equal(t, "commit without write lock", pe.Op)
		}()
		_ = tx.Commit(ctx)
	}()
	assert.True(t, tx.IsOpen())
	assert.False(t, d.CanUndo())

	require.True(t, d.Lock().TryLock(lock.Read))
	assert.Panics(t, func() { _ = tx.Commit(ctx) }, "a read lock is not enough")
	require.NoError(t, d.Lock().Unlock())

	require.True(t, d.Lock().TryLock(lock.Write))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, d.Lock().Unlock())
	assert.True(t, d.CanUndo())
	assert.Equal(t, 10, d.Sprite().FrameDuration(0))
}

func TestFailedRollbackMarksInconsistent(t *testing.T) {
	d := newTestDocument(t)

	err := d.Transact(context.Background(), "bad", func(tx *Transaction) error {
		require.NoError(t, tx.Execute(&setDuration{ms: 300, failUndo: true}))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	require.ErrorIs(t, err, ErrInconsistent)
	assert.True(t, d.IsInconsistent())

	err = d.Transact(context.Background(), "next", func(*Transaction) error { return nil })
	require.ErrorIs(t, err, ErrInconsistent)
	require.ErrorIs(t, d.Undo(context.Background()), ErrInconsistent)
}

func TestFailedUndoMarksInconsistent(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t)
	require.NoError(t, d.Transact(ctx, "bad", func(tx *Transaction) error {
		return tx.Execute(&setDuration{ms: 300, failUndo: true})
	}))

	require.ErrorIs(t, d.Undo(ctx), errBoom)
	assert.True(t, d.IsInconsistent())
}

func TestLockedDocumentRefusesEdits(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t)
	require.NoError(t, d.Transact(ctx, "edit", func(tx *Transaction) error {
		return tx.Execute(&setDuration{ms: 300})
	}))

	require.True(t, d.Lock().TryLock(lock.Read))
	err := d.Transact(ctx, "blocked", func(*Transaction) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrLocked)
	require.ErrorIs(t, d.Undo(ctx), ErrLocked)
	require.ErrorIs(t, d.Close(), ErrLocked)

	// readers share the lock
	require.NoError(t, d.Read(func(s *sprite.Sprite) error {
		assert.Equal(t, 300, s.FrameDuration(0))
		return nil
	}))
	require.NoError(t, d.Lock().Unlock())
	require.NoError(t, d.Undo(ctx))
}

func TestReadWaitRetries(t *testing.T) {
	d := newTestDocument(t)
	require.True(t, d.Lock().TryLock(lock.Write))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = d.Lock().Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	called := false
	err := d.ReadWait(ctx, rate.NewLimiter(rate.Every(time.Millisecond), 1), func(*sprite.Sprite) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestMarkSaved(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t)

	var saved int
	_, err := d.Bus().Subscribe(event.TopicDocSaved, func(context.Context, event.Event) error {
		saved++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, d.Transact(ctx, "edit", func(tx *Transaction) error {
		return tx.Execute(&setDuration{ms: 300})
	}))
	d.MarkSaved()
	assert.False(t, d.IsModified())
	assert.Equal(t, 1, saved)

	require.NoError(t, d.Undo(ctx))
	assert.True(t, d.IsModified())
	require.NoError(t, d.Redo(ctx))
	assert.False(t, d.IsModified())
}

func TestHistoryEvents(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t)

	var actions []string
	_, err := d.Bus().Subscribe("doc.history.*", func(_ context.Context, ev event.Event) error {
		actions = append(actions, ev.Payload.(event.HistoryPayload).Action)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, d.Transact(ctx, "edit", func(tx *Transaction) error {
		return tx.Execute(&setDuration{ms: 300})
	}))
	first := d.CurrentState()
	require.NoError(t, d.Undo(ctx))
	require.NoError(t, d.MoveTo(ctx, first))

	assert.Equal(t, []string{"commit", "undo", "move"}, actions)
}

func TestMoveToUnknownState(t *testing.T) {
	d := newTestDocument(t)
	err := d.MoveTo(context.Background(), StateID(9999))
	require.ErrorIs(t, err, history.ErrUnknownState)
	assert.False(t, d.IsInconsistent())
}

func TestOpenEncoded(t *testing.T) {
	d := newTestDocument(t)
	require.NoError(t, d.Transact(context.Background(), "edit", func(tx *Transaction) error {
		return tx.Execute(&setDuration{ms: 300})
	}))
	b, err := d.Encode()
	require.NoError(t, err)

	opened, err := Open(b)
	require.NoError(t, err)
	defer opened.Close()

	assert.NotEqual(t, d.ID(), opened.ID())
	assert.Equal(t, 300, duration(opened))
	assert.False(t, opened.CanUndo())
	assert.False(t, opened.IsModified())

	_, err = Open([]byte("{"))
	require.ErrorIs(t, err, sprite.ErrDecode)
}

func TestClose(t *testing.T) {
	d, err := New(sprite.FormatIndexed, 4, 4)
	require.NoError(t, err)
	reg := d.Registry()
	spriteID := d.Sprite().ID()

	var closed bool
	_, err = d.Bus().Subscribe(event.TopicDocClosed, func(context.Context, event.Event) error {
		closed = true
		return nil
	})
	require.NoError(t, err)

	tx, err := d.NewTransaction("open")
	require.NoError(t, err)
	require.NoError(t, tx.Execute(&setDuration{ms: 300}))

	require.NoError(t, d.Close())
	assert.True(t, closed)
	assert.False(t, tx.IsOpen(), "close rolls back the open transaction")
	assert.False(t, reg.IsLive(spriteID))

	require.ErrorIs(t, d.Close(), ErrClosed)
	require.ErrorIs(t, d.Read(func(*sprite.Sprite) error { return nil }), ErrClosed)
	require.ErrorIs(t, d.Transact(context.Background(), "x", func(*Transaction) error { return nil }), ErrClosed)
}

func TestSharedBusOutlivesDocument(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	d, err := New(sprite.FormatRGB, 2, 2, WithBus(bus))
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = bus.Subscribe("doc.**", func(context.Context, event.Event) error { return nil })
	require.NoError(t, err)
}
