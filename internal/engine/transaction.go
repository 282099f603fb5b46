package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dshills/pixelstorm/internal/engine/history"
	"github.com/dshills/pixelstorm/internal/event"
)

type txState uint8

const (
	txOpen txState = iota
	txCommitted
	txRolledBack
)

// Transaction groups commands into one history entry. Each command runs as
// soon as it is executed; Commit records the group, Rollback undoes it.
//
// A transaction is used from a single goroutine:
//
//	if !doc.Lock().TryLock(lock.Write) { return engine.ErrLocked }
//	defer doc.Lock().Unlock()
//	tx, err := doc.NewTransaction("Flatten")
//	if err != nil { ... }
//	defer tx.Close()
//	if err := tx.Execute(cmd); err != nil { return err }
//	return tx.Commit(ctx)
type Transaction struct {
	doc   *Document
	seq   *history.Sequence[*Document]
	state txState
}

// Document returns the document the transaction edits.
func (tx *Transaction) Document() *Document { return tx.doc }

// Label returns the transaction label.
func (tx *Transaction) Label() string { return tx.seq.Label() }

// Len returns the number of commands executed so far.
func (tx *Transaction) Len() int { return tx.seq.Len() }

// IsOpen reports whether the transaction was neither committed nor rolled back.
func (tx *Transaction) IsOpen() bool { return tx.state == txOpen }

// Execute runs cmd and records it. A failed command leaves the document as
// it was before the call; commands executed earlier stay applied until
// Commit or Rollback.
func (tx *Transaction) Execute(cmd Command) error {
	tx.check("execute")
	if tx.doc.inconsistent.Load() {
		return ErrInconsistent
	}
	if err := tx.seq.ExecuteAndAdd(tx.doc, cmd); err != nil {
		tx.doc.logger.Debug("command failed",
			zap.String("transaction", tx.Label()),
			zap.String("command", cmd.Label()),
			zap.Error(err))
		return fmt.Errorf("%s: %w", cmd.Label(), err)
	}
	return nil
}

// Commit appends the executed commands to the history as one entry. An
// empty transaction records nothing. The caller must hold the document's
// write lock; committing without it, or committing twice, panics.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.check("commit")
	if !tx.doc.lock.IsWriteLocked() {
		panic(&history.ProtocolError{Op: "commit without write lock", Label: tx.Label(), State: history.NotExecuted})
	}
	_, span := tracer.Start(ctx, "Transaction.Commit",
		trace.WithAttributes(
			attribute.String("transaction.label", tx.Label()),
			attribute.Int("transaction.steps", tx.Len()),
		))
	defer span.End()

	tx.finish(txCommitted)
	if tx.seq.IsEmpty() {
		transactionsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	step := history.NewStep[*Document](tx.seq)
	// Every child already ran, so this only moves the step to Executed.
	if err := step.Execute(tx.doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit %q: %w", tx.Label(), err)
	}
	id := tx.doc.history.Add(step)

	transactionsTotal.WithLabelValues("committed").Inc()
	transactionSteps.Observe(float64(tx.seq.Len()))
	historyBytes.Set(float64(tx.doc.history.MemSize()))
	tx.doc.logger.Debug("transaction committed",
		zap.String("label", tx.Label()),
		zap.Int("steps", tx.seq.Len()),
		zap.Uint64("state", uint64(id)))
	tx.doc.Notify(event.TopicHistoryChange, event.HistoryPayload{Action: "commit", Label: tx.Label(), State: uint64(id)})
	return nil
}

// Rollback undoes every executed command, newest first, and discards them.
// If an undo fails the document is marked inconsistent and the error is
// returned.
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.check("rollback")
	_, span := tracer.Start(ctx, "Transaction.Rollback",
		trace.WithAttributes(
			attribute.String("transaction.label", tx.Label()),
			attribute.Int("transaction.steps", tx.Len()),
		))
	defer span.End()

	tx.finish(txRolledBack)
	err := tx.seq.OnUndo(tx.doc)
	tx.seq.OnDispose(tx.doc)
	transactionsTotal.WithLabelValues("rolled_back").Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		tx.doc.markInconsistent("rollback", err)
		return fmt.Errorf("rollback %q: %w: %w", tx.Label(), ErrInconsistent, err)
	}
	tx.doc.logger.Debug("transaction rolled back", zap.String("label", tx.Label()))
	return nil
}

// Close rolls the transaction back unless it was committed or rolled back
// already. It is meant for defer.
func (tx *Transaction) Close() {
	if tx.state != txOpen {
		return
	}
	if err := tx.Rollback(context.Background()); err != nil {
		tx.doc.logger.Error("rollback on close", zap.String("label", tx.Label()), zap.Error(err))
	}
}

func (tx *Transaction) finish(s txState) {
	tx.state = s
	tx.doc.endTransaction(tx)
}

func (tx *Transaction) check(op string) {
	switch tx.state {
	case txCommitted:
		panic(&history.ProtocolError{Op: op + " after commit", Label: tx.Label(), State: history.Executed})
	case txRolledBack:
		panic(&history.ProtocolError{Op: op + " after rollback", Label: tx.Label(), State: history.Undone})
	}
}
