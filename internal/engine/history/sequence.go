package history

import "fmt"

const sequenceOverhead = 64

// Sequence is an ordered list of steps that executes, undoes and redoes as
// one command. High-level edits are built by issuing primitive commands
// through ExecuteAndAdd.
type Sequence[C any] struct {
	label string
	steps []*Step[C]
}

// NewSequence creates an empty sequence.
func NewSequence[C any](label string) *Sequence[C] {
	return &Sequence[C]{label: label}
}

// Label returns the sequence label.
func (q *Sequence[C]) Label() string {
	if q.label != "" {
		return q.label
	}
	if len(q.steps) == 1 {
		return q.steps[0].Label()
	}
	return fmt.Sprintf("%d operations", len(q.steps))
}

// Len returns the number of steps.
func (q *Sequence[C]) Len() int { return len(q.steps) }

// IsEmpty reports whether the sequence holds no steps.
func (q *Sequence[C]) IsEmpty() bool { return len(q.steps) == 0 }

// Steps returns a copy of the step list.
func (q *Sequence[C]) Steps() []*Step[C] { return append([]*Step[C](nil), q.steps...) }

// MemSize returns the sequence overhead plus the size of every step.
func (q *Sequence[C]) MemSize() int {
	n := sequenceOverhead
	for _, s := range q.steps {
		n += s.MemSize()
	}
	return n
}

// Append adds cmd without running it. It runs when the sequence executes.
func (q *Sequence[C]) Append(cmd Command[C]) {
	q.steps = append(q.steps, NewStep(cmd))
}

// ExecuteAndAdd executes cmd immediately and appends it. A failed command is
// disposed and not added; the steps already in the sequence stay applied.
func (q *Sequence[C]) ExecuteAndAdd(target C, cmd Command[C]) error {
	s := NewStep(cmd)
	if err := s.Execute(target); err != nil {
		s.Dispose(target)
		return err
	}
	q.steps = append(q.steps, s)
	return nil
}

// OnExecute runs every step not yet executed. Steps added through
// ExecuteAndAdd are already applied and are skipped. If a step fails, the
// steps run by this call are undone again.
func (q *Sequence[C]) OnExecute(target C) error {
	var ran []int
	for i, s := range q.steps {
		if s.State() != NotExecuted {
			continue
		}
		if err := s.Execute(target); err != nil {
			for j := len(ran) - 1; j >= 0; j-- {
				if uerr := q.steps[ran[j]].Undo(target); uerr != nil {
					return fmt.Errorf("%s: step %d: %w (undo of step %d failed: %v)", q.Label(), i, err, ran[j], uerr)
				}
			}
			return fmt.Errorf("%s: step %d: %w", q.Label(), i, err)
		}
		ran = append(ran, i)
	}
	return nil
}

// OnUndo undoes the steps in reverse order.
func (q *Sequence[C]) OnUndo(target C) error {
	for i := len(q.steps) - 1; i >= 0; i-- {
		if err := q.steps[i].Undo(target); err != nil {
			return fmt.Errorf("undo %s: step %d (%s): %w", q.Label(), i, q.steps[i].Label(), err)
		}
	}
	return nil
}

// OnRedo redoes the steps in order.
func (q *Sequence[C]) OnRedo(target C) error {
	for i, s := range q.steps {
		if err := s.Redo(target); err != nil {
			return fmt.Errorf("redo %s: step %d (%s): %w", q.Label(), i, s.Label(), err)
		}
	}
	return nil
}

// OnDispose disposes the steps, newest first.
func (q *Sequence[C]) OnDispose(target C) {
	for i := len(q.steps) - 1; i >= 0; i-- {
		q.steps[i].Dispose(target)
	}
	q.steps = nil
}
