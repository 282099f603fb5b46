package history

import "fmt"

// Command is a reversible edit applied to a target of type C.
//
// OnExecute must either succeed or leave the target unchanged. OnUndo must
// restore the state that preceded OnExecute exactly.
type Command[C any] interface {
	// OnExecute applies the edit.
	OnExecute(target C) error

	// OnUndo reverses the edit.
	OnUndo(target C) error

	// Label returns a human-readable description.
	Label() string

	// MemSize estimates the bytes held by the command, including any
	// serialized state it keeps for undo.
	MemSize() int
}

// Redoer is implemented by commands whose redo differs from execute.
// Commands without it are redone by calling OnExecute again.
type Redoer[C any] interface {
	OnRedo(target C) error
}

// Notifier is implemented by commands that broadcast a change after each
// successful execute, undo or redo.
type Notifier[C any] interface {
	OnFireNotifications(target C)
}

// Disposer is implemented by commands holding resources that must be
// released when the command leaves history for good.
type Disposer[C any] interface {
	OnDispose(target C)
}

// State is the position of a Step in its lifecycle.
type State uint8

const (
	NotExecuted State = iota
	Executed
	Undone
	Redone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotExecuted:
		return "not-executed"
	case Executed:
		return "executed"
	case Undone:
		return "undone"
	case Redone:
		return "redone"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ProtocolError reports a step driven out of order. It is raised as a
// panic: callers inside the engine never produce it for valid use.
type ProtocolError struct {
	Op    string
	Label string
	State State
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("history: %s %q in state %s", e.Op, e.Label, e.State)
}

// Step drives a Command through its lifecycle:
//
//	NotExecuted ─Execute─▶ Executed ─Undo─▶ Undone ─Redo─▶ Redone
//	                                          ▲               │
//	                                          └──────Undo─────┘
type Step[C any] struct {
	cmd      Command[C]
	state    State
	disposed bool
}

// NewStep wraps cmd in a fresh step.
func NewStep[C any](cmd Command[C]) *Step[C] {
	return &Step[C]{cmd: cmd}
}

// Command returns the wrapped command.
func (s *Step[C]) Command() Command[C] { return s.cmd }

// State returns the lifecycle state.
func (s *Step[C]) State() State { return s.state }

// Label returns the command label.
func (s *Step[C]) Label() string { return s.cmd.Label() }

// MemSize returns the command's size estimate.
func (s *Step[C]) MemSize() int { return s.cmd.MemSize() }

// IsApplied reports whether the command's effect is currently in place.
func (s *Step[C]) IsApplied() bool { return s.state == Executed || s.state == Redone }

// Execute runs the command for the first time.
func (s *Step[C]) Execute(target C) error {
	s.check("execute", s.state == NotExecuted)
	if err := s.cmd.OnExecute(target); err != nil {
		return err
	}
	s.state = Executed
	s.notify(target)
	return nil
}

// Undo reverses an executed or redone command.
func (s *Step[C]) Undo(target C) error {
	s.check("undo", s.IsApplied())
	if err := s.cmd.OnUndo(target); err != nil {
		return err
	}
	s.state = Undone
	s.notify(target)
	return nil
}

// Redo re-applies an undone command.
func (s *Step[C]) Redo(target C) error {
	s.check("redo", s.state == Undone)
	var err error
	if r, ok := s.cmd.(Redoer[C]); ok {
		err = r.OnRedo(target)
	} else {
		err = s.cmd.OnExecute(target)
	}
	if err != nil {
		return err
	}
	s.state = Redone
	s.notify(target)
	return nil
}

// Dispose releases the command's resources. It may be called in any state
// but only once.
func (s *Step[C]) Dispose(target C) {
	if s.disposed {
		panic(&ProtocolError{Op: "dispose", Label: s.cmd.Label(), State: s.state})
	}
	s.disposed = true
	if d, ok := s.cmd.(Disposer[C]); ok {
		d.OnDispose(target)
	}
}

func (s *Step[C]) check(op string, ok bool) {
	if s.disposed || !ok {
		panic(&ProtocolError{Op: op, Label: s.cmd.Label(), State: s.state})
	}
}

func (s *Step[C]) notify(target C) {
	if n, ok := s.cmd.(Notifier[C]); ok {
		n.OnFireNotifications(target)
	}
}
