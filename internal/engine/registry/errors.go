package registry

import "errors"

// Errors returned by registry operations.
var (
	// ErrNullID indicates the zero ID was used.
	ErrNullID = errors.New("null object id")

	// ErrStale indicates the ID's generation no longer matches its slot.
	ErrStale = errors.New("stale object id")

	// ErrDetached indicates the object was removed from the document and is
	// held by a command for a later undo or redo.
	ErrDetached = errors.New("object detached")

	// ErrNotAttached indicates the slot is reserved but no object was attached yet.
	ErrNotAttached = errors.New("object not attached")

	// ErrKindMismatch indicates the object is not of the requested type.
	ErrKindMismatch = errors.New("object kind mismatch")

	// ErrSlotBusy indicates an attach into a slot that already holds a live object.
	ErrSlotBusy = errors.New("slot already holds a live object")

	// ErrNotDetached indicates a release of a slot that still holds a live object.
	ErrNotDetached = errors.New("object is still live")
)
