package history

import "errors"

// Errors returned by history navigation.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrUnknownState  = errors.New("unknown history state")
	ErrBusy          = errors.New("history is already navigating")
)
