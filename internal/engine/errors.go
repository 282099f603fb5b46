package engine

import (
	"errors"

	"github.com/dshills/pixelstorm/internal/engine/history"
)

// Errors returned by document operations.
var (
	// ErrLocked indicates the document lock could not be taken on the first try.
	ErrLocked = errors.New("document is locked")

	// ErrInconsistent indicates a rollback failed part way and the document
	// no longer accepts edits.
	ErrInconsistent = errors.New("document is inconsistent after a failed rollback")

	// ErrClosed indicates the document was closed.
	ErrClosed = errors.New("document is closed")

	// ErrTransactionActive indicates Transact was called while another
	// transaction is open on the document.
	ErrTransactionActive = errors.New("a transaction is already open")

	// ErrNothingToUndo indicates the current state has no parent.
	ErrNothingToUndo = history.ErrNothingToUndo

	// ErrNothingToRedo indicates the current state has no child.
	ErrNothingToRedo = history.ErrNothingToRedo
)
