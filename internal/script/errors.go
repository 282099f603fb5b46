package script

import "errors"

// Errors for script execution.
var (
	// ErrHostClosed is returned when running code on a closed host.
	ErrHostClosed = errors.New("script host is closed")

	// ErrNestedTransaction is raised when sprite.transaction is called
	// from inside another sprite.transaction.
	ErrNestedTransaction = errors.New("transactions do not nest")
)
