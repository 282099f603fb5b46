package autosave

import "errors"

// Errors returned by the autosave store.
var (
	// ErrNoSnapshot is returned when a document has no stored snapshot.
	ErrNoSnapshot = errors.New("no snapshot")

	// ErrInvalidConfig is returned for an unusable store configuration.
	ErrInvalidConfig = errors.New("invalid autosave configuration")
)
