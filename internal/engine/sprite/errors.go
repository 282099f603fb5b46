package sprite

import (
	"errors"
	"fmt"
)

// Errors returned by sprite operations.
var (
	// ErrImageTooLarge indicates a pixel buffer allocation above the sprite limit.
	ErrImageTooLarge = errors.New("image exceeds allocation limit")

	// ErrInvalidSize indicates a non-positive width or height.
	ErrInvalidSize = errors.New("invalid size")

	// ErrFrameOutOfRange indicates a frame outside the sprite's frames.
	ErrFrameOutOfRange = errors.New("frame out of range")

	// ErrFrameNotEmpty indicates a frame still holds cels.
	ErrFrameNotEmpty = errors.New("frame still has cels")

	// ErrCelExists indicates a layer already has a cel in the frame.
	ErrCelExists = errors.New("layer already has a cel in this frame")

	// ErrCelNotFound indicates the cel is not part of the layer.
	ErrCelNotFound = errors.New("cel not found")

	// ErrNotImageLayer indicates a cel operation on a group layer.
	ErrNotImageLayer = errors.New("not an image layer")

	// ErrNotGroupLayer indicates a child operation on an image layer.
	ErrNotGroupLayer = errors.New("not a group layer")

	// ErrLayerNotFound indicates the layer is not a child of the group.
	ErrLayerNotFound = errors.New("layer not found")

	// ErrLayerNotEmpty indicates a layer still has cels or children.
	ErrLayerNotEmpty = errors.New("layer is not empty")

	// ErrBackground indicates a background layer invariant violation.
	ErrBackground = errors.New("background layer invariant violated")

	// ErrCycle indicates a group would be moved into its own subtree.
	ErrCycle = errors.New("layer cannot contain itself")

	// ErrPaletteIndex indicates a palette entry outside the palette.
	ErrPaletteIndex = errors.New("palette index out of range")

	// ErrFormatMismatch indicates images with incompatible pixel formats.
	ErrFormatMismatch = errors.New("pixel format mismatch")

	// ErrDecode indicates malformed persisted data.
	ErrDecode = errors.New("malformed sprite data")
)

// PreconditionError reports a violated command precondition.
type PreconditionError struct {
	Op     string
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}
