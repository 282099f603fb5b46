package commands

import (
	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
)

// SetMask replaces the document selection. Masks are immutable, so the
// command keeps the other mask by reference.
type SetMask struct {
	label string
	mask  *sprite.Mask // installed on the next swap
}

// NewSetMask selects m. A nil mask clears the selection.
func NewSetMask(m *sprite.Mask) *SetMask {
	return &SetMask{label: "Select", mask: m}
}

// NewDeselectMask clears the selection.
func NewDeselectMask() *SetMask {
	return &SetMask{label: "Deselect"}
}

func (c *SetMask) swap(d *engine.Document) error {
	c.mask = d.SwapMask(c.mask)
	return nil
}

func (c *SetMask) OnExecute(d *engine.Document) error { return c.swap(d) }
func (c *SetMask) OnUndo(d *engine.Document) error    { return c.swap(d) }
func (c *SetMask) Label() string                      { return c.label }
func (c *SetMask) MemSize() int                       { return commandOverhead + c.mask.MemSize() }

func (c *SetMask) OnFireNotifications(d *engine.Document) {
	d.Notify(event.TopicMaskChanged, event.ObjectPayload{})
}
