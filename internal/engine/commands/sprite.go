package commands

import (
	"fmt"
	"image"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
)

// NewSetSpriteSize changes the canvas size. Cels keep their images and
// positions.
func NewSetSpriteSize(s *sprite.Sprite, width, height int) engine.Command {
	return &property[*sprite.Sprite, image.Point]{
		label: "Canvas Size",
		id:    s.ID(),
		value: image.Pt(width, height),
		get:   func(s *sprite.Sprite) image.Point { return image.Pt(s.Width(), s.Height()) },
		set:   func(s *sprite.Sprite, p image.Point) error { return s.SetSize(p.X, p.Y) },
		notify: func(d *engine.Document, s *sprite.Sprite) {
			spriteChanged(d, s)
			d.Dirty().MarkAll()
		},
	}
}

// NewSetTransparentColor changes the palette index treated as transparent
// in indexed sprites.
func NewSetTransparentColor(s *sprite.Sprite, c sprite.Color) engine.Command {
	return &property[*sprite.Sprite, sprite.Color]{
		label: "Set Transparent Color",
		id:    s.ID(),
		value: c,
		get:   (*sprite.Sprite).TransparentColor,
		set:   setNoErr((*sprite.Sprite).SetTransparentColor),
		notify: func(d *engine.Document, s *sprite.Sprite) {
			spriteChanged(d, s)
			d.Dirty().MarkAll()
		},
	}
}

func paletteChanged(d *engine.Document, p *sprite.Palette) {
	d.Dirty().MarkAll()
	d.Notify(event.TopicPaletteChange, event.ObjectPayload{ID: idOf(p), Frame: int(p.Frame())})
}

// SetPalette installs colors as the palette starting at a frame. An existing
// palette at that frame gets its colors replaced; otherwise a new palette
// is added.
type SetPalette struct {
	frame     sprite.Frame
	colors    []sprite.Color // colors to install on the next swap
	paletteID registry.ID
	added     bool                 // the command created the palette
	held      *sprite.PaletteState // the created palette while undone
}

// NewSetPalette sets the palette active from frame to colors.
func NewSetPalette(frame sprite.Frame, colors []sprite.Color) *SetPalette {
	return &SetPalette{frame: frame, colors: append([]sprite.Color(nil), colors...)}
}

// PaletteID returns the ID of the affected palette once executed.
func (c *SetPalette) PaletteID() registry.ID { return c.paletteID }

func (c *SetPalette) OnExecute(d *engine.Document) error {
	s := d.Sprite()
	if c.frame < 0 || int(c.frame) >= s.TotalFrames() {
		return fmt.Errorf("set palette at frame %d: %w", c.frame, sprite.ErrFrameOutOfRange)
	}
	if p := s.PaletteAt(c.frame); p != nil {
		c.paletteID = p.ID()
		return c.swapColors(d)
	}
	p := sprite.NewPalette(d.Registry(), c.frame, c.colors)
	if err := s.AddPalette(p); err != nil {
		_ = d.Registry().Remove(p.ID())
		return err
	}
	c.paletteID = p.ID()
	c.added = true
	c.colors = nil
	return nil
}

func (c *SetPalette) swapColors(d *engine.Document) error {
	p, err := paletteOf(d, c.paletteID)
	if err != nil {
		return err
	}
	old := p.Colors()
	p.SetColors(c.colors)
	c.colors = old
	return nil
}

func (c *SetPalette) OnUndo(d *engine.Document) error {
	if !c.added {
		return c.swapColors(d)
	}
	p, err := paletteOf(d, c.paletteID)
	if err != nil {
		return err
	}
	st, err := detachPalette(d, p)
	if err != nil {
		return err
	}
	c.held = &st
	return nil
}

func (c *SetPalette) OnRedo(d *engine.Document) error {
	if !c.added {
		return c.swapColors(d)
	}
	if _, err := restorePalette(d, *c.held); err != nil {
		return err
	}
	c.held = nil
	return nil
}

func (c *SetPalette) OnDispose(d *engine.Document) {
	if c.held != nil {
		release(d, c.held.ID)
	}
}

func (c *SetPalette) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkAll()
	d.Notify(event.TopicPaletteChange, event.ObjectPayload{ID: uint64(c.paletteID), Frame: int(c.frame)})
}

func (c *SetPalette) Label() string { return "Set Palette" }

func (c *SetPalette) MemSize() int {
	n := commandOverhead + 4*len(c.colors)
	if c.held != nil {
		n += c.held.MemSize()
	}
	return n
}

func detachPalette(d *engine.Document, p *sprite.Palette) (sprite.PaletteState, error) {
	st := p.State()
	if err := d.Sprite().RemovePalette(p); err != nil {
		return sprite.PaletteState{}, err
	}
	if err := d.Registry().Detach(p.ID()); err != nil {
		_ = d.Sprite().AddPalette(p)
		return sprite.PaletteState{}, err
	}
	return st, nil
}

func restorePalette(d *engine.Document, st sprite.PaletteState) (*sprite.Palette, error) {
	p, err := sprite.RestorePalette(d.Registry(), st)
	if err != nil {
		return nil, err
	}
	if err := d.Sprite().AddPalette(p); err != nil {
		_ = d.Registry().Detach(p.ID())
		return nil, err
	}
	return p, nil
}

// NewSetPaletteEntry changes one color of a palette.
func NewSetPaletteEntry(p *sprite.Palette, index int, c sprite.Color) engine.Command {
	return &property[*sprite.Palette, sprite.Color]{
		label: "Set Palette Entry",
		id:    p.ID(),
		value: c,
		get: func(p *sprite.Palette) sprite.Color {
			old, _ := p.Entry(index)
			return old
		},
		set: func(p *sprite.Palette, c sprite.Color) error {
			return p.SetEntry(index, c)
		},
		notify: paletteChanged,
	}
}

// RemovePalette deletes a palette. The sprite's last palette cannot be
// removed.
type RemovePalette struct {
	paletteID registry.ID
	frame     sprite.Frame
	held      *sprite.PaletteState // set while executed
}

// NewRemovePalette removes p.
func NewRemovePalette(p *sprite.Palette) *RemovePalette {
	return &RemovePalette{paletteID: p.ID(), frame: p.Frame()}
}

func (c *RemovePalette) OnExecute(d *engine.Document) error {
	p, err := paletteOf(d, c.paletteID)
	if err != nil {
		return err
	}
	st, err := detachPalette(d, p)
	if err != nil {
		return err
	}
	c.held = &st
	return nil
}

func (c *RemovePalette) OnUndo(d *engine.Document) error {
	if _, err := restorePalette(d, *c.held); err != nil {
		return err
	}
	c.held = nil
	return nil
}

func (c *RemovePalette) OnDispose(d *engine.Document) {
	if c.held != nil {
		release(d, c.held.ID)
	}
}

func (c *RemovePalette) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkAll()
	d.Notify(event.TopicPaletteChange, event.ObjectPayload{ID: uint64(c.paletteID), Frame: int(c.frame)})
}

func (c *RemovePalette) Label() string { return "Remove Palette" }

func (c *RemovePalette) MemSize() int {
	if c.held != nil {
		return commandOverhead + c.held.MemSize()
	}
	return commandOverhead
}
