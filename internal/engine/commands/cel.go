package commands

import (
	"fmt"
	"image"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
)

// AddCel creates a cel with its own image on a layer.
type AddCel struct {
	layerID registry.ID
	frame   sprite.Frame
	pos     image.Point
	src     *sprite.ImageState // pixels to copy on first execute; nil for a blank canvas
	celID   registry.ID
	rec     *celRecord // set while undone
	applied bool
}

// NewAddCel creates a cel at frame whose image is a copy of src placed at
// pos. A nil src gives a transparent canvas-sized image.
func NewAddCel(layer *sprite.Layer, frame sprite.Frame, src *sprite.Image, pos image.Point) *AddCel {
	c := &AddCel{layerID: layer.ID(), frame: frame, pos: pos}
	if src != nil {
		st := src.State()
		c.src = &st
	}
	return c
}

// CelID returns the ID of the created cel once the command has executed.
func (c *AddCel) CelID() registry.ID { return c.celID }

func (c *AddCel) OnExecute(d *engine.Document) error {
	layer, err := layerOf(d, c.layerID)
	if err != nil {
		return err
	}
	if !layer.IsImage() {
		return sprite.ErrNotImageLayer
	}
	if layer.Cel(c.frame) != nil {
		return fmt.Errorf("frame %d: %w", c.frame, sprite.ErrCelExists)
	}

	s := d.Sprite()
	var img *sprite.Image
	if c.src == nil {
		img, err = s.NewImage(s.Width(), s.Height())
	} else {
		img, err = newImageFrom(d, *c.src)
	}
	if err != nil {
		return err
	}
	reg := d.Registry()
	data := sprite.NewCelData(reg, img)
	cel := sprite.NewCel(reg, c.frame, data)
	cel.SetPosition(c.pos)
	if err := layer.AddCel(cel); err != nil {
		_ = reg.Remove(cel.ID())
		_ = reg.Remove(data.ID())
		_ = reg.Remove(img.ID())
		return err
	}
	c.celID = cel.ID()
	c.src = nil
	c.applied = true
	return nil
}

func (c *AddCel) OnUndo(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	rec, err := detachCel(d, cel)
	if err != nil {
		return err
	}
	c.rec = &rec
	c.applied = false
	return nil
}

func (c *AddCel) OnRedo(d *engine.Document) error {
	if _, err := restoreCel(d, *c.rec); err != nil {
		return err
	}
	c.rec = nil
	c.applied = true
	return nil
}

func (c *AddCel) OnDispose(d *engine.Document) {
	if c.rec != nil {
		release(d, c.rec.ids()...)
	}
}

func (c *AddCel) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkFrame(int(c.frame))
	d.Notify(addedOrRemoved(c.applied, event.TopicCelAdded, event.TopicCelRemoved),
		event.ObjectPayload{ID: uint64(c.celID), Frame: int(c.frame)})
}

func (c *AddCel) Label() string { return "Add Cel" }

func (c *AddCel) MemSize() int {
	n := commandOverhead
	if c.src != nil {
		n += c.src.MemSize()
	}
	if c.rec != nil {
		n += c.rec.memSize()
	}
	return n
}

// newImageFrom allocates an image in the sprite and copies st's pixels.
func newImageFrom(d *engine.Document, st sprite.ImageState) (*sprite.Image, error) {
	s := d.Sprite()
	if st.Format != s.Format() {
		return nil, fmt.Errorf("image is %s, sprite is %s: %w", st.Format, s.Format(), sprite.ErrFormatMismatch)
	}
	if err := s.CheckImageSize(st.Width, st.Height); err != nil {
		return nil, err
	}
	reg := d.Registry()
	st.ID = reg.Allocate(registry.KindImage)
	img, err := sprite.RestoreImage(reg, st)
	if err != nil {
		_ = reg.Release(st.ID)
		return nil, err
	}
	return img, nil
}

// AddLinkedCel creates a cel that shares existing cel data.
type AddLinkedCel struct {
	layerID registry.ID
	dataID  registry.ID
	frame   sprite.Frame
	pos     image.Point
	celID   registry.ID
	rec     *celRecord
	applied bool
}

// NewAddLinkedCel creates a cel at frame referencing data.
func NewAddLinkedCel(layer *sprite.Layer, frame sprite.Frame, data *sprite.CelData, pos image.Point) *AddLinkedCel {
	return &AddLinkedCel{layerID: layer.ID(), dataID: data.ID(), frame: frame, pos: pos}
}

// CelID returns the ID of the created cel once the command has executed.
func (c *AddLinkedCel) CelID() registry.ID { return c.celID }

func (c *AddLinkedCel) OnExecute(d *engine.Document) error {
	layer, err := layerOf(d, c.layerID)
	if err != nil {
		return err
	}
	data, err := dataOf(d, c.dataID)
	if err != nil {
		return err
	}
	if !layer.IsImage() {
		return sprite.ErrNotImageLayer
	}
	if layer.Cel(c.frame) != nil {
		return fmt.Errorf("frame %d: %w", c.frame, sprite.ErrCelExists)
	}
	cel := sprite.NewCel(d.Registry(), c.frame, data)
	cel.SetPosition(c.pos)
	if err := layer.AddCel(cel); err != nil {
		_ = d.Registry().Remove(cel.ID())
		return err
	}
	c.celID = cel.ID()
	c.applied = true
	return nil
}

func (c *AddLinkedCel) OnUndo(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	rec, err := detachCel(d, cel)
	if err != nil {
		return err
	}
	c.rec = &rec
	c.applied = false
	return nil
}

func (c *AddLinkedCel) OnRedo(d *engine.Document) error {
	if _, err := restoreCel(d, *c.rec); err != nil {
		return err
	}
	c.rec = nil
	c.applied = true
	return nil
}

func (c *AddLinkedCel) OnDispose(d *engine.Document) {
	if c.rec != nil {
		release(d, c.rec.ids()...)
	}
}

func (c *AddLinkedCel) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkFrame(int(c.frame))
	d.Notify(addedOrRemoved(c.applied, event.TopicCelAdded, event.TopicCelRemoved),
		event.ObjectPayload{ID: uint64(c.celID), Frame: int(c.frame)})
}

func (c *AddLinkedCel) Label() string { return "Add Linked Cel" }

func (c *AddLinkedCel) MemSize() int {
	n := commandOverhead
	if c.rec != nil {
		n += c.rec.memSize()
	}
	return n
}

// RemoveCel deletes a cel. Its cel data is deleted with it when no other
// cel links to it.
type RemoveCel struct {
	celID   registry.ID
	frame   sprite.Frame
	rec     *celRecord // set while executed
	applied bool
}

// NewRemoveCel removes cel.
func NewRemoveCel(cel *sprite.Cel) *RemoveCel {
	return &RemoveCel{celID: cel.ID(), frame: cel.Frame()}
}

func (c *RemoveCel) OnExecute(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	c.frame = cel.Frame()
	rec, err := detachCel(d, cel)
	if err != nil {
		return err
	}
	c.rec = &rec
	c.applied = true
	return nil
}

func (c *RemoveCel) OnUndo(d *engine.Document) error {
	if _, err := restoreCel(d, *c.rec); err != nil {
		return err
	}
	c.rec = nil
	c.applied = false
	return nil
}

func (c *RemoveCel) OnDispose(d *engine.Document) {
	if c.rec != nil {
		release(d, c.rec.ids()...)
	}
}

func (c *RemoveCel) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkFrame(int(c.frame))
	d.Notify(addedOrRemoved(c.applied, event.TopicCelRemoved, event.TopicCelAdded),
		event.ObjectPayload{ID: uint64(c.celID), Frame: int(c.frame)})
}

func (c *RemoveCel) Label() string { return "Remove Cel" }

func (c *RemoveCel) MemSize() int {
	n := commandOverhead
	if c.rec != nil {
		n += c.rec.memSize()
	}
	return n
}

// NewSetCelPosition moves a cel on the canvas.
func NewSetCelPosition(cel *sprite.Cel, pos image.Point) engine.Command {
	return &property[*sprite.Cel, image.Point]{
		label:  "Move Cel",
		id:     cel.ID(),
		value:  pos,
		get:    (*sprite.Cel).Position,
		set:    setNoErr((*sprite.Cel).SetPosition),
		notify: celChanged,
	}
}

// NewSetCelOpacity changes a cel's opacity.
func NewSetCelOpacity(cel *sprite.Cel, opacity uint8) engine.Command {
	return &property[*sprite.Cel, uint8]{
		label:  "Set Cel Opacity",
		id:     cel.ID(),
		value:  opacity,
		get:    (*sprite.Cel).Opacity,
		set:    setNoErr((*sprite.Cel).SetOpacity),
		notify: celChanged,
	}
}

// NewSetCelZIndex changes a cel's z-order offset.
func NewSetCelZIndex(cel *sprite.Cel, z int) engine.Command {
	return &property[*sprite.Cel, int]{
		label:  "Set Cel Z-Index",
		id:     cel.ID(),
		value:  z,
		get:    (*sprite.Cel).ZIndex,
		set:    setNoErr((*sprite.Cel).SetZIndex),
		notify: celChanged,
	}
}

// SetCelFrame moves a cel to another frame of its layer.
type SetCelFrame struct {
	celID registry.ID
	frame sprite.Frame // frame to move to on the next swap
	from  sprite.Frame
}

// NewSetCelFrame moves cel to frame.
func NewSetCelFrame(cel *sprite.Cel, frame sprite.Frame) *SetCelFrame {
	return &SetCelFrame{celID: cel.ID(), frame: frame, from: cel.Frame()}
}

func (c *SetCelFrame) swap(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	if cel.Layer() == nil {
		return sprite.ErrCelNotFound
	}
	from := cel.Frame()
	if err := cel.Layer().MoveCel(cel, c.frame); err != nil {
		return err
	}
	c.from, c.frame = from, from
	return nil
}

func (c *SetCelFrame) OnExecute(d *engine.Document) error { return c.swap(d) }
func (c *SetCelFrame) OnUndo(d *engine.Document) error    { return c.swap(d) }
func (c *SetCelFrame) Label() string                      { return "Move Cel to Frame" }
func (c *SetCelFrame) MemSize() int                       { return commandOverhead }

func (c *SetCelFrame) OnFireNotifications(d *engine.Document) {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return
	}
	d.Dirty().MarkFrame(int(c.from))
	d.Dirty().MarkFrame(int(cel.Frame()))
	d.Notify(event.TopicCelMoved, event.ObjectPayload{ID: uint64(c.celID), Frame: int(cel.Frame())})
}
