package commands

import (
	"fmt"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/dirty"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
)

// SetCelData points a cel at other cel data, linking it with every cel
// already using that data. Data left without users is deleted.
type SetCelData struct {
	celID  registry.ID
	dataID registry.ID           // data to point at on the next swap
	orphan *sprite.CelDataState // data dropped by the last swap, if it lost its last user
}

// NewSetCelData links cel to data.
func NewSetCelData(cel *sprite.Cel, data *sprite.CelData) *SetCelData {
	return &SetCelData{celID: cel.ID(), dataID: data.ID()}
}

func (c *SetCelData) swap(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	reg := d.Registry()

	var next *sprite.CelData
	if c.orphan != nil && c.orphan.ID == c.dataID {
		next, err = sprite.RestoreCelData(reg, *c.orphan)
	} else {
		next, err = dataOf(d, c.dataID)
	}
	if err != nil {
		return err
	}

	prev := cel.Data()
	cel.SetData(next)
	c.dataID = prev.ID()
	c.orphan = nil
	if prev.Links() == 0 && cel.Layer() != nil {
		st := prev.State()
		if err := detach(reg, prev.ID(), prev.Image().ID()); err != nil {
			return err
		}
		c.orphan = &st
	}
	return nil
}

func (c *SetCelData) OnExecute(d *engine.Document) error { return c.swap(d) }
func (c *SetCelData) OnUndo(d *engine.Document) error    { return c.swap(d) }
func (c *SetCelData) Label() string                      { return "Link Cel" }

func (c *SetCelData) MemSize() int {
	if c.orphan != nil {
		return commandOverhead + c.orphan.MemSize()
	}
	return commandOverhead
}

func (c *SetCelData) OnDispose(d *engine.Document) {
	if c.orphan != nil {
		release(d, c.orphan.ID, c.orphan.Image.ID)
	}
}

func (c *SetCelData) OnFireNotifications(d *engine.Document) {
	if cel, err := celOf(d, c.celID); err == nil {
		celChanged(d, cel)
	}
}

// UnlinkCel gives a linked cel its own copy of the shared cel data. Undo
// points the cel back at the shared data; redo brings the copy back under
// the IDs it had.
type UnlinkCel struct {
	celID    registry.ID
	sharedID registry.ID
	copyID   registry.ID
	held     *sprite.CelDataState // the copy while undone
}

// NewUnlinkCel unlinks cel.
func NewUnlinkCel(cel *sprite.Cel) *UnlinkCel {
	return &UnlinkCel{celID: cel.ID(), sharedID: cel.Data().ID()}
}

// DataID returns the ID of the copied cel data once the command has executed.
func (c *UnlinkCel) DataID() registry.ID { return c.copyID }

func (c *UnlinkCel) OnExecute(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	shared := cel.Data()
	if !cel.IsLinked() {
		return &sprite.PreconditionError{Op: "unlink cel", Reason: fmt.Sprintf("cel %s is not linked", c.celID)}
	}
	img := shared.Image()
	if err := d.Sprite().CheckImageSize(img.Width(), img.Height()); err != nil {
		return err
	}
	reg := d.Registry()
	cp := sprite.NewCelData(reg, img.Clone(reg))
	cel.SetData(cp)
	c.sharedID = shared.ID()
	c.copyID = cp.ID()
	return nil
}

func (c *UnlinkCel) OnUndo(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	shared, err := dataOf(d, c.sharedID)
	if err != nil {
		return err
	}
	cp := cel.Data()
	if cp.ID() != c.copyID {
		return fmt.Errorf("undo unlink: cel %s holds %s, want %s", c.celID, cp.ID(), c.copyID)
	}
	st := cp.State()
	cel.SetData(shared)
	if err := detach(d.Registry(), cp.ID(), cp.Image().ID()); err != nil {
		return err
	}
	c.held = &st
	return nil
}

func (c *UnlinkCel) OnRedo(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	cp, err := sprite.RestoreCelData(d.Registry(), *c.held)
	if err != nil {
		return err
	}
	cel.SetData(cp)
	c.held = nil
	return nil
}

func (c *UnlinkCel) OnDispose(d *engine.Document) {
	if c.held != nil {
		release(d, c.held.ID, c.held.Image.ID)
	}
}

func (c *UnlinkCel) OnFireNotifications(d *engine.Document) {
	if cel, err := celOf(d, c.celID); err == nil {
		celChanged(d, cel)
	}
}

func (c *UnlinkCel) Label() string { return "Unlink Cel" }

func (c *UnlinkCel) MemSize() int {
	if c.held != nil {
		return commandOverhead + c.held.MemSize()
	}
	return commandOverhead
}

// ReplaceImage gives cel data a new image. Every cel linked to the data
// shows the new image.
type ReplaceImage struct {
	dataID registry.ID
	held   sprite.ImageState // the image not currently in the document
}

// NewReplaceImage replaces the image of data with a copy of src.
func NewReplaceImage(data *sprite.CelData, src *sprite.Image) *ReplaceImage {
	st := src.State()
	st.ID = registry.NullID
	return &ReplaceImage{dataID: data.ID(), held: st}
}

func (c *ReplaceImage) swap(d *engine.Document) error {
	data, err := dataOf(d, c.dataID)
	if err != nil {
		return err
	}
	reg := d.Registry()
	var next *sprite.Image
	if c.held.ID == registry.NullID {
		next, err = newImageFrom(d, c.held)
	} else {
		next, err = sprite.RestoreImage(reg, c.held)
	}
	if err != nil {
		return err
	}
	cur := data.Image()
	out := cur.State()
	if err := reg.Detach(cur.ID()); err != nil {
		if c.held.ID == registry.NullID {
			_ = reg.Remove(next.ID())
		} else {
			_ = reg.Detach(next.ID())
		}
		return err
	}
	data.SetImage(next)
	c.held = out
	return nil
}

func (c *ReplaceImage) OnExecute(d *engine.Document) error { return c.swap(d) }
func (c *ReplaceImage) OnUndo(d *engine.Document) error    { return c.swap(d) }
func (c *ReplaceImage) Label() string                      { return "Replace Image" }
func (c *ReplaceImage) MemSize() int                       { return commandOverhead + c.held.MemSize() }

func (c *ReplaceImage) OnDispose(d *engine.Document) {
	release(d, c.held.ID)
}

func (c *ReplaceImage) OnFireNotifications(d *engine.Document) {
	if data, err := dataOf(d, c.dataID); err == nil {
		dataChanged(d, data)
	}
}

// PatchImage writes the pixels that differ between an image and an edited
// copy. Only the changed region is stored.
type PatchImage struct {
	dataID registry.ID
	patch  *dirty.Patch
}

// NewPatchImage prepares the change from the image of data to edited,
// which must have the same size and format.
func NewPatchImage(data *sprite.CelData, edited dirty.Pixels) (*PatchImage, error) {
	region, err := dirty.Diff(data.Image(), edited)
	if err != nil {
		return nil, err
	}
	return &PatchImage{dataID: data.ID(), patch: dirty.Capture(edited, region)}, nil
}

// Region returns the patched region in image coordinates.
func (c *PatchImage) Region() dirty.Region { return c.patch.Region() }

func (c *PatchImage) swap(d *engine.Document) error {
	data, err := dataOf(d, c.dataID)
	if err != nil {
		return err
	}
	return c.patch.Swap(data.Image())
}

func (c *PatchImage) OnExecute(d *engine.Document) error { return c.swap(d) }
func (c *PatchImage) OnUndo(d *engine.Document) error    { return c.swap(d) }
func (c *PatchImage) Label() string                      { return "Draw" }
func (c *PatchImage) MemSize() int                       { return commandOverhead + c.patch.Size() }

func (c *PatchImage) OnDispose(*engine.Document) {
	c.patch.Release()
}

func (c *PatchImage) OnFireNotifications(d *engine.Document) {
	data, err := dataOf(d, c.dataID)
	if err != nil {
		return
	}
	for _, cel := range d.Sprite().CelDataUsers(data) {
		d.Dirty().MarkRegion(int(cel.Frame()), c.patch.Region(), cel.Position())
		d.Notify(event.TopicImageChanged, event.ObjectPayload{ID: idOf(data), Frame: int(cel.Frame())})
	}
}

// ClearCelImage fills a cel's image with the transparent color. Linked
// cels see the change.
type ClearCelImage struct {
	celID registry.ID
	patch *dirty.Patch // captured on first execute, swapped afterwards
}

// NewClearCelImage clears the image of cel.
func NewClearCelImage(cel *sprite.Cel) *ClearCelImage {
	return &ClearCelImage{celID: cel.ID()}
}

func (c *ClearCelImage) OnExecute(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	img := cel.Image()
	c.patch = dirty.Capture(img, dirty.NewRegion(img.Bounds()))
	img.Fill(clearColor(d.Sprite()))
	return nil
}

func (c *ClearCelImage) swap(d *engine.Document) error {
	cel, err := celOf(d, c.celID)
	if err != nil {
		return err
	}
	return c.patch.Swap(cel.Image())
}

func (c *ClearCelImage) OnUndo(d *engine.Document) error { return c.swap(d) }
func (c *ClearCelImage) OnRedo(d *engine.Document) error { return c.swap(d) }
func (c *ClearCelImage) Label() string                   { return "Clear Cel" }

func (c *ClearCelImage) MemSize() int {
	if c.patch == nil {
		return commandOverhead
	}
	return commandOverhead + c.patch.Size()
}

func (c *ClearCelImage) OnDispose(*engine.Document) {
	if c.patch != nil {
		c.patch.Release()
	}
}

func (c *ClearCelImage) OnFireNotifications(d *engine.Document) {
	if cel, err := celOf(d, c.celID); err == nil {
		dataChanged(d, cel.Data())
	}
}

// clearColor is the pixel value of a transparent pixel in s.
func clearColor(s *sprite.Sprite) sprite.Color {
	if s.Format() == sprite.FormatIndexed {
		return s.TransparentColor()
	}
	return 0
}
