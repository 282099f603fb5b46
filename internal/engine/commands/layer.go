package commands

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/history"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
)

// AddLayer creates an empty layer inside a group.
type AddLayer struct {
	parentID registry.ID
	kind     sprite.LayerKind
	name     string
	index    int
	layerID  registry.ID
	held     *sprite.LayerState // set while undone
}

// NewAddLayer creates a layer of kind named name at index among the
// children of parent. An index of -1 puts it on top.
func NewAddLayer(parent *sprite.Layer, kind sprite.LayerKind, name string, index int) *AddLayer {
	return &AddLayer{parentID: parent.ID(), kind: kind, name: name, index: index}
}

// LayerID returns the ID of the created layer once the command has executed.
func (c *AddLayer) LayerID() registry.ID { return c.layerID }

func (c *AddLayer) OnExecute(d *engine.Document) error {
	parent, err := layerOf(d, c.parentID)
	if err != nil {
		return err
	}
	if c.index < 0 {
		c.index = len(parent.Children())
	}
	l := sprite.NewLayer(d.Sprite(), c.kind, c.name)
	if err := insertChecked(d, parent, l, c.index); err != nil {
		_ = d.Registry().Remove(l.ID())
		return err
	}
	c.layerID = l.ID()
	return nil
}

func (c *AddLayer) OnUndo(d *engine.Document) error {
	l, err := layerOf(d, c.layerID)
	if err != nil {
		return err
	}
	if l.CelCount() > 0 || len(l.Children()) > 0 {
		return fmt.Errorf("undo add layer %s: %w", c.layerID, sprite.ErrLayerNotEmpty)
	}
	st := l.State()
	if _, err := l.Parent().RemoveLayer(l); err != nil {
		return err
	}
	if err := d.Registry().Detach(l.ID()); err != nil {
		return err
	}
	c.held = &st
	return nil
}

func (c *AddLayer) OnRedo(d *engine.Document) error {
	if _, err := restoreLayer(d, *c.held); err != nil {
		return err
	}
	c.held = nil
	return nil
}

func (c *AddLayer) OnDispose(d *engine.Document) {
	if c.held != nil {
		release(d, c.held.ID)
	}
}

func (c *AddLayer) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkAll()
	d.Notify(addedOrRemoved(c.held == nil, event.TopicLayerAdded, event.TopicLayerRemoved),
		event.ObjectPayload{ID: uint64(c.layerID)})
}

func (c *AddLayer) Label() string { return "New Layer" }

func (c *AddLayer) MemSize() int {
	if c.held != nil {
		return commandOverhead + c.held.MemSize()
	}
	return commandOverhead + len(c.name)
}

// insertChecked inserts l and undoes the insertion if it breaks the
// background layer rule.
func insertChecked(d *engine.Document, parent, l *sprite.Layer, index int) error {
	if err := parent.InsertLayer(l, index); err != nil {
		return err
	}
	if err := d.Sprite().ValidateBackground(); err != nil {
		_, _ = parent.RemoveLayer(l)
		return err
	}
	return nil
}

// restoreLayer rebuilds an empty layer from st and puts it back in its parent.
func restoreLayer(d *engine.Document, st sprite.LayerState) (*sprite.Layer, error) {
	parent, err := layerOf(d, st.Parent)
	if err != nil {
		return nil, err
	}
	l, err := sprite.RestoreLayer(d.Sprite(), st)
	if err != nil {
		return nil, err
	}
	if err := parent.InsertLayer(l, st.Index); err != nil {
		_ = d.Registry().Detach(l.ID())
		return nil, err
	}
	return l, nil
}

// RemoveLayer deletes a layer with all of its cels and, for a group, all of
// its descendants.
type RemoveLayer struct {
	layerID  registry.ID
	contents *history.Sequence[*engine.Document]
	held     *sprite.LayerState // set while executed
}

// NewRemoveLayer removes layer.
func NewRemoveLayer(layer *sprite.Layer) *RemoveLayer {
	return &RemoveLayer{layerID: layer.ID(), contents: history.NewSequence[*engine.Document]("Remove Layer Contents")}
}

func (c *RemoveLayer) OnExecute(d *engine.Document) error {
	l, err := layerOf(d, c.layerID)
	if err != nil {
		return err
	}
	if l.Parent() == nil {
		return &sprite.PreconditionError{Op: "remove layer", Reason: "the root group cannot be removed"}
	}
	children := l.Children()
	for i := len(children) - 1; i >= 0; i-- {
		if err := c.contents.ExecuteAndAdd(d, NewRemoveLayer(children[i])); err != nil {
			c.restoreContents(d)
			return err
		}
	}
	for _, cel := range l.Cels() {
		if err := c.contents.ExecuteAndAdd(d, NewRemoveCel(cel)); err != nil {
			c.restoreContents(d)
			return err
		}
	}
	if err := c.detachLayer(d, l); err != nil {
		c.restoreContents(d)
		return err
	}
	return nil
}

func (c *RemoveLayer) detachLayer(d *engine.Document, l *sprite.Layer) error {
	st := l.State()
	parent := l.Parent()
	if _, err := parent.RemoveLayer(l); err != nil {
		return err
	}
	if err := d.Registry().Detach(l.ID()); err != nil {
		_ = parent.InsertLayer(l, st.Index)
		return err
	}
	c.held = &st
	return nil
}

func (c *RemoveLayer) restoreContents(d *engine.Document) {
	if err := c.contents.OnUndo(d); err != nil {
		d.Logger().Error("restore layer contents", zap.Error(err))
	}
	c.contents.OnDispose(d)
	c.contents = history.NewSequence[*engine.Document]("Remove Layer Contents")
}

func (c *RemoveLayer) OnUndo(d *engine.Document) error {
	if _, err := restoreLayer(d, *c.held); err != nil {
		return err
	}
	c.held = nil
	return c.contents.OnUndo(d)
}

func (c *RemoveLayer) OnRedo(d *engine.Document) error {
	if err := c.contents.OnRedo(d); err != nil {
		return err
	}
	l, err := layerOf(d, c.layerID)
	if err != nil {
		return err
	}
	return c.detachLayer(d, l)
}

func (c *RemoveLayer) OnDispose(d *engine.Document) {
	c.contents.OnDispose(d)
	if c.held != nil {
		release(d, c.held.ID)
	}
}

func (c *RemoveLayer) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkAll()
	d.Notify(addedOrRemoved(c.held != nil, event.TopicLayerRemoved, event.TopicLayerAdded),
		event.ObjectPayload{ID: uint64(c.layerID)})
}

func (c *RemoveLayer) Label() string { return "Remove Layer" }

func (c *RemoveLayer) MemSize() int {
	n := commandOverhead + c.contents.MemSize()
	if c.held != nil {
		n += c.held.MemSize()
	}
	return n
}

// MoveLayer changes the position of a layer in the tree.
type MoveLayer struct {
	layerID  registry.ID
	parentID registry.ID // destination of the next swap
	index    int
}

// NewMoveLayer moves layer to index among the children of parent. The
// index is taken after the layer has left its current position.
func NewMoveLayer(layer, parent *sprite.Layer, index int) *MoveLayer {
	return &MoveLayer{layerID: layer.ID(), parentID: parent.ID(), index: index}
}

func (c *MoveLayer) swap(d *engine.Document) error {
	l, err := layerOf(d, c.layerID)
	if err != nil {
		return err
	}
	dst, err := layerOf(d, c.parentID)
	if err != nil {
		return err
	}
	src := l.Parent()
	if src == nil {
		return &sprite.PreconditionError{Op: "move layer", Reason: "the root group cannot be moved"}
	}
	if l == dst || l.IsAncestorOf(dst) {
		return sprite.ErrCycle
	}
	from, err := src.RemoveLayer(l)
	if err != nil {
		return err
	}
	if err := insertChecked(d, dst, l, c.index); err != nil {
		_ = src.InsertLayer(l, from)
		return err
	}
	c.parentID, c.index = src.ID(), from
	return nil
}

func (c *MoveLayer) OnExecute(d *engine.Document) error { return c.swap(d) }
func (c *MoveLayer) OnUndo(d *engine.Document) error    { return c.swap(d) }
func (c *MoveLayer) Label() string                      { return "Move Layer" }
func (c *MoveLayer) MemSize() int                       { return commandOverhead }

func (c *MoveLayer) OnFireNotifications(d *engine.Document) {
	d.Dirty().MarkAll()
	d.Notify(event.TopicLayerMoved, event.ObjectPayload{ID: uint64(c.layerID)})
}

// NewSetLayerName renames a layer.
func NewSetLayerName(layer *sprite.Layer, name string) engine.Command {
	return &property[*sprite.Layer, string]{
		label:  "Rename Layer",
		id:     layer.ID(),
		value:  name,
		get:    (*sprite.Layer).Name,
		set:    setNoErr((*sprite.Layer).SetName),
		size:   func(s string) int { return len(s) },
		notify: layerChanged,
	}
}

// NewSetLayerOpacity changes a layer's opacity.
func NewSetLayerOpacity(layer *sprite.Layer, opacity uint8) engine.Command {
	return &property[*sprite.Layer, uint8]{
		label:  "Set Layer Opacity",
		id:     layer.ID(),
		value:  opacity,
		get:    (*sprite.Layer).Opacity,
		set:    setNoErr((*sprite.Layer).SetOpacity),
		notify: layerChanged,
	}
}

// NewSetLayerFlags replaces a layer's flags. The background flag cannot be
// changed this way; use BackgroundFromLayer and LayerFromBackground.
func NewSetLayerFlags(layer *sprite.Layer, flags sprite.LayerFlags) engine.Command {
	return &property[*sprite.Layer, sprite.LayerFlags]{
		label: "Set Layer Flags",
		id:    layer.ID(),
		value: flags,
		get:   (*sprite.Layer).Flags,
		set: func(l *sprite.Layer, f sprite.LayerFlags) error {
			if (l.Flags()^f)&sprite.FlagBackground != 0 {
				return &sprite.PreconditionError{Op: "set layer flags", Reason: "background flag changes need a background conversion", Err: sprite.ErrBackground}
			}
			l.SetFlags(f)
			return nil
		},
		notify: layerChanged,
	}
}

// layerLook is the flag and name pair a background conversion changes.
type layerLook struct {
	flags sprite.LayerFlags
	name  string
}

func getLook(l *sprite.Layer) layerLook { return layerLook{flags: l.Flags(), name: l.Name()} }

func setLook(l *sprite.Layer, v layerLook) {
	l.SetFlags(v.flags)
	l.SetName(v.name)
}

// BackgroundName is the name given to a layer turned into the background.
const BackgroundName = "Background"

// NewBackgroundFromLayer flags layer as the sprite background. The layer
// must be an image layer at the bottom of the root group and the sprite
// must not have a background yet. Converting the pixels to opaque ones is
// done separately (see docapi.BackgroundFromLayer).
func NewBackgroundFromLayer(layer *sprite.Layer) engine.Command {
	return &property[*sprite.Layer, layerLook]{
		label: "Background from Layer",
		id:    layer.ID(),
		value: layerLook{flags: layer.Flags() | sprite.BackgroundFlags, name: BackgroundName},
		get:   getLook,
		set: func(l *sprite.Layer, v layerLook) error {
			if v.flags&sprite.FlagBackground != 0 {
				if err := checkBackgroundCandidate(l); err != nil {
					return err
				}
			}
			setLook(l, v)
			return nil
		},
		notify: layerChanged,
	}
}

// NewLayerFromBackground turns the background into a regular layer.
func NewLayerFromBackground(layer *sprite.Layer, name string) engine.Command {
	return &property[*sprite.Layer, layerLook]{
		label: "Layer from Background",
		id:    layer.ID(),
		value: layerLook{flags: layer.Flags() &^ (sprite.FlagBackground | sprite.FlagLockMove), name: name},
		get:   getLook,
		set: func(l *sprite.Layer, v layerLook) error {
			if v.flags&sprite.FlagBackground == 0 && !l.IsBackground() {
				return &sprite.PreconditionError{Op: "layer from background", Reason: fmt.Sprintf("layer %s is not the background", l.ID())}
			}
			setLook(l, v)
			return nil
		},
		notify: layerChanged,
	}
}

func checkBackgroundCandidate(l *sprite.Layer) error {
	const op = "background from layer"
	s := l.Sprite()
	switch {
	case !l.IsImage():
		return &sprite.PreconditionError{Op: op, Reason: "not an image layer", Err: sprite.ErrNotImageLayer}
	case s.Background() != nil && s.Background() != l:
		return &sprite.PreconditionError{Op: op, Reason: "the sprite already has a background", Err: sprite.ErrBackground}
	case l.Parent() != s.Root() || l.Index() != 0:
		return &sprite.PreconditionError{Op: op, Reason: "layer is not at the bottom of the root group", Err: sprite.ErrBackground}
	}
	return nil
}
