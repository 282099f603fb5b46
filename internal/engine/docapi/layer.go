package docapi

import (
	"fmt"
	"image"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/commands"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

func addLayer(tx *engine.Transaction, parent *sprite.Layer, kind sprite.LayerKind, name string, index int) (*sprite.Layer, error) {
	add := commands.NewAddLayer(parent, kind, name, index)
	if err := tx.Execute(add); err != nil {
		return nil, err
	}
	return registry.Get[*sprite.Layer](tx.Document().Registry(), add.LayerID())
}

// FlattenLayers replaces every layer of the sprite with a single image
// layer holding the composited visible content of each frame. Hidden layers
// are dropped. If the sprite had a background the result is the new
// background.
func FlattenLayers(tx *engine.Transaction, name string) (*sprite.Layer, error) {
	s := tx.Document().Sprite()
	layers := s.Layers()
	if len(s.ImageLayers()) == 0 {
		return nil, &sprite.PreconditionError{Op: "flatten layers", Reason: "sprite has no image layers", Err: sprite.ErrNotImageLayer}
	}
	hadBackground := s.Background() != nil

	// Render before the tree changes.
	type rendered struct {
		frame sprite.Frame
		img   *sprite.Image
	}
	var frames []rendered
	for f := sprite.Frame(0); int(f) < s.TotalFrames(); f++ {
		if !s.FrameHasCels(f) {
			continue
		}
		img, err := s.NewScratchImage(s.Width(), s.Height())
		if err != nil {
			return nil, err
		}
		if err := s.FlattenInto(img, layers, f, hadBackground); err != nil {
			return nil, err
		}
		frames = append(frames, rendered{frame: f, img: img})
	}

	flat, err := addLayer(tx, s.Root(), sprite.LayerImage, name, -1)
	if err != nil {
		return nil, err
	}
	for _, r := range frames {
		if err := tx.Execute(commands.NewAddCel(flat, r.frame, r.img, image.Point{})); err != nil {
			return nil, err
		}
	}
	for _, l := range s.Root().Children() {
		if l == flat {
			continue
		}
		if err := tx.Execute(commands.NewRemoveLayer(l)); err != nil {
			return nil, fmt.Errorf("remove layer %q: %w", l.Name(), err)
		}
	}
	if hadBackground {
		if err := tx.Execute(commands.NewBackgroundFromLayer(flat)); err != nil {
			return nil, err
		}
	}
	return flat, nil
}

// DuplicateLayer inserts a copy of layer right above it. Group layers are
// copied with their whole subtree. Cels linked to each other in the source
// are linked to each other in the copy.
func DuplicateLayer(tx *engine.Transaction, layer *sprite.Layer) (*sprite.Layer, error) {
	parent := layer.Parent()
	if parent == nil {
		return nil, &sprite.PreconditionError{Op: "duplicate layer", Reason: "the root group cannot be duplicated"}
	}
	return duplicateInto(tx, make(linkMap), layer, parent, layer.Index()+1, layer.Name()+" Copy")
}

func duplicateInto(tx *engine.Transaction, links linkMap, src, parent *sprite.Layer, index int, name string) (*sprite.Layer, error) {
	dup, err := addLayer(tx, parent, src.LayerKind(), name, index)
	if err != nil {
		return nil, err
	}
	flags := src.Flags() &^ (sprite.FlagBackground | sprite.FlagLockMove)
	if flags != dup.Flags() {
		if err := tx.Execute(commands.NewSetLayerFlags(dup, flags)); err != nil {
			return nil, err
		}
	}
	if src.Opacity() != dup.Opacity() {
		if err := tx.Execute(commands.NewSetLayerOpacity(dup, src.Opacity())); err != nil {
			return nil, err
		}
	}
	for i, child := range src.Children() {
		if _, err := duplicateInto(tx, links, child, dup, i, child.Name()); err != nil {
			return nil, err
		}
	}
	for _, c := range src.Cels() {
		if _, err := links.copyCel(tx, dup, c, c.Frame()); err != nil {
			return nil, err
		}
	}
	return dup, nil
}

// BackgroundFromLayer turns an image layer into the sprite background. The
// layer moves to the bottom of the stack and each cel becomes an opaque
// canvas-sized image at the origin. The sprite must not have a background.
func BackgroundFromLayer(tx *engine.Transaction, layer *sprite.Layer) error {
	const op = "background from layer"
	d := tx.Document()
	s := d.Sprite()
	switch {
	case s.Background() != nil:
		return &sprite.PreconditionError{Op: op, Reason: "the sprite already has a background", Err: sprite.ErrBackground}
	case !layer.IsImage():
		return &sprite.PreconditionError{Op: op, Reason: "not an image layer", Err: sprite.ErrNotImageLayer}
	}

	if layer.Parent() != s.Root() || layer.Index() != 0 {
		if err := tx.Execute(commands.NewMoveLayer(layer, s.Root(), 0)); err != nil {
			return err
		}
	}

	// Cels sharing cel data stay linked only when they are drawn the same
	// way and nothing outside the layer uses the data.
	type look struct {
		pos     image.Point
		opacity uint8
	}
	first := make(map[registry.ID]look)
	for _, c := range layer.Cels() {
		cur := look{pos: c.Position(), opacity: c.Opacity()}
		prev, seen := first[c.Data().ID()]
		if !seen && !sharedOutside(s, c) {
			first[c.Data().ID()] = cur
			continue
		}
		if !seen || prev != cur {
			if err := tx.Execute(commands.NewUnlinkCel(c)); err != nil {
				return err
			}
		}
	}

	done := make(map[registry.ID]bool)
	for _, c := range layer.Cels() {
		if !done[c.Data().ID()] {
			if err := flattenCel(tx, c); err != nil {
				return err
			}
			done[c.Data().ID()] = true
		}
		if c.Position() != (image.Point{}) {
			if err := tx.Execute(commands.NewSetCelPosition(c, image.Point{})); err != nil {
				return err
			}
		}
		if c.Opacity() != 255 {
			if err := tx.Execute(commands.NewSetCelOpacity(c, 255)); err != nil {
				return err
			}
		}
	}
	if layer.Opacity() != 255 {
		if err := tx.Execute(commands.NewSetLayerOpacity(layer, 255)); err != nil {
			return err
		}
	}
	return tx.Execute(commands.NewBackgroundFromLayer(layer))
}

// sharedOutside reports whether c's cel data is used by a cel of another layer.
func sharedOutside(s *sprite.Sprite, c *sprite.Cel) bool {
	for _, u := range s.CelDataUsers(c.Data()) {
		if u.Layer() != c.Layer() {
			return true
		}
	}
	return false
}

func flattenCel(tx *engine.Transaction, c *sprite.Cel) error {
	s := tx.Document().Sprite()
	img, err := s.NewScratchImage(s.Width(), s.Height())
	if err != nil {
		return err
	}
	if err := s.FlattenCel(img, c, true); err != nil {
		return err
	}
	return tx.Execute(commands.NewReplaceImage(c.Data(), img))
}

// LayerFromBackground turns the sprite background into a regular layer
// named name.
func LayerFromBackground(tx *engine.Transaction, name string) error {
	bg := tx.Document().Sprite().Background()
	if bg == nil {
		return &sprite.PreconditionError{Op: "layer from background", Reason: "the sprite has no background", Err: sprite.ErrBackground}
	}
	return tx.Execute(commands.NewLayerFromBackground(bg, name))
}
