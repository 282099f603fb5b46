package docapi

import (
	"fmt"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

// DefaultLayerName is the name of the layer NewSprite creates.
const DefaultLayerName = "Layer 1"

// NewSprite creates a document holding a one-frame sprite with a single
// image layer and a transparent canvas-sized cel. The sprite is built
// directly, so the document starts unmodified with an empty history.
func NewSprite(format sprite.PixelFormat, width, height int, opts ...engine.Option) (*engine.Document, error) {
	doc, err := engine.New(format, width, height, opts...)
	if err != nil {
		return nil, err
	}
	if err := addDefaultLayer(doc); err != nil {
		_ = doc.Close()
		return nil, fmt.Errorf("new sprite: %w", err)
	}
	return doc, nil
}

func addDefaultLayer(doc *engine.Document) error {
	s := doc.Sprite()
	reg := doc.Registry()
	img, err := s.NewImage(s.Width(), s.Height())
	if err != nil {
		return err
	}
	layer := sprite.NewLayer(s, sprite.LayerImage, DefaultLayerName)
	if err := s.Root().InsertLayer(layer, 0); err != nil {
		_ = reg.Remove(layer.ID())
		_ = reg.Remove(img.ID())
		return err
	}
	// Attached objects are released by Close from here on.
	cel := sprite.NewCel(reg, 0, sprite.NewCelData(reg, img))
	if err := layer.AddCel(cel); err != nil {
		_ = reg.Remove(cel.ID())
		_ = reg.Remove(cel.Data().ID())
		_ = reg.Remove(img.ID())
		return err
	}
	doc.Dirty().MarkAll()
	return nil
}
