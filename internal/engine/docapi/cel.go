package docapi

import (
	"fmt"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/commands"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

// LinkCels makes the cels of layer in frames first+1 through last share the
// cel data of the cel at first. Empty frames get a new linked cel; cel data
// left without users is deleted.
func LinkCels(tx *engine.Transaction, layer *sprite.Layer, first, last sprite.Frame) error {
	const op = "link cels"
	s := tx.Document().Sprite()
	if first < 0 || last < first || int(last) >= s.TotalFrames() {
		return &sprite.PreconditionError{Op: op, Reason: fmt.Sprintf("range %d..%d outside %d frames", first, last, s.TotalFrames()), Err: sprite.ErrFrameOutOfRange}
	}
	if !layer.IsImage() {
		return &sprite.PreconditionError{Op: op, Reason: "not an image layer", Err: sprite.ErrNotImageLayer}
	}
	src := layer.Cel(first)
	if src == nil {
		return &sprite.PreconditionError{Op: op, Reason: fmt.Sprintf("no cel at frame %d", first), Err: sprite.ErrCelNotFound}
	}

	data := src.Data()
	for f := first + 1; f <= last; f++ {
		c := layer.Cel(f)
		switch {
		case c == nil:
			if err := tx.Execute(commands.NewAddLinkedCel(layer, f, data, src.Position())); err != nil {
				return err
			}
		case c.Data() != data:
			if err := tx.Execute(commands.NewSetCelData(c, data)); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnlinkCel gives a linked cel its own copy of its cel data.
func UnlinkCel(tx *engine.Transaction, cel *sprite.Cel) error {
	if !cel.IsLinked() {
		return &sprite.PreconditionError{Op: "unlink cel", Reason: fmt.Sprintf("cel %s is not linked", cel.ID())}
	}
	return tx.Execute(commands.NewUnlinkCel(cel))
}
