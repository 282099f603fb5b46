package docapi

import (
	"fmt"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/commands"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

// linkMap remembers, for one bulk operation, the destination cel created
// for each source cel data. A later source cel with the same data becomes
// a link to that destination instead of a second copy.
type linkMap map[registry.ID]registry.ID

// copyCel creates a cel on layer at frame showing the same pixels as src.
func (m linkMap) copyCel(tx *engine.Transaction, layer *sprite.Layer, src *sprite.Cel, frame sprite.Frame) (*sprite.Cel, error) {
	d := tx.Document()
	data := src.Data()

	var celID registry.ID
	if dstID, ok := m[data.ID()]; ok {
		dst, err := registry.Get[*sprite.Cel](d.Registry(), dstID)
		if err != nil {
			return nil, err
		}
		add := commands.NewAddLinkedCel(layer, frame, dst.Data(), src.Position())
		if err := tx.Execute(add); err != nil {
			return nil, err
		}
		celID = add.CelID()
	} else if layer == src.Layer() && layer.Flags()&sprite.FlagContinuous != 0 {
		add := commands.NewAddLinkedCel(layer, frame, data, src.Position())
		if err := tx.Execute(add); err != nil {
			return nil, err
		}
		celID = add.CelID()
	} else {
		add := commands.NewAddCel(layer, frame, src.Image(), src.Position())
		if err := tx.Execute(add); err != nil {
			return nil, err
		}
		celID = add.CelID()
	}
	m[data.ID()] = celID

	cel, err := registry.Get[*sprite.Cel](d.Registry(), celID)
	if err != nil {
		return nil, err
	}
	if err := copyCelProps(tx, src, cel); err != nil {
		return nil, err
	}
	return cel, nil
}

func copyCelProps(tx *engine.Transaction, src, dst *sprite.Cel) error {
	if src.Opacity() != dst.Opacity() {
		if err := tx.Execute(commands.NewSetCelOpacity(dst, src.Opacity())); err != nil {
			return err
		}
	}
	if src.ZIndex() != dst.ZIndex() {
		if err := tx.Execute(commands.NewSetCelZIndex(dst, src.ZIndex())); err != nil {
			return err
		}
	}
	return nil
}

// CopyFrame inserts a copy of frame src before frame dst. Cels of
// continuous layers are linked to their source; other cels get their own
// image, except that source cels sharing cel data stay linked in the copy.
func CopyFrame(tx *engine.Transaction, src, dst sprite.Frame) error {
	return CopyFrames(tx, src, src, dst)
}

// CopyFrames inserts copies of frames first through last before frame dst,
// sharing one link map across all copied frames.
func CopyFrames(tx *engine.Transaction, first, last, dst sprite.Frame) error {
	s := tx.Document().Sprite()
	total := sprite.Frame(s.TotalFrames())
	if first < 0 || last < first || last >= total {
		return &sprite.PreconditionError{Op: "copy frames", Reason: fmt.Sprintf("range %d..%d outside %d frames", first, last, total), Err: sprite.ErrFrameOutOfRange}
	}
	if dst < 0 || dst > total {
		return &sprite.PreconditionError{Op: "copy frames", Reason: fmt.Sprintf("destination %d outside %d frames", dst, total), Err: sprite.ErrFrameOutOfRange}
	}

	links := make(linkMap)
	for i := sprite.Frame(0); i <= last-first; i++ {
		from := first + i
		if from >= dst {
			from += i // shifted by the frames inserted so far
		}
		to := dst + i
		if err := tx.Execute(commands.NewAddFrame(to, s.FrameDuration(from))); err != nil {
			return err
		}
		if from >= to {
			from++
		}
		for _, l := range s.ImageLayers() {
			c := l.Cel(from)
			if c == nil {
				continue
			}
			if _, err := links.copyCel(tx, l, c, to); err != nil {
				return fmt.Errorf("copy cel of layer %q: %w", l.Name(), err)
			}
		}
	}
	return nil
}

// RemoveFrame deletes frame f with its cels.
func RemoveFrame(tx *engine.Transaction, f sprite.Frame) error {
	s := tx.Document().Sprite()
	if s.TotalFrames() <= 1 {
		return &sprite.PreconditionError{Op: "remove frame", Reason: "sprite needs at least one frame", Err: sprite.ErrFrameOutOfRange}
	}
	if f < 0 || int(f) >= s.TotalFrames() {
		return &sprite.PreconditionError{Op: "remove frame", Reason: fmt.Sprintf("frame %d outside %d frames", f, s.TotalFrames()), Err: sprite.ErrFrameOutOfRange}
	}
	return tx.Execute(commands.NewRemoveFrame(f))
}
