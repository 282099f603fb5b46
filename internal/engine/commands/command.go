package commands

import (
	"fmt"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
	"github.com/dshills/pixelstorm/internal/event/topic"
)

// Fixed per-command cost added to MemSize.
const commandOverhead = 48

func resolve[T registry.Object](d *engine.Document, id registry.ID, what string) (T, error) {
	obj, err := registry.Get[T](d.Registry(), id)
	if err != nil {
		return obj, fmt.Errorf("resolve %s: %w", what, err)
	}
	return obj, nil
}

func celOf(d *engine.Document, id registry.ID) (*sprite.Cel, error) {
	return resolve[*sprite.Cel](d, id, "cel")
}

func layerOf(d *engine.Document, id registry.ID) (*sprite.Layer, error) {
	return resolve[*sprite.Layer](d, id, "layer")
}

func dataOf(d *engine.Document, id registry.ID) (*sprite.CelData, error) {
	return resolve[*sprite.CelData](d, id, "cel data")
}

func paletteOf(d *engine.Document, id registry.ID) (*sprite.Palette, error) {
	return resolve[*sprite.Palette](d, id, "palette")
}

// release frees every id still held detached. Live ids belong to the
// document and are left alone.
func release(d *engine.Document, ids ...registry.ID) {
	reg := d.Registry()
	for _, id := range ids {
		if id != registry.NullID && reg.IsDetached(id) {
			_ = reg.Release(id)
		}
	}
}

func detach(reg *registry.Registry, ids ...registry.ID) error {
	for _, id := range ids {
		if err := reg.Detach(id); err != nil {
			return err
		}
	}
	return nil
}

func idOf(o registry.Object) uint64 { return uint64(o.ID()) }

// celRecord holds what is needed to rebuild a removed cel under its IDs.
// Data is set only when the cel was the last user of its cel data.
type celRecord struct {
	cel  sprite.CelState
	data *sprite.CelDataState
}

func (r celRecord) memSize() int {
	n := r.cel.MemSize()
	if r.data != nil {
		n += r.data.MemSize()
	}
	return n
}

func (r celRecord) ids() []registry.ID {
	ids := []registry.ID{r.cel.ID}
	if r.data != nil {
		ids = append(ids, r.data.ID, r.data.Image.ID)
	}
	return ids
}

// detachCel takes an attached cel out of its layer and the registry. Its
// cel data goes too when no other cel references it.
func detachCel(d *engine.Document, c *sprite.Cel) (celRecord, error) {
	layer := c.Layer()
	if layer == nil {
		return celRecord{}, fmt.Errorf("cel %s: %w", c.ID(), sprite.ErrCelNotFound)
	}
	rec := celRecord{cel: c.State()}
	data := c.Data()
	if err := layer.RemoveCel(c); err != nil {
		return celRecord{}, err
	}
	reg := d.Registry()
	if err := reg.Detach(c.ID()); err != nil {
		_ = layer.AddCel(c)
		return celRecord{}, err
	}
	if data.Links() == 0 {
		st := data.State()
		rec.data = &st
		if err := detach(reg, data.ID(), data.Image().ID()); err != nil {
			return celRecord{}, err
		}
	}
	return rec, nil
}

// restoreCel is the inverse of detachCel.
func restoreCel(d *engine.Document, rec celRecord) (*sprite.Cel, error) {
	reg := d.Registry()
	layer, err := layerOf(d, rec.cel.Layer)
	if err != nil {
		return nil, err
	}
	var data *sprite.CelData
	if rec.data != nil {
		data, err = sprite.RestoreCelData(reg, *rec.data)
	} else {
		data, err = dataOf(d, rec.cel.Data)
	}
	if err != nil {
		return nil, err
	}
	c, err := sprite.RestoreCel(reg, rec.cel, data)
	if err == nil {
		err = layer.AddCel(c)
		if err != nil {
			_ = reg.Detach(c.ID())
		}
	}
	if err != nil {
		if rec.data != nil {
			_ = detach(reg, data.ID(), data.Image().ID())
		}
		return nil, err
	}
	return c, nil
}

// property swaps one value of a registered object. Execute, undo and redo
// are the same operation: the value held by the command trades places with
// the object's current value.
type property[O registry.Object, V any] struct {
	label  string
	id     registry.ID
	value  V
	get    func(O) V
	set    func(O, V) error
	size   func(V) int
	notify func(*engine.Document, O)
}

func (p *property[O, V]) swap(d *engine.Document) error {
	o, err := registry.Get[O](d.Registry(), p.id)
	if err != nil {
		return fmt.Errorf("%s: %w", p.label, err)
	}
	old := p.get(o)
	if err := p.set(o, p.value); err != nil {
		return err
	}
	p.value = old
	return nil
}

func (p *property[O, V]) OnExecute(d *engine.Document) error { return p.swap(d) }
func (p *property[O, V]) OnUndo(d *engine.Document) error    { return p.swap(d) }
func (p *property[O, V]) Label() string                      { return p.label }

func (p *property[O, V]) MemSize() int {
	if p.size != nil {
		return commandOverhead + p.size(p.value)
	}
	return commandOverhead
}

func (p *property[O, V]) OnFireNotifications(d *engine.Document) {
	if p.notify == nil {
		return
	}
	if o, err := registry.Get[O](d.Registry(), p.id); err == nil {
		p.notify(d, o)
	}
}

func setNoErr[O any, V any](fn func(O, V)) func(O, V) error {
	return func(o O, v V) error {
		fn(o, v)
		return nil
	}
}

func celChanged(d *engine.Document, c *sprite.Cel) {
	d.Dirty().MarkFrame(int(c.Frame()))
	d.Notify(event.TopicCelChanged, event.ObjectPayload{ID: idOf(c), Frame: int(c.Frame())})
}

func layerChanged(d *engine.Document, l *sprite.Layer) {
	d.Dirty().MarkAll()
	d.Notify(event.TopicLayerChanged, event.ObjectPayload{ID: idOf(l)})
}

func spriteChanged(d *engine.Document, s *sprite.Sprite) {
	d.Dirty().SetCanvasSize(s.Width(), s.Height())
	d.Notify(event.TopicSpriteChanged, event.ObjectPayload{ID: idOf(s)})
}

// dataChanged marks every frame showing data.
func dataChanged(d *engine.Document, data *sprite.CelData) {
	for _, c := range d.Sprite().CelDataUsers(data) {
		d.Dirty().MarkRect(int(c.Frame()), c.Bounds())
		d.Notify(event.TopicImageChanged, event.ObjectPayload{ID: idOf(data), Frame: int(c.Frame())})
	}
}

func addedOrRemoved(applied bool, added, removed topic.Topic) topic.Topic {
	if applied {
		return added
	}
	return removed
}
