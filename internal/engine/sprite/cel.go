package sprite

import (
	"fmt"
	"image"

	"github.com/dshills/pixelstorm/internal/engine/registry"
)

// Frame is a zero-based frame index.
type Frame int

const celOverhead = 64

// Cel places cel data on a layer at one frame.
type Cel struct {
	id      registry.ID
	layer   *Layer
	frame   Frame
	pos     image.Point
	opacity uint8
	zIndex  int
	data    *CelData
}

// CelState is the value form of a Cel. Data refers to the cel data by ID.
type CelState struct {
	ID      registry.ID `json:"id"`
	Layer   registry.ID `json:"layer"`
	Frame   Frame       `json:"frame"`
	X       int         `json:"x"`
	Y       int         `json:"y"`
	Opacity uint8       `json:"opacity"`
	ZIndex  int         `json:"zIndex"`
	Data    registry.ID `json:"data"`
}

// NewCel registers a fully opaque cel for frame referencing data. The cel is
// not attached to a layer until Layer.AddCel.
func NewCel(reg *registry.Registry, frame Frame, data *CelData) *Cel {
	obj := reg.Register(registry.KindCel, func(id registry.ID) registry.Object {
		return &Cel{id: id, frame: frame, opacity: 255, data: data}
	})
	return obj.(*Cel)
}

// RestoreCel rebuilds a detached cel under its original ID. The cel is
// returned unattached; data must be the live cel data named by st.Data.
func RestoreCel(reg *registry.Registry, st CelState, data *CelData) (*Cel, error) {
	if data == nil || data.ID() != st.Data {
		return nil, fmt.Errorf("restore cel %s: data %s not supplied", st.ID, st.Data)
	}
	c := &Cel{
		id:      st.ID,
		frame:   st.Frame,
		pos:     image.Pt(st.X, st.Y),
		opacity: st.Opacity,
		zIndex:  st.ZIndex,
		data:    data,
	}
	if err := reg.Attach(st.ID, c); err != nil {
		return nil, fmt.Errorf("restore cel: %w", err)
	}
	return c, nil
}

// ID returns the registry ID.
func (c *Cel) ID() registry.ID { return c.id }

// Kind implements registry.Object.
func (c *Cel) Kind() registry.Kind { return registry.KindCel }

// Layer returns the owning layer, or nil if the cel is not attached.
func (c *Cel) Layer() *Layer { return c.layer }

// Frame returns the cel's frame.
func (c *Cel) Frame() Frame { return c.frame }

// Position returns the top-left corner of the image on the canvas.
func (c *Cel) Position() image.Point { return c.pos }

// SetPosition moves the cel.
func (c *Cel) SetPosition(p image.Point) { c.pos = p }

// Opacity returns the cel opacity.
func (c *Cel) Opacity() uint8 { return c.opacity }

// SetOpacity changes the cel opacity.
func (c *Cel) SetOpacity(o uint8) { c.opacity = o }

// ZIndex returns the z-order offset relative to the layer's stack position.
func (c *Cel) ZIndex() int { return c.zIndex }

// SetZIndex changes the z-order offset.
func (c *Cel) SetZIndex(z int) { c.zIndex = z }

// Data returns the referenced cel data.
func (c *Cel) Data() *CelData { return c.data }

// SetData points the cel at d. Link counts follow if the cel is attached.
func (c *Cel) SetData(d *CelData) {
	if c.layer != nil {
		c.data.links--
		d.links++
	}
	c.data = d
}

// Image returns the image of the referenced cel data.
func (c *Cel) Image() *Image { return c.data.image }

// IsLinked reports whether another attached cel shares this cel's data.
func (c *Cel) IsLinked() bool { return c.data.links > 1 }

// Bounds returns the canvas rectangle covered by the cel's image.
func (c *Cel) Bounds() image.Rectangle {
	return c.data.image.Bounds().Add(c.pos)
}

// State captures the cel fields.
func (c *Cel) State() CelState {
	st := CelState{
		ID:      c.id,
		Frame:   c.frame,
		X:       c.pos.X,
		Y:       c.pos.Y,
		Opacity: c.opacity,
		ZIndex:  c.zIndex,
		Data:    c.data.id,
	}
	if c.layer != nil {
		st.Layer = c.layer.id
	}
	return st
}

// MemSize estimates the memory held by a cel state.
func (st CelState) MemSize() int { return celOverhead }
