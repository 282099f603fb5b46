package sprite

import (
	"fmt"

	"github.com/dshills/pixelstorm/internal/engine/registry"
)

const celDataOverhead = 48

// CelData is the payload shared by linked cels. It owns exactly one image.
type CelData struct {
	id    registry.ID
	image *Image
	links int
}

// CelDataState is the value form of CelData, including its image.
type CelDataState struct {
	ID    registry.ID `json:"id"`
	Image ImageState  `json:"image"`
}

// NewCelData registers cel data owning img.
func NewCelData(reg *registry.Registry, img *Image) *CelData {
	obj := reg.Register(registry.KindCelData, func(id registry.ID) registry.Object {
		return &CelData{id: id, image: img}
	})
	return obj.(*CelData)
}

// RestoreCelData rebuilds cel data and its image under their original IDs.
// The returned data has no links until a cel referencing it is attached.
func RestoreCelData(reg *registry.Registry, st CelDataState) (*CelData, error) {
	img, err := RestoreImage(reg, st.Image)
	if err != nil {
		return nil, err
	}
	d := &CelData{id: st.ID, image: img}
	if err := reg.Attach(st.ID, d); err != nil {
		// Put the image back the way we found it.
		_ = reg.Detach(img.ID())
		return nil, fmt.Errorf("restore cel data: %w", err)
	}
	return d, nil
}

// ID returns the registry ID.
func (d *CelData) ID() registry.ID { return d.id }

// Kind implements registry.Object.
func (d *CelData) Kind() registry.Kind { return registry.KindCelData }

// Image returns the owned image.
func (d *CelData) Image() *Image { return d.image }

// SetImage replaces the owned image and returns the previous one.
func (d *CelData) SetImage(img *Image) *Image {
	old := d.image
	d.image = img
	return old
}

// Links returns how many attached cels reference this data.
func (d *CelData) Links() int { return d.links }

// MemSize estimates the memory held by the data and its image.
func (d *CelData) MemSize() int {
	return celDataOverhead + d.image.MemSize()
}

// State captures the data and a copy of its image.
func (d *CelData) State() CelDataState {
	return CelDataState{ID: d.id, Image: d.image.State()}
}

// MemSize estimates the memory held by the state.
func (st CelDataState) MemSize() int {
	return celDataOverhead + st.Image.MemSize()
}
