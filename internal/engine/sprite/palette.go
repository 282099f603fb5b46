package sprite

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/pixelstorm/internal/engine/registry"
)

const paletteOverhead = 48

// Palette is a list of RGB colors that becomes active at a frame.
type Palette struct {
	id     registry.ID
	frame  Frame
	colors []Color
}

// PaletteState is the value form of a Palette.
type PaletteState struct {
	ID     registry.ID `json:"id"`
	Frame  Frame       `json:"frame"`
	Colors []Color     `json:"colors"`
}

// NewPalette registers a palette active from frame.
func NewPalette(reg *registry.Registry, frame Frame, colors []Color) *Palette {
	obj := reg.Register(registry.KindPalette, func(id registry.ID) registry.Object {
		return &Palette{id: id, frame: frame, colors: append([]Color(nil), colors...)}
	})
	return obj.(*Palette)
}

// RestorePalette rebuilds a palette under its original ID.
func RestorePalette(reg *registry.Registry, st PaletteState) (*Palette, error) {
	p := &Palette{id: st.ID, frame: st.Frame, colors: append([]Color(nil), st.Colors...)}
	if err := reg.Attach(st.ID, p); err != nil {
		return nil, fmt.Errorf("restore palette: %w", err)
	}
	return p, nil
}

// GrayRamp returns n opaque grays from black to white.
func GrayRamp(n int) []Color {
	colors := make([]Color, n)
	for i := range colors {
		v := uint8(0)
		if n > 1 {
			v = uint8(i * 255 / (n - 1))
		}
		colors[i] = RGBA(v, v, v, 255)
	}
	return colors
}

// ID returns the registry ID.
func (p *Palette) ID() registry.ID { return p.id }

// Kind implements registry.Object.
func (p *Palette) Kind() registry.Kind { return registry.KindPalette }

// Frame returns the first frame the palette applies to.
func (p *Palette) Frame() Frame { return p.frame }

// Len returns the number of entries.
func (p *Palette) Len() int { return len(p.colors) }

// Colors returns a copy of the entries.
func (p *Palette) Colors() []Color { return append([]Color(nil), p.colors...) }

// SetColors replaces all entries.
func (p *Palette) SetColors(colors []Color) { p.colors = append([]Color(nil), colors...) }

// Entry returns entry i.
func (p *Palette) Entry(i int) (Color, error) {
	if i < 0 || i >= len(p.colors) {
		return 0, fmt.Errorf("entry %d of %d: %w", i, len(p.colors), ErrPaletteIndex)
	}
	return p.colors[i], nil
}

// SetEntry replaces entry i.
func (p *Palette) SetEntry(i int, c Color) error {
	if i < 0 || i >= len(p.colors) {
		return fmt.Errorf("entry %d of %d: %w", i, len(p.colors), ErrPaletteIndex)
	}
	p.colors[i] = c
	return nil
}

// FindBestFit returns the entry perceptually closest to c, skipping skip
// (pass -1 to consider every entry). Distance is measured in CIE Lab space.
func (p *Palette) FindBestFit(c Color, skip int) int {
	target := toColorful(c)
	best, bestDist := -1, math.MaxFloat64
	for i, e := range p.colors {
		if i == skip {
			continue
		}
		if e == c {
			return i
		}
		if d := target.DistanceLab(toColorful(e)); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func toColorful(c Color) colorful.Color {
	return colorful.Color{
		R: float64(c.R()) / 255,
		G: float64(c.G()) / 255,
		B: float64(c.B()) / 255,
	}
}

// State captures the palette.
func (p *Palette) State() PaletteState {
	return PaletteState{ID: p.id, Frame: p.frame, Colors: p.Colors()}
}

// MemSize estimates the memory held by a palette state.
func (st PaletteState) MemSize() int { return paletteOverhead + 4*len(st.Colors) }
