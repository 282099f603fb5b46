package sprite

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dshills/pixelstorm/internal/engine/registry"
)

const fileVersion = 1

type spriteFile struct {
	Version     int            `json:"version"`
	ID          registry.ID    `json:"id"`
	Format      string         `json:"format"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Transparent Color          `json:"transparentColor"`
	Durations   []int          `json:"durations"`
	Palettes    []PaletteState `json:"palettes"`
	Root        registry.ID    `json:"root"`
	Layers      []layerFile    `json:"layers"`
	CelData     []CelDataState `json:"celData"`
}

type layerFile struct {
	ID       registry.ID `json:"id"`
	Kind     LayerKind   `json:"kind"`
	Name     string      `json:"name"`
	Flags    LayerFlags  `json:"flags"`
	Opacity  uint8       `json:"opacity"`
	Children []layerFile `json:"children,omitempty"`
	Cels     []CelState  `json:"cels,omitempty"`
}

// Encode serializes the sprite tree, including object IDs. Output is
// deterministic: equal trees encode to identical bytes.
func Encode(s *Sprite) ([]byte, error) {
	f := spriteFile{
		Version:     fileVersion,
		ID:          s.id,
		Format:      s.format.String(),
		Width:       s.width,
		Height:      s.height,
		Transparent: s.transparent,
		Durations:   s.Durations(),
		Root:        s.root.id,
	}
	for _, p := range s.palettes {
		f.Palettes = append(f.Palettes, p.State())
	}

	data := make(map[registry.ID]*CelData)
	for _, l := range s.root.children {
		f.Layers = append(f.Layers, encodeLayer(l, data))
	}
	for _, d := range data {
		f.CelData = append(f.CelData, d.State())
	}
	sort.Slice(f.CelData, func(i, j int) bool { return f.CelData[i].ID < f.CelData[j].ID })

	return json.Marshal(f)
}

func encodeLayer(l *Layer, data map[registry.ID]*CelData) layerFile {
	lf := layerFile{
		ID:      l.id,
		Kind:    l.kind,
		Name:    l.name,
		Flags:   l.flags,
		Opacity: l.opacity,
	}
	for _, c := range l.children {
		lf.Children = append(lf.Children, encodeLayer(c, data))
	}
	for _, c := range l.cels {
		lf.Cels = append(lf.Cels, c.State())
		data[c.data.id] = c.data
	}
	return lf
}

// Decode builds a sprite from Encode output. Every object gets a fresh ID
// in reg; cels that shared cel data in the source share it again.
func Decode(reg *registry.Registry, b []byte, opts ...Option) (*Sprite, error) {
	var f spriteFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode sprite: %w: %v", ErrDecode, err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("decode sprite: version %d: %w", f.Version, ErrDecode)
	}
	format, err := ParsePixelFormat(f.Format)
	if err != nil {
		return nil, fmt.Errorf("decode sprite: %w: %v", ErrDecode, err)
	}
	if f.Width <= 0 || f.Height <= 0 || len(f.Durations) == 0 || len(f.Palettes) == 0 {
		return nil, fmt.Errorf("decode sprite: missing size, frames or palette: %w", ErrDecode)
	}

	s := newSprite(reg, format, f.Width, f.Height, opts...)
	s.root = NewLayer(s, LayerGroup, "root")
	s.transparent = f.Transparent
	s.durations = append([]int(nil), f.Durations...)

	d := &decoder{s: s, data: make(map[registry.ID]*CelData)}
	if err := d.decode(&f); err != nil {
		d.cleanup()
		return nil, err
	}
	return s, nil
}

type decoder struct {
	s    *Sprite
	data map[registry.ID]*CelData
}

func (d *decoder) decode(f *spriteFile) error {
	s := d.s
	for _, ps := range f.Palettes {
		if err := s.AddPalette(NewPalette(s.reg, ps.Frame, ps.Colors)); err != nil {
			return fmt.Errorf("decode sprite: %w: %v", ErrDecode, err)
		}
	}
	for _, ds := range f.CelData {
		st := ds.Image
		if st.Format != s.format || len(st.Pix) != st.Width*st.Height*st.Format.BytesPerPixel() {
			return fmt.Errorf("decode cel data %s: %w", ds.ID, ErrDecode)
		}
		if err := s.CheckImageSize(st.Width, st.Height); err != nil {
			return fmt.Errorf("decode cel data %s: %w", ds.ID, err)
		}
		img, err := NewImage(s.reg, st.Format, st.Width, st.Height)
		if err != nil {
			return err
		}
		copy(img.pix, st.Pix)
		img.maskColor = st.MaskColor
		d.data[ds.ID] = NewCelData(s.reg, img)
	}
	for _, lf := range f.Layers {
		if err := d.layer(s.root, lf); err != nil {
			return err
		}
	}
	if err := s.ValidateBackground(); err != nil {
		return fmt.Errorf("decode sprite: %w", err)
	}
	return nil
}

func (d *decoder) layer(parent *Layer, lf layerFile) error {
	l := NewLayer(d.s, lf.Kind, lf.Name)
	l.flags = lf.Flags
	l.opacity = lf.Opacity
	if err := parent.InsertLayer(l, len(parent.children)); err != nil {
		_ = d.s.reg.Remove(l.id)
		return fmt.Errorf("decode layer %q: %w", lf.Name, err)
	}
	for _, child := range lf.Children {
		if err := d.layer(l, child); err != nil {
			return err
		}
	}
	for _, cs := range lf.Cels {
		data, ok := d.data[cs.Data]
		if !ok {
			return fmt.Errorf("decode cel %s: unknown cel data %s: %w", cs.ID, cs.Data, ErrDecode)
		}
		c := NewCel(d.s.reg, cs.Frame, data)
		c.pos.X, c.pos.Y = cs.X, cs.Y
		c.opacity = cs.Opacity
		c.zIndex = cs.ZIndex
		if err := l.AddCel(c); err != nil {
			_ = d.s.reg.Remove(c.id)
			return fmt.Errorf("decode layer %q: %w", lf.Name, err)
		}
	}
	return nil
}

// cleanup drops everything a failed decode registered.
func (d *decoder) cleanup() {
	_ = d.s.Release()
	for _, cd := range d.data {
		if d.s.reg.IsLive(cd.id) {
			_ = d.s.reg.Remove(cd.id)
		}
		if d.s.reg.IsLive(cd.image.id) {
			_ = d.s.reg.Remove(cd.image.id)
		}
	}
}
