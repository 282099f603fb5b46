package sprite

import (
	"fmt"
	"image"
	"sort"

	"go.uber.org/multierr"

	"github.com/dshills/pixelstorm/internal/engine/registry"
)

// DefaultFrameDuration is the duration of new frames in milliseconds.
const DefaultFrameDuration = 100

// Option configures a Sprite.
type Option func(*Sprite)

// WithMaxImageBytes limits the size of any single pixel buffer the sprite
// allocates. Zero means unlimited.
func WithMaxImageBytes(n int) Option {
	return func(s *Sprite) {
		s.maxImageBytes = n
	}
}

// Sprite is the root of the document data model.
type Sprite struct {
	id            registry.ID
	reg           *registry.Registry
	format        PixelFormat
	width         int
	height        int
	transparent   Color
	root          *Layer
	palettes      []*Palette // sorted by frame
	durations     []int
	maxImageBytes int
}

// New registers an empty sprite with one frame and a default palette.
func New(reg *registry.Registry, format PixelFormat, width, height int, opts ...Option) (*Sprite, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("new sprite %dx%d: %w", width, height, ErrInvalidSize)
	}
	s := newSprite(reg, format, width, height, opts...)
	s.root = NewLayer(s, LayerGroup, "root")
	s.palettes = []*Palette{NewPalette(reg, 0, GrayRamp(256))}
	s.durations = []int{DefaultFrameDuration}
	return s, nil
}

func newSprite(reg *registry.Registry, format PixelFormat, width, height int, opts ...Option) *Sprite {
	obj := reg.Register(registry.KindSprite, func(id registry.ID) registry.Object {
		s := &Sprite{id: id, reg: reg, format: format, width: width, height: height}
		for _, opt := range opts {
			opt(s)
		}
		return s
	})
	return obj.(*Sprite)
}

// NewWithLayer creates a one-frame sprite with a single image layer holding
// a transparent full-canvas cel.
func NewWithLayer(reg *registry.Registry, format PixelFormat, width, height int, opts ...Option) (*Sprite, *Layer, error) {
	s, err := New(reg, format, width, height, opts...)
	if err != nil {
		return nil, nil, err
	}
	img, err := s.NewImage(width, height)
	if err != nil {
		_ = s.Release()
		return nil, nil, err
	}
	layer := NewLayer(s, LayerImage, "Layer 1")
	if err := s.root.InsertLayer(layer, 0); err != nil {
		return nil, nil, err
	}
	cel := NewCel(reg, 0, NewCelData(reg, img))
	if err := layer.AddCel(cel); err != nil {
		return nil, nil, err
	}
	return s, layer, nil
}

// ID returns the registry ID.
func (s *Sprite) ID() registry.ID { return s.id }

// Kind implements registry.Object.
func (s *Sprite) Kind() registry.Kind { return registry.KindSprite }

// Registry returns the registry the sprite's objects live in.
func (s *Sprite) Registry() *registry.Registry { return s.reg }

// Format returns the pixel format.
func (s *Sprite) Format() PixelFormat { return s.format }

// Width returns the canvas width.
func (s *Sprite) Width() int { return s.width }

// Height returns the canvas height.
func (s *Sprite) Height() int { return s.height }

// Bounds returns the canvas rectangle.
func (s *Sprite) Bounds() image.Rectangle { return image.Rect(0, 0, s.width, s.height) }

// SetSize changes the canvas size. Cels are not touched.
func (s *Sprite) SetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("set size %dx%d: %w", width, height, ErrInvalidSize)
	}
	s.width, s.height = width, height
	return nil
}

// TransparentColor returns the color treated as transparent in indexed images.
func (s *Sprite) TransparentColor() Color { return s.transparent }

// SetTransparentColor changes the transparent color.
func (s *Sprite) SetTransparentColor(c Color) { s.transparent = c }

// MaxImageBytes returns the allocation limit, zero if unlimited.
func (s *Sprite) MaxImageBytes() int { return s.maxImageBytes }

// CheckImageSize reports whether an image of the given size may be allocated.
func (s *Sprite) CheckImageSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image %dx%d: %w", width, height, ErrInvalidSize)
	}
	if s.maxImageBytes > 0 && width*height*s.format.BytesPerPixel() > s.maxImageBytes {
		return fmt.Errorf("image %dx%d: %w", width, height, ErrImageTooLarge)
	}
	return nil
}

// NewImage allocates a transparent image in the sprite's format.
func (s *Sprite) NewImage(width, height int) (*Image, error) {
	if err := s.CheckImageSize(width, height); err != nil {
		return nil, err
	}
	img, err := NewImage(s.reg, s.format, width, height)
	if err != nil {
		return nil, err
	}
	if s.format == FormatIndexed {
		img.SetMaskColor(s.transparent)
		img.Fill(s.transparent)
	}
	return img, nil
}

// NewScratchImage allocates an unregistered transparent image in the
// sprite's format. Scratch images stage pixels that a command later copies
// into the document.
func (s *Sprite) NewScratchImage(width, height int) (*Image, error) {
	if err := s.CheckImageSize(width, height); err != nil {
		return nil, err
	}
	img := &Image{
		format: s.format,
		width:  width,
		height: height,
		pix:    make([]byte, width*height*s.format.BytesPerPixel()),
	}
	if s.format == FormatIndexed {
		img.SetMaskColor(s.transparent)
		img.Fill(s.transparent)
	}
	return img, nil
}

// Root returns the root group layer.
func (s *Sprite) Root() *Layer { return s.root }

// Layers returns every layer except the root in stack order.
func (s *Sprite) Layers() []*Layer {
	var out []*Layer
	s.root.Walk(func(l *Layer) bool {
		if l != s.root {
			out = append(out, l)
		}
		return true
	})
	return out
}

// ImageLayers returns every image layer in stack order.
func (s *Sprite) ImageLayers() []*Layer {
	var out []*Layer
	for _, l := range s.Layers() {
		if l.IsImage() {
			out = append(out, l)
		}
	}
	return out
}

// LayerByName returns the first layer with the given name.
func (s *Sprite) LayerByName(name string) *Layer {
	for _, l := range s.Layers() {
		if l.name == name {
			return l
		}
	}
	return nil
}

// CelDataUsers returns every attached cel referencing d.
func (s *Sprite) CelDataUsers(d *CelData) []*Cel {
	var out []*Cel
	for _, l := range s.ImageLayers() {
		for _, c := range l.cels {
			if c.data == d {
				out = append(out, c)
			}
		}
	}
	return out
}

// Background returns the background layer, or nil.
func (s *Sprite) Background() *Layer {
	for _, l := range s.Layers() {
		if l.IsBackground() {
			return l
		}
	}
	return nil
}

// ValidateBackground checks that at most one layer is flagged background and
// that it is an image layer at the bottom of the root group.
func (s *Sprite) ValidateBackground() error {
	var bg *Layer
	for _, l := range s.Layers() {
		if !l.IsBackground() {
			continue
		}
		if bg != nil {
			return fmt.Errorf("layers %s and %s: %w", bg.id, l.id, ErrBackground)
		}
		bg = l
	}
	if bg == nil {
		return nil
	}
	if !bg.IsImage() || bg.parent != s.root || bg.Index() != 0 {
		return fmt.Errorf("layer %s not at the bottom of the root: %w", bg.id, ErrBackground)
	}
	return nil
}

// TotalFrames returns the number of frames.
func (s *Sprite) TotalFrames() int { return len(s.durations) }

// Durations returns a copy of the frame-duration table.
func (s *Sprite) Durations() []int { return append([]int(nil), s.durations...) }

// FrameDuration returns the duration of frame f in milliseconds.
func (s *Sprite) FrameDuration(f Frame) int {
	if f < 0 || int(f) >= len(s.durations) {
		return 0
	}
	return s.durations[f]
}

// SetFrameDuration changes the duration of frame f.
func (s *Sprite) SetFrameDuration(f Frame, ms int) error {
	if f < 0 || int(f) >= len(s.durations) {
		return fmt.Errorf("set duration of frame %d: %w", f, ErrFrameOutOfRange)
	}
	s.durations[f] = ms
	return nil
}

// InsertFrame inserts an empty frame before at. Cels at or after at move
// one frame later.
func (s *Sprite) InsertFrame(at Frame, ms int) error {
	if at < 0 || int(at) > len(s.durations) {
		return fmt.Errorf("insert frame %d: %w", at, ErrFrameOutOfRange)
	}
	// Grow the table first so shifted cels stay in range.
	s.durations = append(s.durations, 0)
	copy(s.durations[at+1:], s.durations[at:])
	s.durations[at] = ms
	for _, l := range s.ImageLayers() {
		l.shiftFrames(at, 1)
	}
	return nil
}

// RemoveFrame removes an empty frame and returns its duration. Cels after
// it move one frame earlier.
func (s *Sprite) RemoveFrame(at Frame) (int, error) {
	if at < 0 || int(at) >= len(s.durations) {
		return 0, fmt.Errorf("remove frame %d: %w", at, ErrFrameOutOfRange)
	}
	if len(s.durations) == 1 {
		return 0, fmt.Errorf("remove frame %d: sprite needs at least one frame: %w", at, ErrFrameOutOfRange)
	}
	if s.FrameHasCels(at) {
		return 0, fmt.Errorf("remove frame %d: %w", at, ErrFrameNotEmpty)
	}
	ms := s.durations[at]
	for _, l := range s.ImageLayers() {
		l.shiftFrames(at+1, -1)
	}
	s.durations = append(s.durations[:at], s.durations[at+1:]...)
	return ms, nil
}

// SetDurations replaces the frame-duration table, changing the frame count
// to len(ds). Frames dropped by a shrink must be empty.
func (s *Sprite) SetDurations(ds []int) error {
	if len(ds) == 0 {
		return fmt.Errorf("set durations: sprite needs at least one frame: %w", ErrFrameOutOfRange)
	}
	for f := len(ds); f < len(s.durations); f++ {
		if s.FrameHasCels(Frame(f)) {
			return fmt.Errorf("truncate at frame %d: %w", f, ErrFrameNotEmpty)
		}
	}
	s.durations = append([]int(nil), ds...)
	return nil
}

// SetTotalFrames resizes the frame count. New frames take the duration of
// the last existing frame.
func (s *Sprite) SetTotalFrames(n int) error {
	if n < 1 {
		return fmt.Errorf("set total frames %d: %w", n, ErrFrameOutOfRange)
	}
	ds := s.Durations()
	last := ds[len(ds)-1]
	for len(ds) < n {
		ds = append(ds, last)
	}
	return s.SetDurations(ds[:n])
}

// FrameHasCels reports whether any layer has a cel at frame f.
func (s *Sprite) FrameHasCels(f Frame) bool {
	for _, l := range s.ImageLayers() {
		if l.Cel(f) != nil {
			return true
		}
	}
	return false
}

// Palettes returns a copy of the palette list, sorted by frame.
func (s *Sprite) Palettes() []*Palette { return append([]*Palette(nil), s.palettes...) }

// Palette returns the palette active at frame f.
func (s *Sprite) Palette(f Frame) *Palette {
	var active *Palette
	for _, p := range s.palettes {
		if p.frame > f {
			break
		}
		active = p
	}
	if active == nil && len(s.palettes) > 0 {
		active = s.palettes[0]
	}
	return active
}

// PaletteAt returns the palette starting exactly at frame f, or nil.
func (s *Sprite) PaletteAt(f Frame) *Palette {
	for _, p := range s.palettes {
		if p.frame == f {
			return p
		}
	}
	return nil
}

// AddPalette inserts p. Only one palette may start at a given frame.
func (s *Sprite) AddPalette(p *Palette) error {
	if s.PaletteAt(p.frame) != nil {
		return fmt.Errorf("add palette at frame %d: a palette already starts there", p.frame)
	}
	i := sort.Search(len(s.palettes), func(i int) bool { return s.palettes[i].frame > p.frame })
	s.palettes = append(s.palettes, nil)
	copy(s.palettes[i+1:], s.palettes[i:])
	s.palettes[i] = p
	return nil
}

// RemovePalette removes p. The last palette cannot be removed.
func (s *Sprite) RemovePalette(p *Palette) error {
	if len(s.palettes) == 1 && s.palettes[0] == p {
		return fmt.Errorf("remove palette %s: sprite needs a palette", p.id)
	}
	for i, q := range s.palettes {
		if q == p {
			s.palettes = append(s.palettes[:i], s.palettes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("remove palette %s: not in sprite", p.id)
}

// Release removes the sprite and every object it reaches from the registry.
// The sprite must not be used afterwards.
func (s *Sprite) Release() error {
	var err error
	seen := make(map[registry.ID]bool)
	drop := func(id registry.ID) {
		if id == registry.NullID || seen[id] {
			return
		}
		seen[id] = true
		err = multierr.Append(err, s.reg.Remove(id))
	}
	for _, l := range append([]*Layer{s.root}, s.Layers()...) {
		for _, c := range l.cels {
			drop(c.id)
			drop(c.data.id)
			drop(c.data.image.id)
		}
		drop(l.id)
	}
	for _, p := range s.palettes {
		drop(p.id)
	}
	drop(s.id)
	return err
}
