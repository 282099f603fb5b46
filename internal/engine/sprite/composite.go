package sprite

import (
	"encoding/binary"
	"fmt"
	"image"
	"sort"
)

// canvas is an unregistered RGB buffer used while compositing.
type canvas struct {
	w, h int
	px   []Color
}

type layerCel struct {
	order   int
	cel     *Cel
	opacity uint8
}

// composite blends the cels of layers at frame f, bottom first. Layers are
// expected in stack order; cel z-index shifts a cel within that order.
func (s *Sprite) composite(layers []*Layer, f Frame) *canvas {
	cv := &canvas{w: s.width, h: s.height, px: make([]Color, s.width*s.height)}

	var items []layerCel
	for i, l := range layers {
		if !l.IsImage() || !l.IsVisibleInTree() {
			continue
		}
		c := l.Cel(f)
		if c == nil {
			continue
		}
		op := mul8(c.opacity, l.opacity)
		for p := l.parent; p != nil && p != s.root; p = p.parent {
			op = mul8(op, p.opacity)
		}
		items = append(items, layerCel{order: i + c.zIndex, cel: c, opacity: op})
	}
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].order != items[b].order {
			return items[a].order < items[b].order
		}
		return items[a].cel.zIndex < items[b].cel.zIndex
	})

	pal := s.Palette(f)
	for _, it := range items {
		s.blendCel(cv, it.cel, it.opacity, pal)
	}
	return cv
}

// blendCel draws c onto cv with the given opacity.
func (s *Sprite) blendCel(cv *canvas, c *Cel, opacity uint8, pal *Palette) {
	img := c.Image()
	r := c.Bounds().Intersect(s.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			src := s.toRGB(img, img.Pixel(x-c.pos.X, y-c.pos.Y), pal)
			i := y*cv.w + x
			cv.px[i] = blendNormal(cv.px[i], src, opacity)
		}
	}
}

// toRGB converts a pixel of img to RGB.
func (s *Sprite) toRGB(img *Image, c Color, pal *Palette) Color {
	switch img.format {
	case FormatGrayscale:
		v, a := uint8(c), uint8(c>>8)
		return RGBA(v, v, v, a)
	case FormatIndexed:
		if c == img.maskColor || pal == nil {
			return 0
		}
		e, err := pal.Entry(int(c))
		if err != nil {
			return 0
		}
		return e
	default:
		return c
	}
}

// fromRGB converts an RGB color to the sprite's format.
func (s *Sprite) fromRGB(c Color, pal *Palette) Color {
	switch s.format {
	case FormatGrayscale:
		v := (299*int(c.R()) + 587*int(c.G()) + 114*int(c.B())) / 1000
		return GrayA(uint8(v), c.A())
	case FormatIndexed:
		if c.A() < 128 || pal == nil {
			return s.transparent
		}
		i := pal.FindBestFit(RGBA(c.R(), c.G(), c.B(), 255), int(s.transparent))
		if i < 0 {
			return s.transparent
		}
		return Color(i)
	default:
		return c
	}
}

// RenderFrame composites every visible layer at frame f.
func (s *Sprite) RenderFrame(f Frame) *image.NRGBA {
	cv := s.composite(s.Layers(), f)
	out := image.NewNRGBA(image.Rect(0, 0, cv.w, cv.h))
	for i, c := range cv.px {
		binary.LittleEndian.PutUint32(out.Pix[i*4:], uint32(c))
	}
	return out
}

// FlattenInto composites layers at frame f into dst, which must have the
// sprite's size and format. When opaque is set, transparent results are
// filled with the sprite's background color instead.
func (s *Sprite) FlattenInto(dst *Image, layers []*Layer, f Frame, opaque bool) error {
	if err := s.checkCanvas(dst); err != nil {
		return err
	}
	s.store(dst, s.composite(layers, f), s.Palette(f), opaque)
	return nil
}

// FlattenCel renders the single cel c, placed at its position with its own
// opacity, into dst. Layer visibility and opacity are ignored.
func (s *Sprite) FlattenCel(dst *Image, c *Cel, opaque bool) error {
	if err := s.checkCanvas(dst); err != nil {
		return err
	}
	cv := &canvas{w: s.width, h: s.height, px: make([]Color, s.width*s.height)}
	pal := s.Palette(c.frame)
	s.blendCel(cv, c, c.opacity, pal)
	s.store(dst, cv, pal, opaque)
	return nil
}

func (s *Sprite) checkCanvas(dst *Image) error {
	if dst.format != s.format || dst.width != s.width || dst.height != s.height {
		return fmt.Errorf("flatten into %s: %w", dst.id, ErrFormatMismatch)
	}
	return nil
}

func (s *Sprite) store(dst *Image, cv *canvas, pal *Palette, opaque bool) {
	for y := 0; y < cv.h; y++ {
		for x := 0; x < cv.w; x++ {
			c := cv.px[y*cv.w+x]
			if opaque {
				c = blendNormal(RGBA(0, 0, 0, 255), c, 255)
			}
			dst.SetPixel(x, y, s.fromRGB(c, pal))
		}
	}
}
