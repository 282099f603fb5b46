package sprite

import "fmt"

// PixelFormat is the layout of an image's pixels.
type PixelFormat uint8

const (
	// FormatRGB stores 8-bit red, green, blue and alpha.
	FormatRGB PixelFormat = iota
	// FormatGrayscale stores 8-bit value and alpha.
	FormatGrayscale
	// FormatIndexed stores an 8-bit palette index.
	FormatIndexed
)

// BytesPerPixel returns the size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatGrayscale:
		return 2
	case FormatIndexed:
		return 1
	default:
		return 4
	}
}

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGB:
		return "rgb"
	case FormatGrayscale:
		return "grayscale"
	case FormatIndexed:
		return "indexed"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParsePixelFormat converts a format name.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "rgb", "rgba", "":
		return FormatRGB, nil
	case "grayscale", "gray":
		return FormatGrayscale, nil
	case "indexed":
		return FormatIndexed, nil
	}
	return 0, fmt.Errorf("unknown pixel format %q", s)
}

// Color is a packed pixel value. For RGB it is r | g<<8 | b<<16 | a<<24,
// for grayscale v | a<<8, for indexed the palette index.
type Color uint32

// RGBA packs an RGB color.
func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24)
}

// GrayA packs a grayscale color.
func GrayA(v, a uint8) Color {
	return Color(uint32(v) | uint32(a)<<8)
}

// R returns the red component of an RGB color.
func (c Color) R() uint8 { return uint8(c) }

// G returns the green component of an RGB color.
func (c Color) G() uint8 { return uint8(c >> 8) }

// B returns the blue component of an RGB color.
func (c Color) B() uint8 { return uint8(c >> 16) }

// A returns the alpha component of an RGB color.
func (c Color) A() uint8 { return uint8(c >> 24) }

// blendNormal composites src over dst with an extra opacity in [0,255].
func blendNormal(dst, src Color, opacity uint8) Color {
	sa := mul8(src.A(), opacity)
	if sa == 0 {
		return dst
	}
	da := dst.A()
	if da == 0 {
		return RGBA(src.R(), src.G(), src.B(), sa)
	}

	ra := int(sa) + int(da) - int(mul8(sa, da))
	mix := func(d, s uint8) uint8 {
		return uint8(int(d) + (int(s)-int(d))*int(sa)/ra)
	}
	return RGBA(mix(dst.R(), src.R()), mix(dst.G(), src.G()), mix(dst.B(), src.B()), uint8(ra))
}

// mul8 multiplies two 8-bit fractions with rounding.
func mul8(a, b uint8) uint8 {
	t := int(a)*int(b) + 0x80
	return uint8(((t >> 8) + t) >> 8)
}
