package dirty

import (
	"bytes"
	"errors"
	"image"
)

// ErrShapeMismatch is returned when two buffers differ in size or format.
var ErrShapeMismatch = errors.New("pixel buffers differ in size or format")

// Pixels is a row-addressable pixel buffer. Row returns the live backing
// slice for row y, so writes through it modify the buffer.
type Pixels interface {
	Width() int
	Height() int
	BytesPerPixel() int
	Row(y int) []byte
}

// Diff returns the region where a and b differ. Each row contributes the
// span between its first and last differing pixel; consecutive rows with the
// same span coalesce into one rectangle.
func Diff(a, b Pixels) (Region, error) {
	if a.Width() != b.Width() || a.Height() != b.Height() || a.BytesPerPixel() != b.BytesPerPixel() {
		return Region{}, ErrShapeMismatch
	}

	bpp := a.BytesPerPixel()
	var region Region
	for y := 0; y < a.Height(); y++ {
		ra, rb := a.Row(y), b.Row(y)
		if bytes.Equal(ra, rb) {
			continue
		}
		first, last := -1, -1
		for x := 0; x < a.Width(); x++ {
			off := x * bpp
			if !bytes.Equal(ra[off:off+bpp], rb[off:off+bpp]) {
				if first < 0 {
					first = x
				}
				last = x
			}
		}
		region.Add(image.Rect(first, y, last+1, y+1))
	}
	return region, nil
}

// Equal reports whether two buffers hold identical pixels.
func Equal(a, b Pixels) bool {
	if a.Width() != b.Width() || a.Height() != b.Height() || a.BytesPerPixel() != b.BytesPerPixel() {
		return false
	}
	for y := 0; y < a.Height(); y++ {
		if !bytes.Equal(a.Row(y), b.Row(y)) {
			return false
		}
	}
	return true
}
