package sprite

import (
	"bytes"
	"image"
)

// Mask is a selection: bounds plus one coverage byte per pixel. A Mask is
// never changed after construction; a new selection means a new Mask.
type Mask struct {
	bounds   image.Rectangle
	coverage []uint8
}

// NewRectMask selects every pixel of r.
func NewRectMask(r image.Rectangle) *Mask {
	r = r.Canon()
	cov := make([]uint8, r.Dx()*r.Dy())
	for i := range cov {
		cov[i] = 255
	}
	return &Mask{bounds: r, coverage: cov}
}

// NewMask builds a mask from per-pixel coverage, row-major within bounds.
// The coverage slice is copied.
func NewMask(bounds image.Rectangle, coverage []uint8) (*Mask, error) {
	if len(coverage) != bounds.Dx()*bounds.Dy() {
		return nil, ErrInvalidSize
	}
	return &Mask{bounds: bounds, coverage: append([]uint8(nil), coverage...)}, nil
}

// Bounds returns the mask rectangle. A nil mask has empty bounds.
func (m *Mask) Bounds() image.Rectangle {
	if m == nil {
		return image.Rectangle{}
	}
	return m.bounds
}

// IsEmpty reports whether nothing is selected.
func (m *Mask) IsEmpty() bool {
	if m == nil || m.bounds.Empty() {
		return true
	}
	for _, v := range m.coverage {
		if v != 0 {
			return false
		}
	}
	return true
}

// Coverage returns the selection strength at (x, y).
func (m *Mask) Coverage(x, y int) uint8 {
	if m == nil || !image.Pt(x, y).In(m.bounds) {
		return 0
	}
	return m.coverage[(y-m.bounds.Min.Y)*m.bounds.Dx()+(x-m.bounds.Min.X)]
}

// Contains reports whether (x, y) is selected at all.
func (m *Mask) Contains(x, y int) bool { return m.Coverage(x, y) != 0 }

// Equal reports whether two masks select the same pixels with equal coverage.
func (m *Mask) Equal(other *Mask) bool {
	if m.IsEmpty() || other.IsEmpty() {
		return m.IsEmpty() == other.IsEmpty()
	}
	return m.bounds == other.bounds && bytes.Equal(m.coverage, other.coverage)
}

// MemSize estimates the memory held by the mask.
func (m *Mask) MemSize() int {
	if m == nil {
		return 0
	}
	return 32 + len(m.coverage)
}
