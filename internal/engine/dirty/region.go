// Package dirty tracks which pixels of an image changed.
//
// Region coalesces rectangles the way a display tracker coalesces damaged
// lines, Diff compares two pixel buffers row by row, and Patch stores the
// pixels of a region so that swapping them into an image is its own inverse.
package dirty

import "image"

// DefaultMaxRects is the number of rectangles a Region keeps before it
// collapses into its bounding box.
const DefaultMaxRects = 32

// Region is a set of rectangles covering changed pixels.
// The zero value is an empty region.
type Region struct {
	rects    []image.Rectangle
	maxRects int
}

// NewRegion creates a region containing the given rectangles.
func NewRegion(rects ...image.Rectangle) Region {
	var r Region
	for _, rc := range rects {
		r.Add(rc)
	}
	return r
}

// SetMaxRects changes the coalescing limit. Values below 1 are clamped.
func (r *Region) SetMaxRects(n int) {
	if n < 1 {
		n = 1
	}
	r.maxRects = n
	r.enforceLimit()
}

// IsEmpty returns true if the region covers no pixels.
func (r Region) IsEmpty() bool {
	return len(r.rects) == 0
}

// Rects returns a copy of the region's rectangles.
func (r Region) Rects() []image.Rectangle {
	out := make([]image.Rectangle, len(r.rects))
	copy(out, r.rects)
	return out
}

// Len returns the number of rectangles.
func (r Region) Len() int {
	return len(r.rects)
}

// Bounds returns the smallest rectangle containing the whole region.
func (r Region) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, rc := range r.rects {
		b = b.Union(rc)
	}
	return b
}

// Area returns the number of pixels covered. Rectangles in a region never
// overlap, so the sum of their areas is exact.
func (r Region) Area() int {
	total := 0
	for _, rc := range r.rects {
		total += rc.Dx() * rc.Dy()
	}
	return total
}

// Contains reports whether the pixel (x, y) is in the region.
func (r Region) Contains(x, y int) bool {
	p := image.Pt(x, y)
	for _, rc := range r.rects {
		if p.In(rc) {
			return true
		}
	}
	return false
}

// Overlaps reports whether any rectangle intersects rc.
func (r Region) Overlaps(rc image.Rectangle) bool {
	for _, own := range r.rects {
		if own.Overlaps(rc) {
			return true
		}
	}
	return false
}

// Add inserts a rectangle, merging it with rectangles it overlaps or touches.
func (r *Region) Add(rc image.Rectangle) {
	rc = rc.Canon()
	if rc.Empty() {
		return
	}

	// Merge until the new rectangle no longer touches anything.
	for {
		merged := false
		for i := 0; i < len(r.rects); i++ {
			if m, ok := merge(r.rects[i], rc); ok {
				rc = m
				r.rects = append(r.rects[:i], r.rects[i+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			break
		}
	}

	r.rects = append(r.rects, rc)
	r.enforceLimit()
}

// Union adds every rectangle of other.
func (r *Region) Union(other Region) {
	for _, rc := range other.rects {
		r.Add(rc)
	}
}

// Clip restricts the region to bounds.
func (r *Region) Clip(bounds image.Rectangle) {
	out := r.rects[:0]
	for _, rc := range r.rects {
		if c := rc.Intersect(bounds); !c.Empty() {
			out = append(out, c)
		}
	}
	r.rects = out
}

// Translate moves every rectangle by d.
func (r *Region) Translate(d image.Point) {
	for i := range r.rects {
		r.rects[i] = r.rects[i].Add(d)
	}
}

func (r *Region) enforceLimit() {
	limit := r.maxRects
	if limit == 0 {
		limit = DefaultMaxRects
	}
	if len(r.rects) > limit {
		b := r.Bounds()
		r.rects = append(r.rects[:0], b)
	}
}

// merge combines two rectangles when the result covers exactly their union
// or when they overlap. Overlapping rectangles are replaced by their bounding
// box so the region never double counts pixels.
func merge(a, b image.Rectangle) (image.Rectangle, bool) {
	if a.Overlaps(b) {
		return a.Union(b), true
	}

	// Vertically adjacent with matching columns.
	if a.Min.X == b.Min.X && a.Max.X == b.Max.X && (a.Max.Y == b.Min.Y || b.Max.Y == a.Min.Y) {
		return a.Union(b), true
	}

	// Horizontally adjacent with matching rows.
	if a.Min.Y == b.Min.Y && a.Max.Y == b.Max.Y && (a.Max.X == b.Min.X || b.Max.X == a.Min.X) {
		return a.Union(b), true
	}

	return image.Rectangle{}, false
}
