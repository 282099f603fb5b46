package dirty

import (
	"image"
	"sort"
	"sync"
)

// Tracker accumulates dirty canvas rectangles per frame between renders.
// When the dirty area of a frame exceeds the coalesce threshold the frame is
// marked fully dirty.
type Tracker struct {
	mu sync.RWMutex

	canvas image.Rectangle

	frames map[int]*Region
	full   map[int]bool

	// all marks every frame dirty (canvas resize, frame insertion).
	all bool

	coalesceThreshold float64
}

// NewTracker creates a tracker for a canvas of the given size.
func NewTracker(width, height int) *Tracker {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Tracker{
		canvas:            image.Rect(0, 0, width, height),
		frames:            make(map[int]*Region),
		full:              make(map[int]bool),
		coalesceThreshold: 0.5,
	}
}

// SetCanvasSize updates the canvas size and marks everything dirty.
func (t *Tracker) SetCanvasSize(width, height int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.canvas = image.Rect(0, 0, max(width, 0), max(height, 0))
	t.markAllLocked()
}

// SetCoalesceThreshold sets the dirty area ratio that turns a frame fully dirty.
func (t *Tracker) SetCoalesceThreshold(threshold float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.coalesceThreshold = min(max(threshold, 0), 1)
}

// MarkAll marks every frame fully dirty.
func (t *Tracker) MarkAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markAllLocked()
}

func (t *Tracker) markAllLocked() {
	t.all = true
	clear(t.frames)
	clear(t.full)
}

// MarkFrame marks one frame fully dirty.
func (t *Tracker) MarkFrame(frame int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.all {
		return
	}
	t.full[frame] = true
	delete(t.frames, frame)
}

// MarkRect marks a canvas rectangle of a frame dirty.
func (t *Tracker) MarkRect(frame int, rc image.Rectangle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.all || t.full[frame] {
		return
	}
	rc = rc.Intersect(t.canvas)
	if rc.Empty() {
		return
	}

	r, ok := t.frames[frame]
	if !ok {
		r = &Region{}
		t.frames[frame] = r
	}
	r.Add(rc)

	if t.ratio(r) > t.coalesceThreshold {
		t.full[frame] = true
		delete(t.frames, frame)
	}
}

// MarkRegion marks every rectangle of region, offset by origin, dirty.
func (t *Tracker) MarkRegion(frame int, region Region, origin image.Point) {
	for _, rc := range region.rects {
		t.MarkRect(frame, rc.Add(origin))
	}
}

func (t *Tracker) ratio(r *Region) float64 {
	total := float64(t.canvas.Dx()) * float64(t.canvas.Dy())
	if total == 0 {
		return 0
	}
	return float64(r.Area()) / total
}

// IsDirty reports whether anything is dirty.
func (t *Tracker) IsDirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.all || len(t.frames) > 0 || len(t.full) > 0
}

// IsFrameDirty reports whether any part of frame is dirty.
func (t *Tracker) IsFrameDirty(frame int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.all || t.full[frame] {
		return true
	}
	_, ok := t.frames[frame]
	return ok
}

// FrameRegion returns the dirty region of a frame. A fully dirty frame
// returns the whole canvas.
func (t *Tracker) FrameRegion(frame int) Region {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.all || t.full[frame] {
		return NewRegion(t.canvas)
	}
	if r, ok := t.frames[frame]; ok {
		return Region{rects: r.Rects()}
	}
	return Region{}
}

// DirtyFrames returns the sorted frames with pending damage. When every
// frame is dirty it returns nil and true.
func (t *Tracker) DirtyFrames() ([]int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.all {
		return nil, true
	}
	frames := make([]int, 0, len(t.frames)+len(t.full))
	for f := range t.frames {
		frames = append(frames, f)
	}
	for f := range t.full {
		frames = append(frames, f)
	}
	sort.Ints(frames)
	return frames, false
}

// ClearFrame forgets the damage of one frame after it was rendered.
func (t *Tracker) ClearFrame(frame int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.frames, frame)
	delete(t.full, frame)
}

// Clear forgets all damage.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.all = false
	clear(t.frames)
	clear(t.full)
}
