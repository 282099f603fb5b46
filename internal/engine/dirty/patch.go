package dirty

import (
	"fmt"
	"image"
)

// Patch holds the pixels of a region. Swapping a patch into an image
// exchanges its stored pixels with the image's, so applying the same patch
// twice restores the original image.
type Patch struct {
	region Region
	bpp    int
	data   []byte
}

// Capture copies the pixels of region from src. The region is clipped to the
// buffer bounds.
func Capture(src Pixels, region Region) *Patch {
	region = Region{rects: region.Rects(), maxRects: region.maxRects}
	region.Clip(image.Rect(0, 0, src.Width(), src.Height()))

	p := &Patch{
		region: region,
		bpp:    src.BytesPerPixel(),
		data:   make([]byte, region.Area()*src.BytesPerPixel()),
	}

	off := 0
	for _, rc := range region.rects {
		for y := rc.Min.Y; y < rc.Max.Y; y++ {
			row := src.Row(y)
			n := copy(p.data[off:], row[rc.Min.X*p.bpp:rc.Max.X*p.bpp])
			off += n
		}
	}
	return p
}

// Region returns the patched region.
func (p *Patch) Region() Region {
	return p.region
}

// Size returns the number of stored bytes.
func (p *Patch) Size() int {
	return len(p.data)
}

// Swap exchanges the stored pixels with the pixels of dst.
func (p *Patch) Swap(dst Pixels) error {
	if dst.BytesPerPixel() != p.bpp {
		return fmt.Errorf("swap patch: %w", ErrShapeMismatch)
	}
	if !p.region.Bounds().In(image.Rect(0, 0, dst.Width(), dst.Height())) {
		return fmt.Errorf("swap patch outside %dx%d image: %w", dst.Width(), dst.Height(), ErrShapeMismatch)
	}

	off := 0
	for _, rc := range p.region.rects {
		for y := rc.Min.Y; y < rc.Max.Y; y++ {
			row := dst.Row(y)[rc.Min.X*p.bpp : rc.Max.X*p.bpp]
			saved := p.data[off : off+len(row)]
			for i := range row {
				row[i], saved[i] = saved[i], row[i]
			}
			off += len(row)
		}
	}
	return nil
}

// Release drops the stored pixels.
func (p *Patch) Release() {
	p.data = nil
	p.region = Region{}
}
