package sprite

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"

	"github.com/dshills/pixelstorm/internal/engine/registry"
)

// imageOverhead approximates the fixed cost of an Image value.
const imageOverhead = 64

// Image is a pixel buffer. It is owned by exactly one CelData.
type Image struct {
	id        registry.ID
	format    PixelFormat
	width     int
	height    int
	maskColor Color
	pix       []byte
}

// ImageState is the value form of an Image.
type ImageState struct {
	ID        registry.ID `json:"id"`
	Format    PixelFormat `json:"format"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	MaskColor Color       `json:"maskColor"`
	Pix       []byte      `json:"pix"`
}

// NewImage allocates and registers a transparent image.
func NewImage(reg *registry.Registry, format PixelFormat, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("new image %dx%d: %w", width, height, ErrInvalidSize)
	}
	obj := reg.Register(registry.KindImage, func(id registry.ID) registry.Object {
		return &Image{
			id:     id,
			format: format,
			width:  width,
			height: height,
			pix:    make([]byte, width*height*format.BytesPerPixel()),
		}
	})
	return obj.(*Image), nil
}

// RestoreImage rebuilds an image from its state under the state's ID.
// The ID must be reserved or detached in reg.
func RestoreImage(reg *registry.Registry, st ImageState) (*Image, error) {
	if st.Width <= 0 || st.Height <= 0 || len(st.Pix) != st.Width*st.Height*st.Format.BytesPerPixel() {
		return nil, fmt.Errorf("restore image %s: %w", st.ID, ErrDecode)
	}
	img := &Image{
		id:        st.ID,
		format:    st.Format,
		width:     st.Width,
		height:    st.Height,
		maskColor: st.MaskColor,
		pix:       append([]byte(nil), st.Pix...),
	}
	if err := reg.Attach(st.ID, img); err != nil {
		return nil, fmt.Errorf("restore image: %w", err)
	}
	return img, nil
}

// ID returns the registry ID.
func (img *Image) ID() registry.ID { return img.id }

// Kind implements registry.Object.
func (img *Image) Kind() registry.Kind { return registry.KindImage }

// Format returns the pixel format.
func (img *Image) Format() PixelFormat { return img.format }

// Width returns the width in pixels.
func (img *Image) Width() int { return img.width }

// Height returns the height in pixels.
func (img *Image) Height() int { return img.height }

// Bounds returns the image rectangle at the origin.
func (img *Image) Bounds() image.Rectangle { return image.Rect(0, 0, img.width, img.height) }

// BytesPerPixel returns the pixel size.
func (img *Image) BytesPerPixel() int { return img.format.BytesPerPixel() }

// MaskColor returns the color treated as transparent.
func (img *Image) MaskColor() Color { return img.maskColor }

// SetMaskColor changes the transparent color.
func (img *Image) SetMaskColor(c Color) { img.maskColor = c }

// Row returns the backing slice of row y.
func (img *Image) Row(y int) []byte {
	stride := img.width * img.format.BytesPerPixel()
	return img.pix[y*stride : (y+1)*stride]
}

// Pixel returns the packed color at (x, y). Out-of-bounds reads return the
// mask color.
func (img *Image) Pixel(x, y int) Color {
	if x < 0 || y < 0 || x >= img.width || y >= img.height {
		return img.maskColor
	}
	bpp := img.format.BytesPerPixel()
	off := (y*img.width + x) * bpp
	switch bpp {
	case 4:
		return Color(binary.LittleEndian.Uint32(img.pix[off:]))
	case 2:
		return Color(binary.LittleEndian.Uint16(img.pix[off:]))
	default:
		return Color(img.pix[off])
	}
}

// SetPixel writes a packed color at (x, y). Out-of-bounds writes are ignored.
func (img *Image) SetPixel(x, y int, c Color) {
	if x < 0 || y < 0 || x >= img.width || y >= img.height {
		return
	}
	bpp := img.format.BytesPerPixel()
	off := (y*img.width + x) * bpp
	switch bpp {
	case 4:
		binary.LittleEndian.PutUint32(img.pix[off:], uint32(c))
	case 2:
		binary.LittleEndian.PutUint16(img.pix[off:], uint16(c))
	default:
		img.pix[off] = uint8(c)
	}
}

// Fill sets every pixel to c.
func (img *Image) Fill(c Color) {
	for y := 0; y < img.height; y++ {
		for x := 0; x < img.width; x++ {
			img.SetPixel(x, y, c)
		}
	}
}

// Clone copies the pixels into a new registered image.
func (img *Image) Clone(reg *registry.Registry) *Image {
	obj := reg.Register(registry.KindImage, func(id registry.ID) registry.Object {
		return img.cloneAs(id)
	})
	return obj.(*Image)
}

// cloneAs copies the pixels into an unregistered image carrying id.
func (img *Image) cloneAs(id registry.ID) *Image {
	return &Image{
		id:        id,
		format:    img.format,
		width:     img.width,
		height:    img.height,
		maskColor: img.maskColor,
		pix:       append([]byte(nil), img.pix...),
	}
}

// Copy returns an unregistered copy with a null ID, used to stage edits
// before they are applied through a command.
func (img *Image) Copy() *Image {
	return img.cloneAs(registry.NullID)
}

// CloneInto copies the pixels into a new image attached under id, which
// must be reserved or detached in reg.
func (img *Image) CloneInto(reg *registry.Registry, id registry.ID) (*Image, error) {
	c := img.cloneAs(id)
	if err := reg.Attach(id, c); err != nil {
		return nil, fmt.Errorf("clone image into %s: %w", id, err)
	}
	return c, nil
}

// SamePixels reports whether two images have identical size, format and pixels.
func (img *Image) SamePixels(other *Image) bool {
	return img.format == other.format && img.width == other.width &&
		img.height == other.height && bytes.Equal(img.pix, other.pix)
}

// CopyFrom draws src at (x, y) replacing pixels, clipped to this image.
func (img *Image) CopyFrom(src *Image, x, y int) error {
	if src.format != img.format {
		return ErrFormatMismatch
	}
	r := src.Bounds().Add(image.Pt(x, y)).Intersect(img.Bounds())
	bpp := img.format.BytesPerPixel()
	for dy := r.Min.Y; dy < r.Max.Y; dy++ {
		srow := src.Row(dy - y)[(r.Min.X-x)*bpp : (r.Max.X-x)*bpp]
		copy(img.Row(dy)[r.Min.X*bpp:r.Max.X*bpp], srow)
	}
	return nil
}

// MemSize estimates the memory held by the image.
func (img *Image) MemSize() int {
	return imageOverhead + len(img.pix)
}

// State captures the image as a value, copying the pixels.
func (img *Image) State() ImageState {
	return ImageState{
		ID:        img.id,
		Format:    img.format,
		Width:     img.width,
		Height:    img.height,
		MaskColor: img.maskColor,
		Pix:       append([]byte(nil), img.pix...),
	}
}

// MemSize estimates the memory held by the state.
func (st ImageState) MemSize() int {
	return imageOverhead + len(st.Pix)
}
