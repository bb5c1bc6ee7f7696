package jpegdec

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
)

// Raster is a decoded image. Pixels are stored row-major from the top-left corner,
// Channels bytes per pixel (R, G, B), with rows PaddedWidth pixels long.
// Only the Width x Height sub-rectangle holds image data; padding bytes beyond it
// come from MCU overflow and must not be interpreted.
type Raster struct {
	Width, Height             int // Visible dimensions.
	PaddedWidth, PaddedHeight int // MCU-aligned dimensions.
	Channels                  int
	Pix                       []byte
}

// Stride returns the number of bytes between vertically adjacent pixels.
func (r *Raster) Stride() int {
	return r.PaddedWidth * r.Channels
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (r *Raster) PixOffset(x, y int) int {
	return y*r.Stride() + x*r.Channels
}

// RGBAt returns the colour of the pixel at (x, y). Points outside the visible
// rectangle return black.
func (r *Raster) RGBAt(x, y int) (red, green, blue uint8) {
	if !(image.Point{X: x, Y: y}.In(r.Bounds())) {
		return 0, 0, 0
	}

	i := r.PixOffset(x, y)
	p := r.Pix[i : i+3 : i+3]

	return p[0], p[1], p[2]
}

// RGBRow returns the visible part of row y as packed R, G, B bytes.
// The returned slice aliases Pix.
func (r *Raster) RGBRow(y int) []byte {
	i := r.PixOffset(0, y)

	return r.Pix[i : i+r.Width*r.Channels]
}

// ColorModel implements image.Image.
func (r *Raster) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image. It covers the visible rectangle only.
func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// At implements image.Image.
func (r *Raster) At(x, y int) color.Color {
	red, green, blue := r.RGBAt(x, y)

	return color.RGBA{R: red, G: green, B: blue, A: 255}
}

// RGBA copies the visible rectangle into a new *image.RGBA.
func (r *Raster) RGBA() *image.RGBA {
	dst := image.NewRGBA(r.Bounds())

	for y := 0; y < r.Height; y++ {
		src := r.RGBRow(y)
		row := dst.Pix[y*dst.Stride : y*dst.Stride+r.Width*4]

		for x := 0; x < r.Width; x++ {
			row[x*4+0] = src[x*3+0]
			row[x*4+1] = src[x*3+1]
			row[x*4+2] = src[x*3+2]
			row[x*4+3] = 255
		}
	}

	return dst
}

// Allocator creates output rasters. Implementations return ErrAllocationFailure
// (possibly wrapped) when the raster cannot be provided.
type Allocator interface {
	Allocate(width, height, paddedWidth, paddedHeight, channels int) (*Raster, error)
}

// DefaultMaxRasterBytes is the HeapAllocator limit used when MaxBytes is zero.
const DefaultMaxRasterBytes = 1 << 30

// HeapAllocator allocates rasters on the Go heap.
type HeapAllocator struct {
	// MaxBytes bounds the pixel buffer size. Zero means DefaultMaxRasterBytes.
	MaxBytes int
}

// Allocate implements Allocator.
func (a HeapAllocator) Allocate(width, height, paddedWidth, paddedHeight, channels int) (*Raster, error) {
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, errors.Wrapf(ErrAllocationFailure, "invalid raster geometry %dx%dx%d", width, height, channels)
	}

	if paddedWidth < width || paddedHeight < height {
		return nil, errors.Wrapf(ErrAllocationFailure, "padded size %dx%d smaller than image %dx%d",
			paddedWidth, paddedHeight, width, height)
	}

	limit := a.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxRasterBytes
	}

	size := uint64(paddedWidth) * uint64(paddedHeight) * uint64(channels)
	if size > uint64(limit) || size > math.MaxInt {
		return nil, errors.Wrapf(ErrAllocationFailure, "raster of %d bytes exceeds limit of %d bytes", size, limit)
	}

	return &Raster{
		Width:        width,
		Height:       height,
		PaddedWidth:  paddedWidth,
		PaddedHeight: paddedHeight,
		Channels:     channels,
		Pix:          make([]byte, int(size)),
	}, nil
}
