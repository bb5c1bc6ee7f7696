// Package tga writes uncompressed 24-bit Truevision TGA files.
package tga

import (
	"bufio"
	"encoding/binary"
	"image"
	"io"

	"github.com/pkg/errors"
)

const headerSize = 18

// Header field values.
const (
	imageTypeTrueColor = 2
	pixelDepth         = 24
	originTopLeft      = 0x20 // Image descriptor bit 5: rows stored top to bottom.
)

// rowImage is implemented by rasters that can hand out a packed R, G, B row.
type rowImage interface {
	image.Image
	RGBRow(y int) []byte
}

// Encode writes img as an uncompressed true-colour TGA with a top-left origin.
// Pixels are stored in the B, G, R order the format defines. Only the
// rectangle reported by img.Bounds() is written.
func Encode(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 || b.Dx() > 0xFFFF || b.Dy() > 0xFFFF {
		return errors.Errorf("tga: cannot encode %dx%d image", b.Dx(), b.Dy())
	}

	bw := bufio.NewWriter(w)

	var hdr [headerSize]byte
	hdr[2] = imageTypeTrueColor
	binary.LittleEndian.PutUint16(hdr[12:], uint16(b.Dx()))
	binary.LittleEndian.PutUint16(hdr[14:], uint16(b.Dy()))
	hdr[16] = pixelDepth
	hdr[17] = originTopLeft

	if _, err := bw.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "tga: writing header")
	}

	row := make([]byte, 3*b.Dx())
	ri, fast := img.(rowImage)
	fast = fast && b.Min == image.Point{}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		if fast {
			src := ri.RGBRow(y)
			for x := 0; x < b.Dx(); x++ {
				row[3*x], row[3*x+1], row[3*x+2] = src[3*x+2], src[3*x+1], src[3*x]
			}
		} else {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				i := 3 * (x - b.Min.X)
				row[i], row[i+1], row[i+2] = byte(bl>>8), byte(g>>8), byte(r>>8)
			}
		}

		if _, err := bw.Write(row); err != nil {
			return errors.Wrapf(err, "tga: writing row %d", y)
		}
	}

	return errors.Wrap(bw.Flush(), "tga: flush")
}
