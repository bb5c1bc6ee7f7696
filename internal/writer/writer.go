// Package writer encodes decoded rasters into image file formats selected by tag.
package writer

import (
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gen2brain/jpegdec/internal/tga"
)

// Format is an output format tag.
type Format string

// Supported output formats.
const (
	TGA  Format = "tga"
	PNG  Format = "png"
	PPM  Format = "ppm"
	QOI  Format = "qoi"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// ErrUnknownFormat is returned for format tags and file extensions with no encoder.
var ErrUnknownFormat = errors.New("unknown output format")

type encodeFunc func(w io.Writer, img image.Image) error

var encoders = map[Format]encodeFunc{
	TGA:  tga.Encode,
	PNG:  png.Encode,
	PPM:  ppm.Encode,
	QOI:  qoi.Encode,
	BMP:  bmp.Encode,
	TIFF: func(w io.Writer, img image.Image) error { return tiff.Encode(w, img, nil) },
}

// extensions maps file extensions other than the format tag itself.
var extensions = map[string]Format{
	".tif":   TIFF,
	".pnm":   PPM,
	".targa": TGA,
}

// Formats returns every supported format tag in sorted order.
func Formats() []Format {
	out := make([]Format, 0, len(encoders))
	for f := range encoders {
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// Parse returns the format named by s, case-insensitively.
func Parse(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := encoders[f]; !ok {
		return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
	}

	return f, nil
}

// FormatFromPath infers the format from the extension of path.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}

	if ext == "" {
		return "", errors.Wrapf(ErrUnknownFormat, "%q has no extension", path)
	}

	return Parse(ext[1:])
}

// Encode writes img to w in format f.
func Encode(w io.Writer, f Format, img image.Image) error {
	enc, ok := encoders[f]
	if !ok {
		return errors.Wrapf(ErrUnknownFormat, "%q", string(f))
	}

	return errors.Wrapf(enc(w, img), "encoding %s", f)
}

// WriteFile creates path and writes img to it in format f.
func WriteFile(path string, f Format, img image.Image) (err error) {
	if _, ok := encoders[f]; !ok {
		return errors.Wrapf(ErrUnknownFormat, "%q", string(f))
	}

	//nolint:gosec
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating output file")
	}
	defer func() {
		err = multierr.Combine(err, file.Close())
	}()

	return Encode(file, f, img)
}
