package jpegdec

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Format identifies an input image format this package can read.
type Format string

// FormatJPEG is the baseline JPEG format.
const FormatJPEG Format = "jpeg"

// reader is implemented by every supported input format. The set is closed.
type reader interface {
	format() Format
	match(header []byte) bool
	read(data []byte, opts ...*Options) (*Raster, error)
}

type jpegReader struct{}

func (jpegReader) format() Format { return FormatJPEG }

func (jpegReader) match(header []byte) bool {
	return bytes.HasPrefix(header, []byte{0xFF, markerSOI})
}

func (jpegReader) read(data []byte, opts ...*Options) (*Raster, error) {
	return DecodeBytes(data, opts...)
}

var readers = []reader{jpegReader{}}

// Formats returns the supported input formats.
func Formats() []Format {
	out := make([]Format, 0, len(readers))
	for _, rd := range readers {
		out = append(out, rd.format())
	}

	return out
}

// DetectFormat returns the format whose signature data starts with.
func DetectFormat(data []byte) (Format, bool) {
	for _, rd := range readers {
		if rd.match(data) {
			return rd.format(), true
		}
	}

	return "", false
}

// ReadFormat decodes the stream in r as format f.
func ReadFormat(f Format, r io.Reader, opts ...*Options) (*Raster, error) {
	for _, rd := range readers {
		if rd.format() != f {
			continue
		}

		data, err := readAllData(r)
		if err != nil {
			return nil, err
		}

		return rd.read(data, opts...)
	}

	return nil, errors.Wrapf(ErrUnsupported, "format %q", f)
}
