// Package jpegdec decodes baseline sequential, Huffman-coded JPEG images into an RGB raster.
package jpegdec

import (
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Standard error types for JPEG decoding.
var (
	ErrNoJPEG                        = errors.New("not a JPEG file")
	ErrUnsupported                   = errors.New("unsupported format")
	ErrMalformedSegment              = errors.New("malformed segment")
	ErrUnsupportedComponentIndex     = errors.New("unsupported component index")
	ErrInvalidQuantizationTableIndex = errors.New("invalid quantization table index")
	ErrTooManyDataUnitsPerMCU        = errors.New("too many data units per MCU")
	ErrUnexpectedEndOfStream         = errors.New("unexpected end of stream")
	ErrAllocationFailure             = errors.New("allocation failure")
)

// ErrInvalidHuffmanCode is returned when the scan contains a bit pattern that no
// Huffman code covers. It matches ErrMalformedSegment with errors.Is.
var ErrInvalidHuffmanCode = errors.Wrap(ErrMalformedSegment, "invalid Huffman code")

// IDCTMethod selects the inverse DCT implementation.
type IDCTMethod int

const (
	// FastIDCT is a separable AAN butterfly working on pre-scaled quantization tables.
	FastIDCT IDCTMethod = iota
	// ReferenceIDCT evaluates the 2-D inverse cosine transform directly. It is slow.
	ReferenceIDCT
)

// String implements fmt.Stringer.
func (m IDCTMethod) String() string {
	switch m {
	case FastIDCT:
		return "fast"
	case ReferenceIDCT:
		return "reference"
	default:
		return "unknown"
	}
}

// valid reports whether m names an implemented transform.
func (m IDCTMethod) valid() bool {
	return m == FastIDCT || m == ReferenceIDCT
}

// ParseIDCTMethod returns the method named by s ("fast" or "reference").
func ParseIDCTMethod(s string) (IDCTMethod, error) {
	switch s {
	case "fast", "":
		return FastIDCT, nil
	case "reference", "ref", "slow":
		return ReferenceIDCT, nil
	}

	return 0, errors.Errorf("unknown IDCT method %q", s)
}

// Options specifies decoding parameters.
type Options struct {
	// IDCT selects the inverse DCT implementation. The zero value is FastIDCT.
	IDCT IDCTMethod
	// Logger receives advisory diagnostics. Nil disables logging.
	// Failures are always reported through the returned error.
	Logger *zap.Logger
	// Allocator creates the output raster once the frame header is known.
	// Nil uses HeapAllocator with its default limit.
	Allocator Allocator
}

// withDefaults returns a copy of the first non-nil option set with defaults filled in.
func withDefaults(opts []*Options) Options {
	var o Options
	if len(opts) > 0 && opts[0] != nil {
		o = *opts[0]
	}

	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	if o.Allocator == nil {
		o.Allocator = HeapAllocator{}
	}

	return o
}

// A reasonable upper limit for the size of JPEG headers.
// Most headers are well under this size (64KB).
const maxHeaderSize = 65536

// A pool for header-sized buffers to reduce allocations in DecodeConfig.
// Only raw input bytes are pooled, never decoder state.
var headerBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, maxHeaderSize)

		return &b
	},
}

// Interface to check if a reader knows its remaining length.
type readerWithLen interface {
	Len() int
}

// readAllData reads data from r, pre-allocating if the size is known.
func readAllData(r io.Reader) ([]byte, error) {
	if rl, ok := r.(readerWithLen); ok {
		size := rl.Len()
		if size > 0 {
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, errors.Wrap(err, "failed to read image data")
			}

			return data, nil
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image data")
	}

	return data, nil
}

// Decode reads a baseline JPEG image from r and returns its RGB raster.
func Decode(r io.Reader, opts ...*Options) (*Raster, error) {
	data, err := readAllData(r)
	if err != nil {
		return nil, err
	}

	return DecodeBytes(data, opts...)
}

// DecodeBytes decodes a baseline JPEG image held in memory.
// data is only read; the entropy-coded segment is de-stuffed into a private copy.
func DecodeBytes(data []byte, opts ...*Options) (*Raster, error) {
	o := withDefaults(opts)
	if !o.IDCT.valid() {
		return nil, errors.Wrapf(ErrUnsupported, "IDCT method %d", o.IDCT)
	}

	s := newSession(data, &o, false)

	if err := s.run(); err != nil {
		o.Logger.Debug("decode failed", zap.Error(err))

		return nil, err
	}

	return s.raster, nil
}

// DecodeConfig returns the color model and dimensions of a JPEG image without decoding the entire image data.
func DecodeConfig(r io.Reader) (image.Config, error) {
	bufPtr := headerBufferPool.Get().(*[]byte)
	defer headerBufferPool.Put(bufPtr)
	headerData := *bufPtr

	// io.ErrUnexpectedEOF is normal for files smaller than the buffer.
	n, err := io.ReadFull(r, headerData)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return image.Config{}, err
	}

	if n == 0 {
		return image.Config{}, ErrNoJPEG
	}

	cfg, err := decodeConfig(headerData[:n])
	if errors.Is(err, ErrUnexpectedEndOfStream) && n == len(headerData) {
		// Metadata pushed the frame header past the buffer; read the rest of the stream.
		rest, rerr := readAllData(r)
		if rerr != nil {
			return image.Config{}, rerr
		}

		data := make([]byte, 0, n+len(rest))
		data = append(data, headerData[:n]...)
		data = append(data, rest...)

		cfg, err = decodeConfig(data)
	}

	return cfg, err
}

// decodeConfig parses data up to and including the frame header.
func decodeConfig(data []byte) (image.Config, error) {
	o := withDefaults(nil)
	s := newSession(data, &o, true)
	if err := s.run(); err != nil {
		return image.Config{}, err
	}

	return image.Config{
		ColorModel: color.RGBAModel,
		Width:      s.width,
		Height:     s.height,
	}, nil
}
