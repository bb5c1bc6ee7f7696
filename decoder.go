package jpegdec

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Maximum values supported by the MCU sample cache.
const (
	maxComponents      = 3
	maxSamplingFactor  = 2
	maxDataUnitsPerMCU = 10
	mcuCacheStride     = 8 * maxSamplingFactor
)

// component stores information about a single color component (Y, Cb or Cr).
type component struct {
	id                 int // Component identifier, 1 to 3.
	ssX, ssY           int // Subsampling factors for X and Y axes.
	qtSel              int // Quantization table selector.
	dcTabSel, acTabSel int // Huffman table selectors for DC and AC coefficients.
	dcPred             int32
	present            bool
}

// session holds the state of one decode call. It is created per call and never shared.
type session struct {
	data       []byte // Caller's input; never written.
	scan       scanner
	log        *zap.Logger
	method     IDCTMethod
	idct       idctFunc
	alloc      Allocator
	configOnly bool

	quant quantStore
	huff  [4]*huffTable

	width, height    int
	ncomp            int
	comp             [maxComponents]component // Indexed by component id - 1.
	scanOrder        []int                    // Component slots in scan order.
	maxSSX, maxSSY   int
	mcuSizeX         int
	mcuSizeY         int
	mcuCols, mcuRows int

	raster *Raster

	// Per-block work buffers and per-MCU sample cache.
	br    bitReader
	block [64]int32
	coef  [64]float32
	cache [maxComponents][mcuCacheStride * mcuCacheStride]byte
}

// errDecode is used for internal panics during the hot decoding path.
type errDecode struct{ error }

// newSession creates the state for decoding data.
func newSession(data []byte, o *Options, configOnly bool) *session {
	s := &session{
		data:       data,
		scan:       scanner{data: data},
		log:        o.Logger,
		method:     o.IDCT,
		idct:       idctFor(o.IDCT),
		alloc:      o.Allocator,
		configOnly: configOnly,
	}
	s.quant.prescale = o.IDCT == FastIDCT

	return s
}

// segmentHandler processes the payload of one segment.
type segmentHandler func(s *session, seg segment) error

// handlers maps marker codes to their processing. Markers without an entry are skipped.
var handlers = map[byte]segmentHandler{
	markerDQT:  (*session).processDQT,
	markerDHT:  (*session).processDHT,
	markerDRI:  (*session).processDRI,
	markerSOF0: (*session).processSOF,
	markerSOS:  (*session).processSOS,
}

// run drives the marker state machine until the scan is decoded (or, in config-only
// mode, until the frame header has been read).
func (s *session) run() error {
	if len(s.data) < 2 || s.data[0] != 0xFF || s.data[1] != markerSOI {
		return ErrNoJPEG
	}

	s.log.Debug("decode", zap.Int("bytes", len(s.data)), zap.Stringer("idct", s.method), zap.Bool("configOnly", s.configOnly))

	state := stateStart
	for state != stateDone {
		seg, err := s.scan.next()
		if err != nil {
			return err
		}

		s.log.Debug("segment",
			zap.String("marker", markerName(seg.marker)),
			zap.Int("offset", seg.offset),
			zap.Int("size", seg.size()))

		next, err := transition(state, seg.marker)
		if err != nil {
			return err
		}

		if h, ok := handlers[seg.marker]; ok {
			if err := h(s, seg); err != nil {
				return err
			}
		} else if classify(seg.marker) == classOther {
			s.log.Warn("unhandled segment", zap.String("marker", markerName(seg.marker)), zap.Int("offset", seg.offset))
		}

		state = next
		if s.configOnly && state == stateFrame {
			return nil
		}
	}

	if rest := len(s.data) - s.scan.pos; rest > 2 {
		s.log.Warn("data after scan ignored", zap.Int("bytes", rest))
	}

	return nil
}

// payload returns the bytes of seg.
func (s *session) payload(seg segment) []byte {
	return s.data[seg.start:seg.end:seg.end]
}

// processDQT decodes the Define Quantization Table segment.
func (s *session) processDQT(seg segment) error {
	return s.quant.parse(s.payload(seg))
}

// processDHT decodes the Define Huffman Table segment.
func (s *session) processDHT(seg segment) error {
	return parseDHT(s.payload(seg), &s.huff)
}

// processDRI accepts only a zero restart interval; restart markers are not supported.
func (s *session) processDRI(seg segment) error {
	p := s.payload(seg)
	if len(p) < 2 {
		return errors.Wrapf(ErrMalformedSegment, "DRI payload of %d bytes", len(p))
	}

	if interval := int(p[0])<<8 | int(p[1]); interval != 0 {
		return errors.Wrapf(ErrUnsupported, "restart interval %d", interval)
	}

	return nil
}

// processSOF decodes the baseline Start of Frame segment: dimensions, components and
// their sampling factors. Outside config-only mode it also allocates the raster.
func (s *session) processSOF(seg segment) error {
	p := s.payload(seg)
	if len(p) < 6 {
		return errors.Wrapf(ErrMalformedSegment, "SOF0 payload of %d bytes", len(p))
	}

	if p[0] != 8 {
		return errors.Wrapf(ErrUnsupported, "sample precision %d", p[0])
	}

	s.height = int(p[1])<<8 | int(p[2])
	s.width = int(p[3])<<8 | int(p[4])
	s.ncomp = int(p[5])

	if s.width == 0 || s.height == 0 {
		return errors.Wrapf(ErrMalformedSegment, "image size %dx%d", s.width, s.height)
	}

	if s.ncomp != 1 && s.ncomp != 3 {
		return errors.Wrapf(ErrUnsupported, "%d components", s.ncomp)
	}

	if len(p) < 6+3*s.ncomp {
		return errors.Wrapf(ErrMalformedSegment, "SOF0 payload of %d bytes for %d components", len(p), s.ncomp)
	}

	s.log.Info("image size", zap.Int("width", s.width), zap.Int("height", s.height))

	s.maxSSX, s.maxSSY = 1, 1
	for i := 0; i < s.ncomp; i++ {
		d := p[6+3*i : 9+3*i]

		id := int(d[0])
		if id < 1 || id > maxComponents {
			return errors.Wrapf(ErrUnsupportedComponentIndex, "component %d has id %d", i, id)
		}

		c := &s.comp[id-1]
		if c.present {
			return errors.Wrapf(ErrMalformedSegment, "duplicate component id %d", id)
		}

		c.id = id
		c.present = true
		c.ssX = int(d[1] >> 4)
		c.ssY = int(d[1] & 0x0F)
		c.qtSel = int(d[2])

		if c.ssX < 1 || c.ssX > maxSamplingFactor || c.ssY < 1 || c.ssY > maxSamplingFactor {
			return errors.Wrapf(ErrUnsupported, "component %d sampling factors %dx%d", id, c.ssX, c.ssY)
		}

		if c.qtSel >= numQuantTables {
			return errors.Wrapf(ErrInvalidQuantizationTableIndex, "component %d selects table %d", id, c.qtSel)
		}

		// A single-component scan is never interleaved: each MCU is one data unit.
		if s.ncomp == 1 {
			c.ssX, c.ssY = 1, 1
		}

		s.maxSSX = max(s.maxSSX, c.ssX)
		s.maxSSY = max(s.maxSSY, c.ssY)

		s.log.Info("component",
			zap.Int("index", i),
			zap.Int("id", id),
			zap.Int("ssX", c.ssX),
			zap.Int("ssY", c.ssY),
			zap.Int("qt", c.qtSel))
	}

	units := 0
	for i := range s.comp {
		c := &s.comp[i]
		if !c.present {
			continue
		}

		if s.maxSSX%c.ssX != 0 || s.maxSSY%c.ssY != 0 {
			return errors.Wrapf(ErrUnsupported, "component %d sampling %dx%d does not divide %dx%d",
				c.id, c.ssX, c.ssY, s.maxSSX, s.maxSSY)
		}

		units += c.ssX * c.ssY
	}

	if units > maxDataUnitsPerMCU {
		return errors.Wrapf(ErrTooManyDataUnitsPerMCU, "%d data units per MCU", units)
	}

	s.mcuSizeX = 8 * s.maxSSX
	s.mcuSizeY = 8 * s.maxSSY
	s.mcuCols = (s.width + s.mcuSizeX - 1) / s.mcuSizeX
	s.mcuRows = (s.height + s.mcuSizeY - 1) / s.mcuSizeY

	s.log.Info("SOF",
		zap.Int("mcuCols", s.mcuCols),
		zap.Int("mcuRows", s.mcuRows),
		zap.Int("mcuSizeX", s.mcuSizeX),
		zap.Int("mcuSizeY", s.mcuSizeY))

	if s.configOnly {
		return nil
	}

	return s.allocate()
}

// allocate obtains the output raster from the allocator and checks its geometry.
func (s *session) allocate() error {
	const channels = 3

	pw, ph := s.mcuCols*s.mcuSizeX, s.mcuRows*s.mcuSizeY

	r, err := s.alloc.Allocate(s.width, s.height, pw, ph, channels)
	if err != nil {
		if errors.Is(err, ErrAllocationFailure) {
			return err
		}

		return errors.Wrap(ErrAllocationFailure, err.Error())
	}

	if r == nil || r.Width != s.width || r.Height != s.height || r.PaddedWidth != pw ||
		r.PaddedHeight != ph || r.Channels != channels || len(r.Pix) < pw*ph*channels {
		return errors.Wrapf(ErrAllocationFailure, "allocator returned a raster that does not fit %dx%d", pw, ph)
	}

	s.raster = r

	return nil
}

// processSOS decodes the Start of Scan header, isolates the entropy-coded segment
// that follows it and decodes the whole image.
func (s *session) processSOS(seg segment) error {
	p := s.payload(seg)
	if len(p) < 1 {
		return errors.Wrap(ErrMalformedSegment, "empty SOS payload")
	}

	ns := int(p[0])
	if len(p) < 1+2*ns+3 {
		return errors.Wrapf(ErrMalformedSegment, "SOS payload of %d bytes for %d components", len(p), ns)
	}

	if ns != s.ncomp {
		return errors.Wrapf(ErrUnsupported, "scan with %d of %d components", ns, s.ncomp)
	}

	s.scanOrder = s.scanOrder[:0]
	for i := 0; i < ns; i++ {
		id, sel := int(p[1+2*i]), p[2+2*i]

		if id < 1 || id > maxComponents {
			return errors.Wrapf(ErrUnsupportedComponentIndex, "scan component id %d", id)
		}

		c := &s.comp[id-1]
		if !c.present {
			return errors.Wrapf(ErrMalformedSegment, "scan component id %d not in frame", id)
		}

		for _, slot := range s.scanOrder {
			if slot == id-1 {
				return errors.Wrapf(ErrMalformedSegment, "scan lists component %d twice", id)
			}
		}

		c.dcTabSel, c.acTabSel = int(sel>>4), int(sel&0x0F)
		if c.dcTabSel > 1 || c.acTabSel > 1 {
			return errors.Wrapf(ErrMalformedSegment, "component %d selects Huffman tables %d/%d", id, c.dcTabSel, c.acTabSel)
		}

		s.scanOrder = append(s.scanOrder, id-1)
	}

	ss, se, a := p[1+2*ns], p[2+2*ns], p[3+2*ns]
	if ss != 0 || se != 63 || a != 0 {
		return errors.Wrapf(ErrUnsupported, "spectral selection %d-%d, approximation 0x%02X", ss, se, a)
	}

	data, err := s.scan.entropySegment(seg.end)
	if err != nil {
		return err
	}

	s.log.Debug("entropy-coded segment",
		zap.Int("stuffed", s.scan.pos-seg.end),
		zap.Int("destuffed", len(data)))

	return s.decodeScan(data)
}
