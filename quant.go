package jpegdec

import (
	"github.com/pkg/errors"
)

// zz is the zigzag ordering table. It maps the 1D order of coefficients in the JPEG stream to their 2D position in an 8x8 block.
var zz = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18,
	11, 4, 5, 12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28, 35,
	42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51, 58, 59, 52, 45,
	38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

// aanScale holds the per-axis AAN scale factors: 1 for k = 0, sqrt(2)*cos(k*pi/16) otherwise.
// Their outer product folds the fast IDCT's basis normalization into dequantization.
var aanScale = [8]float64{
	1.0, 1.387039845, 1.306562965, 1.175875602,
	1.0, 0.785694958, 0.541196100, 0.275899379,
}

// numQuantTables is the number of table slots: 0 for luma, 1 for chroma.
const numQuantTables = 2

// quantStore holds the dequantization tables of one decode.
type quantStore struct {
	raw      [numQuantTables][64]uint16  // Natural (row-major) order, as transmitted.
	tables   [numQuantTables][64]float32 // raw, pre-scaled when prescale is set.
	defined  uint8                       // Bitmask of tables seen in DQT segments.
	prescale bool
}

// parse reads one DQT payload, which holds one or more 65-byte table definitions.
func (q *quantStore) parse(p []byte) error {
	for len(p) >= 65 {
		pq, tq := p[0]>>4, p[0]&0x0F
		if pq != 0 {
			return errors.Wrap(ErrUnsupported, "16-bit quantization tables")
		}

		if tq >= numQuantTables {
			return errors.Wrapf(ErrInvalidQuantizationTableIndex, "DQT index %d", tq)
		}

		// Coefficients arrive in zigzag order.
		t := &q.raw[tq]
		for k := 0; k < 64; k++ {
			t[zz[k]] = uint16(p[1+k])
		}

		q.derive(int(tq))
		q.defined |= 1 << tq
		p = p[65:]
	}

	if len(p) != 0 {
		return errors.Wrapf(ErrMalformedSegment, "DQT has %d trailing bytes", len(p))
	}

	return nil
}

// derive computes the float table used for dequantization from the raw table i.
func (q *quantStore) derive(i int) {
	raw, out := &q.raw[i], &q.tables[i]

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := float64(raw[y*8+x])
			if q.prescale {
				v *= aanScale[x] * aanScale[y]
			}

			out[y*8+x] = float32(v)
		}
	}
}

// table returns dequantization table i, which must have been defined.
func (q *quantStore) table(i int) (*[64]float32, error) {
	if i < 0 || i >= numQuantTables {
		return nil, errors.Wrapf(ErrInvalidQuantizationTableIndex, "table %d", i)
	}

	if q.defined&(1<<i) == 0 {
		return nil, errors.Wrapf(ErrMalformedSegment, "quantization table %d used but never defined", i)
	}

	return &q.tables[i], nil
}

// dequantize multiplies the natural-order coefficients in blk by qt.
func dequantize(blk *[64]int32, qt *[64]float32, out *[64]float32) {
	for k := range blk {
		out[k] = float32(blk[k]) * qt[k]
	}
}
