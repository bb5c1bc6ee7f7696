package jpegdec

import (
	"github.com/pkg/errors"
)

// Bitstream handling

// bitReader reads MSB-first bits from a de-stuffed entropy-coded segment.
// Past the end of data it shifts in 1-bits (the JPEG fill value) so lookahead
// never fails, but consuming any of them is an error.
type bitReader struct {
	data    []byte
	pos     int    // Next byte of data to load.
	buf     uint64 // Valid bits are the low bufBits bits.
	bufBits int
	padBits int // Fill bits at the bottom of buf that are not part of data.
}

// fill loads bytes until at least n bits are buffered.
func (br *bitReader) fill(n int) {
	// Stop before br.bufBits > 56 (64-8): shifting by 8 would lose valid bits.
	for br.bufBits < n && br.bufBits <= 56 {
		b := byte(0xFF)
		if br.pos < len(br.data) {
			b = br.data[br.pos]
			br.pos++
		} else {
			br.padBits += 8
		}

		br.buf = br.buf<<8 | uint64(b)
		br.bufBits += 8
	}
}

// remaining returns the number of real (non-fill) bits not yet consumed.
func (br *bitReader) remaining() int {
	return br.bufBits - br.padBits + (len(br.data)-br.pos)*8
}

// showBits returns the next n bits (n <= 32) without consuming them.
func (br *bitReader) showBits(n int) int {
	if n == 0 {
		return 0
	}

	br.fill(n)

	return int((br.buf >> (br.bufBits - n)) & (1<<n - 1))
}

// skipBits consumes n bits, which must already be buffered by showBits.
func (br *bitReader) skipBits(n int) {
	if n > br.remaining() {
		panic(errDecode{errors.Wrapf(ErrUnexpectedEndOfStream, "scan data ends %d bits short", n-br.remaining())})
	}

	br.fill(n)
	br.bufBits -= n
}

// getBits reads and consumes n bits.
func (br *bitReader) getBits(n int) int {
	res := br.showBits(n)
	br.skipBits(n)

	return res
}

// receiveExtend reads an n-bit magnitude and sign-extends it (ITU T.81 F.2.2.1).
// A leading 0 bit marks a negative value: raw - (2^n - 1).
func (br *bitReader) receiveExtend(n int) int32 {
	if n == 0 {
		return 0
	}

	v := int32(br.getBits(n))
	if v < 1<<(n-1) {
		v -= 1<<n - 1
	}

	return v
}
