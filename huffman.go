package jpegdec

import (
	"github.com/pkg/errors"
)

// maxCodeLength is the longest Huffman code JPEG allows.
const maxCodeLength = 16

// lookupSize is the number of entries in a fast lookup table: one per 16-bit pattern.
const lookupSize = 1 << maxCodeLength

// vlcCode represents a single entry in the pre-calculated Huffman lookup table.
// It stores the number of bits for the code and the decoded value.
type vlcCode struct {
	bits, code uint8
}

// huffTable is a flattened canonical Huffman decoder indexed by the next 16 bits of input.
type huffTable struct {
	lookup [lookupSize]vlcCode
	// limit is the first lookup index not covered by an assigned code. Entries from
	// limit on repeat the last assigned code so lookups stay deterministic on corrupt
	// input, but they never denote a valid code.
	limit int
}

// valid reports whether a 16-bit lookahead starts with an assigned code.
func (h *huffTable) valid(idx int) bool {
	return idx < h.limit && h.lookup[idx].bits != 0
}

// Huffman table classes.
const (
	classDC = 0
	classAC = 1
)

// huffSlot returns the table slot for a class and id: 0-1 for DC, 2-3 for AC.
func huffSlot(class, id int) int {
	return class<<1 | id
}

// buildHuffTable builds a lookup table from 16 code-length counts and the symbol list.
// Codes are assigned in canonical order: increasing length, then increasing symbol index.
func buildHuffTable(counts *[maxCodeLength]uint8, symbols []byte) (*huffTable, error) {
	h := new(huffTable)

	var (
		code     int // Next code, left-aligned to 16 bits.
		last     vlcCode
		assigned int
	)

	for length := 1; length <= maxCodeLength; length++ {
		span := 1 << (maxCodeLength - length)

		for k := 0; k < int(counts[length-1]); k++ {
			if assigned >= len(symbols) {
				return nil, errors.Wrap(ErrMalformedSegment, "DHT declares more codes than symbols")
			}

			if code+span > lookupSize {
				return nil, errors.Wrapf(ErrMalformedSegment, "DHT code lengths oversubscribed at length %d", length)
			}

			last = vlcCode{bits: uint8(length), code: symbols[assigned]}
			for j := code; j < code+span; j++ {
				h.lookup[j] = last
			}

			code += span
			assigned++
		}
	}

	h.limit = code
	for j := code; j < lookupSize; j++ {
		h.lookup[j] = last
	}

	return h, nil
}

// parseDHT reads one DHT payload, which holds one or more table definitions, into tabs.
func parseDHT(p []byte, tabs *[4]*huffTable) error {
	for len(p) > 0 {
		if len(p) < 17 {
			return errors.Wrapf(ErrMalformedSegment, "DHT table header needs 17 bytes, have %d", len(p))
		}

		class, id := int(p[0]>>4), int(p[0]&0x0F)
		if class > classAC || id > 1 {
			return errors.Wrapf(ErrMalformedSegment, "DHT class %d id %d", class, id)
		}

		var counts [maxCodeLength]uint8
		copy(counts[:], p[1:17])

		n := 0
		for _, c := range counts {
			n += int(c)
		}

		p = p[17:]
		if n > 256 || n > len(p) {
			return errors.Wrapf(ErrMalformedSegment, "DHT declares %d symbols, %d bytes remain", n, len(p))
		}

		h, err := buildHuffTable(&counts, p[:n])
		if err != nil {
			return err
		}

		tabs[huffSlot(class, id)] = h
		p = p[n:]
	}

	return nil
}
