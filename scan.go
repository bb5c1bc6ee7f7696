package jpegdec

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Entropy Decoding

// decodeHuffman decodes one symbol from the scan with table h.
func (s *session) decodeHuffman(h *huffTable) byte {
	idx := s.br.showBits(maxCodeLength)
	if !h.valid(idx) {
		// Fewer than 16 real bits left means the lookahead ran into the fill bits.
		if s.br.remaining() < maxCodeLength {
			panic(errDecode{errors.Wrap(ErrUnexpectedEndOfStream, "scan data ends inside a Huffman code")})
		}

		panic(errDecode{errors.Wrapf(ErrInvalidHuffmanCode, "bit pattern 0x%04X", idx)})
	}

	e := h.lookup[idx]
	s.br.skipBits(int(e.bits))

	return e.code
}

// decodeBlock entropy-decodes one data unit of component c into s.block.
// The result is in natural order and not yet dequantized. The DC predictor of c is updated.
func (s *session) decodeBlock(c *component) {
	blk := &s.block
	*blk = [64]int32{}

	dc := s.huff[huffSlot(classDC, c.dcTabSel)]
	ac := s.huff[huffSlot(classAC, c.acTabSel)]

	// DC coefficient: category, then the difference to the previous block.
	t := int(s.decodeHuffman(dc))
	if t > 11 {
		panic(errDecode{errors.Wrapf(ErrMalformedSegment, "DC category %d", t)})
	}

	c.dcPred += s.br.receiveExtend(t)
	blk[0] = c.dcPred

	// AC coefficients: (run, size) pairs in zigzag order.
	for k := 1; k < 64; {
		rs := s.decodeHuffman(ac)
		run, size := int(rs>>4), int(rs&0x0F)

		// Size 0 with a run of 1-14 is not assigned by T.81; it is read as run zeros
		// followed by one more zero coefficient, like any other (run, size) pair.
		if size == 0 {
			switch run {
			case 0: // EOB
				return
			case 15: // ZRL
				k += 16

				continue
			}
		}

		if size > 10 {
			panic(errDecode{errors.Wrapf(ErrMalformedSegment, "AC size %d", size)})
		}

		k += run
		if k > 63 {
			panic(errDecode{errors.Wrapf(ErrMalformedSegment, "AC coefficient index %d", k)})
		}

		blk[zz[k]] = s.br.receiveExtend(size)
		k++
	}
}

// scanTables resolves the tables every scan component refers to.
func (s *session) scanTables() (qts [maxComponents]*[64]float32, err error) {
	for _, slot := range s.scanOrder {
		c := &s.comp[slot]

		if qts[slot], err = s.quant.table(c.qtSel); err != nil {
			return qts, err
		}

		if s.huff[huffSlot(classDC, c.dcTabSel)] == nil {
			return qts, errors.Wrapf(ErrMalformedSegment, "DC Huffman table %d used but never defined", c.dcTabSel)
		}

		if s.huff[huffSlot(classAC, c.acTabSel)] == nil {
			return qts, errors.Wrapf(ErrMalformedSegment, "AC Huffman table %d used but never defined", c.acTabSel)
		}
	}

	return qts, nil
}

// decodeScan decodes the de-stuffed entropy-coded segment into the raster, MCU by MCU.
// Handles panics from the hot path.
func (s *session) decodeScan(data []byte) (err error) {
	if s.raster == nil {
		return errors.Wrap(ErrMalformedSegment, "scan without frame")
	}

	qts, err := s.scanTables()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(errDecode); ok {
				err = de.error
			} else {
				// Propagate other panics
				panic(r)
			}
		}
	}()

	s.br = bitReader{data: data}
	for i := range s.comp {
		s.comp[i].dcPred = 0
	}

	for my := 0; my < s.mcuRows; my++ {
		for mx := 0; mx < s.mcuCols; mx++ {
			for _, slot := range s.scanOrder {
				c := &s.comp[slot]
				cache := s.cache[slot][:]

				for by := 0; by < c.ssY; by++ {
					for bx := 0; bx < c.ssX; bx++ {
						s.decodeBlock(c)
						dequantize(&s.block, qts[slot], &s.coef)
						s.idct(&s.coef, cache, by*8*mcuCacheStride+bx*8, mcuCacheStride)
					}
				}
			}

			s.composeMCU(mx, my)
		}
	}

	if left := s.br.remaining(); left >= 8 {
		s.log.Debug("unused scan data", zap.Int("bits", left))
	}

	return nil
}
