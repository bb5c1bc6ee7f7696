package jpegdec

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

// idctTestBlock is a set of DCT coefficients used as input for the test.
// This block has a single non-zero DC coefficient (512) and all AC coefficients are zero.
// The IDCT of such a block should result in a flat 8x8 block where every pixel has the same value.
var idctTestBlock = [64]int32{
	512, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

// idctTestPixels is the expected 8x8 pixel block output after applying the IDCT.
// This is calculated as (512 / 8) + 128 = 64 + 128 = 192.
var idctTestPixels = bytes.Repeat([]byte{192}, 64)

// idctTestBlockAC is a test block with non-zero AC coefficients to test the main transform logic.
var idctTestBlockAC = [64]int32{
	0, 20, 0, 0, 0, 0, 0, 0,
	-30, 0, 15, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

// idctTestPixelsAC is the expected output for idctTestBlockAC, evaluated from the
// direct cosine sum in double precision.
var idctTestPixelsAC = []byte{
	130, 127, 123, 120, 119, 119, 121, 123,
	130, 128, 124, 121, 120, 120, 122, 123,
	130, 129, 126, 124, 122, 122, 123, 124,
	131, 130, 129, 127, 126, 125, 124, 124,
	132, 132, 131, 130, 129, 127, 126, 125,
	132, 133, 134, 134, 132, 130, 127, 126,
	133, 134, 136, 136, 135, 132, 128, 126,
	133, 135, 137, 137, 136, 133, 129, 126,
}

// unitQuant returns a quantization table of ones, pre-scaled for the fast IDCT when prescale is set.
func unitQuant(prescale bool) *[64]float32 {
	q := quantStore{prescale: prescale}
	for i := range q.raw[0] {
		q.raw[0][i] = 1
	}
	q.derive(0)

	return &q.tables[0]
}

// idctHelper dequantizes block with unit tables and runs the selected IDCT into an 8x8 block.
func idctHelper(m IDCTMethod, block *[64]int32) []byte {
	var coef [64]float32
	dequantize(block, unitQuant(m == FastIDCT), &coef)

	out := make([]byte, 64)
	idctFor(m)(&coef, out, 0, 8)

	return out
}

// printBlock is a helper for formatting an 8x8 block for readable test output.
func printBlock(t *testing.T, block []byte) {
	var buf bytes.Buffer

	for i := 0; i < 64; i++ {
		if i > 0 && i%8 == 0 {
			buf.WriteString("\n")
		}

		buf.WriteString(fmt.Sprintf("%4d", block[i]))
	}

	t.Log("\n" + buf.String())
}

func checkBlock(t *testing.T, got, want []byte) {
	t.Helper()

	if !bytes.Equal(got, want) {
		t.Error("IDCT output mismatch")
		t.Log("Got pixels:")
		printBlock(t, got)
		t.Log("Want pixels:")
		printBlock(t, want)
	}
}

// TestIdctDC verifies both transforms for the DC-only case, which the fast
// transform handles with its constant-row shortcut.
func TestIdctDC(t *testing.T) {
	for _, m := range []IDCTMethod{FastIDCT, ReferenceIDCT} {
		t.Run(m.String(), func(t *testing.T) {
			block := idctTestBlock
			checkBlock(t, idctHelper(m, &block), idctTestPixels)
		})
	}
}

// TestIdctAC verifies both transforms for a general case with AC coefficients.
func TestIdctAC(t *testing.T) {
	for _, m := range []IDCTMethod{FastIDCT, ReferenceIDCT} {
		t.Run(m.String(), func(t *testing.T) {
			block := idctTestBlockAC
			checkBlock(t, idctHelper(m, &block), idctTestPixelsAC)
		})
	}
}

// TestIdctACStrided verifies the IDCT implementation for a case with a non-8 stride and offset.
func TestIdctACStrided(t *testing.T) {
	const stride, offset = 16, 3

	for _, m := range []IDCTMethod{FastIDCT, ReferenceIDCT} {
		t.Run(m.String(), func(t *testing.T) {
			block := idctTestBlockAC

			var coef [64]float32
			dequantize(&block, unitQuant(m == FastIDCT), &coef)

			out := bytes.Repeat([]byte{0xAA}, offset+7*stride+8+1)
			idctFor(m)(&coef, out, offset, stride)

			// De-stride the output for easier comparison printing
			gotFlat := make([]byte, 64)
			for r := 0; r < 8; r++ {
				copy(gotFlat[r*8:r*8+8], out[offset+r*stride:])
			}
			checkBlock(t, gotFlat, idctTestPixelsAC)

			// Bytes between rows and after the block must be untouched.
			if out[offset+8] != 0xAA || out[len(out)-1] != 0xAA || out[0] != 0xAA {
				t.Error("IDCT wrote outside the 8x8 block")
			}
		})
	}
}

// TestIdctSaturation checks that extreme DC values clamp to 0 and 255.
func TestIdctSaturation(t *testing.T) {
	for _, m := range []IDCTMethod{FastIDCT, ReferenceIDCT} {
		for _, tc := range []struct {
			dc   int32
			want byte
		}{{4000, 255}, {-4000, 0}} {
			var block [64]int32
			block[0] = tc.dc

			got := idctHelper(m, &block)
			if !bytes.Equal(got, bytes.Repeat([]byte{tc.want}, 64)) {
				t.Errorf("%s: DC %d not clamped to %d", m, tc.dc, tc.want)
			}
		}
	}
}

// TestIdctFastMatchesReference compares the two transforms on random blocks with
// realistic quantization.
func TestIdctFastMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	var raw [64]uint16
	for i := range raw {
		raw[i] = uint16(1 + (i/8+i%8)*3)
	}

	fastQ := quantStore{prescale: true, raw: [numQuantTables][64]uint16{raw}}
	fastQ.derive(0)

	refQ := quantStore{raw: [numQuantTables][64]uint16{raw}}
	refQ.derive(0)

	for n := 0; n < 500; n++ {
		var block [64]int32
		block[0] = int32(rng.Intn(129) - 64)
		for k := 1; k < 64; k++ {
			// Sparse, decaying AC terms as in real images.
			if rng.Intn(4) == 0 {
				block[zz[k]] = int32(rng.Intn(2*(64-k)/4+1) - (64-k)/4)
			}
		}

		var fc, rc [64]float32
		dequantize(&block, &fastQ.tables[0], &fc)
		dequantize(&block, &refQ.tables[0], &rc)

		var fast, ref [64]byte
		idctFast(&fc, fast[:], 0, 8)
		idctReference(&rc, ref[:], 0, 8)

		for i := range fast {
			if !isClose(fast[i], ref[i], 1) {
				t.Fatalf("block %d sample %d: fast %d, reference %d", n, i, fast[i], ref[i])
			}
		}
	}
}

// BenchmarkIdct measures the performance of the full 8x8 IDCT process.
func BenchmarkIdct(b *testing.B) {
	for _, m := range []IDCTMethod{FastIDCT, ReferenceIDCT} {
		b.Run(m.String(), func(b *testing.B) {
			// Use the AC test block as a representative input.
			block := idctTestBlockAC

			var coef [64]float32
			dequantize(&block, unitQuant(m == FastIDCT), &coef)

			f := idctFor(m)
			var out [64]byte

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				f(&coef, out[:], 0, 8)
			}
		})
	}
}
