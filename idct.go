package jpegdec

import (
	"math"
)

// Inverse Discrete Cosine Transform

// idctFunc transforms a dequantized natural-order block into an 8x8 sample block
// written to out at outOffset with the given stride.
type idctFunc func(coef *[64]float32, out []byte, outOffset, stride int)

// idctFor dispatches on the configured method.
func idctFor(m IDCTMethod) idctFunc {
	switch m {
	case ReferenceIDCT:
		return idctReference
	default:
		return idctFast
	}
}

// levelShift maps a transform output to a sample: +128, rounded, clamped to [0, 255].
// It is the only place samples saturate.
func levelShift(v float64) byte {
	return clip(int32(math.Floor(v + 128.5)))
}

// clip clamps an int32 value to the valid 8-bit pixel range [0, 255].
func clip(x int32) byte {
	if x < 0 {
		return 0
	}

	if x > 255 {
		return 255
	}

	return byte(x)
}

// AAN butterfly constants.
const (
	sqrt2   = 1.414213562
	c2x2c6  = 1.847759065 // 2*cos(2*pi/16)
	c2x2m6  = 1.082392200 // 2*(cos(2*pi/16) - cos(6*pi/16))
	cm2x2p6 = 2.613125930 // 2*(cos(2*pi/16) + cos(6*pi/16))
)

// idct1D runs the AAN 1-D inverse transform over 8 values spaced step apart in in,
// writing 8 values spaced step apart into out.
func idct1D(in []float32, out []float32, step int) {
	// Even part.
	t0 := in[0]
	t1 := in[2*step]
	t2 := in[4*step]
	t3 := in[6*step]

	t10 := t0 + t2
	t11 := t0 - t2
	t13 := t1 + t3
	t12 := (t1-t3)*sqrt2 - t13

	t0 = t10 + t13
	t3 = t10 - t13
	t1 = t11 + t12
	t2 = t11 - t12

	// Odd part.
	t4 := in[1*step]
	t5 := in[3*step]
	t6 := in[5*step]
	t7 := in[7*step]

	z13 := t6 + t5
	z10 := t6 - t5
	z11 := t4 + t7
	z12 := t4 - t7

	t7 = z11 + z13
	t11 = (z11 - z13) * sqrt2

	z5 := (z10 + z12) * c2x2c6
	t10 = c2x2m6*z12 - z5
	t12 = -cm2x2p6*z10 + z5

	t6 = t12 - t7
	t5 = t11 - t6
	t4 = t10 + t5

	out[0] = t0 + t7
	out[7*step] = t0 - t7
	out[1*step] = t1 + t6
	out[6*step] = t1 - t6
	out[2*step] = t2 + t5
	out[5*step] = t2 - t5
	out[4*step] = t3 + t4
	out[3*step] = t3 - t4
}

// idctFast is the separable AAN transform. coef must have been dequantized with
// tables pre-scaled by aanScale; the result carries an extra factor of 8.
func idctFast(coef *[64]float32, out []byte, outOffset, stride int) {
	var ws [64]float32

	// Row pass.
	for y := 0; y < 64; y += 8 {
		row := coef[y : y+8 : y+8]

		if row[1] == 0 && row[2] == 0 && row[3] == 0 && row[4] == 0 &&
			row[5] == 0 && row[6] == 0 && row[7] == 0 {
			dc := row[0]
			ws[y+0] = dc
			ws[y+1] = dc
			ws[y+2] = dc
			ws[y+3] = dc
			ws[y+4] = dc
			ws[y+5] = dc
			ws[y+6] = dc
			ws[y+7] = dc

			continue
		}

		idct1D(row, ws[y:y+8], 1)
	}

	// Column pass.
	var col [64]float32
	for x := 0; x < 8; x++ {
		idct1D(ws[x:], col[x:], 8)
	}

	// Hint BCE. We access up to index 7*stride+7.
	out = out[outOffset:]
	_ = out[7*stride+7]

	for y := 0; y < 8; y++ {
		o := out[y*stride : y*stride+8]
		c := col[y*8 : y*8+8]

		for x := range o {
			o[x] = levelShift(float64(c[x]) / 8)
		}
	}
}

// cosTable[x][u] = cos((2x+1) * u * pi / 16).
var cosTable = func() (t [8][8]float64) {
	for x := 0; x < 8; x++ {
		for u := 0; u < 8; u++ {
			t[x][u] = math.Cos(float64(2*x+1) * float64(u) * math.Pi / 16)
		}
	}

	return t
}()

// idctReference evaluates the 2-D inverse DCT directly:
//
//	f(x,y) = 1/4 * sum_u sum_v C(u) C(v) F(u,v) cos((2x+1)u*pi/16) cos((2y+1)v*pi/16)
//
// with C(0) = 1/sqrt(2) and C(k) = 1 otherwise. coef must be dequantized with unscaled tables.
func idctReference(coef *[64]float32, out []byte, outOffset, stride int) {
	out = out[outOffset:]
	_ = out[7*stride+7]

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			var sum float64

			for v := 0; v < 8; v++ {
				kv := 1.0
				if v == 0 {
					kv = 1 / math.Sqrt2
				}

				for u := 0; u < 8; u++ {
					ku := 1.0
					if u == 0 {
						ku = 1 / math.Sqrt2
					}

					sum += ku * kv * float64(coef[v*8+u]) * cosTable[x][u] * cosTable[y][v]
				}
			}

			out[y*stride+x] = levelShift(sum / 4)
		}
	}
}
