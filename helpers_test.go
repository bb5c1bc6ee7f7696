package jpegdec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math/bits"
	"testing"
)

// Tolerances against the standard library decoder, whose IDCT and colour conversion
// are integer approximations.
const (
	grayTolerance  = 3
	colorTolerance = 6
)

// isClose checks if two color component values are within the allowed tolerance.
func isClose(a, b, tol uint8) bool {
	if a > b {
		return a-b <= tol
	}

	return b-a <= tol
}

// gradient returns a smooth colour image that survives JPEG compression well.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(255 * x / max(1, w-1)),
				G: uint8(255 * y / max(1, h-1)),
				B: uint8(128 + 64*(x+y)/max(1, w+h-2)),
				A: 255,
			})
		}
	}

	return img
}

// grayGradient returns a smooth grayscale image.
func grayGradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(40 + 160*(x+y)/max(1, w+h-2))})
		}
	}

	return img
}

// encodeJPEG encodes img with the standard library. Colour images come out as
// 4:2:0 with component ids 1, 2 and 3; grayscale images have a single component.
func encodeJPEG(tb testing.TB, img image.Image, quality int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		tb.Fatalf("jpeg.Encode failed: %v", err)
	}

	return buf.Bytes()
}

// compareWithStdlib checks every visible pixel of got against image/jpeg's decoding of data.
func compareWithStdlib(t *testing.T, data []byte, got *Raster, tol uint8) {
	t.Helper()

	ref, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("std jpeg.Decode failed: %v", err)
	}

	if got.Bounds() != ref.Bounds() {
		t.Fatalf("Bounds mismatch: got %v, want %v", got.Bounds(), ref.Bounds())
	}

	bad := 0
	for y := 0; y < got.Height; y++ {
		for x := 0; x < got.Width; x++ {
			want := color.RGBAModel.Convert(ref.At(x, y)).(color.RGBA)
			r, g, b := got.RGBAt(x, y)

			if !isClose(r, want.R, tol) || !isClose(g, want.G, tol) || !isClose(b, want.B, tol) {
				if bad < 5 {
					t.Errorf("Pixel at (%d, %d) - got RGB(%d, %d, %d), want close to RGB(%d, %d, %d)",
						x, y, r, g, b, want.R, want.G, want.B)
				}
				bad++
			}
		}
	}

	if bad > 0 {
		t.Fatalf("%d pixels outside tolerance %d", bad, tol)
	}
}

// huffSpec is a DHT table definition used to build test streams.
type huffSpec struct {
	counts  [16]uint8
	symbols []byte
}

// Small tables used by hand-built streams: every DC category has a 4-bit code,
// and the AC table holds EOB, ZRL and a few (run, size) symbols as 3-bit codes.
var (
	testDCSpec = huffSpec{
		counts:  [16]uint8{3: 12},
		symbols: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	}
	testACSpec = huffSpec{
		counts:  [16]uint8{2: 5},
		symbols: []byte{0x00, 0x01, 0x02, 0x11, 0xF0},
	}
)

// code returns the canonical code and its length for sym.
func (h huffSpec) code(sym byte) (code, length int) {
	k := 0
	for l := 1; l <= 16; l++ {
		for i := 0; i < int(h.counts[l-1]); i++ {
			if h.symbols[k] == sym {
				return code, l
			}

			code++
			k++
		}
		code <<= 1
	}

	panic("symbol not in table")
}

// payload returns the DHT payload defining h as table (class, id).
func (h huffSpec) payload(class, id byte) []byte {
	p := []byte{class<<4 | id}
	p = append(p, h.counts[:]...)

	return append(p, h.symbols...)
}

// bitWriter produces MSB-first entropy-coded data.
type bitWriter struct {
	buf []byte
	acc byte
	n   int
}

func (w *bitWriter) write(v, n int) {
	for i := n - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | byte(v>>i&1)
		w.n++

		if w.n == 8 {
			w.buf = append(w.buf, w.acc)
			w.acc, w.n = 0, 0
		}
	}
}

// magnitude returns the JPEG size category of v and its n-bit representation.
func magnitude(v int32) (size, raw int) {
	a := v
	if a < 0 {
		a = -a
	}

	size = bits.Len32(uint32(a))
	raw = int(v)
	if v < 0 {
		raw += 1<<size - 1
	}

	return size, raw
}

// dc writes a DC difference.
func (w *bitWriter) dc(h huffSpec, diff int32) {
	size, raw := magnitude(diff)
	w.write(h.code(byte(size)))
	w.write(raw, size)
}

// ac writes a non-zero AC coefficient preceded by run zeros.
func (w *bitWriter) ac(h huffSpec, run int, v int32) {
	size, raw := magnitude(v)
	w.write(h.code(byte(run<<4 | size)))
	w.write(raw, size)
}

// symbol writes a bare Huffman symbol such as EOB (0x00) or ZRL (0xF0).
func (w *bitWriter) symbol(h huffSpec, sym byte) {
	w.write(h.code(sym))
}

// bytes pads the last byte with 1-bits and returns the data without byte stuffing.
func (w *bitWriter) bytes() []byte {
	out := append([]byte(nil), w.buf...)
	if w.n > 0 {
		out = append(out, w.acc<<(8-w.n)|(1<<(8-w.n)-1))
	}

	return out
}

// stuff inserts a zero byte after every 0xFF.
func stuff(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = append(out, b)
		if b == 0xFF {
			out = append(out, 0x00)
		}
	}

	return out
}

// seg encodes a marker segment with a length field.
func seg(marker byte, payload ...byte) []byte {
	n := len(payload) + 2

	return append([]byte{0xFF, marker, byte(n >> 8), byte(n)}, payload...)
}

// flatDQT returns a DQT payload defining table id with every entry q.
func flatDQT(id, q byte) []byte {
	p := []byte{id}
	for i := 0; i < 64; i++ {
		p = append(p, q)
	}

	return p
}

// testComp is a frame component: id, sampling factors (H<<4|V) and table selector.
type testComp struct {
	id, sampling, tq byte
}

func sof0(w, h int, comps ...testComp) []byte {
	p := []byte{8, byte(h >> 8), byte(h), byte(w >> 8), byte(w), byte(len(comps))}
	for _, c := range comps {
		p = append(p, c.id, c.sampling, c.tq)
	}

	return seg(markerSOF0, p...)
}

// sos returns a baseline SOS segment using Huffman tables 0 for every listed component.
func sos(ids ...byte) []byte {
	p := []byte{byte(len(ids))}
	for _, id := range ids {
		p = append(p, id, 0x00)
	}

	return seg(markerSOS, append(p, 0, 63, 0)...)
}

// buildStream assembles a complete JPEG around the given entropy-coded data:
// unit quantization tables, the test Huffman tables and the frame components.
func buildStream(w, h int, comps []testComp, entropy []byte) []byte {
	ids := make([]byte, 0, len(comps))
	for _, c := range comps {
		ids = append(ids, c.id)
	}

	var out []byte
	out = append(out, 0xFF, markerSOI)
	out = append(out, seg(markerDQT, flatDQT(0, 1)...)...)
	out = append(out, sof0(w, h, comps...)...)
	out = append(out, seg(markerDHT, append(testDCSpec.payload(0, 0), testACSpec.payload(1, 0)...)...)...)
	out = append(out, sos(ids...)...)
	out = append(out, stuff(entropy)...)

	return append(out, 0xFF, markerEOI)
}

var grayComp = []testComp{{id: 1, sampling: 0x11}}

var comps444 = []testComp{{id: 1, sampling: 0x11}, {id: 2, sampling: 0x11}, {id: 3, sampling: 0x11}}

var comps420 = []testComp{{id: 1, sampling: 0x22}, {id: 2, sampling: 0x11}, {id: 3, sampling: 0x11}}
