package jpegdec

import (
	"testing"

	"github.com/pkg/errors"
)

func TestBuildHuffTableCanonical(t *testing.T) {
	h, err := buildHuffTable(&testACSpec.counts, testACSpec.symbols)
	if err != nil {
		t.Fatalf("buildHuffTable failed: %v", err)
	}

	for _, sym := range testACSpec.symbols {
		code, length := testACSpec.code(sym)
		idx := code << (maxCodeLength - length)

		e := h.lookup[idx]
		if int(e.bits) != length || e.code != sym {
			t.Errorf("lookup[0x%04X] = {%d, 0x%02X}, want {%d, 0x%02X}", idx, e.bits, e.code, length, sym)
		}

		// Every pattern sharing the prefix decodes to the same symbol.
		last := idx | (1<<(maxCodeLength-length) - 1)
		if h.lookup[last] != e || !h.valid(last) {
			t.Errorf("lookup[0x%04X] = %+v, want %+v", last, h.lookup[last], e)
		}
	}

	if h.limit != 5<<13 {
		t.Errorf("limit = 0x%X, want 0x%X", h.limit, 5<<13)
	}
}

func TestBuildHuffTableSingleCode(t *testing.T) {
	counts := [maxCodeLength]uint8{1}

	h, err := buildHuffTable(&counts, []byte{0})
	if err != nil {
		t.Fatalf("buildHuffTable failed: %v", err)
	}

	// Every input with a leading 0 bit decodes to symbol 0 with length 1.
	for idx := 0; idx < lookupSize/2; idx++ {
		if e := h.lookup[idx]; e.bits != 1 || e.code != 0 || !h.valid(idx) {
			t.Fatalf("lookup[0x%04X] = %+v, want {1, 0}", idx, e)
		}
	}

	// The remainder repeats the last code but is not a valid code.
	if e := h.lookup[lookupSize-1]; e.bits != 1 || e.code != 0 {
		t.Errorf("fill entry = %+v, want {1, 0}", e)
	}

	if h.valid(lookupSize / 2) {
		t.Error("pattern 1xxx... should be invalid")
	}
}

func TestBuildHuffTableErrors(t *testing.T) {
	tests := []struct {
		name    string
		counts  [maxCodeLength]uint8
		symbols []byte
	}{
		{"Oversubscribed", [maxCodeLength]uint8{3}, []byte{1, 2, 3}},
		{"MoreCodesThanSymbols", [maxCodeLength]uint8{0, 2}, []byte{1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := buildHuffTable(&tc.counts, tc.symbols); !errors.Is(err, ErrMalformedSegment) {
				t.Fatalf("expected ErrMalformedSegment, got %v", err)
			}
		})
	}
}

func TestParseDHTMultipleTables(t *testing.T) {
	var p []byte
	p = append(p, testDCSpec.payload(0, 1)...)
	p = append(p, testACSpec.payload(1, 1)...)

	var tabs [4]*huffTable
	if err := parseDHT(p, &tabs); err != nil {
		t.Fatalf("parseDHT failed: %v", err)
	}

	for slot, want := range []bool{false, true, false, true} {
		if (tabs[slot] != nil) != want {
			t.Errorf("slot %d defined = %v, want %v", slot, tabs[slot] != nil, want)
		}
	}

	if huffSlot(classDC, 1) != 1 || huffSlot(classAC, 1) != 3 {
		t.Error("unexpected slot layout")
	}
}

func TestParseDHTErrors(t *testing.T) {
	tests := []struct {
		name string
		p    []byte
	}{
		{"ShortHeader", []byte{0x00, 1, 2}},
		{"ID2", testDCSpec.payload(0, 2)},
		{"Class2", testDCSpec.payload(2, 0)},
		{"MissingSymbols", testDCSpec.payload(0, 0)[:25]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var tabs [4]*huffTable
			if err := parseDHT(tc.p, &tabs); !errors.Is(err, ErrMalformedSegment) {
				t.Fatalf("expected ErrMalformedSegment, got %v", err)
			}
		})
	}
}
