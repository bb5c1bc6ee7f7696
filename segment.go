package jpegdec

import (
	"fmt"

	"github.com/pkg/errors"
)

// Marker codes (the byte following 0xFF).
const (
	markerSOF0  = 0xC0
	markerSOF1  = 0xC1
	markerDHT   = 0xC4
	markerJPG   = 0xC8
	markerDAC   = 0xCC
	markerSOF15 = 0xCF
	markerRST0  = 0xD0
	markerRST7  = 0xD7
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerDQT   = 0xDB
	markerDNL   = 0xDC
	markerDRI   = 0xDD
	markerAPP0  = 0xE0
	markerAPP15 = 0xEF
	markerCOM   = 0xFE
	markerTEM   = 0x01
)

// segment is one marker and the bounds of its payload in the input.
// For markers without a length field start == end.
type segment struct {
	marker     byte
	offset     int // Position of the 0xFF prefix.
	start, end int // Payload bounds, excluding the length field.
}

// size returns the payload length.
func (s segment) size() int {
	return s.end - s.start
}

// standalone reports whether a marker carries no length field.
func standalone(m byte) bool {
	return m == markerSOI || m == markerEOI || m == markerTEM || (m >= markerRST0 && m <= markerRST7)
}

// markerName returns a human-readable name for logs and errors.
func markerName(m byte) string {
	switch {
	case m == markerSOF0:
		return "SOF0"
	case m == markerDHT:
		return "DHT"
	case m == markerDAC:
		return "DAC"
	case m == markerJPG:
		return "JPG"
	case m >= markerSOF1 && m <= markerSOF15:
		return fmt.Sprintf("SOF%d", m-markerSOF0)
	case m >= markerRST0 && m <= markerRST7:
		return fmt.Sprintf("RST%d", m-markerRST0)
	case m == markerSOI:
		return "SOI"
	case m == markerEOI:
		return "EOI"
	case m == markerSOS:
		return "SOS"
	case m == markerDQT:
		return "DQT"
	case m == markerDNL:
		return "DNL"
	case m == markerDRI:
		return "DRI"
	case m >= markerAPP0 && m <= markerAPP15:
		return fmt.Sprintf("APP%d", m-markerAPP0)
	case m == markerCOM:
		return "COM"
	default:
		return fmt.Sprintf("0x%02X", m)
	}
}

// scanner walks a JPEG byte stream segment by segment.
// It never writes to data.
type scanner struct {
	data []byte
	pos  int
}

// next returns the segment starting at the current position and advances past it.
func (sc *scanner) next() (segment, error) {
	data := sc.data
	if sc.pos >= len(data) {
		return segment{}, errors.Wrap(ErrUnexpectedEndOfStream, "no more segments")
	}

	if data[sc.pos] != 0xFF {
		return segment{}, errors.Wrapf(ErrMalformedSegment, "expected marker at offset %d, found 0x%02X", sc.pos, data[sc.pos])
	}

	// Any number of 0xFF fill bytes may precede a marker.
	for sc.pos+1 < len(data) && data[sc.pos+1] == 0xFF {
		sc.pos++
	}

	if sc.pos+1 >= len(data) {
		return segment{}, errors.Wrapf(ErrUnexpectedEndOfStream, "truncated marker at offset %d", sc.pos)
	}

	seg := segment{marker: data[sc.pos+1], offset: sc.pos}
	if seg.marker == 0 {
		return segment{}, errors.Wrapf(ErrMalformedSegment, "stuffed zero outside scan at offset %d", sc.pos)
	}

	if standalone(seg.marker) {
		sc.pos += 2
		seg.start, seg.end = sc.pos, sc.pos

		return seg, nil
	}

	if sc.pos+4 > len(data) {
		return segment{}, errors.Wrapf(ErrUnexpectedEndOfStream, "%s length field truncated", markerName(seg.marker))
	}

	// The length covers itself but not the marker.
	length := int(data[sc.pos+2])<<8 | int(data[sc.pos+3])
	if length < 2 {
		return segment{}, errors.Wrapf(ErrMalformedSegment, "%s length %d", markerName(seg.marker), length)
	}

	seg.start = sc.pos + 4
	seg.end = sc.pos + 2 + length
	if seg.end > len(data) {
		return segment{}, errors.Wrapf(ErrUnexpectedEndOfStream, "%s payload of %d bytes runs past end of stream",
			markerName(seg.marker), length-2)
	}

	sc.pos = seg.end

	return seg, nil
}

// entropySegment copies the entropy-coded data starting at start into a new buffer,
// replacing each stuffed 0xFF 0x00 pair with 0xFF. It stops at the first 0xFF followed
// by a non-zero byte, which becomes the scanner's resume position.
func (sc *scanner) entropySegment(start int) ([]byte, error) {
	data := sc.data
	out := make([]byte, 0, len(data)-start)

	for i := start; i < len(data); {
		b := data[i]
		if b != 0xFF {
			out = append(out, b)
			i++

			continue
		}

		if i+1 >= len(data) {
			break
		}

		if data[i+1] != 0x00 {
			sc.pos = i

			return out, nil
		}

		out = append(out, 0xFF)
		i += 2
	}

	return nil, errors.Wrap(ErrUnexpectedEndOfStream, "reached end of stream while scanning SOS segment")
}

// decodeState is a state of the marker state machine.
type decodeState int

const (
	stateInvalid decodeState = iota // Sentinel for forbidden transitions.
	stateStart                      // Expecting SOI.
	stateHeader                     // Tables and metadata before the frame header.
	stateFrame                      // Frame header seen; waiting for the scan.
	stateDone                       // Scan decoded.
	numStates
)

func (s decodeState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateHeader:
		return "header"
	case stateFrame:
		return "frame"
	case stateDone:
		return "done"
	default:
		return "invalid"
	}
}

// markerClass groups markers that drive identical transitions.
type markerClass int

const (
	classOther       markerClass = iota // Unknown markers, skipped.
	classSOI                            // Start of image.
	classTables                         // DQT, DHT, DRI.
	classFrame                          // SOF0.
	classScan                           // SOS.
	classEOI                            // End of image.
	classSkip                           // APPn and COM, ignored.
	classUnsupported                    // Other frame types, arithmetic coding, DNL.
	numClasses
)

// classify maps a marker code to its class.
func classify(m byte) markerClass {
	switch {
	case m == markerSOI:
		return classSOI
	case m == markerDQT, m == markerDHT, m == markerDRI:
		return classTables
	case m == markerSOF0:
		return classFrame
	case m == markerSOS:
		return classScan
	case m == markerEOI:
		return classEOI
	case m >= markerAPP0 && m <= markerAPP15, m == markerCOM:
		return classSkip
	case m >= markerSOF1 && m <= markerSOF15 && m != markerJPG, m == markerDNL:
		return classUnsupported
	default:
		return classOther
	}
}

// transitions is the marker state machine. Missing entries are stateInvalid.
var transitions = [numStates][numClasses]decodeState{
	stateStart: {
		classSOI: stateHeader,
	},
	stateHeader: {
		classOther:  stateHeader,
		classTables: stateHeader,
		classFrame:  stateFrame,
		classSkip:   stateHeader,
	},
	stateFrame: {
		classOther:  stateFrame,
		classTables: stateFrame,
		classScan:   stateDone,
		classSkip:   stateFrame,
	},
}

// transition returns the state reached from s on marker m, or an error describing
// why the marker is not allowed there.
func transition(s decodeState, m byte) (decodeState, error) {
	class := classify(m)
	if next := transitions[s][class]; next != stateInvalid {
		return next, nil
	}

	switch {
	case s == stateStart:
		return stateInvalid, errors.Wrapf(ErrNoJPEG, "stream starts with %s", markerName(m))
	case class == classUnsupported:
		return stateInvalid, errors.Wrapf(ErrUnsupported, "%s is not a baseline sequential frame", markerName(m))
	case class == classEOI:
		return stateInvalid, errors.Wrapf(ErrMalformedSegment, "EOI in %s state before any scan", s)
	default:
		return stateInvalid, errors.Wrapf(ErrMalformedSegment, "%s not allowed in %s state", markerName(m), s)
	}
}
