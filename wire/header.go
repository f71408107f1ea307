// Package wire parses SeedLink packet headers: the legacy 8-byte v3
// header (including its INFO variant) and the 17-byte v4 header.
//
// Parsing is pure: given a byte slice it either returns a populated
// Header or an error. It never reads from a socket and never
// resynchronizes on a bad magic — a framing error is unrecoverable for
// the caller, per the protocol.
package wire

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Sizes of the two fixed header forms.
const (
	V3HeaderSize = 8
	V4HeaderSize = 17

	maxStationIDLen = 21
)

// Errors returned by Parse. These are sentinel categories, matched with
// errors.Is, in the style of the teacher's ErrNotType20/ErrParseFailed.
var (
	ErrShortHeader  = errors.New("wire: not enough bytes for a header")
	ErrBadMagic     = errors.New("wire: unrecognized header magic")
	ErrBadSequence  = errors.New("wire: v3 sequence is not hex")
	ErrStationIDLen = errors.New("wire: v4 station-id length out of range")
	// ErrControlToken is not a parse failure and Parse never returns it:
	// it names the case where the bytes at the header boundary are an
	// in-band "END" or "ERROR" token (see DetectControlToken) rather than
	// a binary header.
	ErrControlToken = errors.New("wire: in-band control token")
)

// PayloadFormat enumerates the payload encodings the core recognizes.
type PayloadFormat uint8

const (
	FormatUnknown PayloadFormat = iota
	FormatMSEED2
	FormatMSEED3
	FormatMSEED2Info
	FormatMSEED2InfoTerm
	FormatJSON
	FormatXML
)

func (f PayloadFormat) String() string {
	switch f {
	case FormatMSEED2:
		return "MSEED2"
	case FormatMSEED3:
		return "MSEED3"
	case FormatMSEED2Info:
		return "MSEED2Info"
	case FormatMSEED2InfoTerm:
		return "MSEED2InfoTerm"
	case FormatJSON:
		return "JSON"
	case FormatXML:
		return "XML"
	default:
		return "Unknown"
	}
}

// Proto identifies which wire version a header was parsed as.
type Proto uint8

const (
	ProtoV3 Proto = iota
	ProtoV4
)

// Header is the parsed representation of one packet frame header. For
// v3 data headers, PayloadLen/PayloadFormat are left at their zero
// value: they are unknown until the Payload Detector inspects the
// payload itself.
type Header struct {
	Proto             Proto
	Seq               uint64
	PayloadFormat     PayloadFormat
	PayloadSubformat  byte
	PayloadLen        uint32 // 0 means "unknown" for v3 data headers
	StationIDLen      uint8  // v4 only
	IsInfo            bool   // v3 INFO header
	InfoTerminator    bool   // v3 INFO header: '*' marks last chunk
	HasPayloadLen     bool   // true for v4, and for v3 once detected
}

// ControlToken identifies the in-band ASCII tokens that may appear at a
// header boundary instead of a binary header.
type ControlToken int

const (
	NoToken ControlToken = iota
	TokenEND
	TokenERROR
)

// DetectControlToken inspects the start of buf for the literal ASCII
// bytes "END" or "ERROR". It never confuses these with a v3 header
// because both "SL" and "SLINFO" are disjoint prefixes from "END" and
// "ERROR".
func DetectControlToken(buf []byte) ControlToken {
	switch {
	case len(buf) >= 3 && string(buf[:3]) == "END":
		return TokenEND
	case len(buf) >= 5 && string(buf[:5]) == "ERROR":
		return TokenERROR
	default:
		return NoToken
	}
}

// Needed returns how many bytes of buf are required before Parse can
// run, given the first two bytes already available (the magic). It
// returns 0 if the magic itself hasn't arrived yet.
func Needed(buf []byte) int {
	if len(buf) < 2 {
		return 0
	}
	switch string(buf[:2]) {
	case "SE":
		return V4HeaderSize
	case "SL":
		if len(buf) >= 6 && string(buf[2:6]) == "INFO" {
			return V3HeaderSize
		}
		return V3HeaderSize
	default:
		return 0
	}
}

// Parse parses one header from the front of buf. buf must contain at
// least Needed(buf) bytes (call Needed first). On success it also
// returns the number of header bytes consumed (8 or 17); the caller
// must additionally consume Header.StationIDLen bytes for a v4 station
// ID before the payload begins.
func Parse(buf []byte) (Header, int, error) {
	if len(buf) < 2 {
		return Header{}, 0, ErrShortHeader
	}

	switch string(buf[:2]) {
	case "SE":
		return parseV4(buf)
	case "SL":
		return parseV3(buf)
	default:
		return Header{}, 0, fmt.Errorf("%w: %q", ErrBadMagic, buf[:2])
	}
}

func parseV4(buf []byte) (Header, int, error) {
	if len(buf) < V4HeaderSize {
		return Header{}, 0, ErrShortHeader
	}
	h := Header{
		Proto:            ProtoV4,
		PayloadFormat:    PayloadFormat(buf[2]),
		PayloadSubformat: buf[3],
		PayloadLen:       binary.LittleEndian.Uint32(buf[4:8]),
		Seq:              binary.LittleEndian.Uint64(buf[8:16]),
		StationIDLen:     buf[16],
		HasPayloadLen:    true,
	}
	if h.StationIDLen > maxStationIDLen {
		return Header{}, 0, fmt.Errorf("%w: %d", ErrStationIDLen, h.StationIDLen)
	}
	return h, V4HeaderSize, nil
}

func parseV3(buf []byte) (Header, int, error) {
	if len(buf) < V3HeaderSize {
		return Header{}, 0, ErrShortHeader
	}
	if string(buf[2:6]) == "INFO" {
		h := Header{
			Proto:          ProtoV3,
			IsInfo:         true,
			InfoTerminator: buf[7] == '*',
			PayloadFormat:  FormatMSEED2Info,
		}
		if h.InfoTerminator {
			h.PayloadFormat = FormatMSEED2InfoTerm
		}
		return h, V3HeaderSize, nil
	}

	seqBytes := buf[2:8]
	seq, err := hex.DecodeString(string(seqBytes))
	if err != nil || len(seq) != 3 {
		return Header{}, 0, fmt.Errorf("%w: %q", ErrBadSequence, seqBytes)
	}
	h := Header{
		Proto: ProtoV3,
		Seq:   uint64(seq[0])<<16 | uint64(seq[1])<<8 | uint64(seq[2]),
	}
	return h, V3HeaderSize, nil
}
