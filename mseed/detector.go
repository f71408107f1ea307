// Package mseed implements the v3 Payload Detector: given a prefix of a
// miniSEED record, it infers the record's payload format and total
// length. This is only needed for protocol v3, where neither is carried
// in the SeedLink frame header itself.
//
// The blockette-chain walk below is the direct generalization of
// route-attribute walking in netlink-style protocols: a chain of
// length/type-prefixed entries, advanced by an explicit offset field,
// bounds-checked so a malformed or adversarial chain can never walk
// backwards or loop forever.
package mseed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/iris-edu/goslink/wire"
)

// MinPrefix is the minimum number of payload bytes the detector needs
// before it can reach a verdict.
const MinPrefix = 64

// MaxProbeLen bounds how far the next-header probe grows the prefix
// before giving up; no real miniSEED2 record both omits blockette 1000
// and exceeds this length before its successor header appears.
const MaxProbeLen = 4096

// Errors returned by Detect.
var (
	ErrShortPrefix    = errors.New("mseed: prefix shorter than MinPrefix")
	ErrNotMiniSEED    = errors.New("mseed: payload is not a recognizable miniSEED record")
	ErrBlocketteChain = errors.New("mseed: blockette chain does not advance monotonically")
	// ErrIndeterminate means the record has no blockette 1000 and the
	// next-header probe found nothing within the supplied prefix; the
	// caller should grow the prefix (up to MaxProbeLen) and retry rather
	// than treat this as a definitive zero-length record.
	ErrIndeterminate = errors.New("mseed: record length not yet determinable from prefix")
)

// miniSEED2 fixed-header field offsets.
const (
	ms2OffYear        = 20
	ms2OffDayOfYear   = 22
	ms2OffNumBlkt     = 39
	ms2OffFirstBlkt   = 46
	ms2FixedHeaderLen = 48
)

// miniSEED3 fixed-header field offsets.
const (
	ms3OffSIDLen    = 33
	ms3OffExtraLen  = 34
	ms3OffDataLen   = 36
	ms3FixedHeaderLen = 40
)

// Detect examines prefix (at least MinPrefix bytes of a record) and
// returns the payload format and total record length.
func Detect(prefix []byte) (wire.PayloadFormat, uint32, error) {
	if len(prefix) < MinPrefix {
		return wire.FormatUnknown, 0, ErrShortPrefix
	}

	if isMiniSEED3(prefix) {
		sidLen := uint32(prefix[ms3OffSIDLen])
		extraLen := uint32(binary.LittleEndian.Uint16(prefix[ms3OffExtraLen : ms3OffExtraLen+2]))
		dataLen := binary.LittleEndian.Uint32(prefix[ms3OffDataLen : ms3OffDataLen+4])
		length := uint32(ms3FixedHeaderLen) + sidLen + extraLen + dataLen
		return wire.FormatMSEED3, length, nil
	}

	if order, ok := miniSEED2ByteOrder(prefix); ok {
		length, err := scanBlockettes(prefix, order)
		if err != nil {
			return wire.FormatUnknown, 0, err
		}
		if length == 0 {
			length, found := probeNextHeader(prefix, order)
			if !found {
				if len(prefix) >= MaxProbeLen {
					return wire.FormatUnknown, 0, fmt.Errorf("%w: no successor header within %d bytes", ErrNotMiniSEED, MaxProbeLen)
				}
				return wire.FormatMSEED2, 0, ErrIndeterminate
			}
			return wire.FormatMSEED2, length, nil
		}
		return wire.FormatMSEED2, length, nil
	}

	return wire.FormatUnknown, 0, ErrNotMiniSEED
}

// StationID extracts the NET_STA identifier from a record prefix
// already identified as format. It backfills the Receive Pipeline's
// station id for v3 packets, which carry no station id in their frame
// header. ok is false if the prefix is too short or format is not a
// miniSEED variant.
func StationID(prefix []byte, format wire.PayloadFormat) (id string, ok bool) {
	switch format {
	case wire.FormatMSEED2, wire.FormatMSEED2Info, wire.FormatMSEED2InfoTerm:
		if len(prefix) < ms2FixedHeaderLen {
			return "", false
		}
		sta := strings.TrimSpace(string(prefix[8:13]))
		net := strings.TrimSpace(string(prefix[18:20]))
		if sta == "" {
			return "", false
		}
		return net + "_" + sta, true
	case wire.FormatMSEED3:
		if len(prefix) < ms3FixedHeaderLen {
			return "", false
		}
		sidLen := int(prefix[ms3OffSIDLen])
		if len(prefix) < ms3FixedHeaderLen+sidLen {
			return "", false
		}
		sid := string(prefix[ms3FixedHeaderLen : ms3FixedHeaderLen+sidLen])
		sid = strings.TrimPrefix(sid, "FDSN:")
		parts := strings.SplitN(sid, "_", 3)
		if len(parts) < 2 {
			return "", false
		}
		return parts[0] + "_" + parts[1], true
	default:
		return "", false
	}
}

func isMiniSEED3(prefix []byte) bool {
	return len(prefix) >= 3 && prefix[0] == 'M' && prefix[1] == 'S' && prefix[2] == 3
}

// miniSEED2ByteOrder applies the year/day-of-year sanity check in both
// byte orders and returns whichever yields a plausible date.
func miniSEED2ByteOrder(prefix []byte) (binary.ByteOrder, bool) {
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		year := order.Uint16(prefix[ms2OffYear : ms2OffYear+2])
		doy := order.Uint16(prefix[ms2OffDayOfYear : ms2OffDayOfYear+2])
		if year >= 1900 && year <= 2100 && doy >= 1 && doy <= 366 {
			return order, true
		}
	}
	return nil, false
}

// scanBlockettes walks the blockette chain starting at the record's
// first-blockette offset, stopping at blockette type 1000 (which
// carries the definitive record length as 1<<exponent) or at the end
// of the chain (next_offset == 0), in which case length is reported as
// 0 to signal "unknown, fall back to probing".
func scanBlockettes(prefix []byte, order binary.ByteOrder) (uint32, error) {
	numBlkt := prefix[ms2OffNumBlkt]
	next := int(order.Uint16(prefix[ms2OffFirstBlkt : ms2OffFirstBlkt+2]))
	if numBlkt == 0 || next == 0 {
		return 0, nil
	}

	seen := 0
	minNext := next
	for next != 0 {
		seen++
		if seen > 64 {
			return 0, ErrBlocketteChain
		}
		if next < minNext || next+4 > len(prefix) {
			return 0, ErrBlocketteChain
		}
		minNext = next + 4 // a following offset may never point backwards or into this entry's own header

		blktType := order.Uint16(prefix[next : next+2])
		blktNext := int(order.Uint16(prefix[next+2 : next+4]))

		if blktType == 1000 {
			if next+7 > len(prefix) {
				return 0, ErrBlocketteChain
			}
			exponent := prefix[next+6]
			return uint32(1) << exponent, nil
		}

		if blktNext != 0 && blktNext <= next+4 {
			return 0, ErrBlocketteChain
		}
		next = blktNext
	}
	return 0, nil
}

// probeNextHeader is used when the blockette chain terminates without a
// 1000-blockette: it looks for a plausible fixed-section header at
// successive 64-byte-aligned offsets and, on the first match, reports
// the offset as the current record's length. found is false if no
// probe offset matched within the supplied prefix; the caller must
// accumulate more bytes and retry with a larger prefix.
func probeNextHeader(prefix []byte, order binary.ByteOrder) (length uint32, found bool) {
	for off := 64; off+ms2FixedHeaderLen <= len(prefix); off += 64 {
		year := order.Uint16(prefix[off+ms2OffYear : off+ms2OffYear+2])
		doy := order.Uint16(prefix[off+ms2OffDayOfYear : off+ms2OffDayOfYear+2])
		if year >= 1900 && year <= 2100 && doy >= 1 && doy <= 366 {
			return uint32(off), true
		}
	}
	return 0, false
}
