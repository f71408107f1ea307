package slink

import (
	"errors"
	"fmt"

	"github.com/iris-edu/goslink/mseed"
	"github.com/iris-edu/goslink/wire"
)

// receiveStep advances the Header -> [StationId] -> Payload state
// machine by exactly one micro-step, consuming only what the ring
// buffer currently holds. progressed reports whether any bytes were
// consumed or any state transition fired, so the Connection Loop knows
// when to stop looping and wait for more transport data.
func (c *SLCD) receiveStep(dest []byte) (status Status, progressed bool, err error) {
	switch c.frame {
	case frameHeader:
		return c.stepHeader()
	case frameStationID:
		return c.stepStationID()
	case framePayload:
		return c.stepPayload(dest)
	default:
		return NoPacket, false, nil
	}
}

func (c *SLCD) stepHeader() (Status, bool, error) {
	buf := c.ring.Bytes()

	switch wire.DetectControlToken(buf) {
	case wire.TokenEND:
		c.ring.Consume(3)
		return Terminate, true, nil
	case wire.TokenERROR:
		c.ring.Consume(5)
		return Terminate, true, fmt.Errorf("%w: server sent ERROR", ErrFraming)
	}

	need := wire.Needed(buf)
	if need == 0 {
		if len(buf) >= 5 {
			return Terminate, false, fmt.Errorf("%w: unrecognized header magic", ErrFraming)
		}
		return NoPacket, false, nil
	}
	if len(buf) < need {
		return NoPacket, false, nil
	}

	h, n, err := wire.Parse(buf)
	if err != nil {
		return Terminate, true, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	c.ring.Consume(n)

	c.rxHeader = h
	c.rxPayload = c.rxPayload[:0]
	c.streamUpdated = false
	c.inProg = PacketInfo{
		Seq:              h.Seq,
		PayloadFormat:    h.PayloadFormat,
		PayloadSubformat: h.PayloadSubformat,
		PayloadLen:       h.PayloadLen,
	}

	if h.Proto == wire.ProtoV4 && h.StationIDLen > 0 {
		c.rxStationNeed = int(h.StationIDLen)
		c.frame = frameStationID
		return NoPacket, true, nil
	}
	c.frame = framePayload
	return NoPacket, true, nil
}

func (c *SLCD) stepStationID() (Status, bool, error) {
	buf := c.ring.Bytes()
	if len(buf) < c.rxStationNeed {
		return NoPacket, false, nil
	}
	id := string(buf[:c.rxStationNeed])
	c.ring.Consume(c.rxStationNeed)
	c.inProg.StationID = id
	c.frame = framePayload
	return NoPacket, true, nil
}

func (c *SLCD) stepPayload(dest []byte) (Status, bool, error) {
	if c.rxHeader.Proto == wire.ProtoV4 {
		return c.stepPayloadV4(dest)
	}
	return c.stepPayloadV3(dest)
}

func (c *SLCD) stepPayloadV4(dest []byte) (Status, bool, error) {
	progressed := c.consumeInto(int(c.rxHeader.PayloadLen))
	c.inProg.PayloadCollected = uint32(len(c.rxPayload))
	c.maybeUpdateStreamTable()

	if len(c.rxPayload) < int(c.rxHeader.PayloadLen) {
		return NoPacket, progressed, nil
	}
	return c.finishPacket(dest)
}

func (c *SLCD) stepPayloadV3(dest []byte) (Status, bool, error) {
	progressed := false

	if !c.rxHeader.HasPayloadLen {
		// target grows one probe step (64 bytes) past whatever we
		// already hold whenever detection was previously indeterminate,
		// so each step requests a fresh chunk instead of re-requesting
		// the same MinPrefix bytes forever.
		target := mseed.MinPrefix
		if len(c.rxPayload) >= mseed.MinPrefix {
			target = len(c.rxPayload) + 64
		}
		want := target - len(c.rxPayload)
		if want > 128 {
			want = 128
		}
		if c.consumeUpTo(want) {
			progressed = true
		}
		if len(c.rxPayload) < mseed.MinPrefix {
			return NoPacket, progressed, nil
		}

		format, length, err := mseed.Detect(c.rxPayload)
		if errors.Is(err, mseed.ErrIndeterminate) {
			return NoPacket, progressed, nil
		}
		if err != nil {
			return Terminate, true, fmt.Errorf("%w: %v", ErrFraming, err)
		}
		if !c.rxHeader.IsInfo {
			c.inProg.PayloadFormat = format
		}
		c.rxHeader.PayloadLen = length
		c.rxHeader.HasPayloadLen = true
		c.inProg.PayloadLen = length

		if !c.rxHeader.IsInfo && c.inProg.StationID == "" {
			if id, ok := mseed.StationID(c.rxPayload, format); ok {
				c.inProg.StationID = id
			}
		}

		// The next-header probe may have speculatively over-read past
		// this record's true length into the following frame; return
		// those bytes to the ring buffer so they are parsed as such.
		if uint32(len(c.rxPayload)) > length {
			excess := append([]byte(nil), c.rxPayload[length:]...)
			c.rxPayload = c.rxPayload[:length]
			c.ring.Unread(excess)
		}
	}

	if c.consumeInto(int(c.rxHeader.PayloadLen)) {
		progressed = true
	}
	c.inProg.PayloadCollected = uint32(len(c.rxPayload))
	c.maybeUpdateStreamTable()

	if len(c.rxPayload) < int(c.rxHeader.PayloadLen) {
		return NoPacket, progressed, nil
	}
	return c.finishPacket(dest)
}

// consumeInto appends ring-buffered bytes to rxPayload until it reaches
// target bytes or the ring buffer runs dry, reporting whether anything
// was consumed.
func (c *SLCD) consumeInto(target int) bool {
	want := target - len(c.rxPayload)
	return c.consumeUpTo(want)
}

func (c *SLCD) consumeUpTo(want int) bool {
	if want <= 0 {
		return false
	}
	buf := c.ring.Bytes()
	take := want
	if take > len(buf) {
		take = len(buf)
	}
	if take <= 0 {
		return false
	}
	c.rxPayload = append(c.rxPayload, buf[:take]...)
	c.ring.Consume(take)
	return true
}

// maybeUpdateStreamTable applies the Stream Table update once, on the
// first payload chunk for this packet once at least 64 bytes (or the
// whole, shorter payload) are in hand, ahead of the packet being
// handed to the caller. When the frame carried no station id (v3
// always, or v4 with a zero-length station-id field), it is backfilled
// by parsing the miniSEED payload itself.
func (c *SLCD) maybeUpdateStreamTable() {
	if c.streamUpdated {
		return
	}
	if isNoUpdateFormat(c.inProg.PayloadFormat, c.inProg.PayloadSubformat) {
		return
	}
	total := int(c.rxHeader.PayloadLen)
	threshold := mseed.MinPrefix
	if total > 0 && total < threshold {
		threshold = total
	}
	if len(c.rxPayload) < threshold {
		return
	}
	if c.inProg.StationID == "" {
		if id, ok := mseed.StationID(c.rxPayload, c.inProg.PayloadFormat); ok {
			c.inProg.StationID = id
		}
	}
	if c.inProg.StationID == "" {
		return
	}
	if err := c.streams.Update(c.inProg.StationID, c.inProg.Seq, ""); err != nil {
		c.log.Log(LogError, 0, fmt.Sprintf("stream table update: %v", err))
	}
	c.streamUpdated = true
}

// finishPacket is reached once the full payload has been accumulated.
// It suppresses keepalive-triggered INFO responses, enforces the
// caller's buffer size, and resets the pipeline for the next packet.
func (c *SLCD) finishPacket(dest []byte) (Status, bool, error) {
	if !c.streamUpdated && c.inProg.StationID != "" {
		c.maybeUpdateStreamTable()
	}

	suppress := c.query == queryKeepaliveInFlight && isInfoTerminal(c.inProg.PayloadFormat, c.inProg.PayloadSubformat)
	if c.query == queryInfoInFlight || suppress {
		c.query = queryNone
	}
	if suppress {
		c.resetPipeline()
		return NoPacket, true, nil
	}

	if len(c.rxPayload) > len(dest) {
		return TooLarge, true, nil
	}
	n := copy(dest, c.rxPayload)
	c.inProg.PayloadCollected = uint32(n)
	c.resetPipeline()
	return Packet, true, nil
}

func (c *SLCD) resetPipeline() {
	c.frame = frameHeader
	c.rxPayload = c.rxPayload[:0]
	c.rxStationNeed = 0
	c.streamUpdated = false
}

// isInfoTerminal reports whether a payload is a complete INFO response:
// the v3 terminal INFO chunk, or a v4 JSON payload tagged with the 'I'
// subformat.
func isInfoTerminal(format wire.PayloadFormat, subformat byte) bool {
	if format == wire.FormatMSEED2InfoTerm {
		return true
	}
	return format == wire.FormatJSON && subformat == 'I'
}

// isNoUpdateFormat reports whether a payload carries no station data
// and must never touch the Stream Table: v3 INFO chunks (which leave
// Seq at 0, so applying them would incorrectly reset last_seq) and v4
// JSON INFO/ERROR payloads.
func isNoUpdateFormat(format wire.PayloadFormat, subformat byte) bool {
	switch format {
	case wire.FormatMSEED2Info, wire.FormatMSEED2InfoTerm:
		return true
	case wire.FormatJSON:
		return subformat == 'I' || subformat == 'E'
	default:
		return false
	}
}
