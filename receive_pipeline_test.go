package slink

import (
	"encoding/binary"
	"testing"

	"github.com/iris-edu/goslink/streamtable"
	"github.com/iris-edu/goslink/wire"
)

// buildMS2Record returns a complete miniSEED-2 record of the given
// total length (must be a power of two representable by blockette
// 1000's length exponent) carrying sta/net and a plausible year/day-of
// -year so the Payload Detector's byte-order sanity check succeeds.
func buildMS2Record(netCode, sta string, length int) []byte {
	buf := make([]byte, length)
	order := binary.BigEndian
	copy(buf[8:13], padField(sta, 5))
	copy(buf[18:20], padField(netCode, 2))
	order.PutUint16(buf[20:22], 2024)
	order.PutUint16(buf[22:24], 42)
	buf[39] = 1
	order.PutUint16(buf[46:48], 48)
	order.PutUint16(buf[48:50], 1000)
	order.PutUint16(buf[50:52], 0)
	buf[52] = 11
	buf[53] = 1
	exp := 0
	for 1<<uint(exp) < length {
		exp++
	}
	buf[54] = byte(exp)
	return buf
}

// buildMS2RecordNoBlockette1000 is like buildMS2Record but omits the
// blockette chain entirely (numBlkt == 0, first-blockette offset == 0),
// forcing the Payload Detector onto the next-header probe fallback.
func buildMS2RecordNoBlockette1000(netCode, sta string, totalLen int) []byte {
	buf := make([]byte, totalLen)
	order := binary.BigEndian
	copy(buf[8:13], padField(sta, 5))
	copy(buf[18:20], padField(netCode, 2))
	order.PutUint16(buf[20:22], 2024)
	order.PutUint16(buf[22:24], 42)
	return buf
}

func padField(s string, width int) []byte {
	b := make([]byte, width)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

func v3DataHeader(seq uint64) []byte {
	return []byte{'S', 'L',
		hexDigit(seq >> 20), hexDigit(seq >> 16), hexDigit(seq >> 12),
		hexDigit(seq >> 8), hexDigit(seq >> 4), hexDigit(seq)}
}

func hexDigit(v uint64) byte {
	const digits = "0123456789ABCDEF"
	return digits[v&0xF]
}

func v4Header(seq uint64, format wire.PayloadFormat, payloadLen uint32, stationID string) []byte {
	h := make([]byte, wire.V4HeaderSize)
	copy(h, "SE")
	h[2] = byte(format)
	h[3] = 0
	binary.LittleEndian.PutUint32(h[4:8], payloadLen)
	binary.LittleEndian.PutUint64(h[8:16], seq)
	h[16] = byte(len(stationID))
	h = append(h, []byte(stationID)...)
	return h
}

func newTestSLCD() *SLCD {
	return New("test", "1.0")
}

// drain repeatedly advances the Receive Pipeline until a terminal
// status is produced or no more progress is possible with the bytes
// currently in the ring buffer.
func drain(c *SLCD, dest []byte) (Status, error) {
	for {
		status, progressed, err := c.receiveStep(dest)
		if status != NoPacket || err != nil {
			return status, err
		}
		if !progressed {
			return NoPacket, nil
		}
	}
}

func fill(c *SLCD, data []byte) {
	copy(c.ring.WriteSlice(), data)
	c.ring.Fill(len(data))
}

func TestReceiveV3HappyPath(t *testing.T) {
	c := newTestSLCD()
	if err := c.streams.Add("IU_ANMO", "BH?", streamtable.UnsetSequence, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	record := buildMS2Record("IU", "ANMO", 128)
	fill(c, append(v3DataHeader(0x1A2B3C), record...))

	dest := make([]byte, 256)
	status, err := drain(c, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != Packet {
		t.Fatalf("status = %v, want Packet", status)
	}
	if c.inProg.Seq != 0x1A2B3C {
		t.Fatalf("seq = %#x, want 0x1a2b3c", c.inProg.Seq)
	}
	if c.inProg.PayloadFormat != wire.FormatMSEED2 {
		t.Fatalf("format = %v, want FormatMSEED2", c.inProg.PayloadFormat)
	}
	if c.inProg.StationID != "IU_ANMO" {
		t.Fatalf("station id = %q, want IU_ANMO", c.inProg.StationID)
	}
	entries := c.streams.Iter()
	if entries[0].LastSeq != 0x1A2B3C {
		t.Fatalf("stream table last_seq = %d, want 0x1a2b3c", entries[0].LastSeq)
	}
}

func TestReceiveV3HeaderSplitAcrossTwoFills(t *testing.T) {
	c := newTestSLCD()
	if err := c.streams.Add("IU_ANMO", "", streamtable.UnsetSequence, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	full := append(v3DataHeader(7), buildMS2Record("IU", "ANMO", 128)...)
	fill(c, full[:3])

	dest := make([]byte, 256)
	status, err := drain(c, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != NoPacket {
		t.Fatalf("status after partial header = %v, want NoPacket", status)
	}

	fill(c, full[3:])
	status, err = drain(c, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != Packet {
		t.Fatalf("status = %v, want Packet", status)
	}
	if c.inProg.Seq != 7 {
		t.Fatalf("seq = %d, want 7", c.inProg.Seq)
	}

	// A second call to drain must not re-deliver the same packet.
	status, err = drain(c, dest)
	if status != NoPacket || err != nil {
		t.Fatalf("spurious second delivery: status=%v err=%v", status, err)
	}
}

func TestReceiveV4TooLargeThenRetry(t *testing.T) {
	c := newTestSLCD()
	if err := c.streams.Add("IU_ANMO", "", streamtable.UnsetSequence, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	payload := buildMS2Record("IU", "ANMO", 128)
	fill(c, v4Header(42, wire.FormatMSEED2, uint32(len(payload)), "IU_ANMO"))
	fill(c, payload)

	small := make([]byte, 64)
	status, err := drain(c, small)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != TooLarge {
		t.Fatalf("status = %v, want TooLarge", status)
	}
	if c.inProg.PayloadCollected != 128 {
		t.Fatalf("payload_collected = %d, want 128 preserved across TooLarge", c.inProg.PayloadCollected)
	}

	big := make([]byte, 256)
	status, err = drain(c, big)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != Packet {
		t.Fatalf("status = %v, want Packet on retry with larger buffer", status)
	}
	if c.inProg.PayloadCollected != 128 {
		t.Fatalf("payload_collected = %d, want 128", c.inProg.PayloadCollected)
	}
}

func TestReceiveV4StationIDBackfillFromPayload(t *testing.T) {
	c := newTestSLCD()
	if err := c.streams.Add("IU_ANMO", "", streamtable.UnsetSequence, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	payload := buildMS2Record("IU", "ANMO", 128)
	fill(c, v4Header(1, wire.FormatMSEED2, uint32(len(payload)), ""))
	fill(c, payload)

	dest := make([]byte, 256)
	status, err := drain(c, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != Packet {
		t.Fatalf("status = %v, want Packet", status)
	}
	if c.inProg.StationID != "IU_ANMO" {
		t.Fatalf("station id = %q, want backfilled IU_ANMO", c.inProg.StationID)
	}
	entries := c.streams.Iter()
	if entries[0].LastSeq != 1 {
		t.Fatalf("stream table not updated from backfilled station id: last_seq = %d", entries[0].LastSeq)
	}
}

// TestReceiveV3ProbeGrowsAcrossSteps exercises the fallback path where
// no blockette 1000 is present: the detector must keep accumulating
// past the initial 64-byte prefix, across several receiveStep calls,
// until a plausible next fixed-section header is found — never
// misreporting the record as zero length in the interim, and never
// stealing the following record's bytes into this one's payload. The
// bytes beyond the discovered length are pushed back into the ring
// buffer rather than consumed, so nothing is lost.
func TestReceiveV3ProbeGrowsAcrossSteps(t *testing.T) {
	c := newTestSLCD()
	if err := c.streams.Add("IU_ANMO", "", streamtable.UnsetSequence, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	const recordLen = 128
	rec := buildMS2RecordNoBlockette1000("IU", "ANMO", recordLen)
	// No blockette 1000, so the probe scans the bytes following rec for a
	// plausible fixed-section header; nextRec's own year/day-of-year
	// fields (at its offset 20/22, i.e. combined offset 128+20/128+22)
	// supply that signature.
	nextRec := buildMS2Record("IU", "ANMO", 128)

	fill(c, v3DataHeader(5))
	fill(c, rec)
	fill(c, nextRec)

	dest := make([]byte, 256)
	status, err := drain(c, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != Packet {
		t.Fatalf("status = %v, want Packet", status)
	}
	if c.inProg.PayloadCollected != recordLen {
		t.Fatalf("payload_collected = %d, want %d (next record's bytes must not be absorbed)", c.inProg.PayloadCollected, recordLen)
	}

	// The probed-past bytes belong to nextRec and must have been pushed
	// back whole, not dropped or duplicated.
	if c.ring.Len() != len(nextRec) {
		t.Fatalf("ring buffer holds %d bytes, want %d (nextRec preserved intact)", c.ring.Len(), len(nextRec))
	}
}

func TestReceiveEndToken(t *testing.T) {
	c := newTestSLCD()
	fill(c, []byte("END"))
	dest := make([]byte, 16)
	status, err := drain(c, dest)
	if status != Terminate || err != nil {
		t.Fatalf("status=%v err=%v, want Terminate/nil for in-band END", status, err)
	}
}

func TestReceiveErrorToken(t *testing.T) {
	c := newTestSLCD()
	fill(c, []byte("ERROR"))
	dest := make([]byte, 16)
	status, err := drain(c, dest)
	if status != Terminate || err == nil {
		t.Fatalf("status=%v err=%v, want Terminate/non-nil for in-band ERROR", status, err)
	}
}

func TestReceiveKeepaliveInfoSuppressed(t *testing.T) {
	c := newTestSLCD()
	c.query = queryKeepaliveInFlight

	// A terminal v3 INFO chunk: "SLINFO *" ('*' in byte 7), followed by
	// an INFO miniSEED2 record.
	header := []byte("SLINFO *")
	record := buildMS2Record("IU", "ANMO", 128)
	fill(c, header)
	fill(c, record)

	dest := make([]byte, 256)
	status, err := drain(c, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != NoPacket {
		t.Fatalf("status = %v, want NoPacket (keepalive INFO suppressed)", status)
	}
	if c.query != queryNone {
		t.Fatalf("query = %v, want queryNone after suppressed keepalive INFO", c.query)
	}
}
