package wire

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestDetectControlToken(t *testing.T) {
	if DetectControlToken([]byte("END")) != TokenEND {
		t.Fatal("expected END token")
	}
	if DetectControlToken([]byte("ERROR")) != TokenERROR {
		t.Fatal("expected ERROR token")
	}
	// "SL" and "SLINFO" must never be confused with END/ERROR.
	if DetectControlToken([]byte("SL1A2B3C")) != NoToken {
		t.Fatal("v3 data header misdetected as control token")
	}
	if DetectControlToken([]byte("SLINFO *")) != NoToken {
		t.Fatal("v3 INFO header misdetected as control token")
	}
}

func TestParseV3Data(t *testing.T) {
	buf := []byte("SL1A2B3C")
	h, n, err := Parse(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != V3HeaderSize {
		t.Fatalf("consumed %d, want %d", n, V3HeaderSize)
	}
	if h.Seq != 0x1A2B3C {
		t.Fatalf("seq = %#x, want 0x1a2b3c", h.Seq)
	}
	if h.IsInfo {
		t.Fatal("data header misparsed as INFO")
	}
}

func TestParseV3Info(t *testing.T) {
	buf := []byte("SLINFO ")
	buf = append(buf, '*') // byte 7: '*' marks the last INFO chunk
	h, _, err := Parse(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.IsInfo || !h.InfoTerminator {
		t.Fatalf("expected terminal INFO header, got %+v", h)
	}
	if h.PayloadFormat != FormatMSEED2InfoTerm {
		t.Fatalf("format = %v, want FormatMSEED2InfoTerm", h.PayloadFormat)
	}
}

func TestParseV3BadSequence(t *testing.T) {
	_, _, err := Parse([]byte("SLzzzzzz"))
	if !errors.Is(err, ErrBadSequence) {
		t.Fatalf("err = %v, want ErrBadSequence", err)
	}
}

func TestParseV4(t *testing.T) {
	buf := make([]byte, V4HeaderSize)
	copy(buf, "SE")
	buf[2] = byte(FormatMSEED2)
	buf[3] = 0
	binary.LittleEndian.PutUint32(buf[4:8], 512)
	binary.LittleEndian.PutUint64(buf[8:16], 101)
	buf[16] = 7

	h, n, err := Parse(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != V4HeaderSize {
		t.Fatalf("consumed %d, want %d", n, V4HeaderSize)
	}
	if h.PayloadLen != 512 || h.Seq != 101 || h.StationIDLen != 7 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestParseV4StationIDOverflow(t *testing.T) {
	buf := make([]byte, V4HeaderSize)
	copy(buf, "SE")
	buf[16] = 250
	_, _, err := Parse(buf)
	if !errors.Is(err, ErrStationIDLen) {
		t.Fatalf("err = %v, want ErrStationIDLen", err)
	}
}

func TestParseBadMagic(t *testing.T) {
	_, _, err := Parse([]byte("XX1A2B3C"))
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestNeeded(t *testing.T) {
	if Needed([]byte("S")) != 0 {
		t.Fatal("Needed should require at least 2 bytes")
	}
	if Needed([]byte("SE")) != V4HeaderSize {
		t.Fatal("v4 magic should need 17 bytes")
	}
	if Needed([]byte("SL")) != V3HeaderSize {
		t.Fatal("v3 magic should need 8 bytes")
	}
}

func TestExactlyEightByteHeaderAcrossTwoReads(t *testing.T) {
	// Regression for the boundary behavior in spec section 8: an
	// exactly-8-byte v3 header split across two reads must still
	// produce exactly one parsed header, not two partial ones.
	full := []byte("SL1A2B3C")
	part1, part2 := full[:3], full[3:]

	buf := append([]byte{}, part1...)
	if Needed(buf) != 0 && len(buf) >= Needed(buf) {
		t.Fatalf("should not be parseable yet with only %d bytes", len(buf))
	}
	buf = append(buf, part2...)
	if len(buf) < Needed(buf) {
		t.Fatalf("should be parseable once all 8 bytes arrive")
	}
	h, n, err := Parse(buf)
	if err != nil || n != V3HeaderSize || h.Seq != 0x1A2B3C {
		t.Fatalf("unexpected parse result: h=%+v n=%d err=%v", h, n, err)
	}
}
