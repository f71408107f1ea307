package mseed

import (
	"encoding/binary"
	"testing"

	"github.com/iris-edu/goslink/wire"
)

func makeMS2Header(order binary.ByteOrder, year, doy uint16, numBlkt byte, firstBlkt uint16) []byte {
	buf := make([]byte, 128)
	order.PutUint16(buf[ms2OffYear:], year)
	order.PutUint16(buf[ms2OffDayOfYear:], doy)
	buf[ms2OffNumBlkt] = numBlkt
	order.PutUint16(buf[ms2OffFirstBlkt:], firstBlkt)
	return buf
}

func TestDetectMiniSEED2WithBlockette1000(t *testing.T) {
	buf := makeMS2Header(binary.BigEndian, 2024, 15, 1, 48)
	// blockette 1000 at offset 48: type=1000, next=0, encoding=11, order=1, length exp=9 (512 bytes)
	binary.BigEndian.PutUint16(buf[48:50], 1000)
	binary.BigEndian.PutUint16(buf[50:52], 0)
	buf[52] = 11
	buf[53] = 1
	buf[54] = 9

	format, length, err := Detect(buf[:MinPrefix])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != wire.FormatMSEED2 {
		t.Fatalf("format = %v, want FormatMSEED2", format)
	}
	if length != 512 {
		t.Fatalf("length = %d, want 512", length)
	}
}

func TestDetectMiniSEED2ProbeFallback(t *testing.T) {
	buf := makeMS2Header(binary.BigEndian, 2024, 15, 0, 0)
	// Second record's fixed header begins at offset 64.
	copy(buf[64:], makeMS2Header(binary.BigEndian, 2024, 16, 0, 0))
	format, length, err := Detect(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != wire.FormatMSEED2 {
		t.Fatalf("format = %v, want FormatMSEED2", format)
	}
	if length != 64 {
		t.Fatalf("length = %d, want 64 (probed offset)", length)
	}
}

func TestDetectMiniSEED3(t *testing.T) {
	buf := make([]byte, MinPrefix)
	buf[0], buf[1], buf[2] = 'M', 'S', 3
	buf[ms3OffSIDLen] = 10
	binary.LittleEndian.PutUint16(buf[ms3OffExtraLen:], 0)
	binary.LittleEndian.PutUint32(buf[ms3OffDataLen:], 100)

	format, length, err := Detect(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if format != wire.FormatMSEED3 {
		t.Fatalf("format = %v, want FormatMSEED3", format)
	}
	want := uint32(ms3FixedHeaderLen) + 10 + 0 + 100
	if length != want {
		t.Fatalf("length = %d, want %d", length, want)
	}
}

func TestDetectRejectsNonMiniSEED(t *testing.T) {
	buf := make([]byte, MinPrefix)
	for i := range buf {
		buf[i] = 0xFF
	}
	_, _, err := Detect(buf)
	if err == nil {
		t.Fatal("expected an error for non-miniSEED prefix")
	}
}

func TestDetectShortPrefix(t *testing.T) {
	_, _, err := Detect(make([]byte, 10))
	if err != ErrShortPrefix {
		t.Fatalf("err = %v, want ErrShortPrefix", err)
	}
}

func TestBlocketteChainRejectsBackwardsLoop(t *testing.T) {
	buf := makeMS2Header(binary.BigEndian, 2024, 15, 2, 48)
	// blockette at 48 points back at 48 (itself): must be rejected.
	binary.BigEndian.PutUint16(buf[48:50], 100)
	binary.BigEndian.PutUint16(buf[50:52], 48)

	_, _, err := Detect(buf[:MinPrefix])
	if err != ErrBlocketteChain {
		t.Fatalf("err = %v, want ErrBlocketteChain", err)
	}
}

func TestBlocketteChainRejectsPointIntoOwnHeader(t *testing.T) {
	buf := makeMS2Header(binary.BigEndian, 2024, 15, 2, 48)
	// blockette at 48 points to 50, inside its own 4-byte type+next
	// header (48..52): must be rejected, not just exact self-reference.
	binary.BigEndian.PutUint16(buf[48:50], 100)
	binary.BigEndian.PutUint16(buf[50:52], 50)

	_, _, err := Detect(buf[:MinPrefix])
	if err != ErrBlocketteChain {
		t.Fatalf("err = %v, want ErrBlocketteChain", err)
	}
}
