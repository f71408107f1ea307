package slink

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/iris-edu/goslink/streamtable"
)

func TestParseHelloIdent(t *testing.T) {
	cases := []struct {
		line    string
		version slVersion
		caps    string
		ok      bool
	}{
		{"SeedLink v4.0", slVersion{4, 0}, "", true},
		{"SeedLink v3.1::SLPROTO:3.1 CAP", slVersion{3, 1}, "SLPROTO:3.1 CAP", true},
		{"not a hello", slVersion{}, "", false},
	}
	for _, c := range cases {
		v, rest, ok := parseHelloIdent(c.line)
		if ok != c.ok {
			t.Fatalf("parseHelloIdent(%q) ok = %v, want %v", c.line, ok, c.ok)
		}
		if !ok {
			continue
		}
		if v != c.version || rest != c.caps {
			t.Errorf("parseHelloIdent(%q) = %v, %q; want %v, %q", c.line, v, rest, c.version, c.caps)
		}
	}
}

func TestSlVersionAtLeast(t *testing.T) {
	v := slVersion{major: 4, minor: 0}
	if !v.atLeast(3, 9) {
		t.Error("4.0 should be atLeast 3.9")
	}
	if !v.atLeast(4, 0) {
		t.Error("4.0 should be atLeast 4.0")
	}
	if v.atLeast(4, 1) {
		t.Error("4.0 should not be atLeast 4.1")
	}
}

func TestParseCapFlags(t *testing.T) {
	got := parseCapFlags("SLPROTO:3.1 CAP EXTREPLY")
	want := map[string]bool{"SLPROTO:3.1": true, "CAP": true, "EXTREPLY": true}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("parseCapFlags mismatch: %v", diff)
	}
}

// readCommand reads one client command line (terminated by '\r') off
// the server side of the pipe.
func readCommand(r *bufio.Reader) error {
	_, err := r.ReadString('\r')
	return err
}

func newTestClient(conn net.Conn) *SLCD {
	c := New("test", "1.0")
	c.conn = conn
	c.iotimeout = time.Second
	return c
}

func TestNegotiateUniV4(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newTestClient(client)
	if err := c.SetUniParams("BHZ", streamtable.UnsetSequence, ""); err != nil {
		t.Fatalf("SetUniParams: %v", err)
	}

	go func() {
		r := bufio.NewReader(server)
		readCommand(r) // HELLO
		server.Write([]byte("SeedLink v4.0::SLPROTO:4.0\r\n"))
		server.Write([]byte("SeedLink Test Server\r\n"))
		readCommand(r) // SLPROTO
		server.Write([]byte("OK\r\n"))
		readCommand(r) // GETCAPABILITIES
		server.Write([]byte("SLPROTO:4.0\r\n"))
		readCommand(r) // USERAGENT
		server.Write([]byte("OK\r\n"))
		readCommand(r) // SELECT
		server.Write([]byte("OK\r\n"))
		readCommand(r) // DATA
		server.Write([]byte("OK\r\n"))
	}()

	if err := c.negotiate(); err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if !c.v4Negotiated {
		t.Error("expected v4Negotiated true")
	}
}

func TestNegotiateMultiV3Batch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := newTestClient(client)
	c.SetBatch(true)
	if err := c.AddStream("IU_ANMO", "BHZ", streamtable.UnsetSequence, ""); err != nil {
		t.Fatalf("AddStream: %v", err)
	}

	go func() {
		r := bufio.NewReader(server)
		readCommand(r) // HELLO
		server.Write([]byte("SeedLink v3.1\r\n"))
		server.Write([]byte("SeedLink Test Server\r\n"))
		readCommand(r) // BATCH
		server.Write([]byte("OK\r\n"))
		readCommand(r) // STATION (no ack expected, batch active)
		readCommand(r) // SELECT
		readCommand(r) // DATA
		readCommand(r) // END
	}()

	if err := c.negotiate(); err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if c.v4Negotiated {
		t.Error("expected v4Negotiated false for a v3 server")
	}
	if !c.batchActive {
		t.Error("expected batchActive true")
	}
}
