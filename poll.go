package slink

import (
	"errors"
	"net"
	"syscall"
	"time"
)

// fder is the subset of net.Conn the poll primitives need.
type fder interface {
	SetReadDeadline(time.Time) error
	Read(b []byte) (int, error)
}

// syscallConner is implemented by *net.TCPConn and similar types that
// expose their raw file descriptor for a direct poll(2) call.
type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}

// pollReadableFallback is the portable readiness check used whenever a
// direct poll(2) isn't available: it just arms the read deadline and
// lets the caller's subsequent Read discover whether data arrived,
// rather than peeking (which would consume data on some net.Conn
// implementations).
func pollReadableFallback(conn fder, timeout time.Duration) (bool, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, err
	}
	return true, nil
}

// isTimeout reports whether err is a network timeout, used by the
// Connection Loop to distinguish "no data yet" from a real transport
// failure.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
