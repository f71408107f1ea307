package slink

import (
	"fmt"
	"net"
	"time"
)

// dial opens the transport connection. The core only depends on the
// read/write/close/poll primitives of net.Conn; plaintext vs. TLS is an
// implementation choice left to the caller (e.g. by supplying a custom
// net.Conn via DialFunc), matching the design's "optional TLS" note.
type DialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

var defaultDial DialFunc = func(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// dialFn may be overridden by tests and by callers wanting TLS.
func (c *SLCD) dial() (net.Conn, error) {
	dial := c.dialer
	if dial == nil {
		dial = defaultDial
	}
	conn, err := dial("tcp", c.dialAddr(), c.iotimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return conn, nil
}

// SetDialFunc overrides how the transport connection is opened, for
// example to provide a TLS-wrapped net.Conn.
func (c *SLCD) SetDialFunc(d DialFunc) { c.dialer = d }
