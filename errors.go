package slink

import "errors"

// Sentinel errors, one per error-handling category in the design. The
// Connection Loop recovers transport, timeout and negotiation errors
// locally (by reconnecting after the reconnect delay); a framing error
// closes the connection and Collect returns Terminate, matching the teacher
// repo's convention of small sentinel error values (ErrNotType20,
// ErrParseFailed, ...) checked with errors.Is rather than a bespoke
// result/variant type.
var (
	// ErrFraming is a fatal framing error: bad magic, non-hex v3
	// sequence, non-miniSEED v3 payload, station-id length overflow, or
	// an in-band ERROR token.
	ErrFraming = errors.New("slink: fatal framing error")

	// ErrTransport wraps a read/write/dial failure on the underlying
	// connection.
	ErrTransport = errors.New("slink: transport error")

	// ErrIdleTimeout indicates the netto idle timeout elapsed without
	// any bytes arriving.
	ErrIdleTimeout = errors.New("slink: idle timeout")

	// ErrNegotiationRejected indicates the server rejected a
	// connection-wide negotiation step (HELLO, BATCH, SLPROTO,
	// GETCAPABILITIES, USERAGENT), or
	// every subscribed station failed STATION/SELECT/DATA.
	ErrNegotiationRejected = errors.New("slink: negotiation rejected")

	// ErrTooLarge describes a payload that exceeds the caller's buffer.
	// Collect reports that case through the TooLarge status; no function
	// in this package returns this value.
	ErrTooLarge = errors.New("slink: payload larger than destination buffer")

	// ErrConfig flags a configuration-time mistake: invalid address,
	// uni/multi-station conflict, or a duplicate INFO request.
	ErrConfig = errors.New("slink: configuration error")

	// ErrTerminated describes a connection that has been terminated. No
	// function in this package returns it; after a stop Collect reports
	// the Terminate status instead.
	ErrTerminated = errors.New("slink: connection terminated")
)
