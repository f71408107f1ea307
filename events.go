package slink

import "time"

// Handler is the interface implemented by callers interested in
// connection lifecycle notifications, modeled on the teacher repo's
// eventsocket.Handler: a small set of methods invoked synchronously by
// the Connection Loop, rather than a channel the caller must drain.
type Handler interface {
	// OnUp fires once the transport connects and negotiation succeeds.
	OnUp(t time.Time)
	// OnDown fires when Collect closes the connection and returns
	// Terminate; err is the framing error, if any. A connection dropped
	// and scheduled for reconnect (transport error, idle timeout,
	// failed negotiation) does not fire it.
	OnDown(t time.Time, err error)
	// OnPacket fires after a packet has been delivered to the caller.
	OnPacket(t time.Time, info PacketInfo)
	// OnKeepalive fires when a keepalive probe is sent.
	OnKeepalive(t time.Time)
}

// NopHandler implements Handler with no-op methods, so callers that
// only care about one notification can embed it instead of
// implementing the full interface.
type NopHandler struct{}

func (NopHandler) OnUp(time.Time)                  {}
func (NopHandler) OnDown(time.Time, error)          {}
func (NopHandler) OnPacket(time.Time, PacketInfo)   {}
func (NopHandler) OnKeepalive(time.Time)            {}
