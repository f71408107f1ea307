package slink

// Status is the result of one Collect call.
type Status int

const (
	// NoPacket means the call returned without delivering a complete
	// packet; the caller should call Collect again.
	NoPacket Status = iota
	// Packet means PacketInfo and the destination buffer now hold one
	// complete, newly delivered packet.
	Packet
	// TooLarge means the next packet's payload does not fit in the
	// caller's buffer; PayloadCollected is preserved so a retry with a
	// larger buffer can complete the same packet.
	TooLarge
	// Terminate means the connection ended (gracefully or fatally) and
	// will not be retried by this Collect loop.
	Terminate
)

func (s Status) String() string {
	switch s {
	case NoPacket:
		return "NoPacket"
	case Packet:
		return "Packet"
	case TooLarge:
		return "TooLarge"
	case Terminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// linkState is the socket-level state of the Connection Loop.
type linkState int

const (
	linkDown linkState = iota
	linkUp
	linkStreaming
)

// frameState is the Receive Pipeline's position within one packet.
type frameState int

const (
	frameHeader frameState = iota
	frameStationID
	framePayload
)

// queryState tracks whether the server currently owes an INFO response.
type queryState int

const (
	queryNone queryState = iota
	queryInfoInFlight
	queryKeepaliveInFlight
)

// terminateLevel models the caller's request to stop.
type terminateLevel int

const (
	terminateNone terminateLevel = iota
	// terminateAfterDrain allows one additional drain pass before closing.
	terminateAfterDrain
	// terminateImmediate closes without draining further.
	terminateImmediate
)
