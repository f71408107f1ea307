package slink

import (
	"fmt"
	"time"
)

// SetTimeWindow configures the begin/end time sent with DATA/FETCH/TIME
// commands for stations that support it. Either may be empty.
func (c *SLCD) SetTimeWindow(begin, end string) {
	c.beginTime = begin
	c.endTime = end
}

// SetKeepalive sets the keepalive interval in seconds; 0 disables it.
func (c *SLCD) SetKeepalive(seconds int) { c.keepalive = time.Duration(seconds) * time.Second }

// SetNetTimeout sets the idle (netto) timeout in seconds.
func (c *SLCD) SetNetTimeout(seconds int) { c.netto = time.Duration(seconds) * time.Second }

// SetNetDelay sets the reconnect delay (netdly) in seconds.
func (c *SLCD) SetNetDelay(seconds int) { c.netdly = time.Duration(seconds) * time.Second }

// SetIOTimeout sets the per-read/write socket timeout in seconds.
func (c *SLCD) SetIOTimeout(seconds int) { c.iotimeout = time.Duration(seconds) * time.Second }

// SetNonBlocking toggles between the blocking and non-blocking receive
// disciplines for Collect's internal poll step.
func (c *SLCD) SetNonBlocking(nonblock bool) { c.nonblock = nonblock }

// SetDialup toggles dialup mode: the connection terminates (rather than
// continuing to stream) once its configured time window is exhausted.
func (c *SLCD) SetDialup(dialup bool) { c.dialup = dialup }

// SetBatch requests v3 BATCH mode (server v3 >= 3.1), suppressing
// per-command acknowledgement during negotiation.
func (c *SLCD) SetBatch(batch bool) { c.batchmode = batch }

// SetAuthCallbacks registers the producer of server-side auth tokens
// for v4 AUTH. The callbacks are only stored on the descriptor: the
// Negotiator does not send an AUTH command, so neither callback is
// invoked.
func (c *SLCD) SetAuthCallbacks(valueFn AuthValueFunc, finishFn AuthFinishFunc, data any) {
	c.authValue = valueFn
	c.authFinish = finishFn
	c.authData = data
}

// AddStream subscribes to stationID (a NET_STA id, which may contain
// the glob characters *, ? and [...]; incoming packets are matched
// against it) with the given optional selectors, resumption sequence,
// and last-seen timestamp. Passing streamtable.UnsetSequence and ""
// means "start at next available".
func (c *SLCD) AddStream(stationID, selectors string, seq uint64, timestamp string) error {
	if err := c.streams.Add(stationID, selectors, seq, timestamp); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// SetUniParams installs uni-station mode, the legacy single-implicit-
// stream configuration.
func (c *SLCD) SetUniParams(selectors string, seq uint64, timestamp string) error {
	if err := c.streams.SetUni(selectors, seq, timestamp); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// RequestInfo enqueues a single INFO query at the given level (e.g.
// "ID", "STATIONS", "STREAMS"). A second request while one is pending
// is rejected.
func (c *SLCD) RequestInfo(level string) error {
	if c.infoRequested {
		return fmt.Errorf("%w: an INFO request is already pending", ErrConfig)
	}
	c.infoRequested = true
	c.infoLevel = level
	return nil
}

// Terminate requests a graceful stop: the next streaming Collect call
// makes one more read-and-drain pass; if that pass completes a packet
// it is delivered and the following call closes, otherwise the
// connection is closed in the same call. Either way Collect then
// returns Terminate.
func (c *SLCD) Terminate() {
	if c.term == terminateNone {
		c.term = terminateAfterDrain
	}
}

// TerminateNow requests an immediate stop with no further draining.
func (c *SLCD) TerminateNow() {
	c.term = terminateImmediate
}
