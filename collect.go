package slink

import (
	"fmt"
	"time"
)

// Collect is the Connection Loop: the single public entry point,
// callable in a tight loop by the application. Each invocation
// performs at most one state advance and returns promptly, per the
// Concurrency & Resource Model's single-threaded, cooperative design.
//
// On Packet, info and buf hold the newly delivered packet. On
// TooLarge, info.PayloadCollected is preserved so the caller may
// enlarge buf and call Collect again to finish the same packet.
func (c *SLCD) Collect(info *PacketInfo, buf []byte) Status {
	switch c.link {
	case linkDown:
		return c.serviceDown()
	case linkUp:
		return c.serviceNegotiate()
	default:
		return c.serviceStreaming(info, buf)
	}
}

// serviceDown implements steps 1-2: wait out the reconnect delay, then
// open the transport and advance to Up. This is one state advance; the
// Negotiator runs on the next invocation, not this one.
func (c *SLCD) serviceDown() Status {
	if c.term != terminateNone {
		return Terminate
	}

	if !c.netdlyDeadline.IsZero() && time.Now().Before(c.netdlyDeadline) {
		if !c.nonblock {
			wait := time.Until(c.netdlyDeadline)
			if wait > blockingPollWait {
				wait = blockingPollWait
			}
			time.Sleep(wait)
		}
		return NoPacket
	}

	if err := c.connect(); err != nil {
		c.log.Log(LogError, 0, fmt.Sprintf("connect: %v", err))
		c.scheduleReconnect()
		return NoPacket
	}
	c.link = linkUp
	return NoPacket
}

// serviceNegotiate implements step 3: run the Negotiator once, then
// either advance to Streaming or fall back to Down.
func (c *SLCD) serviceNegotiate() Status {
	start := time.Now()
	err := c.negotiate()
	if err != nil {
		c.log.Log(LogError, 0, fmt.Sprintf("negotiate: %v", err))
		if c.metrics != nil {
			c.metrics.Error("negotiation")
		}
		c.closeConn()
		c.scheduleReconnect()
		return NoPacket
	}

	if c.metrics != nil {
		c.metrics.NegotiationLatency(time.Since(start))
	}
	c.link = linkStreaming
	c.armTimers()
	if c.onEvent != nil {
		c.onEvent.OnUp(time.Now())
	}
	return NoPacket
}

// serviceStreaming implements steps 4-8: the pending-INFO check, one
// non-blocking read, draining the Receive Pipeline, timer service, and
// termination handling.
func (c *SLCD) serviceStreaming(info *PacketInfo, buf []byte) Status {
	if c.term == terminateImmediate {
		c.closeConn()
		c.link = linkDown
		if c.onEvent != nil {
			c.onEvent.OnDown(time.Now(), nil)
		}
		return Terminate
	}

	if c.infoRequested && c.query == queryNone {
		if err := c.sendInfoRequest(); err != nil {
			c.log.Log(LogError, 0, fmt.Sprintf("INFO request: %v", err))
		} else {
			c.query = queryInfoInFlight
		}
		c.infoRequested = false
	}

	n, err := c.readSome()
	if err != nil {
		c.log.Log(LogError, 0, fmt.Sprintf("read: %v", err))
		if c.metrics != nil {
			c.metrics.Error("transport")
		}
		c.closeConn()
		c.scheduleReconnect()
		return NoPacket
	}
	if n > 0 {
		c.ring.Fill(n)
	}

	for {
		status, progressed, serr := c.receiveStep(buf)
		if serr != nil {
			c.log.Log(LogError, 0, serr.Error())
			if c.metrics != nil {
				c.metrics.Error("framing")
			}
		}

		switch status {
		case Packet:
			*info = c.inProg
			c.resetTimer(&c.nettoDeadline, c.netto)
			c.resetTimer(&c.keepaliveDeadline, c.keepalive)
			if c.metrics != nil {
				c.metrics.Packet(int(info.PayloadCollected))
			}
			if c.onEvent != nil {
				c.onEvent.OnPacket(time.Now(), *info)
			}
			if c.term == terminateAfterDrain {
				c.term = terminateImmediate
			}
			return Packet
		case TooLarge:
			*info = c.inProg
			return TooLarge
		case Terminate:
			c.closeConn()
			c.link = linkDown
			c.term = terminateImmediate
			if c.onEvent != nil {
				c.onEvent.OnDown(time.Now(), serr)
			}
			return Terminate
		}

		if !progressed {
			break
		}
	}

	c.serviceTimers()

	if c.term != terminateNone {
		c.closeConn()
		c.link = linkDown
		if c.onEvent != nil {
			c.onEvent.OnDown(time.Now(), nil)
		}
		return Terminate
	}

	return NoPacket
}

func (c *SLCD) connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn
	c.ring = newRingBuffer(ringBufferSize)
	c.frame = frameHeader
	c.query = queryNone
	c.v4Negotiated = false
	c.batchActive = false
	c.serverCaps = map[string]bool{}

	first := !c.everConnected
	c.everConnected = true
	if c.metrics != nil {
		c.metrics.Connected(first)
	}
	return nil
}

func (c *SLCD) closeConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *SLCD) scheduleReconnect() {
	c.link = linkDown
	c.netdlyDeadline = time.Now().Add(c.netdly)
}

func (c *SLCD) armTimers() {
	now := time.Now()
	c.nettoDeadline = now.Add(c.netto)
	if c.keepalive > 0 {
		c.keepaliveDeadline = now.Add(c.keepalive)
	} else {
		c.keepaliveDeadline = time.Time{}
	}
}

func (c *SLCD) resetTimer(deadline *time.Time, interval time.Duration) {
	if interval <= 0 {
		*deadline = time.Time{}
		return
	}
	*deadline = time.Now().Add(interval)
}

func (c *SLCD) serviceTimers() {
	now := time.Now()

	if !c.keepaliveDeadline.IsZero() && now.After(c.keepaliveDeadline) && c.query == queryNone {
		if err := c.sendKeepalive(); err != nil {
			c.log.Log(LogError, 0, fmt.Sprintf("keepalive: %v", err))
		} else {
			c.query = queryKeepaliveInFlight
			if c.metrics != nil {
				c.metrics.KeepaliveSent()
			}
			if c.onEvent != nil {
				c.onEvent.OnKeepalive(now)
			}
		}
		c.keepaliveDeadline = now.Add(c.keepalive)
	}

	if !c.nettoDeadline.IsZero() && now.After(c.nettoDeadline) {
		c.log.Log(LogError, 0, "idle timeout: no data received within netto")
		if c.metrics != nil {
			c.metrics.Error("idle_timeout")
		}
		c.closeConn()
		c.scheduleReconnect()
	}
}

func (c *SLCD) sendInfoRequest() error {
	if c.v4Negotiated {
		return c.writeCommand(fmt.Sprintf("INFO %s\r\n", c.infoLevel))
	}
	return c.writeCommand(fmt.Sprintf("INFO %s\r", c.infoLevel))
}

func (c *SLCD) sendKeepalive() error {
	if c.v4Negotiated {
		return c.writeCommand("INFO ID\r\n")
	}
	return c.writeCommand("INFO ID\r")
}

// readSome polls the transport for readability and, if ready, performs
// one non-blocking-sized read into the ring buffer's free region. A
// full ring buffer (pipeline behind on draining) is reported as "no
// bytes read" rather than an error.
func (c *SLCD) readSome() (int, error) {
	wait := blockingPollWait
	if c.nonblock {
		wait = nonblockPollWait
	}

	ready, err := pollReadable(c.conn, wait)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !ready {
		return 0, nil
	}

	free := c.ring.WriteSlice()
	if len(free) == 0 {
		return 0, nil
	}

	c.conn.SetReadDeadline(time.Now().Add(wait))
	n, err := c.conn.Read(free)
	if err != nil {
		if isTimeout(err) {
			return n, nil
		}
		return n, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return n, nil
}
