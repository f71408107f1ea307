package slink

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iris-edu/goslink/streamtable"
)

const libVersion = "1.0"

// negotiationLineTimeout bounds each individual command's response
// wait, per the Concurrency & Resource Model's "30s per response"
// suspension point.
const negotiationLineTimeout = negotiationBudget

// negotiate runs the post-connect command dialogue described for the
// Negotiator: HELLO, optional protocol promotion, per-station
// subscription, and the terminal END that starts streaming. It is
// modeled on the teacher repo's eventsocket.MustRun: a bufio.Reader
// fed line by line, with each line matched against an expected
// command/response grammar rather than a generic RPC framing.
func (c *SLCD) negotiate() error {
	r := bufio.NewReader(c.conn)

	serverVersion, capFlags, err := c.sendHello(r)
	if err != nil {
		return err
	}

	if c.batchmode && serverVersion.major == 3 && serverVersion.atLeast(3, 1) {
		if err := c.writeCommand("BATCH\r"); err != nil {
			return err
		}
		if err := c.readOK(r); err != nil {
			return fmt.Errorf("%w: BATCH rejected: %v", ErrNegotiationRejected, err)
		}
		c.batchActive = true
	}

	if serverVersion.major >= 4 {
		if err := c.negotiateV4(r, capFlags); err != nil {
			return err
		}
	}

	if c.streams.IsUni() {
		return c.negotiateUni(r)
	}
	return c.negotiateMulti(r)
}

type slVersion struct {
	major, minor int
}

func (v slVersion) atLeast(major, minor int) bool {
	if v.major != major {
		return v.major > major
	}
	return v.minor >= minor
}

// sendHello sends HELLO and parses the two-line reply: "SeedLink v<M>.<m>"
// optionally followed by "::<capflags>", then a free-form site ident
// line which is discarded.
func (c *SLCD) sendHello(r *bufio.Reader) (slVersion, map[string]bool, error) {
	if err := c.writeCommand("HELLO\r"); err != nil {
		return slVersion{}, nil, err
	}
	ident, err := c.readLine(r)
	if err != nil {
		return slVersion{}, nil, fmt.Errorf("%w: HELLO: %v", ErrNegotiationRejected, err)
	}
	if _, err := c.readLine(r); err != nil {
		return slVersion{}, nil, fmt.Errorf("%w: HELLO site ident: %v", ErrNegotiationRejected, err)
	}

	version, rest, ok := parseHelloIdent(ident)
	if !ok {
		return slVersion{}, nil, fmt.Errorf("%w: unparseable HELLO ident %q", ErrNegotiationRejected, ident)
	}
	return version, parseCapFlags(rest), nil
}

// parseHelloIdent extracts "SeedLink v<M>.<m>" and an optional
// "<capflags>" trailer separated by "::" from the first HELLO reply
// line.
func parseHelloIdent(line string) (slVersion, string, bool) {
	main, rest, hasCaps := strings.Cut(line, "::")
	idx := strings.Index(main, "v")
	if idx < 0 {
		return slVersion{}, "", false
	}
	numPart := strings.Fields(main[idx+1:])
	if len(numPart) == 0 {
		return slVersion{}, "", false
	}
	major, minor, ok := parseVersionNumber(numPart[0])
	if !ok {
		return slVersion{}, "", false
	}
	if !hasCaps {
		rest = ""
	}
	return slVersion{major: major, minor: minor}, strings.TrimSpace(rest), true
}

func parseVersionNumber(s string) (major, minor int, ok bool) {
	s = strings.TrimSuffix(s, ".")
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return major, minor, true
}

func parseCapFlags(rest string) map[string]bool {
	flags := map[string]bool{}
	for _, f := range strings.Fields(rest) {
		flags[f] = true
	}
	return flags
}

// negotiateV4 performs the v4-only SLPROTO/GETCAPABILITIES/USERAGENT
// exchange. Promotion to v4 only takes effect once SLPROTO is
// acknowledged; a server that answers ERROR or something unrecognized
// aborts the whole connection, matching the design's "error on SLPROTO
// ... aborts" rule.
func (c *SLCD) negotiateV4(r *bufio.Reader, capFlags map[string]bool) error {
	if err := c.writeCommand(fmt.Sprintf("SLPROTO %s\r", protoVersionString)); err != nil {
		return err
	}
	if err := c.readOK(r); err != nil {
		return fmt.Errorf("%w: SLPROTO: %v", ErrNegotiationRejected, err)
	}
	c.v4Negotiated = true

	if err := c.writeCommand("GETCAPABILITIES\r\n"); err != nil {
		return err
	}
	line, err := c.readLine(r)
	if err != nil {
		return fmt.Errorf("%w: GETCAPABILITIES: %v", ErrNegotiationRejected, err)
	}
	for k, v := range parseCapFlags(line) {
		capFlags[k] = v
	}
	c.serverCaps = capFlags

	ua := c.clientName
	if c.clientVersion != "" {
		ua = ua + "/" + c.clientVersion
	}
	if err := c.writeCommand(fmt.Sprintf("USERAGENT %s libslink/%s\r", ua, libVersion)); err != nil {
		return err
	}
	if err := c.readOK(r); err != nil {
		return fmt.Errorf("%w: USERAGENT: %v", ErrNegotiationRejected, err)
	}
	return nil
}

// protoVersionString is the highest SLPROTO version this client asks
// for; a real negotiation would pick the best of those GETCAPABILITIES
// offers, but the core only ever speaks one v4 wire dialect so it asks
// for it directly.
const protoVersionString = "4.0"

// negotiateUni runs the uni-station dialogue: selectors then DATA/FETCH,
// with no trailing END (streaming begins immediately after the last
// acknowledged command).
func (c *SLCD) negotiateUni(r *bufio.Reader) error {
	entries := c.streams.Iter()
	if len(entries) != 1 {
		return fmt.Errorf("%w: uni-station table has %d entries", ErrConfig, len(entries))
	}
	e := entries[0]
	if err := c.sendSelectors(r, e); err != nil {
		return err
	}
	return c.sendDataCommand(r, e)
}

// negotiateMulti runs the multi-station dialogue: STATION, selectors,
// DATA/FETCH/TIME per subscription, followed by a single terminal END.
// v3 acknowledges each command before the next is sent
// (negotiate_multi_v3); v4 instead pipelines the whole dialogue
// (negotiate_v4), so it is dispatched separately.
func (c *SLCD) negotiateMulti(r *bufio.Reader) error {
	if c.v4Negotiated {
		return c.negotiateMultiV4(r)
	}

	entries := c.streams.Iter()
	succeeded := 0
	for _, e := range entries {
		if err := c.sendStation(r, e); err != nil {
			c.log.Log(LogError, 0, fmt.Sprintf("STATION %s rejected: %v", e.StationID, err))
			continue
		}
		if err := c.sendSelectors(r, e); err != nil {
			c.log.Log(LogError, 0, fmt.Sprintf("SELECT for %s rejected: %v", e.StationID, err))
			continue
		}
		if err := c.sendDataCommand(r, e); err != nil {
			c.log.Log(LogError, 0, fmt.Sprintf("DATA for %s rejected: %v", e.StationID, err))
			continue
		}
		succeeded++
	}
	if len(entries) > 0 && succeeded == 0 {
		return fmt.Errorf("%w: every subscription was rejected", ErrNegotiationRejected)
	}
	if err := c.writeCommand("END\r"); err != nil {
		return err
	}
	return nil
}

// negotiateMultiV4 builds the full STATION/SELECT/DATA command list
// across every subscription and writes it in one batch, then reads
// every reply in order — the write-all-then-read-all strategy
// negotiate_v4 uses, rather than v3's per-command ping-pong. An error
// on one station's commands is logged and that station is counted as
// failed; if every subscription fails the connection is fatal,
// matching negotiateMulti's rule.
func (c *SLCD) negotiateMultiV4(r *bufio.Reader) error {
	entries := c.streams.Iter()

	type v4cmd struct {
		line  string
		entry *streamtable.Entry
	}
	var cmds []v4cmd
	for _, e := range entries {
		cmds = append(cmds, v4cmd{fmt.Sprintf("STATION %s\r", e.StationID), e})
		for _, sel := range strings.Fields(e.Selectors) {
			if !looksLikeV4Selector(sel) {
				sel = translateSelectorV3toV4(sel)
			}
			cmds = append(cmds, v4cmd{fmt.Sprintf("SELECT %s\r", sel), e})
		}
		cmds = append(cmds, v4cmd{c.dataCommandLine(e) + "\r", e})
	}

	for _, cmd := range cmds {
		if err := c.writeCommand(cmd.line); err != nil {
			return err
		}
	}

	failed := map[*streamtable.Entry]bool{}
	for _, cmd := range cmds {
		if err := c.readOK(r); err != nil {
			c.log.Log(LogError, 0, fmt.Sprintf("%s rejected: %v", strings.TrimRight(cmd.line, "\r"), err))
			failed[cmd.entry] = true
		}
	}

	succeeded := 0
	for _, e := range entries {
		if !failed[e] {
			succeeded++
		}
	}
	if len(entries) > 0 && succeeded == 0 {
		return fmt.Errorf("%w: every subscription was rejected", ErrNegotiationRejected)
	}

	return c.writeCommand("END\r")
}

// sendStation splits a NET_STA id into its v4 "STATION <NET_STA>" or
// v3 "STATION <STA> <NET>" forms.
func (c *SLCD) sendStation(r *bufio.Reader, e *streamtable.Entry) error {
	if c.v4Negotiated {
		if err := c.writeCommand(fmt.Sprintf("STATION %s\r", e.StationID)); err != nil {
			return err
		}
	} else {
		net, sta, ok := strings.Cut(e.StationID, "_")
		if !ok {
			sta, net = e.StationID, ""
		}
		if err := c.writeCommand(fmt.Sprintf("STATION %s %s\r", sta, net)); err != nil {
			return err
		}
	}
	return c.readAck(r)
}

func (c *SLCD) sendSelectors(r *bufio.Reader, e *streamtable.Entry) error {
	for _, sel := range strings.Fields(e.Selectors) {
		if c.v4Negotiated && !looksLikeV4Selector(sel) {
			sel = translateSelectorV3toV4(sel)
		}
		if err := c.writeCommand(fmt.Sprintf("SELECT %s\r", sel)); err != nil {
			return err
		}
		if err := c.readAck(r); err != nil {
			return err
		}
	}
	return nil
}

// dataCommandLine builds exactly one of DATA / DATA <seq> / DATA <seq>
// <time window> / TIME <window>, choosing resumption and TIME support
// per the Negotiator's rules. Shared by sendDataCommand's v3 ping-pong
// and negotiateMultiV4's pipelined command list.
func (c *SLCD) dataCommandLine(e *streamtable.Entry) string {
	cmd := "DATA"
	if c.dialup {
		cmd = "FETCH"
	}

	switch {
	case e.LastSeq != streamtable.UnsetSequence:
		resume := e.LastSeq + 1
		if c.serverCaps["TIME"] && c.beginTime != "" {
			window := c.beginTime
			if c.endTime != "" {
				window += " " + c.endTime
			}
			cmd = fmt.Sprintf("%s %d %s", cmd, resume, window)
		} else {
			cmd = fmt.Sprintf("%s %d", cmd, resume)
		}
	case c.beginTime != "" && c.serverCaps["TIME"]:
		window := c.beginTime
		if c.endTime != "" {
			window += " " + c.endTime
		}
		cmd = fmt.Sprintf("TIME %s", window)
	}

	return cmd
}

// sendDataCommand issues the v3 ping-pong DATA/FETCH/TIME command:
// write, then wait for its ack before the caller proceeds.
func (c *SLCD) sendDataCommand(r *bufio.Reader, e *streamtable.Entry) error {
	if err := c.writeCommand(c.dataCommandLine(e) + "\r"); err != nil {
		return err
	}
	return c.readAck(r)
}

// writeCommand sends one command line, honoring batch mode's suppressed
// acknowledgements by simply not expecting a reply at the call site.
func (c *SLCD) writeCommand(cmd string) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.iotimeout))
	_, err := c.conn.Write([]byte(cmd))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// readAck reads and checks one OK/ERROR reply unless batch mode has
// suppressed acknowledgements for this command.
func (c *SLCD) readAck(r *bufio.Reader) error {
	if c.batchActive {
		return nil
	}
	return c.readOK(r)
}

func (c *SLCD) readLine(r *bufio.Reader) (string, error) {
	c.conn.SetReadDeadline(time.Now().Add(negotiationLineTimeout))
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *SLCD) readOK(r *bufio.Reader) error {
	line, err := c.readLine(r)
	if err != nil {
		return err
	}
	switch strings.TrimSpace(line) {
	case "OK":
		return nil
	default:
		return fmt.Errorf("unexpected reply %q", line)
	}
}
