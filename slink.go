// Package slink is the SeedLink client connection engine: protocol
// negotiation, dual v3/v4 framing, per-station resumption bookkeeping,
// and the reconnecting Collect loop described in the design.
//
// The caller drives everything through repeated calls to Collect; the
// package itself never spawns goroutines. While streaming or waiting
// to reconnect a call blocks at most about 500 ms; the call that runs
// the Negotiator waits up to 30 s for each server reply (see
// Concurrency & Resource Model).
package slink

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/iris-edu/goslink/streamtable"
	"github.com/iris-edu/goslink/wire"
)

const (
	// DefaultPort is the plaintext SeedLink port.
	DefaultPort = "18000"
	// TLSPort is the conventional SeedLink-over-TLS port.
	TLSPort = "18500"

	ringBufferSize = 16 * 1024

	defaultNetto      = 600 * time.Second
	defaultNetdly     = 30 * time.Second
	defaultIOTimeout  = 60 * time.Second
	defaultKeepalive  = 0 // disabled
	blockingPollWait  = 500 * time.Millisecond
	nonblockPollWait  = time.Millisecond
	negotiationBudget = 30 * time.Second
)

// PacketInfo describes one delivered (or in-progress) packet.
type PacketInfo struct {
	Seq               uint64
	PayloadLen        uint32
	PayloadCollected  uint32
	PayloadFormat     wire.PayloadFormat
	PayloadSubformat  byte
	StationID         string
}

// AuthValueFunc produces the value for a v4 AUTH challenge; AuthFinishFunc
// receives whether the server accepted it. Both are caller-supplied
// collaborators registered with SetAuthCallbacks; the Negotiator does
// not send AUTH, so neither is called.
type AuthValueFunc func(data any) (string, error)
type AuthFinishFunc func(data any, ok bool)

// SLCD is a SeedLink connection descriptor: the single public entry
// point bundling the socket, ring buffer, in-progress PacketInfo, all
// timers, and the Stream Table, exactly as described under Ownership.
type SLCD struct {
	clientName    string
	clientVersion string

	addr string
	host string
	port string

	beginTime string
	endTime   string

	keepalive  time.Duration
	netto      time.Duration
	netdly     time.Duration
	iotimeout  time.Duration
	nonblock   bool
	dialup     bool
	batchmode  bool

	streams *streamtable.Table

	infoRequested bool
	infoLevel     string

	authValue  AuthValueFunc
	authFinish AuthFinishFunc
	authData   any

	log Logger

	conn   net.Conn
	dialer DialFunc

	link  linkState
	frame frameState
	query queryState
	term  terminateLevel

	nettoDeadline      time.Time
	netdlyDeadline     time.Time
	keepaliveDeadline  time.Time

	ring   *ringBuffer
	inProg PacketInfo
	// v4Negotiated records whether the session was promoted to v4, which
	// governs both the negotiation dialogue and the DATA command syntax.
	v4Negotiated bool
	serverCaps   map[string]bool
	batchActive  bool

	// Receive Pipeline state, carried across Collect invocations so a
	// packet spanning multiple reads (or a TooLarge retry) resumes
	// exactly where it left off.
	rxHeader      wire.Header
	rxStationNeed int
	rxPayload     []byte
	streamUpdated bool

	onEvent       Handler
	metrics       *Metrics
	everConnected bool
}

// New constructs a connection descriptor for the given client identity.
// clientVersion may be empty.
func New(clientName, clientVersion string) *SLCD {
	return &SLCD{
		clientName:    clientName,
		clientVersion: clientVersion,
		streams:       streamtable.New(),
		keepalive:     defaultKeepalive,
		netto:         defaultNetto,
		netdly:        defaultNetdly,
		iotimeout:     defaultIOTimeout,
		log:           NewDefaultLogger("slink "),
		ring:          newRingBuffer(ringBufferSize),
		serverCaps:    map[string]bool{},
	}
}

// SetLogger overrides the default leveled log sink.
func (c *SLCD) SetLogger(l Logger) { c.log = l }

// SetMetrics attaches a Metrics recorder; nil is valid and disables
// metrics recording.
func (c *SLCD) SetMetrics(m *Metrics) { c.metrics = m }

// SetHandler attaches a Lifecycle Handler; nil is valid and disables
// event notification.
func (c *SLCD) SetHandler(h Handler) { c.onEvent = h }

// SetAddress parses and stores the server address. Accepted forms:
// host:port, host, :port, host@port. A missing host defaults to
// localhost; a missing port defaults to DefaultPort. An invalid port
// returns ErrConfig and leaves the connection unusable.
func (c *SLCD) SetAddress(addr string) error {
	host, port, err := parseAddress(addr)
	if err != nil {
		return err
	}
	c.addr = addr
	c.host = host
	c.port = port
	return nil
}

func parseAddress(addr string) (host, port string, err error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost", DefaultPort, nil
	}

	sep := strings.IndexAny(addr, ":@")
	if sep < 0 {
		host = addr
		port = DefaultPort
	} else {
		host = addr[:sep]
		port = addr[sep+1:]
	}
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = DefaultPort
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return "", "", fmt.Errorf("%w: invalid port %q", ErrConfig, port)
	}
	return host, port, nil
}

// dialAddr returns the net.Dial-ready "host:port" string.
func (c *SLCD) dialAddr() string {
	return net.JoinHostPort(c.host, c.port)
}
