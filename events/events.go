// Package events broadcasts SeedLink connection lifecycle
// notifications over a Unix-domain socket as newline-delimited JSON,
// so an out-of-process supervisor can watch link-up/link-down/packet
// activity without linking against the client library. It is the
// adapted form of the teacher repo's eventsocket package: the same
// connect/accept/broadcast/remove-on-error server shape, built around
// a different event vocabulary (connection lifecycle rather than TCP
// flow open/close).
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/iris-edu/goslink"
)

// Kind identifies the sort of lifecycle notification being broadcast.
type Kind string

const (
	KindUp        Kind = "up"
	KindDown      Kind = "down"
	KindPacket    Kind = "packet"
	KindKeepalive Kind = "keepalive"
)

// Notification is one JSON line sent to every connected listener.
type Notification struct {
	Kind      Kind             `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Error     string           `json:"error,omitempty"`
	Packet    *slink.PacketInfo `json:"packet,omitempty"`
}

// Broadcaster is a slink.Handler that relays every notification to all
// currently connected Unix-socket clients, dropping a client whose
// write fails. Writes are synchronous, so a client that stops reading
// without closing stalls the relay; once the 100-entry queue is full
// the Handler methods block the Connection Loop.
type Broadcaster struct {
	filename string
	eventC   chan Notification

	mu       sync.Mutex
	clients  map[net.Conn]struct{}
	listener net.Listener
}

// NewBroadcaster constructs a Broadcaster that will serve filename once
// Listen and Serve are called. It implements slink.Handler immediately
// (events queue even before a listener exists, up to the channel's
// buffer).
func NewBroadcaster(filename string) *Broadcaster {
	return &Broadcaster{
		filename: filename,
		eventC:   make(chan Notification, 100),
		clients:  make(map[net.Conn]struct{}),
	}
}

// Listen opens the Unix-domain socket; Serve must be called afterward
// to actually accept clients.
func (b *Broadcaster) Listen() error {
	os.Remove(b.filename)
	l, err := net.Listen("unix", b.filename)
	if err != nil {
		return err
	}
	b.listener = l
	return nil
}

// Serve accepts clients and relays notifications until the listener is
// closed (by Close). It is meant to run in its own goroutine.
func (b *Broadcaster) Serve() error {
	go b.relay()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return err
		}
		b.addClient(conn)
	}
}

// Close shuts down the listener, which makes Serve return. Clients
// already connected are not closed and keep receiving notifications.
func (b *Broadcaster) Close() {
	if b.listener != nil {
		b.listener.Close()
	}
}

func (b *Broadcaster) addClient(c net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *Broadcaster) removeClient(c net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
}

func (b *Broadcaster) relay() {
	for n := range b.eventC {
		line, err := json.Marshal(n)
		if err != nil {
			log.Println("events: marshal:", err)
			continue
		}
		b.sendToAll(string(line))
	}
}

func (b *Broadcaster) sendToAll(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if _, err := fmt.Fprintln(c, line); err != nil {
			go b.removeClient(c)
			go c.Close()
		}
	}
}

// OnUp implements slink.Handler.
func (b *Broadcaster) OnUp(t time.Time) {
	b.eventC <- Notification{Kind: KindUp, Timestamp: t}
}

// OnDown implements slink.Handler.
func (b *Broadcaster) OnDown(t time.Time, err error) {
	n := Notification{Kind: KindDown, Timestamp: t}
	if err != nil {
		n.Error = err.Error()
	}
	b.eventC <- n
}

// OnPacket implements slink.Handler.
func (b *Broadcaster) OnPacket(t time.Time, info slink.PacketInfo) {
	b.eventC <- Notification{Kind: KindPacket, Timestamp: t, Packet: &info}
}

// OnKeepalive implements slink.Handler.
func (b *Broadcaster) OnKeepalive(t time.Time) {
	b.eventC <- Notification{Kind: KindKeepalive, Timestamp: t}
}
