// Package metrics defines the Prometheus metrics the SeedLink client
// engine reports and a small Recorder wrapper that pre-binds them to
// one client identity, so callers never have to repeat a label set.
//
// When defining new operations or metrics, these are helpful values to
// track: things coming into or going out of the system (connections,
// packets, bytes); the success or error status of any of the above;
// and the distribution of processing latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsTotal counts every transport connection opened by the
	// Connection Loop, including reconnects.
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedlink_connections_total",
			Help: "Number of transport connections opened.",
		}, []string{"client_name"})

	// ReconnectsTotal counts connections opened after an earlier one
	// failed or was closed, as distinct from the first connection.
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedlink_reconnects_total",
			Help: "Number of connections opened after the first one.",
		}, []string{"client_name"})

	// PacketsTotal counts packets delivered to the caller via Collect.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedlink_packets_total",
			Help: "Number of complete packets delivered to the caller.",
		}, []string{"client_name"})

	// PayloadBytesTotal sums delivered payload bytes.
	PayloadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedlink_payload_bytes_total",
			Help: "Total payload bytes delivered to the caller.",
		}, []string{"client_name"})

	// KeepalivesSentTotal counts INFO ID keepalive probes sent.
	KeepalivesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedlink_keepalives_sent_total",
			Help: "Number of keepalive INFO ID requests sent.",
		}, []string{"client_name"})

	// NegotiationLatencyHistogram tracks how long the Negotiator takes
	// to reach a streaming-ready socket, start to finish.
	NegotiationLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seedlink_negotiation_latency_seconds",
			Help:    "Negotiator completion latency distribution (seconds).",
			Buckets: prometheus.DefBuckets,
		}, []string{"client_name"})

	// ErrorsTotal counts errors by category (framing, transport, idle,
	// negotiation).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seedlink_errors_total",
			Help: "Number of errors encountered, by category.",
		}, []string{"client_name", "category"})
)

// Recorder pre-binds the package's metric vectors to one client_name
// label, so the Connection Loop can call plain methods instead of
// repeating a label set on every hot-path increment.
type Recorder struct {
	name string

	connections prometheus.Counter
	reconnects  prometheus.Counter
	packets     prometheus.Counter
	payloadByte prometheus.Counter
	keepalives  prometheus.Counter
	negotiation prometheus.Observer
}

// NewRecorder returns a Recorder bound to clientName.
func NewRecorder(clientName string) *Recorder {
	return &Recorder{
		name:        clientName,
		connections: ConnectionsTotal.WithLabelValues(clientName),
		reconnects:  ReconnectsTotal.WithLabelValues(clientName),
		packets:     PacketsTotal.WithLabelValues(clientName),
		payloadByte: PayloadBytesTotal.WithLabelValues(clientName),
		keepalives:  KeepalivesSentTotal.WithLabelValues(clientName),
		negotiation: NegotiationLatencyHistogram.WithLabelValues(clientName),
	}
}

// Connected records a newly opened transport connection. first
// distinguishes the initial connection from a reconnect.
func (r *Recorder) Connected(first bool) {
	r.connections.Inc()
	if !first {
		r.reconnects.Inc()
	}
}

// Packet records one delivered packet of n payload bytes.
func (r *Recorder) Packet(n int) {
	r.packets.Inc()
	r.payloadByte.Add(float64(n))
}

// KeepaliveSent records one INFO ID keepalive probe.
func (r *Recorder) KeepaliveSent() {
	r.keepalives.Inc()
}

// NegotiationLatency records how long one Negotiator run took.
func (r *Recorder) NegotiationLatency(d time.Duration) {
	r.negotiation.Observe(d.Seconds())
}

// Error increments the error counter for category.
func (r *Recorder) Error(category string) {
	ErrorsTotal.WithLabelValues(r.name, category).Inc()
}
