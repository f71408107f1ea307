package metrics_test

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/prometheus/util/promlint"

	"github.com/iris-edu/goslink/metrics"
)

// TestPrometheusMetrics exercises a Recorder through one full
// connect/packet/error cycle and lints the resulting exposition text,
// the same promlint check the teacher repo runs against its own
// metrics.
func TestPrometheusMetrics(t *testing.T) {
	r := metrics.NewRecorder("metrics_test")
	r.Connected(true)
	r.Connected(false)
	r.Packet(512)
	r.KeepaliveSent()
	r.NegotiationLatency(50 * time.Millisecond)
	r.Error("transport")

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("could not GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read metrics: %v", err)
	}

	problems, err := promlint.New(bytes.NewReader(body)).Lint()
	if err != nil {
		t.Errorf("could not lint metrics: %v", err)
	}
	for _, p := range problems {
		t.Errorf("bad metric %v: %v", p.Metric, p.Text)
	}
}
