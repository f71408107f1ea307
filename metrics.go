package slink

import "github.com/iris-edu/goslink/metrics"

// Metrics is the Connection Loop's metrics sink. It is a thin alias
// over metrics.Recorder so callers never need to import the metrics
// package themselves just to hold a reference.
type Metrics = metrics.Recorder

// NewMetrics returns a Metrics recorder labelled with clientName,
// suitable for passing to SetMetrics.
func NewMetrics(clientName string) *Metrics {
	return metrics.NewRecorder(clientName)
}
