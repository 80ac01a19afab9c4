// Package metrics instruments the trace pipeline itself. Overflow drops
// are silent on the emit path; the counters here are the only place they
// become observable.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the pipeline's own health metrics, labeled by
// (category, component) pair.
type Pipeline struct {
	RecordsWritten *prometheus.CounterVec
	RecordsDropped *prometheus.CounterVec
	Rotations      *prometheus.CounterVec
	EncodeFailures *prometheus.CounterVec
	WriteFailures  *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec

	registry *prometheus.Registry
}

var pairLabels = []string{"category", "component"}

// New creates pipeline metrics on a private registry so embedding the
// pipeline never collides with the host's default registry.
func New() *Pipeline {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Pipeline{
		RecordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trace_records_written_total",
			Help: "Records persisted to the active file",
		}, pairLabels),
		RecordsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trace_records_dropped_total",
			Help: "Records dropped because the write queue was full",
		}, pairLabels),
		Rotations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trace_rotations_total",
			Help: "Size-based rotations of the active file",
		}, pairLabels),
		EncodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trace_encode_failures_total",
			Help: "Records that failed JSON serialization",
		}, pairLabels),
		WriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trace_write_failures_total",
			Help: "Append or rotation failures on the active file",
		}, pairLabels),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trace_queue_depth",
			Help: "Records currently buffered per pair",
		}, pairLabels),
		registry: reg,
	}
}

// Registry exposes the private registry so hosts can mount it on their
// own metrics endpoint.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}
