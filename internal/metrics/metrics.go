// Package metrics counts materializations and releases so that leaked key
// material shows up on a dashboard rather than on a forensic report.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the keymat collectors. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry     *prometheus.Registry
	materialized *prometheus.CounterVec
	released     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	open         prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		materialized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keymat_materialized_total",
			Help: "Total number of credential materializations created",
		}, []string{"kind"}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keymat_released_total",
			Help: "Total number of credential materializations released",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keymat_release_failures_total",
			Help: "Total number of releases that left material on disk",
		}, []string{"kind"}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keymat_open_materials",
			Help: "Number of materializations created but not yet released",
		}),
	}
	r.registry.MustRegister(r.materialized, r.released, r.failures, r.open)
	return r
}

// Registry exposes the underlying registry for scraping.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Materialized records a new materialization of the given kind.
func (r *Recorder) Materialized(kind string) {
	if r == nil {
		return
	}
	r.materialized.WithLabelValues(kind).Inc()
	r.open.Inc()
}

// Released records the outcome of closing a materialization.
func (r *Recorder) Released(kind string, err error) {
	if r == nil {
		return
	}
	r.open.Dec()
	if err != nil {
		r.failures.WithLabelValues(kind).Inc()
		return
	}
	r.released.WithLabelValues(kind).Inc()
}

// WriteTextfile writes the current values in the text exposition format, for
// node_exporter's textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
