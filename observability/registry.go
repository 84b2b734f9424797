// Package observability aggregates counters, gauges, and histograms with
// label-keyed variants, a snapshot/export surface, and an optional
// periodic push to a tally.Scope. It is a deliberately smaller sibling of
// the teacher's internal/pally.Registry: pally maintains its own digester
// and vector machinery on top of a raw prometheus.Registry; this package
// instead registers prometheus's own Counter/Gauge/Histogram types
// directly; construction, labeling, and the promhttp handler all still
// come straight from the teacher's pattern.
package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is a collection of metrics, typically scoped to one flowkit
// instance, and doubles as its own http.Handler for scraping.
type Registry struct {
	constLabels prometheus.Labels

	mu         sync.RWMutex
	prom       *prometheus.Registry
	handler    http.Handler
	pusherStop chan struct{}
}

// NewRegistry constructs a Registry. constLabels are attached to every
// metric it creates.
func NewRegistry(constLabels map[string]string) *Registry {
	prom := prometheus.NewRegistry()
	return &Registry{
		constLabels: prometheus.Labels(constLabels),
		prom:        prom,
		handler:     promhttp.HandlerFor(prom, promhttp.HandlerOpts{}),
	}
}

// Handler serves Prometheus-formatted text for scraping.
func (r *Registry) Handler() http.Handler {
	return r.handler
}

// Counter registers and returns a monotonic counter.
func (r *Registry) Counter(name, help string) (prometheus.Counter, error) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help, ConstLabels: r.constLabels})
	if err := r.prom.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// CounterVector registers and returns a label-keyed counter family.
func (r *Registry) CounterVector(name, help string, labelNames []string) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help, ConstLabels: r.constLabels}, labelNames)
	if err := r.prom.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Gauge registers and returns a gauge.
func (r *Registry) Gauge(name, help string) (prometheus.Gauge, error) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: r.constLabels})
	if err := r.prom.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

// GaugeVector registers and returns a label-keyed gauge family.
func (r *Registry) GaugeVector(name, help string, labelNames []string) (*prometheus.GaugeVec, error) {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help, ConstLabels: r.constLabels}, labelNames)
	if err := r.prom.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Histogram registers and returns a latency/size histogram ("Latencies" in
// spec §4.11's observability vocabulary).
func (r *Registry) Histogram(name, help string, buckets []float64) (prometheus.Histogram, error) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets, ConstLabels: r.constLabels})
	if err := r.prom.Register(h); err != nil {
		return nil, err
	}
	return h, nil
}

// HistogramVector registers and returns a label-keyed histogram family.
func (r *Registry) HistogramVector(name, help string, buckets []float64, labelNames []string) (*prometheus.HistogramVec, error) {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets, ConstLabels: r.constLabels}, labelNames)
	if err := r.prom.Register(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Gatherer exposes the underlying prometheus.Registry for a snapshot
// (prometheus.Gatherer.Gather), matching pally's choice to let Prometheus's
// own registry provide metric-family snapshotting rather than a bespoke
// type.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}
