// Package metrics exposes build progress as Prometheus metrics. A Collector
// observes the dispatcher and is served on the health server's /metrics
// endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/gridbuild/internal/executor"
	"github.com/specialistvlad/gridbuild/internal/graph"
)

const namespace = "gridbuild"

// Collector records step and build metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	StepsStarted  *prometheus.CounterVec
	StepsFinished *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	Slots         prometheus.Gauge
	Builds        *prometheus.CounterVec
	BuildDuration prometheus.Histogram
}

// New creates a collector with a fresh registry, including the Go runtime
// and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		StepsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_started_total",
			Help:      "Steps dispatched, by tool.",
		}, []string{"tool"}),
		StepsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_finished_total",
			Help:      "Steps finalized, by tool and status.",
		}, []string{"tool", "status"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of finalized steps, by tool.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"tool"}),
		Slots: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots_in_use",
			Help:      "Process pool slots currently held by running steps.",
		}),
		Builds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Build invocations, by aggregate status.",
		}, []string{"status"}),
		BuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time of build invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// StepStarted implements scheduler.Observer.
func (c *Collector) StepStarted(s *graph.Step) {
	c.StepsStarted.WithLabelValues(s.Name()).Inc()
}

// StepFinished implements scheduler.Observer.
func (c *Collector) StepFinished(s *graph.Step, status executor.Status, elapsed time.Duration) {
	c.StepsFinished.WithLabelValues(s.Name(), status.String()).Inc()
	c.StepDuration.WithLabelValues(s.Name()).Observe(elapsed.Seconds())
}

// SlotsInUse implements scheduler.Observer.
func (c *Collector) SlotsInUse(n int) {
	c.Slots.Set(float64(n))
}

// BuildFinished records one build invocation.
func (c *Collector) BuildFinished(status executor.Status, elapsed time.Duration) {
	c.Builds.WithLabelValues(status.String()).Inc()
	c.BuildDuration.Observe(elapsed.Seconds())
}
