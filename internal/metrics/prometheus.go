package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "metaprop"

// Prometheus records observer events on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	passes        *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	dependents    prometheus.Counter
	drained       *prometheus.CounterVec
	runs          prometheus.Counter
	runDuration   prometheus.Histogram
	lastRunPolled prometheus.Gauge
}

// NewPrometheus registers the metaprop collectors plus Go runtime collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		passes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhance_passes_total",
			Help:      "Enhancement passes by mode and outcome.",
		}, []string{"mode", "outcome"}),
		passDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enhance_pass_duration_seconds",
			Help:      "Enhancement pass latency by mode.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"mode"}),
		dependents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dependents_enqueued_total",
			Help:      "Dependent record ids newly added to the pending queue.",
		}),
		drained: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_items_total",
			Help:      "Pending ids processed by the drain worker, by outcome.",
		}, []string{"outcome"}),
		runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_runs_total",
			Help:      "Completed drain runs.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_run_duration_seconds",
			Help:      "Drain run wall time.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastRunPolled: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drain_last_run_polled",
			Help:      "Ids polled by the most recent drain run.",
		}),
	}
}

// WatchQueueDepth exposes the pending queue size, sampled at scrape time.
func (p *Prometheus) WatchQueueDepth(depth func() float64) {
	p.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_pending",
		Help:      "Record ids awaiting a deep enhancement pass.",
	}, depth))
}

// Registry exposes the underlying registry for tests and custom exporters.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) PassCompleted(mode, outcome string, d time.Duration) {
	p.passes.WithLabelValues(mode, outcome).Inc()
	p.passDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *Prometheus) DependentsEnqueued(n int) {
	if n > 0 {
		p.dependents.Add(float64(n))
	}
}

func (p *Prometheus) ItemDrained(outcome string) {
	p.drained.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) RunCompleted(stats RunStats, d time.Duration) {
	p.runs.Inc()
	p.runDuration.Observe(d.Seconds())
	p.lastRunPolled.Set(float64(stats.Polled))
}
