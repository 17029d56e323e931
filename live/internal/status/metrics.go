package status

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/domshield/live/report"
)

// Metrics counts enforcement activity. It is a report sink, so it can sit
// in the sink router next to the journal. Each Metrics owns its registry.
type Metrics struct {
	reg *prometheus.Registry

	reports   *prometheus.CounterVec
	flushes   prometheus.Counter
	flushErrs prometheus.Counter
	flushTime prometheus.Histogram
	active    prometheus.Gauge
	pushes    prometheus.Counter

	mu   sync.Mutex
	runs map[string]bool
}

// NewMetrics registers the domshield collectors plus the Go and process
// collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domshield",
			Name:      "reports_total",
			Help:      "Enforcement events by kind (hide, reassert, won, cancelled).",
		}, []string{"kind"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "domshield",
			Name:      "flushes_total",
			Help:      "Document loop flushes across all pages.",
		}),
		flushErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "domshield",
			Name:      "flush_errors_total",
			Help:      "Flushes that hit the delivery round limit.",
		}),
		flushTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "domshield",
			Name:      "flush_duration_seconds",
			Help:      "Time spent delivering mutation records per flush.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "domshield",
			Name:      "runs_active",
			Help:      "Runs whose summary has no end time yet.",
		}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "domshield",
			Name:      "style_pushes_total",
			Help:      "Style attributes written back to browser pages.",
		}),
		runs: make(map[string]bool),
	}
	m.reg.MustRegister(
		m.reports, m.flushes, m.flushErrs, m.flushTime, m.active, m.pushes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveFlush records one document flush. It matches mirror.Config.OnFlush.
func (m *Metrics) ObserveFlush(elapsed time.Duration, err error) {
	m.flushes.Inc()
	m.flushTime.Observe(elapsed.Seconds())
	if err != nil {
		m.flushErrs.Inc()
	}
}

// AddPushes adds n style write-backs.
func (m *Metrics) AddPushes(n int64) {
	if n > 0 {
		m.pushes.Add(float64(n))
	}
}

// Send counts r by kind.
func (m *Metrics) Send(_ context.Context, r report.Report) error {
	m.reports.WithLabelValues(string(r.Kind)).Inc()
	return nil
}

// SendSummary tracks which runs are still active.
func (m *Metrics) SendSummary(_ context.Context, s report.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Active() {
		m.runs[s.RunID] = true
	} else {
		delete(m.runs, s.RunID)
	}
	m.active.Set(float64(len(m.runs)))
	return nil
}

// Close is a no-op.
func (m *Metrics) Close() error { return nil }
