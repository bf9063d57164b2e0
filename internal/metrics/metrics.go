package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for fetches, band computation,
// sessions and alerts.
type Metrics struct {
	FetchTotal          *prometheus.CounterVec // labels: outcome
	FetchDuration       prometheus.Histogram
	BandComputeDuration prometheus.Histogram
	SignalsTotal        *prometheus.CounterVec // labels: side
	SessionsActive      prometheus.Gauge
	AlertsTotal         prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandwatch_fetch_total",
			Help: "Exchange fetches by outcome (ok or failure reason)",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bandwatch_fetch_duration_seconds",
			Help:    "Exchange fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		BandComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bandwatch_band_compute_duration_seconds",
			Help:    "Band and signal computation latency per series",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandwatch_signals_total",
			Help: "Classified points by side",
		}, []string{"side"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandwatch_sessions_active",
			Help: "Dashboard sessions held in memory",
		}),
		AlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandwatch_alerts_total",
			Help: "Signal alerts sent",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchDuration,
		m.BandComputeDuration,
		m.SignalsTotal,
		m.SessionsActive,
		m.AlertsTotal,
	)
	return m
}

// ObserveFetch records one fetch. outcome is "ok" or the failure reason.
func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// ObserveCompute records one band computation and its signal counts.
func (m *Metrics) ObserveCompute(d time.Duration, buys, sells, holds int) {
	if m == nil {
		return
	}
	m.BandComputeDuration.Observe(d.Seconds())
	m.SignalsTotal.WithLabelValues("buy").Add(float64(buys))
	m.SignalsTotal.WithLabelValues("sell").Add(float64(sells))
	m.SignalsTotal.WithLabelValues("hold").Add(float64(holds))
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

func (m *Metrics) AlertSent() {
	if m == nil {
		return
	}
	m.AlertsTotal.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
