package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the pipeline. A nil *Metrics
// is valid and records nothing, so packages can be used without wiring.
type Metrics struct {
	FetchRequests *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	Fallbacks     prometheus.Counter
	CacheLookups  *prometheus.CounterVec
	Computations  *prometheus.CounterVec
	ExportItems   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betalens_fetch_requests_total",
				Help: "Provider fetches by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "betalens_fetch_duration_seconds",
				Help:    "Provider fetch latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
		Fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "betalens_fallbacks_total",
				Help: "Fetches served by the fallback provider after a primary failure",
			},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betalens_cache_lookups_total",
				Help: "Fetch cache lookups by result",
			},
			[]string{"result"},
		),
		Computations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betalens_computations_total",
				Help: "Sensitivity computations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		ExportItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "betalens_export_items_total",
				Help: "Export batch items by outcome",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.FetchRequests, m.FetchDuration, m.Fallbacks, m.CacheLookups, m.Computations, m.ExportItems)
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveFetch(provider string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(provider, outcome(err)).Inc()
	m.FetchDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveComputation(mode string, err error) {
	if m == nil {
		return
	}
	m.Computations.WithLabelValues(mode, outcome(err)).Inc()
}

func (m *Metrics) ObserveExportItem(err error) {
	if m == nil {
		return
	}
	m.ExportItems.WithLabelValues(outcome(err)).Inc()
}
