// Package telemetry exposes Prometheus counters for resolution runs.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/opendate-cli/internal/model"
)

// Metrics holds the resolution counters on their own registry so several
// servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	EntitiesTotal    prometheus.Counter
	ResolutionsTotal *prometheus.CounterVec
	AttemptsTotal    *prometheus.CounterVec
	AttemptDuration  *prometheus.HistogramVec
	RequestsTotal    *prometheus.CounterVec
}

// New creates and registers the metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EntitiesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "opendate_entities_total",
			Help: "Entities submitted for resolution",
		}),
		ResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opendate_resolutions_total",
			Help: "Resolved entities by winning source and tier",
		}, []string{"source", "tier"}),
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opendate_source_attempts_total",
			Help: "Source attempts by outcome",
		}, []string{"source", "outcome"}),
		AttemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opendate_source_attempt_duration_seconds",
			Help:    "Duration of source attempts in seconds",
			Buckets: []float64{.0001, .001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opendate_api_requests_total",
			Help: "API requests by route and status class",
		}, []string{"route", "status"}),
	}
}

// Observe counts one batch of results.
func (m *Metrics) Observe(results []model.ResolvedDate) {
	for _, r := range results {
		m.EntitiesTotal.Inc()
		if r.Resolved() {
			m.ResolutionsTotal.WithLabelValues(r.Source, string(r.Tier)).Inc()
		}
		for _, a := range r.Attempts {
			m.AttemptsTotal.WithLabelValues(a.Source, string(a.Outcome)).Inc()
			m.AttemptDuration.WithLabelValues(a.Source).Observe(a.Duration.Seconds())
		}
	}
}

// Request counts an API request.
func (m *Metrics) Request(route string, status int) {
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	}
	m.RequestsTotal.WithLabelValues(route, class).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
