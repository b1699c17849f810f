package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder groups the dashboard's Prometheus collectors. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	QueriesTotal   *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	UploadsTotal   *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vizloom_queries_total",
				Help: "Total number of analysis queries by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vizloom_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 3, 10),
			},
			[]string{"stage"},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vizloom_uploads_total",
				Help: "Total number of dataset uploads by outcome",
			},
			[]string{"outcome"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vizloom_active_sessions",
				Help: "Number of live dashboard sessions",
			},
		),
	}
	reg.MustRegister(r.QueriesTotal, r.StageDuration, r.UploadsTotal, r.ActiveSessions)
	return r
}

// ObserveStage records how long a pipeline stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Query counts a finished query; outcome is "ok" or the failing stage name.
func (r *Recorder) Query(outcome string) {
	if r == nil {
		return
	}
	r.QueriesTotal.WithLabelValues(outcome).Inc()
}

// Upload counts a dataset upload attempt.
func (r *Recorder) Upload(ok bool) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.UploadsTotal.WithLabelValues(outcome).Inc()
}

// SetSessions updates the live session gauge.
func (r *Recorder) SetSessions(n int) {
	if r == nil {
		return
	}
	r.ActiveSessions.Set(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
