// Package metrics exposes Prometheus instrumentation for feed ingestion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Limiter wait outcomes.
const (
	WaitAcquired  = "acquired"
	WaitTimeout   = "timeout"
	WaitCancelled = "cancelled"
)

// Metrics holds the ingestion collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	linesTotal         *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	flushesTotal       *prometheus.CounterVec
	limiterWait        *prometheus.HistogramVec
	activeRuns         *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		linesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickfeed_lines_total",
				Help: "Lines processed, by feed and outcome",
			},
			[]string{"feed", "outcome"},
		),

		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickfeed_notifications_total",
				Help: "Field notifications delivered to listeners",
			},
			[]string{"feed"},
		),

		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickfeed_runs_total",
				Help: "Completed stream runs, by feed and status",
			},
			[]string{"feed", "status"},
		),

		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tickfeed_run_duration_seconds",
				Help:    "Stream run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"feed"},
		),

		flushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickfeed_flushes_total",
				Help: "Listener flushes, by feed and status",
			},
			[]string{"feed", "status"},
		),

		limiterWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tickfeed_limiter_wait_seconds",
				Help:    "Time spent waiting for an ingest slot, by feed and outcome",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60},
			},
			[]string{"feed", "outcome"},
		),

		activeRuns: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickfeed_active_runs",
				Help: "Ingest runs currently holding a slot, by feed",
			},
			[]string{"feed"},
		),
	}
}

// ObserveLine counts one processed line.
func (m *Metrics) ObserveLine(feed, outcome string) {
	if m == nil {
		return
	}
	m.linesTotal.WithLabelValues(feed, outcome).Inc()
}

// ObserveNotifications counts n listener notifications.
func (m *Metrics) ObserveNotifications(feed string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notificationsTotal.WithLabelValues(feed).Add(float64(n))
}

// ObserveRun records a finished stream run.
func (m *Metrics) ObserveRun(feed string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(feed, status(err)).Inc()
	m.runDuration.WithLabelValues(feed).Observe(d.Seconds())
}

// ObserveFlush records one listener flush.
func (m *Metrics) ObserveFlush(feed string, err error) {
	if m == nil {
		return
	}
	m.flushesTotal.WithLabelValues(feed, status(err)).Inc()
}

// ObserveLimiterWait records how long a run waited for a slot and how the
// wait ended (WaitAcquired, WaitTimeout or WaitCancelled).
func (m *Metrics) ObserveLimiterWait(feed string, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.limiterWait.WithLabelValues(feed, outcome).Observe(d.Seconds())
}

// SetActiveRuns sets the number of slots held by feed.
func (m *Metrics) SetActiveRuns(feed string, n int) {
	if m == nil {
		return
	}
	m.activeRuns.WithLabelValues(feed).Set(float64(n))
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}
