package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	reconcilePasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homecare",
			Subsystem: "reconciler",
			Name:      "passes_total",
			Help:      "Total number of reconciliation passes.",
		},
		[]string{"kind", "success"},
	)

	reconcileExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homecare",
			Subsystem: "reconciler",
			Name:      "expired_applications_total",
			Help:      "Applications auto-rejected for a missed commission deadline.",
		},
		[]string{"kind"},
	)

	reconcileReopened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homecare",
			Subsystem: "reconciler",
			Name:      "reopened_requests_total",
			Help:      "Requests forced back to Opening by a reconciliation pass.",
		},
		[]string{"kind"},
	)

	reconcileResurrected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "homecare",
			Subsystem: "reconciler",
			Name:      "resurrected_applications_total",
			Help:      "Previously rejected applications reset to Pending on reopen.",
		},
		[]string{"kind"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "homecare",
			Subsystem: "reconciler",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		reconcilePasses,
		reconcileExpired,
		reconcileReopened,
		reconcileResurrected,
		reconcileDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordReconcilePass records the outcome of one reconciliation pass.
func RecordReconcilePass(kind string, expired, reopened, resurrected int, duration time.Duration, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	reconcilePasses.WithLabelValues(kind, result).Inc()
	reconcileExpired.WithLabelValues(kind).Add(float64(expired))
	reconcileReopened.WithLabelValues(kind).Add(float64(reopened))
	reconcileResurrected.WithLabelValues(kind).Add(float64(resurrected))
	reconcileDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
