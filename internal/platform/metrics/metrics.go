package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_transitions_total",
			Help: "Successful leave status transitions",
		},
		[]string{"transition"},
	)

	NoOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_noops_total",
			Help: "Transitions refused by policy without state change",
		},
		[]string{"transition"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_cache_lookups_total",
			Help: "Read cache lookups by key family and result",
		},
		[]string{"family", "result"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_cache_invalidations_total",
			Help: "Read cache keys removed after writes",
		},
		[]string{"family"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leave_notifications_total",
			Help: "Notification deliveries by result",
		},
		[]string{"result"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by status code",
		},
		[]string{"status"},
	)

	httpDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordRequest tracks one served HTTP request.
func RecordRequest(status int, duration time.Duration) {
	httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	httpDuration.Observe(duration.Seconds())
}
