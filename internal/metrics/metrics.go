package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "televet"

var (
	once sync.Once

	templatesApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "templates_applied_total",
			Help:      "Count of template apply operations that wrote at least one date.",
		},
	)

	applyOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_dates_total",
			Help:      "Count of dates processed by template applies, by outcome.",
		},
		[]string{"outcome"},
	)

	conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_dates_total",
			Help:      "Count of analyzed dates by conflict case.",
		},
		[]string{"case"},
	)

	slotsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_expired_total",
			Help:      "Count of slots flipped to expired by sweeps.",
		},
	)

	slotsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_purged_total",
			Help:      "Count of expired slots removed by purges.",
		},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Count of booking attempts by result.",
		},
		[]string{"result"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vet_sessions_active",
			Help:      "Number of open vet scheduling sessions.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2},
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			templatesApplied, applyOutcomes, conflicts,
			slotsExpired, slotsPurged, bookings,
			activeSessions, httpRequests, httpDuration,
		)
	})
}

func IncTemplatesApplied() {
	templatesApplied.Inc()
}

func IncApplyOutcome(outcome string) {
	applyOutcomes.WithLabelValues(outcome).Inc()
}

func AddConflicts(kind string, n int) {
	conflicts.WithLabelValues(kind).Add(float64(n))
}

func AddSlotsExpired(n int) {
	slotsExpired.Add(float64(n))
}

func AddSlotsPurged(n int) {
	slotsPurged.Add(float64(n))
}

func IncBooking(result string) {
	bookings.WithLabelValues(result).Inc()
}

func SessionOpened() {
	activeSessions.Inc()
}

func SessionClosed() {
	activeSessions.Dec()
}

func ObserveHTTP(route, code string, seconds float64) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}
