package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "availability"

var (
	once sync.Once

	bookingCreate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_create_total",
			Help:      "Booking create attempts by outcome (ok, conflict, rejected, error).",
		},
		[]string{"outcome"},
	)

	bookingTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transition_total",
			Help:      "Booking status changes by target status and outcome.",
		},
		[]string{"to", "outcome"},
	)

	dayView = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_view_total",
			Help:      "Day view requests by cache result (hit, miss).",
		},
		[]string{"cache"},
	)

	composeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "day_compose_seconds",
			Help:      "Time spent composing a day view from the store.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	cacheInvalidationFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidation_failed_total",
			Help:      "Cache invalidations that failed after a committed write.",
		},
	)

	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events handed to Kafka by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreate, bookingTransition, dayView, composeSeconds, cacheInvalidationFailed, outboxPublished)
	})
}

func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func IncBookingCreate(outcome string) {
	bookingCreate.WithLabelValues(outcome).Inc()
}

func IncBookingTransition(to, outcome string) {
	bookingTransition.WithLabelValues(to, outcome).Inc()
}

func IncDayView(hit bool) {
	if hit {
		dayView.WithLabelValues("hit").Inc()
		return
	}
	dayView.WithLabelValues("miss").Inc()
}

func ObserveCompose(seconds float64) {
	composeSeconds.Observe(seconds)
}

func IncCacheInvalidationFailed() {
	cacheInvalidationFailed.Inc()
}

func AddOutboxPublished(result string, n int) {
	outboxPublished.WithLabelValues(result).Add(float64(n))
}
