package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SchedulingMetrics exposes counters and histograms for slot resolution and
// booking. A nil *SchedulingMetrics is a no-op.
type SchedulingMetrics struct {
	resolutions     *prometheus.CounterVec
	resolveLatency  prometheus.Histogram
	invalidRules    prometheus.Counter
	ambiguousDays   prometheus.Counter
	bookings        *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	consumedEvents  *prometheus.CounterVec
	publishedEvents prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicslots",
			Subsystem: "availability",
			Name:      "day_resolutions_total",
			Help:      "Day resolutions by resulting state",
		}, []string{"state"}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicslots",
			Subsystem: "availability",
			Name:      "day_resolution_seconds",
			Help:      "Latency of loading inputs and resolving a day",
			Buckets:   prometheus.DefBuckets,
		}),
		invalidRules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicslots",
			Subsystem: "availability",
			Name:      "invalid_rules_total",
			Help:      "Window rules skipped as invalid during resolution",
		}),
		ambiguousDays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicslots",
			Subsystem: "availability",
			Name:      "ambiguous_days_total",
			Help:      "Resolved dates carrying both a block and an open date-specific window",
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicslots",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking and reschedule requests by operation and result",
		}, []string{"operation", "result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicslots",
			Subsystem: "cache",
			Name:      "schedule_lookups_total",
			Help:      "Schedule cache lookups by result",
		}, []string{"result"}),
		consumedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicslots",
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Consumed change events by type and outcome",
		}, []string{"event_type", "outcome"}),
		publishedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicslots",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Outbox events published to Kafka",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.resolutions, m.resolveLatency, m.invalidRules, m.ambiguousDays,
		m.bookings, m.cacheLookups, m.consumedEvents, m.publishedEvents)
	return m
}

func (m *SchedulingMetrics) ObserveDay(state string, invalid int, ambiguous bool, seconds float64) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(state).Inc()
	m.resolveLatency.Observe(seconds)
	if invalid > 0 {
		m.invalidRules.Add(float64(invalid))
	}
	if ambiguous {
		m.ambiguousDays.Inc()
	}
}

// ObserveAmbiguous counts ambiguous dates found outside a full day
// resolution, such as calendar ranges.
func (m *SchedulingMetrics) ObserveAmbiguous(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ambiguousDays.Add(float64(n))
}

func (m *SchedulingMetrics) ObserveBooking(operation, result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(operation, result).Inc()
}

func (m *SchedulingMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveConsumed(eventType, outcome string) {
	if m == nil {
		return
	}
	m.consumedEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *SchedulingMetrics) ObservePublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.publishedEvents.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
