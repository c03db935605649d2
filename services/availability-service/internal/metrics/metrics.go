package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "availability"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	computations    *prometheus.CounterVec
	computeDuration prometheus.Histogram
	slotsReturned   prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	eventsConsumed  *prometheus.CounterVec
}

// New registers the collectors with reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		computations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_total",
			Help:      "Slot computations by outcome.",
		}, []string{"outcome"}),
		computeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Time to resolve, fetch and compute slots for a request.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		slotsReturned: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slots_returned",
			Help:      "Number of slots returned per computation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Slot cache lookups by result.",
		}, []string{"result"}),
		eventsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Booking events consumed by topic and outcome.",
		}, []string{"topic", "outcome"}),
	}
}

func (m *Metrics) ObserveComputation(outcome string, took time.Duration, slots int) {
	if m == nil {
		return
	}
	m.computations.WithLabelValues(outcome).Inc()
	m.computeDuration.Observe(took.Seconds())
	if outcome == "ok" {
		m.slotsReturned.Observe(float64(slots))
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) EventConsumed(topic, outcome string) {
	if m != nil {
		m.eventsConsumed.WithLabelValues(topic, outcome).Inc()
	}
}
