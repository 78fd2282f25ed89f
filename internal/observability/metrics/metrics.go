package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for slot computation and
// voice booking flows.
type SchedulingMetrics struct {
	slotComputations *prometheus.CounterVec
	phantomDiscarded prometheus.Counter
	dateDefaults     prometheus.Counter
	bookingOutcomes  *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
	computeLatency   prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotComputations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetcare",
			Subsystem: "scheduling",
			Name:      "slot_computations_total",
			Help:      "Slot computations by outcome",
		}, []string{"outcome"}),
		phantomDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vetcare",
			Subsystem: "scheduling",
			Name:      "phantom_records_discarded_total",
			Help:      "Availability records fetched under an adjacent UTC date and dropped by the local-date filter",
		}),
		dateDefaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vetcare",
			Subsystem: "voice",
			Name:      "date_defaults_total",
			Help:      "Spoken dates that could not be parsed and defaulted to tomorrow",
		}),
		bookingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetcare",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Voice booking attempts by outcome",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vetcare",
			Subsystem: "voice",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of Retell function-call webhooks",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
		computeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vetcare",
			Subsystem: "scheduling",
			Name:      "slot_computation_seconds",
			Help:      "Latency of a single slot computation including store reads",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotComputations, m.phantomDiscarded, m.dateDefaults, m.bookingOutcomes, m.webhookLatency, m.computeLatency)
	return m
}

func (m *SchedulingMetrics) ObserveSlotComputation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.slotComputations.WithLabelValues(outcome).Inc()
	m.computeLatency.Observe(seconds)
}

func (m *SchedulingMetrics) AddPhantomDiscarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.phantomDiscarded.Add(float64(n))
}

func (m *SchedulingMetrics) IncDateDefault() {
	if m == nil {
		return
	}
	m.dateDefaults.Inc()
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveWebhookLatency(function string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(function).Observe(seconds)
}
