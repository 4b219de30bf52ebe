package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycleDuration *prometheus.HistogramVec
	keyOutcomes   *prometheus.CounterVec
	publishes     *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxsentry_monitor_cycle_seconds",
				Help:    "Duration of monitoring cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"monitor"},
		),
		keyOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxsentry_monitor_key_outcomes_total",
				Help: "Per-key outcomes of monitoring cycles",
			},
			[]string{"monitor", "outcome"},
		),
		publishes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxsentry_event_publishes_total",
				Help: "Events offered to the broker by topic and result",
			},
			[]string{"topic", "result"},
		),
		suppressed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxsentry_notifications_suppressed_total",
				Help: "Notifications suppressed by cooldown or mute windows",
			},
			[]string{"level"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fxsentry_last_price",
				Help: "Last observed price per instrument",
			},
			[]string{"instrument"},
		),
	}
}

// RecordCycle records the duration of one monitor cycle.
func (r *Recorder) RecordCycle(monitor string, seconds float64) {
	r.cycleDuration.WithLabelValues(monitor).Observe(seconds)
}

// RecordKeyOutcome counts a per-key outcome (changed, unchanged, failed,
// insufficient_data, skipped).
func (r *Recorder) RecordKeyOutcome(monitor, outcome string) {
	r.keyOutcomes.WithLabelValues(monitor, outcome).Inc()
}

// RecordPublish counts a publish attempt per topic.
func (r *Recorder) RecordPublish(topic string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.publishes.WithLabelValues(topic, result).Inc()
}

// RecordSuppressed counts a notification suppressed before publishing.
func (r *Recorder) RecordSuppressed(level string) {
	r.suppressed.WithLabelValues(level).Inc()
}

// RecordLastPrice records the last seen price for an instrument.
func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}
