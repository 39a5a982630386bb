package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the client's prometheus instruments.
type Collector struct {
	intake   *prometheus.CounterVec
	uploads  *prometheus.CounterVec
	answers  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// New registers the instruments on reg. A nil reg gets a private registry.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		intake: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "intake_results_total",
			Help:      "Validated file candidates by rejection reason (accepted when empty).",
		}, []string{"reason"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "uploads_total",
			Help:      "Upload calls by outcome.",
		}, []string{"outcome"}),
		answers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Name:      "question_duration_seconds",
			Help:      "Question round trips by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Name:      "questions_in_flight",
			Help:      "Questions awaiting an answer.",
		}),
	}
	reg.MustRegister(c.intake, c.uploads, c.answers, c.inFlight)
	return c
}

// ObserveIntake counts one validation result.
func (c *Collector) ObserveIntake(accepted bool, reason string) {
	if c == nil {
		return
	}
	if accepted {
		reason = "accepted"
	}
	c.intake.WithLabelValues(reason).Inc()
}

// ObserveUpload counts one upload call.
func (c *Collector) ObserveUpload(outcome string) {
	if c == nil {
		return
	}
	c.uploads.WithLabelValues(outcome).Inc()
}

func (c *Collector) QuestionStarted() {
	if c == nil {
		return
	}
	c.inFlight.Inc()
}

func (c *Collector) QuestionFinished(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.inFlight.Dec()
	c.answers.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
