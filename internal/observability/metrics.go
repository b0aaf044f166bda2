package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes prometheus instruments for the SLA engine.
type Metrics struct {
	BatchRuns        *prometheus.CounterVec
	TicketsProcessed prometheus.Counter
	TicketErrors     prometheus.Counter
	BreachesDetected *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
	SchedulerRunning prometheus.Gauge
}

// NewMetrics registers engine metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BatchRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_batch_runs_total",
			Help: "Completed SLA batch runs by outcome.",
		}, []string{"outcome"}),
		TicketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sla_tickets_processed_total",
			Help: "Tickets evaluated by the SLA engine.",
		}),
		TicketErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sla_ticket_errors_total",
			Help: "Per-ticket failures caught during batch evaluation.",
		}),
		BreachesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_breaches_detected_total",
			Help: "Newly detected SLA breaches by type.",
		}, []string{"type"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sla_batch_duration_seconds",
			Help:    "Duration of SLA batch runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		SchedulerRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sla_scheduler_running",
			Help: "1 while the SLA batch scheduler loop is running.",
		}),
	}
}

// ObserveBatch records the result of one batch run.
func (m *Metrics) ObserveBatch(outcome string, processed, errors int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BatchRuns.WithLabelValues(outcome).Inc()
	m.TicketsProcessed.Add(float64(processed))
	m.TicketErrors.Add(float64(errors))
	m.BatchDuration.Observe(duration.Seconds())
}

// ObserveBreach records a newly detected breach.
func (m *Metrics) ObserveBreach(breachType string) {
	if m == nil {
		return
	}
	m.BreachesDetected.WithLabelValues(breachType).Inc()
}
