package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ingest outcome labels.
const (
	IngestAccepted    = "accepted"
	IngestDuplicate   = "duplicate"
	IngestRejected    = "rejected"
	IngestRateLimited = "rate_limited"
)

var (
	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alertops",
			Name:      "ingest_total",
			Help:      "Total number of inbound alert deliveries, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	correlationRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alertops",
			Name:      "correlation_runs_total",
			Help:      "Total number of correlation passes executed.",
		},
	)

	incidentsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alertops",
			Name:      "incidents_created_total",
			Help:      "Total number of incidents created by correlation.",
		},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alertops",
			Name:      "escalations_total",
			Help:      "Total number of escalation transitions, partitioned by level.",
		},
		[]string{"level"},
	)

	schedulerTickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alertops",
			Name:      "scheduler_tick_seconds",
			Help:      "Escalation scheduler tick latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
)

// Register attaches alertops collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		ingestTotal,
		correlationRunsTotal,
		incidentsCreatedTotal,
		escalationsTotal,
		schedulerTickSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// CountIngest records one inbound delivery outcome.
func CountIngest(outcome string) {
	ingestTotal.WithLabelValues(outcome).Inc()
}

// CountCorrelationRun records one correlation pass and the incidents it created.
func CountCorrelationRun(incidentsCreated int) {
	correlationRunsTotal.Inc()
	if incidentsCreated > 0 {
		incidentsCreatedTotal.Add(float64(incidentsCreated))
	}
}

// CountEscalation records one escalation transition at the given level.
func CountEscalation(level string) {
	escalationsTotal.WithLabelValues(level).Inc()
}

// ObserveSchedulerTick records one scheduler tick duration.
func ObserveSchedulerTick(seconds float64) {
	schedulerTickSeconds.Observe(seconds)
}
