package engine

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for job outcome.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
)

var (
	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tensord_jobs_in_flight",
			Help: "Number of run jobs currently executing on worker goroutines.",
		},
	)

	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tensord_job_duration_seconds",
			Help:    "Session execution time per run job, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tensord_jobs_total",
			Help: "Total run jobs executed, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(jobsInFlight)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(jobsTotal)
}
