package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medqa",
			Subsystem: "coordinator",
			Name:      "jobs_total",
			Help:      "Jobs by terminal outcome",
		},
		[]string{"outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medqa",
			Subsystem: "coordinator",
			Name:      "job_duration_seconds",
			Help:      "Time from submit to terminal state",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	preemptionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medqa",
		Subsystem: "coordinator",
		Name:      "preemptions_total",
		Help:      "Live jobs cancelled by a newer submission",
	})

	historyTruncationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medqa",
		Subsystem: "coordinator",
		Name:      "history_truncations_total",
		Help:      "Prompts whose history was truncated to fit the budget",
	})
)

func init() {
	prometheus.MustRegister(jobsTotal, jobDuration, preemptionsTotal, historyTruncationsTotal)
}
