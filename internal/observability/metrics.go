package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regdbot_generation_attempts_total",
			Help: "Language-model generation attempts by purpose.",
		},
		[]string{"purpose"},
	)

	statementExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regdbot_statement_executions_total",
			Help: "SQL statement executions by dialect and outcome.",
		},
		[]string{"dialect", "outcome"},
	)

	statementDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regdbot_statement_duration_seconds",
			Help:    "SQL statement execution latency by dialect.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dialect"},
	)

	loopExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "regdbot_loop_exhausted_total",
			Help: "Generation/repair loops that ran out of retry budget.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		generationAttemptsTotal,
		statementExecutionsTotal,
		statementDurationSeconds,
		loopExhaustedTotal,
	)
}

func ObserveGeneration(purpose string) {
	generationAttemptsTotal.WithLabelValues(purpose).Inc()
}

func ObserveExecution(dialect, outcome string, duration time.Duration) {
	statementExecutionsTotal.WithLabelValues(dialect, outcome).Inc()
	statementDurationSeconds.WithLabelValues(dialect).Observe(duration.Seconds())
}

func ObserveExhaustion() {
	loopExhaustedTotal.Inc()
}
