package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level counters and timings. Registered on the default registry and
// exposed by the server on /metrics.
var (
	WorkflowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartflow_workflows_started_total",
		Help: "Workflow instances created.",
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartflow_transitions_total",
		Help: "State transitions, by outcome.",
	}, []string{"outcome"})

	SagaExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartflow_saga_executions_total",
		Help: "Saga executions, by outcome.",
	}, []string{"outcome"})

	SagaDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cartflow_saga_duration_seconds",
		Help:    "Wall-clock duration of saga executions.",
		Buckets: prometheus.DefBuckets,
	})

	CompensationsAttempted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartflow_compensations_total",
		Help: "Compensation attempts during saga rollback, by outcome.",
	}, []string{"outcome"})

	ConcurrencyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartflow_concurrency_conflicts_total",
		Help: "Optimistic-concurrency conflicts surfaced to callers.",
	})
)
