// Package metrics exposes the Prometheus collectors the executor reports
// through (attempts, fallbacks, chains, health checks, and whole
// executions), all registered against the default registry and served by
// cmd/remediator's /metrics endpoint. BreakerTransitionsTotal and
// RecordBreakerTransition are declared here but nothing in this repository
// calls RecordBreakerTransition.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal counts every primary/fallback action attempt.
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remediator_action_attempts_total",
		Help: "Total recovery action attempts, labeled by action and outcome.",
	}, []string{"action", "outcome"})

	// FallbacksTotal counts fallback invocations.
	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remediator_fallback_invocations_total",
		Help: "Total fallback action invocations, labeled by action and outcome.",
	}, []string{"action", "outcome"})

	// ChainsTotal counts chained playbook executions.
	ChainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remediator_chained_playbooks_total",
		Help: "Total chained playbook executions, labeled by outcome.",
	}, []string{"outcome"})

	// BreakerTransitionsTotal counts state transitions of the circuit
	// breaker fabric.
	BreakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remediator_breaker_transitions_total",
		Help: "Total circuit breaker state transitions, labeled by the state transitioned to.",
	}, []string{"to_state"})

	// AttemptDuration observes the wall-clock time of one primary or
	// fallback action attempt, including its health check.
	AttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remediator_attempt_duration_seconds",
		Help:    "Duration of a single recovery action attempt.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// HealthCheckDuration observes the wall-clock time of a post-action
	// health verification poll loop.
	HealthCheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remediator_health_check_duration_seconds",
		Help:    "Duration of a post-action health verification poll loop.",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource_kind"})

	// ExecutionDuration observes the end-to-end Execute() call duration,
	// including any chained playbook.
	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remediator_execution_duration_seconds",
		Help:    "Duration of a top-level Execute() call.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"error_type", "outcome"})
)

// RecordAttempt records one primary or fallback action attempt.
func RecordAttempt(action string, success bool, duration time.Duration) {
	outcome := outcomeLabel(success)
	AttemptsTotal.WithLabelValues(action, outcome).Inc()
	AttemptDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordFallback records one fallback invocation.
func RecordFallback(action string, success bool) {
	FallbacksTotal.WithLabelValues(action, outcomeLabel(success)).Inc()
}

// RecordChain records one chained playbook execution.
func RecordChain(success bool) {
	ChainsTotal.WithLabelValues(outcomeLabel(success)).Inc()
}

// RecordBreakerTransition records a circuit breaker moving to toState.
func RecordBreakerTransition(toState string) {
	BreakerTransitionsTotal.WithLabelValues(toState).Inc()
}

// RecordHealthCheck records one health verification poll loop.
func RecordHealthCheck(resourceKind string, duration time.Duration) {
	HealthCheckDuration.WithLabelValues(resourceKind).Observe(duration.Seconds())
}

// RecordExecution records one top-level Execute() call.
func RecordExecution(errorType string, success bool, duration time.Duration) {
	ExecutionDuration.WithLabelValues(errorType, outcomeLabel(success)).Observe(duration.Seconds())
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
