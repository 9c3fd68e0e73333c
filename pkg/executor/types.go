// Package executor is the recovery orchestrator core: given a classified
// failure, it consults the playbook registry, checks the circuit breaker,
// captures a snapshot, drives the primary retry loop with health
// verification, falls back once, chains a follow-up playbook, and reports a
// structured result — without ever panicking or returning a bare error for
// an expected failure mode.
package executor

import (
	"context"
	"time"

	"github.com/pipelineguard/remediator/pkg/breaker"
)

// RecoveryRequest is one invocation of the orchestrator.
type RecoveryRequest struct {
	ErrorType string
	TicketID  string
	Metadata  map[string]string
}

// PlaybookExecutionResult is the structured outcome of one Execute call,
// including a nested result when a chained playbook ran.
type PlaybookExecutionResult struct {
	Success             bool
	Message             string
	ActionsTaken        []string
	Attempts            int
	HealthCheckPassed   bool
	FallbackInvoked     bool
	ChainedResult       *PlaybookExecutionResult
	CircuitBreakerStatus breaker.CircuitState
	ExecutionTimeSeconds float64
	Metadata            map[string]any
}

// Classifier is the black box the caller (e.g. the webhook handler in
// cmd/remediator) uses to turn a raw platform error into the error_type a
// RecoveryRequest carries. The executor core never calls it directly —
// Execute always receives an already-classified request — but it is
// declared here, rather than imported from pkg/classifier, so the executor
// package (and its tests) never depend on any concrete classifier
// implementation or its third-party SDKs.
type Classifier interface {
	Classify(ctx context.Context, rawError string, metadata map[string]string) (errorType string, autoHealPossible bool, err error)
}

// EventSink receives every terminal PlaybookExecutionResult after the
// breaker outcome has already been recorded, off the timed critical path.
// pkg/audit and pkg/notify are its two reference implementations.
type EventSink interface {
	Emit(ctx context.Context, event Event) error
}

// Event is the payload handed to an EventSink.
type Event struct {
	TicketID    string
	ErrorType   string
	BreakerKey  string
	Result      PlaybookExecutionResult
	OccurredAt  time.Time
}

// scaleParams holds the scale_cluster parameters a playbook.Config carries
// in its opaque ActionParams map.
type scaleParams struct {
	DeltaPercent int
	Cap          int
}

func parseScaleParams(raw map[string]any) scaleParams {
	p := scaleParams{DeltaPercent: 10, Cap: 16}
	if v, ok := raw["delta_percent"].(int); ok {
		p.DeltaPercent = v
	}
	if v, ok := raw["cap"].(int); ok {
		p.Cap = v
	}
	return p
}

func parseLibraryVersions(raw map[string]any) []string {
	switch v := raw["candidate_versions"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
