// Package operator serves the read/reset HTTP surface a human operator uses
// to inspect circuit breaker state and the registered playbook catalog, and
// to force a stuck breaker back to CLOSED.
package operator

import "github.com/pipelineguard/remediator/pkg/breaker"

// BreakerView is the JSON shape returned by GET /api/circuit-breakers.
type BreakerView struct {
	Key                 string `json:"key"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	OpenedAt            string `json:"opened_at,omitempty"`
	LastOutcomeAt       string `json:"last_outcome_at,omitempty"`
}

func toBreakerView(s breaker.CircuitState) BreakerView {
	v := BreakerView{
		Key:                 s.Key,
		State:               string(s.State),
		ConsecutiveFailures: s.ConsecutiveFailures,
	}
	if !s.OpenedAt.IsZero() {
		v.OpenedAt = s.OpenedAt.UTC().Format(timeFormat)
	}
	if !s.LastOutcomeAt.IsZero() {
		v.LastOutcomeAt = s.LastOutcomeAt.UTC().Format(timeFormat)
	}
	return v
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// PlaybookView is the JSON shape returned by GET /api/supported-error-types.
type PlaybookView struct {
	ErrorType       string `json:"error_type"`
	Action          string `json:"action"`
	FallbackAction  string `json:"fallback_action,omitempty"`
	ChainedPlaybook string `json:"chained_playbook,omitempty"`
	Description     string `json:"description,omitempty"`
}

// problem is an RFC-7807-flavored error body, matching the style the rest of
// this codebase's HTTP surfaces use for non-2xx responses.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
