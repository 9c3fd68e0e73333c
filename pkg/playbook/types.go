// Package playbook holds the static catalog mapping a classified error type
// to the recovery strategy the executor should apply: which action to try,
// how many times, what to fall back to, and whether to verify health and
// chain a second playbook afterward.
package playbook

// Action identifies a recovery action the executor dispatches to a
// platform.Adapter. The set is closed; the executor matches on this tag
// rather than using reflection.
type Action string

const (
	ActionRetryJob        Action = "retry_job"
	ActionRestartCluster  Action = "restart_cluster"
	ActionScaleCluster    Action = "scale_cluster"
	ActionLibraryFallback Action = "library_fallback"
	ActionRerunPipeline   Action = "rerun_pipeline"
	ActionRollbackConfig  Action = "rollback_config"
	ActionNoop            Action = "noop"
)

// Config is an immutable recovery strategy bound to one error_type. It is
// registered once at startup (or swapped wholesale on hot reload) and never
// mutated in place; the executor reads it by value into each invocation.
type Config struct {
	ErrorType string `yaml:"error_type"`

	Action                  Action         `yaml:"action"`
	MaxRetries              int            `yaml:"max_retries"`
	TimeoutSeconds          int            `yaml:"timeout_seconds"`
	FallbackAction          Action         `yaml:"fallback_action,omitempty"`
	ChainedPlaybook         string         `yaml:"chained_playbook,omitempty"`
	VerifyHealth            bool           `yaml:"verify_health"`
	HealthCheckTimeout      int            `yaml:"health_check_timeout"`
	SnapshotBefore          bool           `yaml:"snapshot_before"`
	CircuitBreakerThreshold int            `yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   int            `yaml:"circuit_breaker_timeout"`
	ActionParams            map[string]any `yaml:"action_params,omitempty"`
	Description             string         `yaml:"description"`
}

// HasFallback reports whether the config names a fallback action.
func (c Config) HasFallback() bool {
	return c.FallbackAction != ""
}

// HasChain reports whether the config names a chained playbook.
func (c Config) HasChain() bool {
	return c.ChainedPlaybook != ""
}
