package playbook

// defaultCatalog is the built-in registry table: data, not code. It ships
// the recovery strategies known at release time; an operator may replace it
// wholesale via a YAML file when hot reload is configured (see Registry).
var defaultCatalog = map[string]Config{
	"DatabricksJobExecutionError": {
		ErrorType:               "DatabricksJobExecutionError",
		Action:                  ActionRetryJob,
		MaxRetries:              3,
		TimeoutSeconds:          300,
		VerifyHealth:            true,
		HealthCheckTimeout:      600,
		SnapshotBefore:          false,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   300,
		Description:             "Retry a failed Databricks job run, falling back to a cluster scale-up.",
		FallbackAction:          ActionScaleCluster,
		ActionParams: map[string]any{
			"delta_percent": 25,
			"cap":           20,
		},
	},
	"DatabricksOutOfMemoryError": {
		ErrorType:               "DatabricksOutOfMemoryError",
		Action:                  ActionScaleCluster,
		MaxRetries:              1,
		TimeoutSeconds:          180,
		VerifyHealth:            true,
		HealthCheckTimeout:      300,
		SnapshotBefore:          true,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   600,
		Description:             "Scale the cluster up on OOM, then retry the job that triggered it.",
		ChainedPlaybook:         "DatabricksJobExecutionError",
		ActionParams: map[string]any{
			"delta_percent": 50,
			"cap":           32,
		},
	},
	"DatabricksClusterUnresponsiveError": {
		ErrorType:               "DatabricksClusterUnresponsiveError",
		Action:                  ActionRestartCluster,
		MaxRetries:              2,
		TimeoutSeconds:          300,
		VerifyHealth:            true,
		HealthCheckTimeout:      600,
		SnapshotBefore:          false,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   600,
		Description:             "Restart an unresponsive cluster.",
	},
	"DatabricksLibraryConflictError": {
		ErrorType:               "DatabricksLibraryConflictError",
		Action:                  ActionLibraryFallback,
		MaxRetries:              0,
		TimeoutSeconds:          180,
		VerifyHealth:            false,
		SnapshotBefore:          true,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   300,
		Description:             "Install the newest compatible library version from a closed candidate list.",
		ActionParams: map[string]any{
			"candidate_versions": []string{"2.1.0", "2.0.3", "1.5.3"},
		},
	},
	"ADFPipelineRunFailedError": {
		ErrorType:               "ADFPipelineRunFailedError",
		Action:                  ActionRerunPipeline,
		MaxRetries:              2,
		TimeoutSeconds:          300,
		VerifyHealth:            true,
		HealthCheckTimeout:      900,
		SnapshotBefore:          false,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   600,
		Description:             "Rerun a failed ADF pipeline run.",
	},
	"ADFResourceNotReadyError": {
		ErrorType:               "ADFResourceNotReadyError",
		Action:                  ActionNoop,
		MaxRetries:              0,
		TimeoutSeconds:          30,
		VerifyHealth:            false,
		SnapshotBefore:          false,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   120,
		Description:             "Resource provisioning in progress; probe only, let the platform settle.",
	},
}
