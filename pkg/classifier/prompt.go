package classifier

import (
	"github.com/tmc/langchaingo/prompts"
)

// sharedPrompt renders the identical classification request for every LLM
// tier, so a provider switch never changes what the model is actually
// asked — only how the call is transported.
var sharedPrompt = prompts.NewPromptTemplate(
	`You are a data-pipeline reliability classifier. Given the raw error
message and run metadata below, decide the closest known error_type and
whether the failure is safe to auto-remediate without a human.

Known error types: DatabricksJobExecutionError, DatabricksOutOfMemoryError,
DatabricksClusterUnresponsiveError, DatabricksLibraryConflictError,
ADFPipelineRunFailedError, ADFResourceNotReadyError.

Respond with a single JSON object: {"error_type": string, "auto_heal_possible": bool, "recommendations": [string]}.

Raw error: {{.rawError}}
Platform: {{.platform}}
Metadata: {{.metadata}}`,
	[]string{"rawError", "platform", "metadata"},
)

func renderPrompt(rawError string, metadata map[string]string) (string, error) {
	return sharedPrompt.Format(map[string]any{
		"rawError": rawError,
		"platform": metadata["platform"],
		"metadata": metadata,
	})
}
