package classifier

import (
	"context"
	"regexp"
)

// rule matches a known error signature to a playbook error_type. Rules are
// tried in order; the first match wins.
type rule struct {
	errorType        string
	pattern          *regexp.Regexp
	autoHealPossible bool
}

var rules = []rule{
	{"DatabricksOutOfMemoryError", regexp.MustCompile(`(?i)out\s*of\s*memory|OOM|java\.lang\.OutOfMemoryError`), true},
	{"DatabricksClusterUnresponsiveError", regexp.MustCompile(`(?i)cluster\s+(unreachable|unresponsive)|driver\s+not\s+responding`), true},
	{"DatabricksLibraryConflictError", regexp.MustCompile(`(?i)library\s+(conflict|install(ation)?\s+fail)|incompatible\s+library\s+version`), true},
	{"DatabricksJobExecutionError", regexp.MustCompile(`(?i)job\s+(run\s+)?fail|task\s+fail|run\s+aborted`), true},
	{"ADFResourceNotReadyError", regexp.MustCompile(`(?i)resource\s+not\s+ready|ResourceNotReadyError|integration\s+runtime\s+not\s+available`), false},
	{"ADFPipelineRunFailedError", regexp.MustCompile(`(?i)pipeline\s+run\s+fail|ActivityFailedExecution|PipelineRunFailedError`), true},
	{"RequestLimitExceeded", regexp.MustCompile(`(?i)request\s+limit\s+exceeded|rate\s+limit|429`), false},
}

// ruleBasedTier always succeeds: when no rule matches, it reports a
// conservative unclassified result with AutoHealPossible=false so the
// executor escalates rather than guesses.
type ruleBasedTier struct{}

func (ruleBasedTier) name() Tier { return TierRuleBased }

func (ruleBasedTier) classify(_ context.Context, rawError string, _ map[string]string) (Classification, error) {
	for _, r := range rules {
		if r.pattern.MatchString(rawError) {
			return Classification{
				ErrorType:        r.errorType,
				AutoHealPossible: r.autoHealPossible,
				Tier:             TierRuleBased,
			}, nil
		}
	}
	return Classification{
		ErrorType:        "UnclassifiedError",
		AutoHealPossible: false,
		Tier:             TierRuleBased,
	}, nil
}
