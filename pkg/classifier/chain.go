package classifier

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/pkg/shared/logging"
)

// Config configures the classifier chain's two LLM tiers. Either tier may
// be left out: an empty AnthropicAPIKey skips the Anthropic tier, and an
// empty BedrockModelID (or a Bedrock tier that fails to build at
// construction time) skips the Bedrock tier.
type Config struct {
	AnthropicAPIKey  string
	AnthropicModel   string
	BedrockModelID   string
	MaxTokens        int
	PerTierTimeout   time.Duration
}

// Chain tries each configured tier in order and returns the first
// classification that does not error. The rule-based tier is always
// present and never errors, so Classify itself never returns an error.
type Chain struct {
	tiers   []tier
	timeout time.Duration
	log     *logrus.Entry
}

// NewChain builds a Chain from cfg. ctx is used only to resolve AWS
// credentials for the Bedrock tier at construction time.
func NewChain(ctx context.Context, cfg Config, log *logrus.Entry) *Chain {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	var tiers []tier

	if cfg.AnthropicAPIKey != "" {
		tiers = append(tiers, newAnthropicTier(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxTokens))
	}
	if cfg.BedrockModelID != "" {
		if bt, err := newBedrockTier(ctx, cfg.BedrockModelID, cfg.MaxTokens); err != nil {
			log.WithError(err).Warn("bedrock classifier tier unavailable, skipping")
		} else {
			tiers = append(tiers, bt)
		}
	}
	tiers = append(tiers, ruleBasedTier{})

	return &Chain{tiers: tiers, timeout: cfg.PerTierTimeout, log: log}
}

// Classify matches pkg/executor's locally declared Classifier interface by
// structure, without either package importing the other.
func (c *Chain) Classify(ctx context.Context, rawError string, metadata map[string]string) (string, bool, error) {
	for _, t := range c.tiers {
		tierCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			tierCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		result, err := t.classify(tierCtx, rawError, metadata)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			c.log.WithFields(logging.AIFields("classify", string(t.name())).Error(err).ToLogrus()).
				Warn("classifier tier failed, falling through to the next tier")
			continue
		}
		return result.ErrorType, result.AutoHealPossible, nil
	}
	// Unreachable: the rule-based tier never errors, so the loop above
	// always returns before exhausting every tier.
	return "UnclassifiedError", false, nil
}
