package classifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	sharederrors "github.com/pipelineguard/remediator/pkg/shared/errors"
)

type responsePayload struct {
	ErrorType        string   `json:"error_type"`
	AutoHealPossible bool     `json:"auto_heal_possible"`
	Recommendations  []string `json:"recommendations"`
}

// anthropicTier is the primary classifier: a single-turn Messages call
// against Claude, expecting a JSON classification back in the first text
// block.
type anthropicTier struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func newAnthropicTier(apiKey, model string, maxTokens int) *anthropicTier {
	return &anthropicTier{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

func (t *anthropicTier) name() Tier { return TierAnthropic }

func (t *anthropicTier) classify(ctx context.Context, rawError string, metadata map[string]string) (Classification, error) {
	prompt, err := renderPrompt(rawError, metadata)
	if err != nil {
		return Classification{}, sharederrors.FailedTo("render classification prompt", err)
	}

	resp, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     t.model,
		MaxTokens: t.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Classification{}, sharederrors.FailedToWithDetails("classify", "anthropic", "", err)
	}
	if len(resp.Content) == 0 {
		return Classification{}, fmt.Errorf("anthropic response contained no content blocks")
	}

	var payload responsePayload
	if err := json.Unmarshal([]byte(resp.Content[0].Text), &payload); err != nil {
		return Classification{}, sharederrors.ParseError("anthropic classification response", "json", err)
	}

	return Classification{
		ErrorType:        payload.ErrorType,
		AutoHealPossible: payload.AutoHealPossible,
		Recommendations:  payload.Recommendations,
		Tier:             TierAnthropic,
	}, nil
}
