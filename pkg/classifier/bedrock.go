package classifier

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	sharederrors "github.com/pipelineguard/remediator/pkg/shared/errors"
)

// bedrockTier is the secondary classifier, used when the Anthropic tier
// errors or times out. It speaks the same Anthropic-on-Bedrock message
// format so the rendered prompt is identical to the primary tier's.
type bedrockTier struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int
}

func newBedrockTier(ctx context.Context, modelID string, maxTokens int) (*bedrockTier, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("load", "aws_config", "", err)
	}
	return &bedrockTier{
		client:    bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: maxTokens,
	}, nil
}

func (t *bedrockTier) name() Tier { return TierBedrock }

type bedrockRequestBody struct {
	AnthropicVersion string                 `json:"anthropic_version"`
	MaxTokens        int                    `json:"max_tokens"`
	Messages         []bedrockMessage       `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponseBody struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (t *bedrockTier) classify(ctx context.Context, rawError string, metadata map[string]string) (Classification, error) {
	prompt, err := renderPrompt(rawError, metadata)
	if err != nil {
		return Classification{}, sharederrors.FailedTo("render classification prompt", err)
	}

	reqBody, err := json.Marshal(bedrockRequestBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        t.maxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Classification{}, sharederrors.FailedTo("marshal bedrock request", err)
	}

	out, err := t.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(t.modelID),
		Body:        reqBody,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return Classification{}, sharederrors.FailedToWithDetails("classify", "bedrock", t.modelID, err)
	}

	var respBody bedrockResponseBody
	if err := json.Unmarshal(out.Body, &respBody); err != nil {
		return Classification{}, sharederrors.ParseError("bedrock classification response", "json", err)
	}
	if len(respBody.Content) == 0 {
		return Classification{}, sharederrors.FailedTo("classify via bedrock: empty response content", nil)
	}

	var payload responsePayload
	if err := json.Unmarshal([]byte(respBody.Content[0].Text), &payload); err != nil {
		return Classification{}, sharederrors.ParseError("bedrock classification payload", "json", err)
	}

	return Classification{
		ErrorType:        payload.ErrorType,
		AutoHealPossible: payload.AutoHealPossible,
		Recommendations:  payload.Recommendations,
		Tier:             TierBedrock,
	}, nil
}
