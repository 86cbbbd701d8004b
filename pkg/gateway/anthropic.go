package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider adapts the gateway request shape to the Anthropic
// Messages API. Cacheable system blocks are tagged with ephemeral
// cache_control so the shared safety prefix yields prompt-cache hits.
type AnthropicProvider struct {
	client       anthropic.Client
	model        string
	inCostPer1M  float64
	outCostPer1M float64
}

// AnthropicModelConfig binds one provider instance to a model and its
// per-million-token pricing.
type AnthropicModelConfig struct {
	Model           string
	APIKey          string
	InputCostPer1M  float64
	OutputCostPer1M float64
}

// NewAnthropicProvider creates a provider bound to one Anthropic model.
func NewAnthropicProvider(cfg AnthropicModelConfig) *AnthropicProvider {
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:        cfg.Model,
		inCostPer1M:  cfg.InputCostPer1M,
		outCostPer1M: cfg.OutputCostPer1M,
	}
}

// ModelID implements Provider.
func (p *AnthropicProvider) ModelID() string { return p.model }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req ProviderRequest) (*ProviderResponse, error) {
	system := make([]anthropic.TextBlockParam, 0, len(req.SystemBlocks))
	for _, block := range req.SystemBlocks {
		tb := anthropic.TextBlockParam{Text: block.Text}
		if block.Cacheable {
			tb.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		system = append(system, tb)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		System:    system,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserContent)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{
				StatusCode: apiErr.StatusCode,
				Message:    "anthropic messages call failed",
				Err:        err,
			}
		}
		return nil, fmt.Errorf("anthropic messages call failed: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	in := int(msg.Usage.InputTokens)
	out := int(msg.Usage.OutputTokens)
	return &ProviderResponse{
		Content:      content,
		ModelID:      p.model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      float64(in)/1e6*p.inCostPer1M + float64(out)/1e6*p.outCostPer1M,
	}, nil
}
