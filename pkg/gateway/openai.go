package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider adapts the gateway request shape to any OpenAI-compatible
// chat endpoint via langchaingo. Used for the Tier-0 extraction model and
// the small injection-classifier model; the base URL makes it work against
// self-hosted compatible servers too.
type OpenAIProvider struct {
	llm          *openai.LLM
	model        string
	inCostPer1M  float64
	outCostPer1M float64
}

// OpenAIModelConfig binds one provider instance to a model and its pricing.
type OpenAIModelConfig struct {
	Model           string
	APIKey          string
	BaseURL         string
	InputCostPer1M  float64
	OutputCostPer1M float64
}

// NewOpenAIProvider creates a provider bound to one OpenAI-compatible model.
func NewOpenAIProvider(cfg OpenAIModelConfig) (*OpenAIProvider, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAIProvider{
		llm:          llm,
		model:        cfg.Model,
		inCostPer1M:  cfg.InputCostPer1M,
		outCostPer1M: cfg.OutputCostPer1M,
	}, nil
}

// ModelID implements Provider.
func (p *OpenAIProvider) ModelID() string { return p.model }

// Complete implements Provider. The chat API has a single system slot, so
// system blocks are joined; prompt caching on compatible backends keys on
// the stable prefix regardless.
func (p *OpenAIProvider) Complete(ctx context.Context, req ProviderRequest) (*ProviderResponse, error) {
	systemTexts := make([]string, 0, len(req.SystemBlocks))
	for _, block := range req.SystemBlocks {
		systemTexts = append(systemTexts, block.Text)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, strings.Join(systemTexts, "\n\n")),
		llms.TextParts(llms.ChatMessageTypeHuman, req.UserContent),
	}

	callOpts := []llms.CallOption{}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := p.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{StatusCode: 502, Message: "empty completion from " + p.model}
	}

	choice := resp.Choices[0]
	in := generationInfoInt(choice.GenerationInfo, "PromptTokens")
	out := generationInfoInt(choice.GenerationInfo, "CompletionTokens")
	return &ProviderResponse{
		Content:      choice.Content,
		ModelID:      p.model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      float64(in)/1e6*p.inCostPer1M + float64(out)/1e6*p.outCostPer1M,
	}, nil
}

// classifyOpenAIError maps langchaingo errors onto the retry taxonomy by
// inspecting the message for the status the wrapped HTTP client saw.
func classifyOpenAIError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return &ProviderError{StatusCode: 429, Message: "rate limited", Err: err}
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return &ProviderError{StatusCode: 500, Message: "server error", Err: err}
	case strings.Contains(msg, "400"), strings.Contains(msg, "401"),
		strings.Contains(msg, "403"), strings.Contains(msg, "404"):
		return &ProviderError{StatusCode: 400, Message: "client error", Err: err}
	default:
		return &ProviderError{StatusCode: 500, Message: "provider call failed", Err: err}
	}
}

func generationInfoInt(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
