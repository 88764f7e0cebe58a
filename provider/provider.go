package provider

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/mosaic/config"
	openai_provider "github.com/mohammad-safakhou/mosaic/provider/openai"
)

// GenerateOptions tune a single generation call. Zero values mean
// "use the model's configured defaults".
type GenerateOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Provider is the generative-text collaborator consumed by every
// agent. The same model behaves differently per agent purely through
// the system prompt. Calls are synchronous and network-latency bound;
// callers own timeouts via ctx.
type Provider interface {
	Generate(ctx context.Context, system, user string, opts GenerateOptions) (string, Usage, error)
	AvailableModels() []string
	ModelInfo(model string) (ModelInfo, error)
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains catalog information about a configured model.
type ModelInfo struct {
	Name            string
	Provider        string
	MaxTokens       int
	CostPer1KInput  float64
	CostPer1KOutput float64
}

// New creates a provider from configuration. The first configured
// provider wins; only OpenAI-compatible endpoints are implemented.
func New(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, pc := range cfg.Providers {
		switch pc.Type {
		case "openai":
			return newOpenAI(pc), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", pc.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}

type openAIAdapter struct {
	client *openai_provider.Client
	cfg    config.LLMProvider
	models map[string]ModelInfo
}

func newOpenAI(cfg config.LLMProvider) *openAIAdapter {
	a := &openAIAdapter{
		client: openai_provider.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout),
		cfg:    cfg,
		models: make(map[string]ModelInfo),
	}
	for key, m := range cfg.Models {
		a.models[key] = ModelInfo{
			Name:            m.Name,
			Provider:        "openai",
			MaxTokens:       m.MaxTokens,
			CostPer1KInput:  m.CostPer1K,
			CostPer1KOutput: m.CostPer1KOutput,
		}
	}
	return a
}

func (a *openAIAdapter) Generate(ctx context.Context, system, user string, opts GenerateOptions) (string, Usage, error) {
	m, ok := a.cfg.Models[opts.Model]
	if !ok {
		return "", Usage{}, fmt.Errorf("model %s not configured", opts.Model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	temperature := m.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := m.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	text, in, out, err := a.client.Chat(ctx, apiModel, system, user, temperature, maxTokens)
	if err != nil {
		return "", Usage{}, err
	}
	return text, Usage{PromptTokens: in, CompletionTokens: out}, nil
}

func (a *openAIAdapter) AvailableModels() []string {
	var models []string
	for name := range a.models {
		models = append(models, name)
	}
	return models
}

func (a *openAIAdapter) ModelInfo(model string) (ModelInfo, error) {
	info, exists := a.models[model]
	if !exists {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return info, nil
}

func (a *openAIAdapter) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	info, err := a.ModelInfo(model)
	if err != nil {
		return 0.0
	}
	inputCost := float64(inputTokens) / 1000.0 * info.CostPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * info.CostPer1KOutput
	return inputCost + outputCost
}
