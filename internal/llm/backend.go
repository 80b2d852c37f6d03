package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/quizd/internal/config"
)

// Usage is normalized token accounting. Providers that omit usage data get a
// length-based estimate instead.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// GenerateResult is the normalized output of one backend call.
type GenerateResult struct {
	Text  string
	Usage Usage
}

// CallParams are the sampling parameters for one generation call.
type CallParams struct {
	Temperature float64
	MaxTokens   int
}

// Backend is one generation backend in the fallback chain.
type Backend interface {
	ID() string
	Tier() int
	Generate(ctx context.Context, prompt string, params CallParams) (*GenerateResult, error)
}

// langchainBackend wraps a langchaingo model with an optional rate limiter.
type langchainBackend struct {
	id      string
	tier    int
	model   llms.Model
	limiter *rate.Limiter
}

// NewChain builds the ordered backend chain from config. Tier only affects
// the configured ordering; the chain is never re-ranked at runtime.
func NewChain(cfg config.ModelsConfig) ([]Backend, error) {
	chain := make([]Backend, 0, len(cfg.Chain))
	for _, mc := range cfg.Chain {
		model, err := buildModel(mc)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", mc.ID, err)
		}
		b := &langchainBackend{
			id:    mc.ID,
			tier:  mc.Tier,
			model: model,
		}
		if mc.RPS > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(mc.RPS), 1)
		}
		chain = append(chain, b)
	}
	return chain, nil
}

// buildModel constructs the provider-specific langchaingo client.
func buildModel(mc config.ModelConfig) (llms.Model, error) {
	apiKey := ""
	if mc.APIKeyEnv != "" {
		apiKey = os.Getenv(mc.APIKeyEnv)
	}

	switch mc.Provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(mc.Model)}
		if apiKey != "" {
			opts = append(opts, openai.WithToken(apiKey))
		}
		if mc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(mc.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(mc.Model)}
		if apiKey != "" {
			opts = append(opts, anthropic.WithToken(apiKey))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(mc.Model)}
		if mc.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(mc.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
}

func (b *langchainBackend) ID() string { return b.id }

func (b *langchainBackend) Tier() int { return b.tier }

// Generate calls the backend and normalizes its response. The limiter wait
// is context-cancellable, so a cancelled pipeline never blocks on a token.
func (b *langchainBackend) Generate(ctx context.Context, prompt string, params CallParams) (*GenerateResult, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := b.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(params.Temperature),
		llms.WithMaxTokens(params.MaxTokens),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend %s: empty response", b.id)
	}

	choice := resp.Choices[0]
	result := &GenerateResult{
		Text:  choice.Content,
		Usage: usageFromInfo(choice.GenerationInfo),
	}
	if result.Usage.TotalTokens == 0 {
		result.Usage = estimateUsage(prompt, result.Text)
	}
	return result, nil
}

// usageFromInfo pulls token counts out of the provider's generation info.
func usageFromInfo(info map[string]any) Usage {
	return Usage{
		PromptTokens:     intFromInfo(info, "PromptTokens"),
		CompletionTokens: intFromInfo(info, "CompletionTokens"),
		TotalTokens:      intFromInfo(info, "TotalTokens"),
	}
}

func intFromInfo(info map[string]any, key string) int {
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

// estimateUsage approximates token counts at four characters per token for
// providers that omit usage data.
func estimateUsage(prompt, completion string) Usage {
	p := len(prompt) / 4
	c := len(completion) / 4
	return Usage{
		PromptTokens:     p,
		CompletionTokens: c,
		TotalTokens:      p + c,
	}
}
