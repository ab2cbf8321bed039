package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"evalpanel/internal/config"
	"evalpanel/internal/services"
)

// Request is a single system+user exchange with a model.
type Request struct {
	Model     string
	System    string
	User      string
	MaxTokens int
	// JSON asks providers that support it for a JSON-only response.
	JSON bool
}

// Completion is the text a model produced plus usage accounting.
type Completion struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
}

// TokensUsed returns input plus output tokens.
func (c Completion) TokensUsed() int64 {
	return c.InputTokens + c.OutputTokens
}

// Provider completes requests against an external model.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Completion, error)
}

// NewProvider builds the provider selected by cfg.Reasoning.Provider.
func NewProvider(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "reasoning", "new provider", "config is nil", nil)
	}
	rc := cfg.Reasoning
	switch strings.ToLower(strings.TrimSpace(rc.Provider)) {
	case config.ProviderOpenRouter, "":
		if strings.TrimSpace(rc.OpenRouterAPIKey) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "reasoning", "new provider", "reasoning.openrouter_api_key is required", nil)
		}
		return NewOpenRouter(OpenRouterConfig{
			APIKey:         rc.OpenRouterAPIKey,
			BaseURL:        rc.OpenRouterBaseURL,
			Referer:        rc.Referer,
			Title:          rc.Title,
			TimeoutSeconds: rc.TimeoutSeconds,
			MaxTokens:      rc.MaxTokens,
		}), nil
	case config.ProviderAnthropic:
		if strings.TrimSpace(rc.AnthropicAPIKey) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "reasoning", "new provider", "reasoning.anthropic_api_key is required", nil)
		}
		return NewAnthropic(AnthropicConfig{
			APIKey:         rc.AnthropicAPIKey,
			TimeoutSeconds: rc.TimeoutSeconds,
			MaxTokens:      rc.MaxTokens,
		}), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "reasoning", "new provider", fmt.Sprintf("unsupported provider %q", rc.Provider), nil)
	}
}

func validateRequest(op string, req Request) error {
	if strings.TrimSpace(req.System) == "" {
		return services.Validation("reasoning", op, "system prompt required")
	}
	if strings.TrimSpace(req.User) == "" {
		return services.Validation("reasoning", op, "user prompt required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return services.Validation("reasoning", op, "model required")
	}
	return nil
}
