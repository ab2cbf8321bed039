package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"evalpanel/internal/services"
)

// anthropicAliases maps allow-list model ids onto Anthropic model names.
var anthropicAliases = map[string]string{
	"claude-3.5-sonnet": "claude-3-5-sonnet-latest",
	"claude-3.7-sonnet": "claude-3-7-sonnet-latest",
}

// AnthropicConfig captures the settings for the Anthropic Messages API.
type AnthropicConfig struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
	MaxTokens      int
}

// Anthropic completes requests with the Anthropic SDK.
type Anthropic struct {
	client    anthropic.Client
	maxTokens int64
	now       func() time.Time
}

// NewAnthropic constructs an Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(defaultRetryAttempts - 1),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		maxTokens: maxTokens,
		now:       time.Now,
	}
}

// Name identifies the provider in logs and job records.
func (a *Anthropic) Name() string { return "anthropic" }

// Complete sends one Messages request and returns the first text block.
func (a *Anthropic) Complete(ctx context.Context, req Request) (Completion, error) {
	if err := validateRequest("anthropic complete", req); err != nil {
		return Completion{}, err
	}
	model := AnthropicModel(req.Model)
	maxTokens := a.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	system := strings.TrimSpace(req.System)
	if req.JSON {
		system += "\n\nResponda somente com JSON válido."
	}

	started := a.now()
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(strings.TrimSpace(req.User))),
		},
	})
	if err != nil {
		return Completion{}, classifyAnthropic(err)
	}

	completion := Completion{
		Model:        string(message.Model),
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
		Duration:     a.now().Sub(started),
	}
	if completion.Model == "" {
		completion.Model = model
	}
	for _, block := range message.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			completion.Content = strings.TrimSpace(block.Text)
			return completion, nil
		}
	}
	return Completion{}, services.Wrap(services.ErrTransient, "reasoning", "anthropic complete",
		fmt.Sprintf("no text content (stop_reason=%s)", message.StopReason), nil)
}

// AnthropicModel strips the provider prefix used by the allow-list and
// resolves known aliases.
func AnthropicModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "anthropic/")
	if alias, ok := anthropicAliases[model]; ok {
		return alias
	}
	return model
}

func classifyAnthropic(err error) error {
	const op = "anthropic complete"
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "reasoning", op, "deadline exceeded", err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return services.Wrap(services.ErrTransient, "reasoning", op, fmt.Sprintf("provider unavailable (http %d)", status), err)
		}
		return services.Wrap(services.ErrExternalTool, "reasoning", op, fmt.Sprintf("provider rejected request (http %d)", status), err)
	}
	return services.Wrap(services.ErrTransient, "reasoning", op, "provider unavailable", err)
}
