package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateLogging,
		c.validateAPI,
		c.validateJobs,
		c.validatePolling,
		c.validateReasoning,
		c.validateWorker,
		c.validateSupervisor,
		c.validateNotifications,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateJobs() error {
	if err := ensurePositive("jobs.max_retries", c.Jobs.MaxRetries); err != nil {
		return err
	}
	if err := ensurePositive("jobs.stuck_after_minutes", c.Jobs.StuckAfterMinutes); err != nil {
		return err
	}
	if err := ensurePositive("jobs.page_size", c.Jobs.PageSize); err != nil {
		return err
	}
	if err := ensurePositive("jobs.min_transcript_chars", c.Jobs.MinTranscriptChars); err != nil {
		return err
	}
	if !slices.Contains(c.Jobs.AllowedModels, c.Jobs.DefaultModel) {
		return fmt.Errorf("jobs.default_model %q must appear in jobs.allowed_models", c.Jobs.DefaultModel)
	}
	return nil
}

func (c *Config) validatePolling() error {
	if err := ensurePositive("polling.list_interval_seconds", c.Polling.ListIntervalSeconds); err != nil {
		return err
	}
	return ensurePositive("polling.detail_interval_seconds", c.Polling.DetailIntervalSeconds)
}

func (c *Config) validateReasoning() error {
	switch c.Reasoning.Provider {
	case ProviderOpenRouter, ProviderAnthropic:
	default:
		return fmt.Errorf("reasoning.provider must be %s or %s, got %q", ProviderOpenRouter, ProviderAnthropic, c.Reasoning.Provider)
	}
	if err := ensurePositive("reasoning.timeout_seconds", c.Reasoning.TimeoutSeconds); err != nil {
		return err
	}
	return ensurePositive("reasoning.max_tokens", c.Reasoning.MaxTokens)
}

func (c *Config) validateWorker() error {
	if !c.Worker.Enabled {
		return nil
	}
	if err := ensurePositive("worker.concurrency", c.Worker.Concurrency); err != nil {
		return err
	}
	if err := ensurePositive("worker.poll_interval_seconds", c.Worker.PollIntervalSeconds); err != nil {
		return err
	}
	switch c.Reasoning.Provider {
	case ProviderOpenRouter:
		if c.Reasoning.OpenRouterAPIKey == "" {
			return errors.New("reasoning.openrouter_api_key must be set when worker.enabled is true (or set OPENROUTER_API_KEY)")
		}
	case ProviderAnthropic:
		if c.Reasoning.AnthropicAPIKey == "" {
			return errors.New("reasoning.anthropic_api_key must be set when worker.enabled is true (or set ANTHROPIC_API_KEY)")
		}
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	spec := strings.TrimSpace(c.Supervisor.StuckSweepSchedule)
	if spec == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("supervisor.stuck_sweep_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if err := ensurePositive("notifications.request_timeout_seconds", c.Notifications.RequestTimeoutSeconds); err != nil {
		return err
	}
	if c.Notifications.SlackWebhookURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.SlackWebhookURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("notifications.slack_webhook_url must be an absolute URL")
	}
	return nil
}

func ensurePositive(key string, value int) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	return nil
}
