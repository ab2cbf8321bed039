package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeAPI()
	c.normalizeJobs()
	c.normalizeReasoning()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("EVALPANEL_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	c.API.DefaultTenant = strings.TrimSpace(c.API.DefaultTenant)
	if c.API.DefaultTenant == "" {
		c.API.DefaultTenant = defaultTenant
	}
}

func (c *Config) normalizeJobs() {
	c.Jobs.DefaultModel = strings.TrimSpace(c.Jobs.DefaultModel)
	if c.Jobs.DefaultModel == "" {
		c.Jobs.DefaultModel = defaultModel
	}
	models := make([]string, 0, len(c.Jobs.AllowedModels))
	seen := make(map[string]struct{}, len(c.Jobs.AllowedModels))
	for _, model := range c.Jobs.AllowedModels {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		if _, ok := seen[model]; ok {
			continue
		}
		seen[model] = struct{}{}
		models = append(models, model)
	}
	if len(models) == 0 {
		models = DefaultAllowedModels()
	}
	c.Jobs.AllowedModels = models
}

func (c *Config) normalizeReasoning() {
	c.Reasoning.Provider = strings.ToLower(strings.TrimSpace(c.Reasoning.Provider))
	if c.Reasoning.Provider == "" {
		c.Reasoning.Provider = defaultReasoningProvider
	}
	c.Reasoning.OpenRouterAPIKey = strings.TrimSpace(c.Reasoning.OpenRouterAPIKey)
	if c.Reasoning.OpenRouterAPIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Reasoning.OpenRouterAPIKey = strings.TrimSpace(value)
		}
	}
	c.Reasoning.AnthropicAPIKey = strings.TrimSpace(c.Reasoning.AnthropicAPIKey)
	if c.Reasoning.AnthropicAPIKey == "" {
		if value, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
			c.Reasoning.AnthropicAPIKey = strings.TrimSpace(value)
		}
	}
	c.Reasoning.OpenRouterBaseURL = strings.TrimSpace(c.Reasoning.OpenRouterBaseURL)
	if c.Reasoning.OpenRouterBaseURL == "" {
		c.Reasoning.OpenRouterBaseURL = defaultOpenRouterBaseURL
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.SlackWebhookURL = strings.TrimSpace(c.Notifications.SlackWebhookURL)
	if c.Notifications.SlackWebhookURL == "" {
		if value, ok := os.LookupEnv("SLACK_WEBHOOK_URL"); ok {
			c.Notifications.SlackWebhookURL = strings.TrimSpace(value)
		}
	}
}
