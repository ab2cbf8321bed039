package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// API contains the daemon HTTP surface settings.
type API struct {
	Bind          string `toml:"bind"`
	Token         string `toml:"token"`
	DefaultTenant string `toml:"default_tenant"`
}

// Jobs contains evaluation job policy.
type Jobs struct {
	MaxRetries         int      `toml:"max_retries"`
	StuckAfterMinutes  int      `toml:"stuck_after_minutes"`
	PageSize           int      `toml:"page_size"`
	MinTranscriptChars int      `toml:"min_transcript_chars"`
	DefaultModel       string   `toml:"default_model"`
	AllowedModels      []string `toml:"allowed_models"`
}

// Polling contains the status refresh intervals offered to callers.
type Polling struct {
	ListIntervalSeconds   int `toml:"list_interval_seconds"`
	DetailIntervalSeconds int `toml:"detail_interval_seconds"`
}

// Reasoning contains the settings for the external reasoning provider.
type Reasoning struct {
	Provider          string `toml:"provider"`
	OpenRouterAPIKey  string `toml:"openrouter_api_key"`
	OpenRouterBaseURL string `toml:"openrouter_base_url"`
	Referer           string `toml:"referer"`
	Title             string `toml:"title"`
	AnthropicAPIKey   string `toml:"anthropic_api_key"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxTokens         int    `toml:"max_tokens"`
}

// Worker contains settings for the in-process reference worker.
type Worker struct {
	Enabled             bool `toml:"enabled"`
	Concurrency         int  `toml:"concurrency"`
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
}

// Supervisor contains the lifecycle sweep schedule.
type Supervisor struct {
	StuckSweepSchedule string `toml:"stuck_sweep_schedule"`
}

// Notifications contains configuration for Slack webhook alerts.
type Notifications struct {
	SlackWebhookURL       string `toml:"slack_webhook_url"`
	NotifyFailures        bool   `toml:"notify_failures"`
	NotifyStuck           bool   `toml:"notify_stuck"`
	NotifyCompleted       bool   `toml:"notify_completed"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Config encapsulates all configuration values for evalpanel.
//
// Configuration sections by subsystem:
//   - Paths: database and log directories
//   - Logging: log format and level
//   - API: daemon bind address, bearer token, default tenant
//   - Jobs: retry bound, stuck threshold, paging, model allow-list
//   - Polling: list and detail refresh intervals
//   - Reasoning: OpenRouter or Anthropic credentials for the worker
//   - Worker: reference worker toggle and fan-out
//   - Supervisor: stuck sweep schedule
//   - Notifications: Slack webhook alerts
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	API           API           `toml:"api"`
	Jobs          Jobs          `toml:"jobs"`
	Polling       Polling       `toml:"polling"`
	Reasoning     Reasoning     `toml:"reasoning"`
	Worker        Worker        `toml:"worker"`
	Supervisor    Supervisor    `toml:"supervisor"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		if env, ok := os.LookupEnv("EVALPANEL_CONFIG"); ok && strings.TrimSpace(env) != "" {
			path = env
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("evalpanel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "evalpanel.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "evalpaneld.lock")
}

// StuckThreshold returns the processing age after which a job is reported as stuck.
func (c *Config) StuckThreshold() time.Duration {
	return time.Duration(c.Jobs.StuckAfterMinutes) * time.Minute
}

// ListPollInterval returns how often job lists should be refreshed.
func (c *Config) ListPollInterval() time.Duration {
	return time.Duration(c.Polling.ListIntervalSeconds) * time.Second
}

// DetailPollInterval returns how often a single job view should be refreshed.
func (c *Config) DetailPollInterval() time.Duration {
	return time.Duration(c.Polling.DetailIntervalSeconds) * time.Second
}

// ModelAllowed reports whether model appears on the configured allow-list.
func (c *Config) ModelAllowed(model string) bool {
	model = strings.TrimSpace(model)
	for _, allowed := range c.Jobs.AllowedModels {
		if allowed == model {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
