package preflight

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"evalpanel/internal/config"
	"evalpanel/internal/supervisor"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckModels confirms the default model is on the allow-list.
func CheckModels(cfg *config.Config) Result {
	const name = "Default model"
	if !cfg.ModelAllowed(cfg.Jobs.DefaultModel) {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not in jobs.allowed_models", cfg.Jobs.DefaultModel)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Jobs.DefaultModel}
}

// CheckReasoning confirms credentials exist for the provider the worker
// would use.
func CheckReasoning(cfg *config.Config) Result {
	const name = "Reasoning provider"
	if !cfg.Worker.Enabled {
		return Result{Name: name, Passed: true, Detail: "worker disabled (external workers)"}
	}
	key := cfg.Reasoning.OpenRouterAPIKey
	if cfg.Reasoning.Provider == config.ProviderAnthropic {
		key = cfg.Reasoning.AnthropicAPIKey
	}
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s API key missing", cfg.Reasoning.Provider)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s key configured", cfg.Reasoning.Provider)}
}

// CheckSchedule parses the stuck-sweep cron expression.
func CheckSchedule(spec string) Result {
	const name = "Stuck sweep"
	if strings.TrimSpace(spec) == "" {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	if _, err := supervisor.ParseSchedule(spec); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: spec}
}

// CheckWebhook validates the Slack webhook URL without posting to it.
func CheckWebhook(raw string) Result {
	const name = "Slack webhook"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: "invalid URL"}
	}
	if parsed.Scheme != "https" {
		return Result{Name: name, Detail: fmt.Sprintf("scheme %q, want https", parsed.Scheme)}
	}
	return Result{Name: name, Passed: true, Detail: parsed.Host}
}
