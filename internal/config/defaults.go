package config

const (
	defaultConfigPath            = "~/.config/evalpanel/config.toml"
	defaultDataDir               = "~/.local/share/evalpanel"
	defaultLogDir                = "~/.local/share/evalpanel/logs"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultAPIBind               = "127.0.0.1:7480"
	defaultTenant                = "default"
	defaultMaxRetries            = 3
	defaultStuckAfterMinutes     = 10
	defaultPageSize              = 20
	defaultMinTranscriptChars    = 100
	defaultModel                 = "openai/gpt-4o"
	defaultListIntervalSeconds   = 10
	defaultDetailIntervalSeconds = 5
	defaultReasoningProvider     = "openrouter"
	defaultOpenRouterBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultReasoningReferer      = "https://github.com/evalpanel/evalpanel"
	defaultReasoningTitle        = "evalpanel"
	defaultReasoningTimeout      = 120
	defaultReasoningMaxTokens    = 4096
	defaultWorkerConcurrency     = 4
	defaultWorkerPollSeconds     = 5
	defaultStuckSweepSchedule    = "*/5 * * * *"
	defaultNotifyTimeoutSeconds  = 10
)

// Provider identifiers accepted by reasoning.provider.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// DefaultAllowedModels is the model allow-list offered at submission.
func DefaultAllowedModels() []string {
	return []string{
		"openai/gpt-4o",
		"openai/gpt-4o-mini",
		"openai/gpt-4.5-preview",
		"openai/gpt-5.1",
		"openai/gpt-5.2-pro",
		"anthropic/claude-3.5-sonnet",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		API: API{
			Bind:          defaultAPIBind,
			DefaultTenant: defaultTenant,
		},
		Jobs: Jobs{
			MaxRetries:         defaultMaxRetries,
			StuckAfterMinutes:  defaultStuckAfterMinutes,
			PageSize:           defaultPageSize,
			MinTranscriptChars: defaultMinTranscriptChars,
			DefaultModel:       defaultModel,
			AllowedModels:      DefaultAllowedModels(),
		},
		Polling: Polling{
			ListIntervalSeconds:   defaultListIntervalSeconds,
			DetailIntervalSeconds: defaultDetailIntervalSeconds,
		},
		Reasoning: Reasoning{
			Provider:          defaultReasoningProvider,
			OpenRouterBaseURL: defaultOpenRouterBaseURL,
			Referer:           defaultReasoningReferer,
			Title:             defaultReasoningTitle,
			TimeoutSeconds:    defaultReasoningTimeout,
			MaxTokens:         defaultReasoningMaxTokens,
		},
		Worker: Worker{
			Concurrency:         defaultWorkerConcurrency,
			PollIntervalSeconds: defaultWorkerPollSeconds,
		},
		Supervisor: Supervisor{
			StuckSweepSchedule: defaultStuckSweepSchedule,
		},
		Notifications: Notifications{
			NotifyFailures:        true,
			NotifyStuck:           true,
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
	}
}
