package preflight

import (
	"evalpanel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check that applies to cfg. Optional features that are
// switched off report as passed with a "disabled" detail.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckModels(cfg),
		CheckReasoning(cfg),
		CheckSchedule(cfg.Supervisor.StuckSweepSchedule),
		CheckWebhook(cfg.Notifications.SlackWebhookURL),
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}
