package preflight_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"evalpanel/internal/preflight"
	"evalpanel/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if r := preflight.CheckDirectoryAccess("Data", dir); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}

	missing := filepath.Join(dir, "absent")
	if r := preflight.CheckDirectoryAccess("Data", missing); r.Passed || !strings.Contains(r.Detail, "does not exist") {
		t.Fatalf("unexpected result for missing dir: %+v", r)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if r := preflight.CheckDirectoryAccess("Data", file); r.Passed || !strings.Contains(r.Detail, "not a directory") {
		t.Fatalf("unexpected result for file: %+v", r)
	}
}

func TestCheckReasoning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if r := preflight.CheckReasoning(cfg); !r.Passed {
		t.Fatalf("disabled worker should pass: %+v", r)
	}

	cfg = testsupport.NewConfig(t, testsupport.WithWorker(2))
	cfg.Reasoning.OpenRouterAPIKey = ""
	if r := preflight.CheckReasoning(cfg); r.Passed {
		t.Fatalf("missing key should fail: %+v", r)
	}
}

func TestCheckScheduleAndWebhook(t *testing.T) {
	tests := []struct {
		name   string
		result preflight.Result
		passed bool
	}{
		{"valid schedule", preflight.CheckSchedule("*/5 * * * *"), true},
		{"bad schedule", preflight.CheckSchedule("every minute"), false},
		{"no schedule", preflight.CheckSchedule(""), true},
		{"no webhook", preflight.CheckWebhook(""), true},
		{"https webhook", preflight.CheckWebhook("https://hooks.slack.com/services/T/B/X"), true},
		{"http webhook", preflight.CheckWebhook("http://hooks.slack.com/services/T/B/X"), false},
		{"garbage webhook", preflight.CheckWebhook("::"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Passed != tt.passed {
				t.Fatalf("passed = %v, want %v (%s)", tt.result.Passed, tt.passed, tt.result.Detail)
			}
		})
	}
}

func TestRunAllReportsFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := preflight.RunAll(cfg)
	if failed := preflight.Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	cfg.Jobs.DefaultModel = "vendor/unknown"
	failed := preflight.Failed(preflight.RunAll(cfg))
	if len(failed) != 1 || failed[0].Name != "Default model" {
		t.Fatalf("failed = %+v, want default model only", failed)
	}
}
