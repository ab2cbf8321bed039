package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"evalpanel/internal/config"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	panel      *testsupport.Panel
	jobs       *jobs.Service
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("EVALPANEL_CONFIG", "")
	t.Setenv("EVALPANEL_API_TOKEN", "")

	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"
	cfg.API.DefaultTenant = testsupport.TestTenant
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg, "")

	db := testsupport.MustOpenStore(t, cfg)
	panel := testsupport.SeedPanel(t, db)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		panel:      panel,
		jobs:       jobs.NewService(db, panel.Teams, cfg, logging.NewNop()),
		baseDir:    base,
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--user", "tester"}, args...), e.configPath)
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("evalpanel %s: %v (stderr %q)", strings.Join(args, " "), err, stderr)
	}
	return stdout
}

func (e *cliTestEnv) writeTranscript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(e.baseDir, "transcript.txt")
	if err := os.WriteFile(path, []byte(testsupport.Transcript(300)), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config, token string) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\n\n[api]\nbind = %q\ndefault_tenant = %q\ntoken = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.API.Bind,
		cfg.API.DefaultTenant,
		token,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
