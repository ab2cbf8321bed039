package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"evalpanel/internal/agents"
	"evalpanel/internal/config"
	"evalpanel/internal/daemon"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/notifications"
	"evalpanel/internal/preflight"
	"evalpanel/internal/reasoning"
	"evalpanel/internal/store"
	"evalpanel/internal/supervisor"
	"evalpanel/internal/teams"
	"evalpanel/internal/worker"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "evalpaneld.pid")
}

// Run starts the evalpanel daemon and blocks until a signal or cmdCtx ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("evalpaneld-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update evalpaneld.log link: %v\n", err)
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	db, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer db.Close()

	registry := agents.NewRegistry(db)
	seeded, err := registry.SeedDefaults(signalCtx)
	if err != nil {
		return fmt.Errorf("seed agent templates: %w", err)
	}
	if len(seeded.Created) > 0 {
		logger.Info("installed default agent templates", logging.Int("count", len(seeded.Created)))
	}

	teamStore := teams.NewStore(db, registry)
	jobSvc := jobs.NewService(db, teamStore, cfg, logger)
	notifier := notifications.NewService(cfg)
	sup := supervisor.New(cfg, jobSvc, notifier, logger)

	providerName := "external"
	var mgr *worker.Manager
	if cfg.Worker.Enabled {
		provider, err := reasoning.NewProvider(cfg)
		if err != nil {
			return fmt.Errorf("reasoning provider: %w", err)
		}
		providerName = provider.Name()
		mgr = worker.NewManager(cfg, jobSvc, teamStore, registry, provider, notifier, logger)
	}
	logConfigSnapshot(logger, cfg, providerName)
	for _, check := range preflight.Failed(preflight.RunAll(cfg)) {
		logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.Alert("preflight"),
		)
	}

	d, err := daemon.New(cfg, logger, daemon.Options{
		DB:         db,
		Jobs:       jobSvc,
		Teams:      teamStore,
		Supervisor: sup,
		Worker:     mgr,
		Provider:   providerName,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("evalpanel daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "evalpaneld.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, provider string) {
	logger.Info("configuration snapshot",
		logging.String("api_bind", cfg.API.Bind),
		logging.Bool("api_token_set", cfg.API.Token != ""),
		logging.String("database", cfg.DatabasePath()),
		logging.Bool("worker_enabled", cfg.Worker.Enabled),
		logging.Int("worker_concurrency", cfg.Worker.Concurrency),
		logging.String("provider", provider),
		logging.Int("max_retries", cfg.Jobs.MaxRetries),
		logging.Int("stuck_after_minutes", cfg.Jobs.StuckAfterMinutes),
		logging.String("stuck_sweep_schedule", cfg.Supervisor.StuckSweepSchedule),
		logging.Bool("slack_enabled", cfg.Notifications.SlackWebhookURL != ""),
	)
}
