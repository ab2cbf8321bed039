package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"evalpanel/internal/api"
	"evalpanel/internal/config"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/store"
	"evalpanel/internal/supervisor"
	"evalpanel/internal/teams"
	"evalpanel/internal/worker"
)

// Options carries the services the daemon coordinates. Worker may be nil when
// evaluations are processed by an external worker.
type Options struct {
	DB         *store.DB
	Jobs       *jobs.Service
	Teams      *teams.Store
	Supervisor *supervisor.Supervisor
	Worker     *worker.Manager
	Provider   string
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *store.DB
	jobs       *api.JobService
	teams      *teams.Store
	supervisor *supervisor.Supervisor
	worker     *worker.Manager
	provider   string

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Worker       api.WorkerStatus
	Stats        map[string]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || opts.DB == nil || opts.Jobs == nil || opts.Teams == nil || opts.Supervisor == nil {
		return nil, errors.New("daemon requires config, store, job service, team store, and supervisor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		db:         opts.DB,
		jobs:       api.NewJobService(opts.Jobs, opts.Supervisor),
		teams:      opts.Teams,
		supervisor: opts.Supervisor,
		worker:     opts.Worker,
		provider:   opts.Provider,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Handler exposes the HTTP API without binding a listener.
func (d *Daemon) Handler() http.Handler {
	return d.server.handler
}

// Start acquires the daemon lock, then starts the sweep, the worker, and the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another evalpanel daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	rollback := func(err error) error {
		cancel()
		d.supervisor.Stop()
		if d.worker != nil {
			d.worker.Stop()
		}
		_ = d.lock.Unlock()
		return err
	}

	if err := d.supervisor.Start(runCtx); err != nil {
		return rollback(fmt.Errorf("start supervisor: %w", err))
	}
	if d.worker != nil {
		if err := d.worker.Start(runCtx); err != nil {
			return rollback(fmt.Errorf("start worker: %w", err))
		}
	}
	if err := d.server.start(runCtx); err != nil {
		return rollback(err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("evalpanel daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("worker_enabled", d.worker != nil),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.server.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.worker != nil {
		d.worker.Stop()
	}
	d.supervisor.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("evalpanel daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Addr returns the bound API address once the listener is up.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.db.Path(),
		LockFilePath: d.lockPath,
	}
	if d.worker != nil {
		status.Worker = api.WorkerStatus{Enabled: true, Running: d.worker.Running()}
		if err := d.worker.LastError(); err != nil {
			status.Worker.LastError = err.Error()
		}
	}
	stats, err := d.jobs.Stats(ctx, "")
	if err != nil {
		d.logger.Warn("job stats unavailable", logging.Error(err))
	}
	status.Stats = stats
	return status
}
