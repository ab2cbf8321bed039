package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"evalpanel/internal/agents"
	"evalpanel/internal/config"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/notifications"
	"evalpanel/internal/reasoning"
	"evalpanel/internal/teams"
)

const errorRetryInterval = 10 * time.Second

// Manager runs the reference worker loop.
type Manager struct {
	cfg          *config.Config
	jobs         *jobs.Service
	teams        *teams.Store
	registry     *agents.Registry
	provider     reasoning.Provider
	notifier     notifications.Service
	logger       *slog.Logger
	pollInterval time.Duration
	concurrency  int
	now          func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a worker bound to the job service and a reasoning provider.
func NewManager(cfg *config.Config, jobSvc *jobs.Service, teamStore *teams.Store, registry *agents.Registry, provider reasoning.Provider, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	poll := time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Manager{
		cfg:          cfg,
		jobs:         jobSvc,
		teams:        teamStore,
		registry:     registry,
		provider:     provider,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "worker"),
		pollInterval: poll,
		concurrency:  concurrency,
		now:          time.Now,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.loop(runCtx)
	m.logger.Info("worker started",
		logging.Int("concurrency", m.concurrency),
		logging.Duration("poll_interval", m.pollInterval),
		logging.String("provider", m.provider.Name()),
	)
	return nil
}

// Stop terminates background processing and waits for the current job.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastError returns the most recent loop-level error.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := m.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			m.logger.Error("failed to process next job", logging.Error(err))
			m.wait(ctx, errorRetryInterval)
			continue
		}
		if !processed {
			m.wait(ctx, m.pollInterval)
		}
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// ProcessNext claims and evaluates the oldest waiting job. It reports false
// when the queue is empty.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	job, err := m.jobs.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return true, m.Process(ctx, job)
}
