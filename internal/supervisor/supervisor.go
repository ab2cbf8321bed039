package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"evalpanel/internal/config"
	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/notifications"
	"evalpanel/internal/services"
)

// Supervisor owns operator transitions and the stuck sweep.
type Supervisor struct {
	cfg      *config.Config
	jobs     *jobs.Service
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// New constructs a supervisor.
func New(cfg *config.Config, jobSvc *jobs.Service, notifier notifications.Service, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Supervisor{
		cfg:      cfg,
		jobs:     jobSvc,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "supervisor"),
		now:      time.Now,
		notified: make(map[string]time.Time),
	}
}

// Retry returns a failed job visible to caller to the queue.
func (s *Supervisor) Retry(ctx context.Context, caller services.Caller, id string) (*jobs.Job, error) {
	if _, err := s.jobs.GetForCaller(ctx, caller, id); err != nil {
		return nil, err
	}
	job, err := s.jobs.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	s.forget(id)
	s.logger.Info("operator retry",
		logging.String(logging.FieldJobID, id),
		logging.String("user_id", caller.UserID),
		logging.Int(logging.FieldRetryCount, job.RetryCount),
	)
	return job, nil
}

// Cancel stops a job visible to caller.
func (s *Supervisor) Cancel(ctx context.Context, caller services.Caller, id string) (*jobs.Job, error) {
	if _, err := s.jobs.GetForCaller(ctx, caller, id); err != nil {
		return nil, err
	}
	job, err := s.jobs.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.forget(id)
	s.logger.Info("operator cancel",
		logging.String(logging.FieldJobID, id),
		logging.String("user_id", caller.UserID),
	)
	return job, nil
}

// Stuck lists the caller's processing jobs with no recent activity.
func (s *Supervisor) Stuck(ctx context.Context, caller services.Caller) ([]*jobs.Job, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	stuck, err := s.jobs.Stuck(ctx, caller.TenantID, s.now())
	if err != nil {
		return nil, err
	}
	if !caller.Restricted() {
		return stuck, nil
	}
	own := stuck[:0]
	for _, job := range stuck {
		if job.CreatedBy == caller.UserID {
			own = append(own, job)
		}
	}
	return own, nil
}

// Sweep scans every tenant for stuck jobs and notifies once per newly stuck
// job. It returns the number of jobs currently stuck.
func (s *Supervisor) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	stuck, err := s.jobs.Stuck(ctx, "", now)
	if err != nil {
		return 0, err
	}

	current := make(map[string]bool, len(stuck))
	var fresh []*jobs.Job
	s.mu.Lock()
	for _, job := range stuck {
		current[job.ID] = true
		if _, seen := s.notified[job.ID]; !seen {
			s.notified[job.ID] = now
			fresh = append(fresh, job)
		}
	}
	for id := range s.notified {
		if !current[id] {
			delete(s.notified, id)
		}
	}
	s.mu.Unlock()

	for _, job := range fresh {
		since := job.LastActivity()
		s.logger.Warn("job appears stuck",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldTenantID, job.TenantID),
			logging.Duration("idle", now.Sub(since).Round(time.Second)),
			logging.Alert("job_stuck"),
		)
		if err := s.notifier.Publish(ctx, notifications.EventJobStuck, notifications.Payload{
			"jobId": job.ID,
			"title": job.Title,
			"since": since.Local().Format("02/01 15:04"),
		}); err != nil {
			s.logger.Warn("stuck notification failed", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
	}
	return len(stuck), nil
}

func (s *Supervisor) forget(id string) {
	s.mu.Lock()
	delete(s.notified, id)
	s.mu.Unlock()
}

// ParseSchedule parses a five-field cron expression or descriptor.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(strings.TrimSpace(spec))
}

// Start runs the stuck sweep on the configured schedule. An empty schedule
// disables it.
func (s *Supervisor) Start(ctx context.Context) error {
	spec := strings.TrimSpace(s.cfg.Supervisor.StuckSweepSchedule)
	if spec == "" {
		s.logger.Info("stuck sweep disabled")
		return nil
	}
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "supervisor", "schedule", "invalid stuck sweep schedule", err)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("supervisor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("stuck sweep scheduled", logging.String("schedule", spec))
	go s.run(runCtx, schedule, done)
	return nil
}

// Stop halts the sweep and waits for a running pass to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Supervisor) run(ctx context.Context, schedule cron.Schedule, done chan struct{}) {
	defer close(done)
	for {
		now := s.now()
		timer := time.NewTimer(schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		count, err := s.Sweep(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("stuck sweep failed", logging.Error(err))
			continue
		}
		s.logger.Debug("stuck sweep complete", logging.Int("stuck", count))
	}
}
