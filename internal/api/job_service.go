package api

import (
	"context"
	"time"

	"evalpanel/internal/jobs"
	"evalpanel/internal/services"
	"evalpanel/internal/supervisor"
)

// JobService exposes caller-scoped job operations returning API DTOs.
type JobService struct {
	jobs       *jobs.Service
	supervisor *supervisor.Supervisor
	now        func() time.Time
}

// NewJobService constructs a JobService. A nil job service yields nil.
func NewJobService(jobSvc *jobs.Service, sup *supervisor.Supervisor) *JobService {
	if jobSvc == nil {
		return nil
	}
	return &JobService{jobs: jobSvc, supervisor: sup, now: time.Now}
}

// SetClock overrides the clock used for derived fields.
func (s *JobService) SetClock(now func() time.Time) {
	if s != nil && now != nil {
		s.now = now
	}
}

func (s *JobService) view() View {
	return View{
		Now:            s.now(),
		StuckThreshold: s.jobs.StuckThreshold(),
		MaxRetries:     s.jobs.MaxRetries(),
	}
}

// Submit queues a new evaluation for caller.
func (s *JobService) Submit(ctx context.Context, caller services.Caller, sub jobs.Submission) (Job, error) {
	job, err := s.jobs.Submit(ctx, caller, sub)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job, s.view()), nil
}

// List returns one page of the caller's visible jobs with matching counts.
func (s *JobService) List(ctx context.Context, caller services.Caller, statuses []jobs.Status, page, pageSize int) (JobListResponse, error) {
	if err := caller.Validate(); err != nil {
		return JobListResponse{}, err
	}
	q := jobs.QueryFor(caller)
	q.Statuses = statuses
	q.Page = page
	q.PageSize = pageSize

	result, err := s.jobs.List(ctx, q)
	if err != nil {
		return JobListResponse{}, err
	}
	counts, err := s.jobs.Counts(ctx, q)
	if err != nil {
		return JobListResponse{}, err
	}
	return JobListResponse{
		Jobs:     FromJobs(result.Jobs, s.view()),
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		Counts:   FromCounts(counts),
	}, nil
}

// Counts returns the queue summary for the caller's scope.
func (s *JobService) Counts(ctx context.Context, caller services.Caller) (Counts, error) {
	if err := caller.Validate(); err != nil {
		return Counts{}, err
	}
	counts, err := s.jobs.Counts(ctx, jobs.QueryFor(caller))
	if err != nil {
		return Counts{}, err
	}
	return FromCounts(counts), nil
}

// Describe fetches a job with its module results.
func (s *JobService) Describe(ctx context.Context, caller services.Caller, id string) (JobDetail, error) {
	job, err := s.jobs.GetForCaller(ctx, caller, id)
	if err != nil {
		return JobDetail{}, err
	}
	records, err := s.jobs.Results(ctx, job.ID)
	if err != nil {
		return JobDetail{}, err
	}
	return JobDetail{Job: FromJob(job, s.view()), Modules: FromModuleRecords(records)}, nil
}

// Stuck lists processing jobs with no recent activity.
func (s *JobService) Stuck(ctx context.Context, caller services.Caller) (StuckResponse, error) {
	list, err := s.supervisor.Stuck(ctx, caller)
	if err != nil {
		return StuckResponse{}, err
	}
	return StuckResponse{
		Jobs:             FromJobs(list, s.view()),
		ThresholdMinutes: int(s.jobs.StuckThreshold() / time.Minute),
	}, nil
}

// Retry re-queues a failed job.
func (s *JobService) Retry(ctx context.Context, caller services.Caller, id string) (Job, error) {
	job, err := s.supervisor.Retry(ctx, caller, id)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job, s.view()), nil
}

// Cancel stops a job that has not reached a terminal state.
func (s *JobService) Cancel(ctx context.Context, caller services.Caller, id string) (Job, error) {
	job, err := s.supervisor.Cancel(ctx, caller, id)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job, s.view()), nil
}

// Delete removes a job visible to caller.
func (s *JobService) Delete(ctx context.Context, caller services.Caller, id string) error {
	if _, err := s.jobs.GetForCaller(ctx, caller, id); err != nil {
		return err
	}
	return s.jobs.Delete(ctx, id)
}

// Claim moves a claimable job into processing for an external worker.
func (s *JobService) Claim(ctx context.Context, id string) (Job, error) {
	job, err := s.jobs.Claim(ctx, id)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job, s.view()), nil
}

// Update applies a worker status write.
func (s *JobService) Update(ctx context.Context, id string, u jobs.Update) (Job, error) {
	job, err := s.jobs.ApplyUpdate(ctx, id, u)
	if err != nil {
		return Job{}, err
	}
	return FromJob(job, s.view()), nil
}

// Stats returns per-status totals; an empty tenant covers every tenant.
func (s *JobService) Stats(ctx context.Context, tenantID string) (map[string]int, error) {
	stats, err := s.jobs.Stats(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return FromStats(stats), nil
}
