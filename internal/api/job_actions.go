package api

import (
	"context"
	"errors"

	"evalpanel/internal/jobs"
	"evalpanel/internal/services"
)

// JobActionService captures the job operations needed by per-id retry/cancel
// workflows.
type JobActionService interface {
	Describe(ctx context.Context, caller services.Caller, id string) (JobDetail, error)
	Retry(ctx context.Context, caller services.Caller, id string) (Job, error)
	Cancel(ctx context.Context, caller services.Caller, id string) (Job, error)
}

type RetryJobOutcome string

const (
	RetryJobUpdated   RetryJobOutcome = "retried"
	RetryJobNotFound  RetryJobOutcome = "not_found"
	RetryJobNotFailed RetryJobOutcome = "not_failed"
)

type RetryJobResult struct {
	ID        string          `json:"id"`
	Outcome   RetryJobOutcome `json:"outcome"`
	NewStatus string          `json:"newStatus,omitempty"`
}

type RetryJobsResult struct {
	UpdatedCount int              `json:"updatedCount"`
	Jobs         []RetryJobResult `json:"jobs"`
}

type CancelJobOutcome string

const (
	CancelJobUpdated         CancelJobOutcome = "cancelled"
	CancelJobNotFound        CancelJobOutcome = "not_found"
	CancelJobAlreadyTerminal CancelJobOutcome = "already_terminal"
)

type CancelJobResult struct {
	ID          string           `json:"id"`
	Outcome     CancelJobOutcome `json:"outcome"`
	PriorStatus string           `json:"priorStatus,omitempty"`
}

type CancelJobsResult struct {
	UpdatedCount int               `json:"updatedCount"`
	Jobs         []CancelJobResult `json:"jobs"`
}

// RetryFailedJobsByID retries only failed jobs, reporting an outcome per id.
func RetryFailedJobsByID(ctx context.Context, service JobActionService, caller services.Caller, ids []string) (RetryJobsResult, error) {
	result := RetryJobsResult{Jobs: make([]RetryJobResult, 0, len(ids))}
	for _, id := range ids {
		detail, err := service.Describe(ctx, caller, id)
		if errors.Is(err, services.ErrNotFound) {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFound})
			continue
		}
		if err != nil {
			return RetryJobsResult{}, err
		}
		if status, ok := jobs.ParseStatus(detail.Job.Status); !ok || status != jobs.StatusFailed {
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFailed})
			continue
		}
		job, err := service.Retry(ctx, caller, id)
		switch {
		case err == nil:
			result.UpdatedCount++
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobUpdated, NewStatus: job.Status})
		case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConflict):
			result.Jobs = append(result.Jobs, RetryJobResult{ID: id, Outcome: RetryJobNotFailed})
		default:
			return RetryJobsResult{}, err
		}
	}
	return result, nil
}

// CancelJobsByID cancels jobs unless they already reached a terminal state.
func CancelJobsByID(ctx context.Context, service JobActionService, caller services.Caller, ids []string) (CancelJobsResult, error) {
	result := CancelJobsResult{Jobs: make([]CancelJobResult, 0, len(ids))}
	for _, id := range ids {
		detail, err := service.Describe(ctx, caller, id)
		if errors.Is(err, services.ErrNotFound) {
			result.Jobs = append(result.Jobs, CancelJobResult{ID: id, Outcome: CancelJobNotFound})
			continue
		}
		if err != nil {
			return CancelJobsResult{}, err
		}
		prior := detail.Job.Status
		if status, ok := jobs.ParseStatus(prior); ok && status.Terminal() {
			result.Jobs = append(result.Jobs, CancelJobResult{ID: id, Outcome: CancelJobAlreadyTerminal, PriorStatus: prior})
			continue
		}
		_, err = service.Cancel(ctx, caller, id)
		switch {
		case err == nil:
			result.UpdatedCount++
			result.Jobs = append(result.Jobs, CancelJobResult{ID: id, Outcome: CancelJobUpdated, PriorStatus: prior})
		case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConflict):
			result.Jobs = append(result.Jobs, CancelJobResult{ID: id, Outcome: CancelJobAlreadyTerminal, PriorStatus: prior})
		default:
			return CancelJobsResult{}, err
		}
	}
	return result, nil
}
