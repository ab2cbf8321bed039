package api

import (
	"slices"
	"strings"
	"time"

	"evalpanel/internal/jobs"
	"evalpanel/internal/teams"
)

// View carries the read-time inputs a job DTO derives from.
type View struct {
	Now            time.Time
	StuckThreshold time.Duration
	MaxRetries     int
}

// FromJob converts a job record to its API representation.
func FromJob(job *jobs.Job, view View) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:                       job.ID,
		TenantID:                 job.TenantID,
		TeamID:                   job.TeamID,
		CreatedBy:                job.CreatedBy,
		Title:                    job.Title,
		Model:                    job.Model,
		MeetingType:              job.MeetingType,
		ClientNames:              slices.Clone(job.ClientNames),
		EventDate:                job.EventDate,
		BudgetNumber:             job.BudgetNumber,
		MeetingDate:              job.MeetingDate,
		MeetingTime:              job.MeetingTime,
		ContractStatus:           string(job.ContractStatus),
		ContractValue:            job.ContractValue,
		GuestCount:               job.GuestCount,
		Status:                   string(job.Status),
		RetryCount:               job.RetryCount,
		RetryLabel:               job.RetryLabel(view.MaxRetries),
		LastError:                strings.TrimSpace(job.LastError),
		Stuck:                    job.IsStuck(view.Now, view.StuckThreshold),
		FinalScore:               job.FinalScore,
		Classification:           string(job.Classification),
		MechanicalScore:          job.MechanicalScore,
		MechanicalClassification: string(job.MechanicalClassification),
		WeightWarning:            job.WeightWarning,
		CoordinatorFallback:      job.CoordinatorFallback,
		CoordinatorResult:        job.CoordinatorResult,
		TokensUsed:               job.TokensUsed,
		ProcessingTimeSeconds:    job.ProcessingTimeSeconds,
		ModelUsed:                job.ModelUsed,
		CreatedAt:                formatTime(job.CreatedAt),
		UpdatedAt:                formatTime(job.UpdatedAt),
		QueuedAt:                 formatTimePtr(job.QueuedAt),
		ProcessingStartedAt:      formatTimePtr(job.ProcessingStartedAt),
		CompletedAt:              formatTimePtr(job.CompletedAt),
		CancelledAt:              formatTimePtr(job.CancelledAt),
	}
	if dto.ContractStatus == "" {
		dto.ContractStatus = string(jobs.ContractNA)
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(list []*jobs.Job, view View) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job, view))
	}
	return out
}

// FromModuleRecords converts stored module results ordered by agent key.
func FromModuleRecords(records []jobs.ModuleRecord) []ModuleResult {
	out := make([]ModuleResult, 0, len(records))
	for _, record := range records {
		out = append(out, ModuleResult{
			AgentKey:              record.AgentKey,
			Weight:                record.Weight,
			Score:                 record.Result.Score,
			TokensUsed:            record.TokensUsed,
			ProcessingTimeSeconds: record.ProcessingTimeSeconds,
			CreatedAt:             formatTime(record.CreatedAt),
			Result:                record.Result,
		})
	}
	slices.SortStableFunc(out, func(a, b ModuleResult) int {
		return strings.Compare(a.AgentKey, b.AgentKey)
	})
	return out
}

// FromCounts converts queue counts.
func FromCounts(counts jobs.Counts) Counts {
	return Counts{
		Queued:     counts.Queued,
		Processing: counts.Processing,
		Retrying:   counts.Retrying,
	}
}

// FromStats flattens per-status counts, filling zeroes for every known status.
func FromStats(stats jobs.Stats) map[string]int {
	out := make(map[string]int, len(jobs.AllStatuses()))
	for _, status := range jobs.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// FromValidation converts a panel check.
func FromValidation(teamID string, v teams.Validation) TeamValidationResponse {
	return TeamValidationResponse{
		TeamID:       teamID,
		Valid:        v.Valid,
		WeightSum:    v.WeightSum,
		Modules:      v.Modules,
		Coordinators: v.Coordinators,
		Problems:     slices.Clone(v.Problems),
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTime(*ts)
}
