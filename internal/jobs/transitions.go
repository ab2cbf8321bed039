package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"evalpanel/internal/aggregate"
	"evalpanel/internal/consolidation"
	"evalpanel/internal/logging"
	"evalpanel/internal/services"
	"evalpanel/internal/store"
)

// Update is the worker update contract. Every field is optional; a status
// flip alone is a valid update.
type Update struct {
	Status                   Status                   `json:"status,omitempty"`
	LastError                *string                  `json:"lastError,omitempty"`
	Modules                  []ModuleRecord           `json:"perModule,omitempty"`
	CoordinatorResult        *consolidation.Result    `json:"coordinatorResult,omitempty"`
	CoordinatorFallback      *bool                    `json:"coordinatorFallback,omitempty"`
	FinalScore               *int                     `json:"finalScore,omitempty"`
	Classification           aggregate.Classification `json:"classification,omitempty"`
	MechanicalScore          *int                     `json:"mechanicalScore,omitempty"`
	MechanicalClassification aggregate.Classification `json:"mechanicalClassification,omitempty"`
	WeightWarning            *bool                    `json:"weightWarning,omitempty"`
	TokensUsed               *int64                   `json:"tokensUsed,omitempty"`
	ProcessingTimeSeconds    *float64                 `json:"processingTimeSeconds,omitempty"`
	ModelUsed                string                   `json:"modelUsed,omitempty"`
}

// Claim hands write authority for a queued or retrying job to the caller.
// The conditional update guarantees at most one claimant wins.
func (s *Service) Claim(ctx context.Context, id string) (*Job, error) {
	stamp := store.FormatTime(s.now().UTC())
	res, err := s.db.Exec(ctx, `UPDATE jobs
		SET status = ?, processing_started_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(StatusProcessing), stamp, stamp,
		id, string(StatusQueued), string(StatusRetrying),
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, services.Wrap(services.ErrConflict, "jobs", "claim",
			fmt.Sprintf("job %s is %s", id, job.Status), nil)
	}
	s.logger.Info("job claimed", logging.String(logging.FieldJobID, id))
	return s.Get(ctx, id)
}

// ClaimNext claims the oldest claimable job. It returns nil when nothing is
// waiting.
func (s *Service) ClaimNext(ctx context.Context) (*Job, error) {
	for attempt := 0; attempt < 3; attempt++ {
		var id string
		err := s.db.QueryRow(ctx, `SELECT id FROM jobs
			WHERE status IN (?, ?)
			ORDER BY COALESCE(queued_at, created_at), created_at
			LIMIT 1`, string(StatusQueued), string(StatusRetrying)).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select next job: %w", err)
		}
		job, err := s.Claim(ctx, id)
		if errors.Is(err, services.ErrConflict) {
			continue
		}
		return job, err
	}
	return nil, nil
}

// ApplyUpdate records worker progress. Only a processing job accepts writes;
// write authority comes from Claim and ends when the job leaves processing.
// Moving to retrying once retryCount has reached the retry bound records
// failed instead.
func (s *Service) ApplyUpdate(ctx context.Context, id string, u Update) (*Job, error) {
	if u.Status != "" {
		if _, ok := ParseStatus(string(u.Status)); !ok {
			return nil, services.Validation("jobs", "update", fmt.Sprintf("unknown status %q", u.Status))
		}
		if u.Status == StatusCancelled {
			return nil, services.Validation("jobs", "update", "cancellation is an operator action")
		}
	}
	if u.FinalScore != nil && (*u.FinalScore < 0 || *u.FinalScore > 100) {
		return nil, services.Validation("jobs", "update", fmt.Sprintf("final score %d out of range", *u.FinalScore))
	}

	var (
		result *Job
		from   Status
	)
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		from = job.Status
		if job.Status == StatusCancelled {
			return services.Wrap(services.ErrConflict, "jobs", "update", fmt.Sprintf("job %s was cancelled", id), nil)
		}
		if err := s.applyTo(job, u); err != nil {
			return err
		}
		if err := writeJob(ctx, tx, job, from); err != nil {
			return err
		}
		for _, record := range u.Modules {
			record.JobID = job.ID
			if err := upsertResult(ctx, tx, record, s.now().UTC()); err != nil {
				return err
			}
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Status != from {
		s.logger.Info("job status changed",
			logging.String(logging.FieldJobID, result.ID),
			logging.String("from", string(from)),
			logging.String(logging.FieldStatus, string(result.Status)),
			logging.Int(logging.FieldRetryCount, result.RetryCount),
		)
	}
	return result, nil
}

func (s *Service) applyTo(job *Job, u Update) error {
	now := s.now().UTC()
	target := u.Status
	if target == "" {
		target = job.Status
	}
	if target != job.Status && !CanTransition(job.Status, target) {
		return services.Wrap(services.ErrConflict, "jobs", "update",
			fmt.Sprintf("job %s cannot move from %s to %s", job.ID, job.Status, target), nil)
	}
	if job.Status == StatusFailed && target == StatusQueued {
		return services.Validation("jobs", "update", "failed jobs return to the queue through retry")
	}
	if job.Status != StatusProcessing {
		return services.Wrap(services.ErrConflict, "jobs", "update",
			fmt.Sprintf("job %s is %s; only a claimed job accepts worker updates", job.ID, job.Status), nil)
	}

	if u.LastError != nil {
		job.LastError = strings.TrimSpace(*u.LastError)
	}
	if u.CoordinatorResult != nil {
		job.CoordinatorResult = u.CoordinatorResult
	}
	if u.CoordinatorFallback != nil {
		job.CoordinatorFallback = *u.CoordinatorFallback
	}
	if u.FinalScore != nil {
		score := *u.FinalScore
		job.FinalScore = &score
	}
	if u.Classification != "" {
		job.Classification = u.Classification
	}
	if u.MechanicalScore != nil {
		score := *u.MechanicalScore
		job.MechanicalScore = &score
		job.MechanicalClassification = aggregate.Classify(score)
	}
	if u.MechanicalClassification != "" && u.MechanicalScore == nil {
		job.MechanicalClassification = u.MechanicalClassification
	}
	if u.WeightWarning != nil {
		job.WeightWarning = *u.WeightWarning
	}
	if u.TokensUsed != nil {
		job.TokensUsed = *u.TokensUsed
	}
	if u.ProcessingTimeSeconds != nil {
		seconds := *u.ProcessingTimeSeconds
		job.ProcessingTimeSeconds = &seconds
	}
	if model := strings.TrimSpace(u.ModelUsed); model != "" {
		job.ModelUsed = model
	}

	switch {
	case target == StatusRetrying && job.Status != StatusRetrying:
		if job.RetryCount >= s.cfg.Jobs.MaxRetries {
			target = StatusFailed
			break
		}
		job.RetryCount++
	case target == StatusCompleted:
		if job.FinalScore == nil {
			return services.Validation("jobs", "update", "completed jobs need a final score")
		}
		job.Classification = aggregate.Classify(*job.FinalScore)
		job.CompletedAt = &now
	}
	if target == StatusFailed && job.LastError == "" {
		job.LastError = "evaluation failed"
	}
	job.Status = target
	job.UpdatedAt = now
	return nil
}

// Retry returns a failed job to the queue. retryCount is kept so the attempt
// history stays visible.
func (s *Service) Retry(ctx context.Context, id string) (*Job, error) {
	stamp := store.FormatTime(s.now().UTC())
	res, err := s.db.Exec(ctx, `UPDATE jobs
		SET status = ?, last_error = NULL, processing_started_at = NULL, completed_at = NULL,
			queued_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusQueued), stamp, stamp, id, string(StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("retry job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, services.Validation("jobs", "retry",
			fmt.Sprintf("job is %s; only failed jobs can be retried", job.Status))
	}
	s.logger.Info("job requeued", logging.String(logging.FieldJobID, id))
	return s.Get(ctx, id)
}

// Cancel stops a queued, processing or retrying job. An in-flight worker is
// not interrupted; its next write is refused.
func (s *Service) Cancel(ctx context.Context, id string) (*Job, error) {
	stamp := store.FormatTime(s.now().UTC())
	res, err := s.db.Exec(ctx, `UPDATE jobs
		SET status = ?, cancelled_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		string(StatusCancelled), stamp, CancelReason, stamp,
		id, string(StatusQueued), string(StatusProcessing), string(StatusRetrying),
	)
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, services.Validation("jobs", "cancel",
			fmt.Sprintf("job is %s; only queued, processing or retrying jobs can be cancelled", job.Status))
	}
	s.logger.Warn("job cancelled",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldStatus, string(StatusCancelled)),
	)
	return s.Get(ctx, id)
}

// SaveModuleResult stores one agent's result while the job is processing.
func (s *Service) SaveModuleResult(ctx context.Context, record ModuleRecord) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		job, err := getJob(ctx, tx, record.JobID)
		if err != nil {
			return err
		}
		switch job.Status {
		case StatusProcessing:
		case StatusCancelled:
			return services.Wrap(services.ErrConflict, "jobs", "save result", fmt.Sprintf("job %s was cancelled", job.ID), nil)
		default:
			return services.Wrap(services.ErrConflict, "jobs", "save result",
				fmt.Sprintf("job %s is %s; only a claimed job accepts results", job.ID, job.Status), nil)
		}
		return upsertResult(ctx, tx, record, s.now().UTC())
	})
}

// Results returns the stored module results for a job ordered by agent key.
func (s *Service) Results(ctx context.Context, jobID string) ([]ModuleRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT job_id, agent_key, agent_id, weight, module_result, tokens_used, processing_time_seconds, created_at
		FROM job_results WHERE job_id = ? ORDER BY agent_key`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	var records []ModuleRecord
	for rows.Next() {
		var (
			record     ModuleRecord
			agentID    sql.NullString
			payload    string
			seconds    sql.NullFloat64
			createdRaw sql.NullString
		)
		if err := rows.Scan(&record.JobID, &record.AgentKey, &agentID, &record.Weight, &payload, &record.TokensUsed, &seconds, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &record.Result); err != nil {
			return nil, fmt.Errorf("decode module result %s: %w", record.AgentKey, err)
		}
		record.AgentID = agentID.String
		record.ProcessingTimeSeconds = store.FloatPtr(seconds)
		record.CreatedAt = store.TimeValue(createdRaw)
		records = append(records, record)
	}
	return records, rows.Err()
}

func writeJob(ctx context.Context, tx *sql.Tx, job *Job, expected Status) error {
	var coordinator any
	if job.CoordinatorResult != nil {
		encoded, err := json.Marshal(job.CoordinatorResult)
		if err != nil {
			return fmt.Errorf("encode coordinator result: %w", err)
		}
		coordinator = string(encoded)
	}
	res, err := tx.ExecContext(ctx, `UPDATE jobs
		SET status = ?, retry_count = ?, last_error = ?,
			final_score = ?, classification = ?, mechanical_score = ?, mechanical_classification = ?,
			weight_warning = ?, coordinator_result = ?, coordinator_fallback = ?,
			tokens_used = ?, processing_time_seconds = ?, model_used = ?,
			processing_started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(job.Status),
		job.RetryCount,
		store.NullableString(job.LastError),
		store.NullableInt(job.FinalScore),
		store.NullableString(string(job.Classification)),
		store.NullableInt(job.MechanicalScore),
		store.NullableString(string(job.MechanicalClassification)),
		store.BoolToInt(job.WeightWarning),
		coordinator,
		store.BoolToInt(job.CoordinatorFallback),
		job.TokensUsed,
		store.NullableFloat(job.ProcessingTimeSeconds),
		store.NullableString(job.ModelUsed),
		store.NullableTime(job.ProcessingStartedAt),
		store.NullableTime(job.CompletedAt),
		store.FormatTime(job.UpdatedAt),
		job.ID,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrConflict, "jobs", "update", fmt.Sprintf("job %s changed concurrently", job.ID), nil)
	}
	return nil
}

func upsertResult(ctx context.Context, tx *sql.Tx, record ModuleRecord, now time.Time) error {
	key := strings.TrimSpace(record.AgentKey)
	if key == "" {
		return services.Validation("jobs", "save result", "agent key is required")
	}
	payload, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("encode module result: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO job_results (job_id, agent_key, agent_id, weight, module_result, tokens_used, processing_time_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, agent_key) DO UPDATE SET
			agent_id = excluded.agent_id,
			weight = excluded.weight,
			module_result = excluded.module_result,
			tokens_used = excluded.tokens_used,
			processing_time_seconds = excluded.processing_time_seconds`,
		record.JobID,
		key,
		store.NullableString(record.AgentID),
		record.Weight,
		string(payload),
		record.TokensUsed,
		store.NullableFloat(record.ProcessingTimeSeconds),
		store.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("save module result: %w", err)
	}
	return nil
}
