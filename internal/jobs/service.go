package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"evalpanel/internal/aggregate"
	"evalpanel/internal/config"
	"evalpanel/internal/consolidation"
	"evalpanel/internal/logging"
	"evalpanel/internal/services"
	"evalpanel/internal/store"
	"evalpanel/internal/teams"
)

const jobColumns = `id, tenant_id, team_id, created_by, title, transcript, model, meeting_type,
	client_names, event_date, budget_number, meeting_date, meeting_time,
	contract_status, contract_value, guest_count,
	status, retry_count, last_error,
	final_score, classification, mechanical_score, mechanical_classification,
	weight_warning, coordinator_result, coordinator_fallback,
	tokens_used, processing_time_seconds, model_used,
	created_at, queued_at, processing_started_at, completed_at, cancelled_at, updated_at`

const maxPageSize = 100

// Service persists evaluation jobs and enforces their lifecycle.
type Service struct {
	db     *store.DB
	teams  *teams.Store
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the job service to the shared database and team store.
func NewService(db *store.DB, teamStore *teams.Store, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		db:     db,
		teams:  teamStore,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "jobs"),
		now:    time.Now,
	}
}

// MaxRetries returns the configured retry bound.
func (s *Service) MaxRetries() int {
	return s.cfg.Jobs.MaxRetries
}

// StuckThreshold returns the configured stuck age.
func (s *Service) StuckThreshold() time.Duration {
	return s.cfg.StuckThreshold()
}

// Get loads a job by id.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return getJob(ctx, s.db.Querier(), id)
}

// GetForCaller loads a job visible to caller. Jobs outside the caller's
// tenant, or created by someone else for a restricted caller, read as absent.
func (s *Service) GetForCaller(ctx context.Context, caller services.Caller, id string) (*Job, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.TenantID != caller.TenantID || (caller.Restricted() && job.CreatedBy != caller.UserID) {
		return nil, services.NotFound("jobs", "get", fmt.Sprintf("job %s not found", id))
	}
	return job, nil
}

// Query filters a job listing.
type Query struct {
	TenantID  string
	CreatedBy string
	Statuses  []Status
	Page      int
	PageSize  int
}

// QueryFor scopes a query to what caller may see.
func QueryFor(caller services.Caller) Query {
	q := Query{TenantID: caller.TenantID}
	if caller.Restricted() {
		q.CreatedBy = caller.UserID
	}
	return q
}

// Page is one page of a job listing.
type Page struct {
	Jobs     []*Job `json:"jobs"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// List returns jobs newest first.
func (s *Service) List(ctx context.Context, q Query) (Page, error) {
	if strings.TrimSpace(q.TenantID) == "" {
		return Page{}, services.Validation("jobs", "list", "tenant id is required")
	}
	page := Page{Page: q.Page, PageSize: q.PageSize}
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 {
		page.PageSize = s.cfg.Jobs.PageSize
	}
	if page.PageSize > maxPageSize {
		page.PageSize = maxPageSize
	}

	where, args := scopeClause(q, true)
	if err := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM jobs WHERE `+where, args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count jobs: %w", err)
	}

	args = append(args, page.PageSize, (page.Page-1)*page.PageSize)
	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan job: %w", err)
		}
		page.Jobs = append(page.Jobs, job)
	}
	return page, rows.Err()
}

// Counts summarizes active jobs over the unpaginated scope of q. Status and
// paging filters are ignored.
func (s *Service) Counts(ctx context.Context, q Query) (Counts, error) {
	if strings.TrimSpace(q.TenantID) == "" {
		return Counts{}, services.Validation("jobs", "counts", "tenant id is required")
	}
	stats, err := s.stats(ctx, q)
	if err != nil {
		return Counts{}, err
	}
	return Counts{
		Queued:     stats[StatusQueued],
		Processing: stats[StatusProcessing],
		Retrying:   stats[StatusRetrying],
	}, nil
}

// Stats counts jobs per status. An empty tenant counts every tenant.
func (s *Service) Stats(ctx context.Context, tenantID string) (Stats, error) {
	return s.stats(ctx, Query{TenantID: tenantID})
}

func (s *Service) stats(ctx context.Context, q Query) (Stats, error) {
	where, args := scopeClause(q, false)
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(1) FROM jobs WHERE `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	stats := make(Stats)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Stuck returns processing jobs with no activity past the stuck threshold.
// An empty tenant scans every tenant.
func (s *Service) Stuck(ctx context.Context, tenantID string, now time.Time) ([]*Job, error) {
	where, args := scopeClause(Query{TenantID: tenantID, Statuses: []Status{StatusProcessing}}, true)
	rows, err := s.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list processing jobs: %w", err)
	}
	defer rows.Close()
	threshold := s.StuckThreshold()
	var stuck []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if job.IsStuck(now, threshold) {
			stuck = append(stuck, job)
		}
	}
	return stuck, rows.Err()
}

// Delete removes a job and its stored module results.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_results WHERE job_id = ?`, id); err != nil {
			return fmt.Errorf("delete job results: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return services.NotFound("jobs", "delete", fmt.Sprintf("job %s not found", id))
		}
		return nil
	})
}

func scopeClause(q Query, withStatuses bool) (string, []any) {
	clauses := []string{"1 = 1"}
	var args []any
	if tenant := strings.TrimSpace(q.TenantID); tenant != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, tenant)
	}
	if creator := strings.TrimSpace(q.CreatedBy); creator != "" {
		clauses = append(clauses, "created_by = ?")
		args = append(args, creator)
	}
	if withStatuses && len(q.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+store.Placeholders(len(q.Statuses))+")")
		for _, status := range q.Statuses {
			args = append(args, string(status))
		}
	}
	return strings.Join(clauses, " AND "), args
}

func getJob(ctx context.Context, q store.Querier, id string) (*Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, strings.TrimSpace(id))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.NotFound("jobs", "get", fmt.Sprintf("job %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func scanJob(scanner store.Scanner) (*Job, error) {
	var (
		job             Job
		createdBy       sql.NullString
		clientNames     sql.NullString
		eventDate       sql.NullString
		budgetNumber    sql.NullString
		meetingDate     sql.NullString
		meetingTime     sql.NullString
		contractStatus  sql.NullString
		contractValue   sql.NullFloat64
		guestCount      sql.NullInt64
		status          string
		lastError       sql.NullString
		finalScore      sql.NullInt64
		classification  sql.NullString
		mechanical      sql.NullInt64
		mechanicalClass sql.NullString
		weightWarning   int
		coordinatorRaw  sql.NullString
		fallback        int
		processingTime  sql.NullFloat64
		modelUsed       sql.NullString
		createdRaw      sql.NullString
		queuedRaw       sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		cancelledRaw    sql.NullString
		updatedRaw      sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.TenantID,
		&job.TeamID,
		&createdBy,
		&job.Title,
		&job.Transcript,
		&job.Model,
		&job.MeetingType,
		&clientNames,
		&eventDate,
		&budgetNumber,
		&meetingDate,
		&meetingTime,
		&contractStatus,
		&contractValue,
		&guestCount,
		&status,
		&job.RetryCount,
		&lastError,
		&finalScore,
		&classification,
		&mechanical,
		&mechanicalClass,
		&weightWarning,
		&coordinatorRaw,
		&fallback,
		&job.TokensUsed,
		&processingTime,
		&modelUsed,
		&createdRaw,
		&queuedRaw,
		&startedRaw,
		&completedRaw,
		&cancelledRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.CreatedBy = createdBy.String
	if clientNames.Valid && clientNames.String != "" {
		if err := json.Unmarshal([]byte(clientNames.String), &job.ClientNames); err != nil {
			return nil, fmt.Errorf("decode client names: %w", err)
		}
	}
	job.EventDate = eventDate.String
	job.BudgetNumber = budgetNumber.String
	job.MeetingDate = meetingDate.String
	job.MeetingTime = meetingTime.String
	job.ContractStatus = ContractStatus(contractStatus.String)
	job.ContractValue = store.FloatPtr(contractValue)
	job.GuestCount = store.IntPtr(guestCount)
	job.Status = Status(status)
	job.LastError = lastError.String
	job.FinalScore = store.IntPtr(finalScore)
	job.Classification = aggregate.Classification(classification.String)
	job.MechanicalScore = store.IntPtr(mechanical)
	job.MechanicalClassification = aggregate.Classification(mechanicalClass.String)
	job.WeightWarning = weightWarning != 0
	if coordinatorRaw.Valid && coordinatorRaw.String != "" {
		var result consolidation.Result
		if err := json.Unmarshal([]byte(coordinatorRaw.String), &result); err != nil {
			return nil, fmt.Errorf("decode coordinator result: %w", err)
		}
		job.CoordinatorResult = &result
	}
	job.CoordinatorFallback = fallback != 0
	job.ProcessingTimeSeconds = store.FloatPtr(processingTime)
	job.ModelUsed = modelUsed.String
	job.CreatedAt = store.TimeValue(createdRaw)
	job.QueuedAt = store.TimePtr(queuedRaw)
	job.ProcessingStartedAt = store.TimePtr(startedRaw)
	job.CompletedAt = store.TimePtr(completedRaw)
	job.CancelledAt = store.TimePtr(cancelledRaw)
	job.UpdatedAt = store.TimeValue(updatedRaw)
	return &job, nil
}
