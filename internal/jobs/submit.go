package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"evalpanel/internal/logging"
	"evalpanel/internal/services"
	"evalpanel/internal/store"
	"evalpanel/internal/teams"
)

// Submission is an evaluation request as received from a caller.
type Submission struct {
	TeamID         string   `json:"teamId"`
	Title          string   `json:"title"`
	Transcript     string   `json:"transcript"`
	Model          string   `json:"model,omitempty"`
	ClientNames    []string `json:"clientNames,omitempty"`
	EventDate      string   `json:"eventDate,omitempty"`
	BudgetNumber   string   `json:"budgetNumber,omitempty"`
	MeetingDate    string   `json:"meetingDate,omitempty"`
	MeetingTime    string   `json:"meetingTime,omitempty"`
	ContractStatus string   `json:"contractStatus,omitempty"`
	ContractValue  *float64 `json:"contractValue,omitempty"`
	GuestCount     *int     `json:"guestCount,omitempty"`
}

// Submit validates sub against the caller's tenant and inserts a queued job.
// Nothing is written unless every check passes. A blank team id selects the
// tenant's default team.
func (s *Service) Submit(ctx context.Context, caller services.Caller, sub Submission) (*Job, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	job, err := s.prepare(ctx, caller, sub)
	if err != nil {
		return nil, err
	}

	var clientNames any
	if len(job.ClientNames) > 0 {
		encoded, err := json.Marshal(job.ClientNames)
		if err != nil {
			return nil, fmt.Errorf("encode client names: %w", err)
		}
		clientNames = string(encoded)
	}

	now := s.now().UTC()
	job.ID = uuid.NewString()
	job.Status = StatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	job.QueuedAt = &now
	stamp := store.FormatTime(now)
	_, err = s.db.Exec(ctx, `INSERT INTO jobs (
			id, tenant_id, team_id, created_by, title, transcript, model, meeting_type,
			client_names, event_date, budget_number, meeting_date, meeting_time,
			contract_status, contract_value, guest_count,
			status, retry_count, created_at, queued_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		job.ID,
		job.TenantID,
		job.TeamID,
		store.NullableString(job.CreatedBy),
		job.Title,
		job.Transcript,
		job.Model,
		job.MeetingType,
		clientNames,
		store.NullableString(job.EventDate),
		store.NullableString(job.BudgetNumber),
		store.NullableString(job.MeetingDate),
		store.NullableString(job.MeetingTime),
		string(job.ContractStatus),
		store.NullableFloat(job.ContractValue),
		store.NullableInt(job.GuestCount),
		string(job.Status),
		stamp,
		stamp,
		stamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldTeamID, job.TeamID),
		logging.String(logging.FieldTenantID, job.TenantID),
		logging.String("model", job.Model),
		logging.Int("transcript_chars", utf8.RuneCountInString(job.Transcript)),
	)
	return job, nil
}

func (s *Service) prepare(ctx context.Context, caller services.Caller, sub Submission) (*Job, error) {
	title := strings.TrimSpace(sub.Title)
	if title == "" {
		return nil, services.Validation("jobs", "submit", "title is required")
	}
	transcript := strings.TrimSpace(sub.Transcript)
	if n := utf8.RuneCountInString(transcript); n < s.cfg.Jobs.MinTranscriptChars {
		return nil, services.Validation("jobs", "submit",
			fmt.Sprintf("transcript has %d characters, at least %d required", n, s.cfg.Jobs.MinTranscriptChars))
	}

	model := strings.TrimSpace(sub.Model)
	if model == "" {
		model = s.cfg.Jobs.DefaultModel
	}
	if !s.cfg.ModelAllowed(model) {
		return nil, services.Validation("jobs", "submit", fmt.Sprintf("model %q is not allowed", model))
	}

	contract, ok := ParseContractStatus(sub.ContractStatus)
	if !ok {
		return nil, services.Validation("jobs", "submit", fmt.Sprintf("unknown contract status %q", sub.ContractStatus))
	}
	if sub.ContractValue != nil && *sub.ContractValue < 0 {
		return nil, services.Validation("jobs", "submit", "contract value cannot be negative")
	}
	if sub.GuestCount != nil && *sub.GuestCount < 0 {
		return nil, services.Validation("jobs", "submit", "guest count cannot be negative")
	}

	team, err := s.resolveTeam(ctx, caller.TenantID, sub.TeamID)
	if err != nil {
		return nil, err
	}
	if err := teams.ValidateForRun(team); err != nil {
		return nil, err
	}

	var clients []string
	for _, name := range sub.ClientNames {
		if name = strings.TrimSpace(name); name != "" {
			clients = append(clients, name)
		}
	}
	return &Job{
		TenantID:       caller.TenantID,
		TeamID:         team.ID,
		CreatedBy:      strings.TrimSpace(caller.UserID),
		Title:          title,
		Transcript:     transcript,
		Model:          model,
		MeetingType:    team.MeetingType(),
		ClientNames:    clients,
		EventDate:      strings.TrimSpace(sub.EventDate),
		BudgetNumber:   strings.TrimSpace(sub.BudgetNumber),
		MeetingDate:    strings.TrimSpace(sub.MeetingDate),
		MeetingTime:    strings.TrimSpace(sub.MeetingTime),
		ContractStatus: contract,
		ContractValue:  sub.ContractValue,
		GuestCount:     sub.GuestCount,
	}, nil
}

func (s *Service) resolveTeam(ctx context.Context, tenantID, teamID string) (*teams.Team, error) {
	if strings.TrimSpace(teamID) == "" {
		return s.teams.Default(ctx, tenantID)
	}
	return s.teams.GetForTenant(ctx, tenantID, teamID)
}
