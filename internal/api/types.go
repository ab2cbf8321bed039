package api

import (
	"evalpanel/internal/aggregate"
	"evalpanel/internal/consolidation"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes an evaluation job in a transport-friendly format.
type Job struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenantId"`
	TeamID      string   `json:"teamId"`
	CreatedBy   string   `json:"createdBy"`
	Title       string   `json:"title"`
	Model       string   `json:"model"`
	MeetingType string   `json:"meetingType,omitempty"`
	ClientNames []string `json:"clientNames,omitempty"`

	EventDate      string   `json:"eventDate,omitempty"`
	BudgetNumber   string   `json:"budgetNumber,omitempty"`
	MeetingDate    string   `json:"meetingDate,omitempty"`
	MeetingTime    string   `json:"meetingTime,omitempty"`
	ContractStatus string   `json:"contractStatus"`
	ContractValue  *float64 `json:"contractValue,omitempty"`
	GuestCount     *int     `json:"guestCount,omitempty"`

	Status     string `json:"status"`
	RetryCount int    `json:"retryCount"`
	RetryLabel string `json:"retryLabel"`
	LastError  string `json:"lastError,omitempty"`
	Stuck      bool   `json:"stuck"`

	FinalScore               *int                  `json:"finalScore,omitempty"`
	Classification           string                `json:"classification,omitempty"`
	MechanicalScore          *int                  `json:"mechanicalScore,omitempty"`
	MechanicalClassification string                `json:"mechanicalClassification,omitempty"`
	WeightWarning            bool                  `json:"weightWarning"`
	CoordinatorFallback      bool                  `json:"coordinatorFallback"`
	CoordinatorResult        *consolidation.Result `json:"coordinatorResult,omitempty"`

	TokensUsed            int64    `json:"tokensUsed"`
	ProcessingTimeSeconds *float64 `json:"processingTimeSeconds,omitempty"`
	ModelUsed             string   `json:"modelUsed,omitempty"`

	CreatedAt           string `json:"createdAt,omitempty"`
	UpdatedAt           string `json:"updatedAt,omitempty"`
	QueuedAt            string `json:"queuedAt,omitempty"`
	ProcessingStartedAt string `json:"processingStartedAt,omitempty"`
	CompletedAt         string `json:"completedAt,omitempty"`
	CancelledAt         string `json:"cancelledAt,omitempty"`
}

// ModuleResult is one agent's stored contribution to a job.
type ModuleResult struct {
	AgentKey              string                 `json:"agentKey"`
	Weight                int                    `json:"weight"`
	Score                 int                    `json:"score"`
	TokensUsed            int64                  `json:"tokensUsed"`
	ProcessingTimeSeconds *float64               `json:"processingTimeSeconds,omitempty"`
	CreatedAt             string                 `json:"createdAt,omitempty"`
	Result                aggregate.ModuleResult `json:"result"`
}

// JobDetail pairs a job with its module results.
type JobDetail struct {
	Job     Job            `json:"job"`
	Modules []ModuleResult `json:"modules"`
}

// Counts summarises queue activity for a scope.
type Counts struct {
	Queued     int `json:"queuedCount"`
	Processing int `json:"processingCount"`
	Retrying   int `json:"retryingCount"`
}

// JobListResponse wraps one page of jobs for API responses.
type JobListResponse struct {
	Jobs     []Job  `json:"jobs"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Counts   Counts `json:"counts"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// StuckResponse lists processing jobs past the stuck threshold.
type StuckResponse struct {
	Jobs             []Job `json:"jobs"`
	ThresholdMinutes int   `json:"thresholdMinutes"`
}

// TeamValidationResponse reports whether a panel can run.
type TeamValidationResponse struct {
	TeamID       string   `json:"teamId"`
	Valid        bool     `json:"valid"`
	WeightSum    int      `json:"weightSum"`
	Modules      int      `json:"modules"`
	Coordinators int      `json:"coordinators"`
	Problems     []string `json:"problems,omitempty"`
}

// WorkerStatus summarises the background evaluation worker.
type WorkerStatus struct {
	Enabled   bool   `json:"enabled"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// HealthResponse is returned by the daemon health endpoint.
type HealthResponse struct {
	Status   string         `json:"status"`
	PID      int            `json:"pid"`
	Provider string         `json:"provider"`
	Worker   WorkerStatus   `json:"worker"`
	Stats    map[string]int `json:"stats"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
