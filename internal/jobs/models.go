package jobs

import (
	"fmt"
	"strings"
	"time"

	"evalpanel/internal/aggregate"
	"evalpanel/internal/consolidation"
)

// Status represents the lifecycle of an evaluation job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
	StatusCancelled  Status = "cancelled"
)

// CancelReason is the fixed lastError recorded on cancellation.
const CancelReason = "operator-cancelled"

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusRetrying,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusRetrying, StatusCancelled},
	StatusRetrying:   {StatusProcessing, StatusCancelled},
	StatusFailed:     {StatusQueued},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no automatic transition leaves the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Active reports whether the job still occupies the queue.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusProcessing || s == StatusRetrying
}

// Claimable reports whether a worker may take the job.
func (s Status) Claimable() bool {
	return s == StatusQueued || s == StatusRetrying
}

// ContractStatus records whether the meeting closed a contract.
type ContractStatus string

const (
	ContractClosed    ContractStatus = "closed"
	ContractNotClosed ContractStatus = "not_closed"
	ContractNA        ContractStatus = "na"
)

// ParseContractStatus accepts the stored values; blank means na.
func ParseContractStatus(value string) (ContractStatus, bool) {
	switch ContractStatus(strings.ToLower(strings.TrimSpace(value))) {
	case ContractClosed:
		return ContractClosed, true
	case ContractNotClosed:
		return ContractNotClosed, true
	case ContractNA, "":
		return ContractNA, true
	default:
		return "", false
	}
}

// Job is an evaluation request and its outcome.
type Job struct {
	ID          string
	TenantID    string
	TeamID      string
	CreatedBy   string
	Title       string
	Transcript  string
	Model       string
	MeetingType string

	ClientNames    []string
	EventDate      string
	BudgetNumber   string
	MeetingDate    string
	MeetingTime    string
	ContractStatus ContractStatus
	ContractValue  *float64
	GuestCount     *int

	Status     Status
	RetryCount int
	LastError  string

	FinalScore               *int
	Classification           aggregate.Classification
	MechanicalScore          *int
	MechanicalClassification aggregate.Classification
	WeightWarning            bool
	CoordinatorResult        *consolidation.Result
	CoordinatorFallback      bool

	TokensUsed            int64
	ProcessingTimeSeconds *float64
	ModelUsed             string

	CreatedAt           time.Time
	UpdatedAt           time.Time
	QueuedAt            *time.Time
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
	CancelledAt         *time.Time
}

// LastActivity is the latest of processingStartedAt, queuedAt and createdAt.
func (j *Job) LastActivity() time.Time {
	latest := j.CreatedAt
	for _, ts := range []*time.Time{j.QueuedAt, j.ProcessingStartedAt} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	return latest
}

// IsStuck reports whether a processing job has shown no activity for longer
// than threshold. It is diagnostic only.
func (j *Job) IsStuck(now time.Time, threshold time.Duration) bool {
	if j == nil || j.Status != StatusProcessing {
		return false
	}
	last := j.LastActivity()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) > threshold
}

// RetryLabel renders the attempt counter shown to operators.
func (j *Job) RetryLabel(maxRetries int) string {
	return fmt.Sprintf("Tentativas: %d/%d", j.RetryCount, maxRetries)
}

// ModuleRecord is one agent's stored result for a job.
type ModuleRecord struct {
	JobID                 string                 `json:"jobId"`
	AgentKey              string                 `json:"agentKey"`
	AgentID               string                 `json:"agentId,omitempty"`
	Weight                int                    `json:"weight"`
	Result                aggregate.ModuleResult `json:"result"`
	TokensUsed            int64                  `json:"tokensUsed"`
	ProcessingTimeSeconds *float64               `json:"processingTimeSeconds,omitempty"`
	CreatedAt             time.Time              `json:"createdAt"`
}

// Counts is the queue summary over a tenant scope.
type Counts struct {
	Queued     int `json:"queuedCount"`
	Processing int `json:"processingCount"`
	Retrying   int `json:"retryingCount"`
}

// Stats counts jobs per status.
type Stats map[Status]int

// Total sums every status.
func (s Stats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}
