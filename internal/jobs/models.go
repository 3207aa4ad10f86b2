package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a composition job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Priority orders pending jobs for scheduling.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var allStatuses = []Status{
	StatusPending,
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions is the complete transition table. A terminal status has no
// outgoing entries; retry is modeled as failed -> pending and is only taken
// when retry budget remains.
var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusQueued, StatusProcessing, StatusCancelled},
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:     {StatusPending},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions other
// than an explicit retry.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityNormal:
		return PriorityNormal, true
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityUrgent:
		return PriorityUrgent, true
	default:
		return "", false
	}
}

// Rank orders priorities for scheduling; higher runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 2
	case PriorityHigh:
		return 1
	default:
		return 0
	}
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// Job is the persisted record of one composition request's execution.
type Job struct {
	ID          string
	OwnerKey    string
	Title       string
	Description string
	Status      Status
	Priority    Priority

	// RequestJSON holds the serialized composition request the job renders.
	RequestJSON string

	Progress    float64
	CurrentStep string

	OutputPath     string
	OutputFormat   string
	OutputSize     int64
	OutputDuration float64

	ErrorMessage string
	RetryCount   int
	MaxRetries   int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExpiresAt   *time.Time

	WebhookURL  string
	WebhookSent bool
}

// RetryEligible reports whether a failed job may re-enter pending.
func (j *Job) RetryEligible() bool {
	return j.Status == StatusFailed && j.RetryCount < j.MaxRetries
}

// IsActive reports whether the job still occupies scheduler capacity.
func (j *Job) IsActive() bool {
	return j.Status == StatusPending || j.Status == StatusQueued || j.Status == StatusProcessing
}
