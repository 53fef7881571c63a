package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a dispatch job
type JobStatus string

const (
	JobStatusDraft     JobStatus = "draft"
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is final
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from s to next is legal.
// Transitions are monotonic except running ⇄ paused.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case JobStatusDraft:
		return next == JobStatusScheduled || next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusScheduled:
		return next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusRunning:
		return next == JobStatusPaused || next == JobStatusCompleted ||
			next == JobStatusFailed || next == JobStatusCancelled
	case JobStatusPaused:
		return next == JobStatusRunning || next == JobStatusCancelled || next == JobStatusFailed
	default:
		return false
	}
}

// JobCounters holds the mutable progress counters of a dispatch job.
// Invariant once a job is initialized: Sent + Failed + Skipped + Pending == Total.
type JobCounters struct {
	Total     int `json:"total" db:"total_recipients"`
	Sent      int `json:"sent" db:"sent_count"`
	Delivered int `json:"delivered" db:"delivered_count"`
	Read      int `json:"read" db:"read_count"`
	Failed    int `json:"failed" db:"failed_count"`
	Skipped   int `json:"skipped" db:"skipped_count"`
	Pending   int `json:"pending" db:"pending_count"`
}

// Consistent reports whether the counter invariant holds
func (c JobCounters) Consistent() bool {
	return c.Sent+c.Failed+c.Skipped+c.Pending == c.Total
}

// Percentage returns the share of recipients with a settled outcome
func (c JobCounters) Percentage() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Sent+c.Failed+c.Skipped) / float64(c.Total) * 100
}

// DispatchConfig holds the per-job dispatch tuning knobs
type DispatchConfig struct {
	BatchSize            int           `json:"batch_size" db:"batch_size"`
	MaxConcurrentBatches int           `json:"max_concurrent_batches" db:"max_concurrent_batches"`
	DelayBetweenSends    time.Duration `json:"delay_between_sends_ms" db:"delay_between_sends_ms"`
	RetryMaxAttempts     int           `json:"retry_max_attempts" db:"retry_max_attempts"`
	RetryBaseDelay       time.Duration `json:"retry_base_delay_ms" db:"retry_base_delay_ms"`
	RetryMaxDelay        time.Duration `json:"retry_max_delay_ms" db:"retry_max_delay_ms"`
}

// DispatchJob is a campaign or flow-automation dispatch run. The
// orchestrator owns the record; batch workers only patch counters
// through the store.
type DispatchJob struct {
	ID             string         `json:"id" db:"id"`
	OrganizationID string         `json:"organization_id" db:"organization_id"`
	ChannelID      string         `json:"channel_id" db:"channel_id"`
	Name           string         `json:"name" db:"name"`
	TemplateRef    string         `json:"template_ref" db:"template_ref"`
	Payload        string         `json:"payload" db:"payload"`
	AudienceFilter string         `json:"audience_filter" db:"audience_filter"`
	Status         JobStatus      `json:"status" db:"status"`
	Dispatch       DispatchConfig `json:"dispatch"`
	Counters       JobCounters    `json:"counters"`
	LastError      string         `json:"last_error,omitempty" db:"last_error"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	PausedAt    *time.Time `json:"paused_at,omitempty" db:"paused_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// DeliveryRate returns delivered/sent, 0 when nothing was sent
func (j *DispatchJob) DeliveryRate() float64 {
	if j.Counters.Sent == 0 {
		return 0
	}
	return float64(j.Counters.Delivered) / float64(j.Counters.Sent)
}

// ReadRate returns read/delivered, 0 when nothing was delivered
func (j *DispatchJob) ReadRate() float64 {
	if j.Counters.Delivered == 0 {
		return 0
	}
	return float64(j.Counters.Read) / float64(j.Counters.Delivered)
}

// ProgressEvent is the payload emitted to the notification channel
// after each batch completes. Best effort, never blocks dispatch.
type ProgressEvent struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Sent       int       `json:"sent"`
	Delivered  int       `json:"delivered"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Pending    int       `json:"pending"`
	Percentage float64   `json:"percentage"`
	Timestamp  time.Time `json:"timestamp"`
}
