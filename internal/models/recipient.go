package models

import (
	"time"
)

// RecipientStatus represents the per-recipient delivery state
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusRead      RecipientStatus = "read"
	RecipientStatusCompleted RecipientStatus = "completed"
	RecipientStatusFailed    RecipientStatus = "failed"
	RecipientStatusRetrying  RecipientStatus = "retrying"
	RecipientStatusSkipped   RecipientStatus = "skipped"
)

// deliveryRank orders the provider delivery ladder so status callbacks
// can only move a recipient forward, never backward.
func (s RecipientStatus) deliveryRank() int {
	switch s {
	case RecipientStatusSent:
		return 1
	case RecipientStatusDelivered:
		return 2
	case RecipientStatusRead:
		return 3
	case RecipientStatusCompleted:
		return 4
	default:
		return 0
	}
}

// CanUpgradeTo reports whether a delivery-status callback may move the
// recipient from s to next.
func (s RecipientStatus) CanUpgradeTo(next RecipientStatus) bool {
	return s.deliveryRank() > 0 && next.deliveryRank() > s.deliveryRank()
}

// DeliveryDelta returns the job counter increments implied by moving a
// recipient from s to next. Callbacks may skip rungs (a read receipt
// can arrive before the delivered one), so every rung crossed counts.
func (s RecipientStatus) DeliveryDelta(next RecipientStatus) JobCounters {
	var delta JobCounters
	if s.deliveryRank() < RecipientStatusDelivered.deliveryRank() &&
		next.deliveryRank() >= RecipientStatusDelivered.deliveryRank() {
		delta.Delivered = 1
	}
	if s.deliveryRank() < RecipientStatusRead.deliveryRank() &&
		next.deliveryRank() >= RecipientStatusRead.deliveryRank() {
		delta.Read = 1
	}
	return delta
}

// AttemptOutcome classifies the result of a single send attempt
type AttemptOutcome string

const (
	AttemptOutcomeSuccess        AttemptOutcome = "success"
	AttemptOutcomeTransientError AttemptOutcome = "transient_error"
	AttemptOutcomePermanentError AttemptOutcome = "permanent_error"
)

// AttemptRecord is one entry in a recipient's append-only attempt log
type AttemptRecord struct {
	AttemptNumber     int            `json:"attempt_number" db:"attempt_number"`
	Timestamp         time.Time      `json:"timestamp" db:"attempted_at"`
	Outcome           AttemptOutcome `json:"outcome" db:"outcome"`
	ErrorDetail       string         `json:"error_detail,omitempty" db:"error_detail"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" db:"provider_message_id"`
}

// RecipientState tracks one target contact within a dispatch job.
// Attempts are append-only; existing records are never mutated.
type RecipientState struct {
	ID                string          `json:"id" db:"id"`
	JobID             string          `json:"job_id" db:"job_id"`
	ContactID         string          `json:"contact_id" db:"contact_id"`
	PhoneNumber       string          `json:"phone_number" db:"phone_number"`
	Status            RecipientStatus `json:"status" db:"status"`
	RetryCount        int             `json:"retry_count" db:"retry_count"`
	LastRetryAt       *time.Time      `json:"last_retry_at,omitempty" db:"last_retry_at"`
	ProviderMessageID string          `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Attempts          []AttemptRecord `json:"attempts,omitempty"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// Dispatchable reports whether the recipient still needs a send attempt
func (r *RecipientState) Dispatchable() bool {
	return r.Status == RecipientStatusPending || r.Status == RecipientStatusRetrying
}

// AudienceMember is one entry of a resolved audience snapshot
type AudienceMember struct {
	ContactID   string `json:"contact_id"`
	PhoneNumber string `json:"phone_number"`
}
