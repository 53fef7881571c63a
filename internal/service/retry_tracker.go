package service

import (
	"context"
	"fmt"
	"time"

	"wadispatch/internal/models"
	"wadispatch/internal/retry"
	"wadispatch/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// RetryTracker decides retry eligibility per recipient, computes the
// backoff delay and persists the append-only attempt history.
type RetryTracker struct {
	store  Store
	logger *logrus.Logger
}

// NewRetryTracker creates a retry tracker backed by the given store
func NewRetryTracker(store Store, logger *logrus.Logger) *RetryTracker {
	return &RetryTracker{store: store, logger: logger}
}

// CanRetry reports whether the recipient still has attempt budget left
func (t *RetryTracker) CanRetry(recipient *models.RecipientState, maxAttempts int) bool {
	return recipient.RetryCount < maxAttempts
}

// NextDelay returns the backoff before retrying after the given
// zero-based attempt number, honoring the job's retry settings.
func (t *RetryTracker) NextDelay(cfg models.DispatchConfig, attempt int) time.Duration {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      true,
	})
	return backoff.NextDelay(attempt)
}

// RecordAttempt appends the attempt outcome and transitions the
// recipient:
//
//	success                      → sent
//	permanent error              → failed (retry budget ignored)
//	transient error, budget left → retrying
//	transient error, budget gone → failed
//
// The recipient is updated in place to mirror the persisted state.
func (t *RetryTracker) RecordAttempt(ctx context.Context, job *models.DispatchJob, recipient *models.RecipientState, providerMessageID string, sendErr error) (models.RecipientStatus, error) {
	now := time.Now()
	// A dispatchable recipient has exactly retry_count attempts on
	// record, so the next number derives from persisted state. The
	// in-memory attempt log is not required to be hydrated; a
	// recipient reloaded after a pause or restart numbers correctly.
	attempt := models.AttemptRecord{
		AttemptNumber:     recipient.RetryCount + 1,
		Timestamp:         now,
		ProviderMessageID: providerMessageID,
	}

	var newStatus models.RecipientStatus
	switch {
	case sendErr == nil:
		attempt.Outcome = models.AttemptOutcomeSuccess
		newStatus = models.RecipientStatusSent
	case types.IsPermanent(sendErr):
		// Permanent errors short-circuit the remaining budget.
		attempt.Outcome = models.AttemptOutcomePermanentError
		attempt.ErrorDetail = sendErr.Error()
		newStatus = models.RecipientStatusFailed
	default:
		attempt.Outcome = models.AttemptOutcomeTransientError
		attempt.ErrorDetail = sendErr.Error()
		if recipient.RetryCount+1 < job.Dispatch.RetryMaxAttempts {
			newStatus = models.RecipientStatusRetrying
		} else {
			newStatus = models.RecipientStatusFailed
		}
	}

	if err := t.store.RecordAttempt(ctx, recipient.ID, attempt, newStatus); err != nil {
		// The outcome must not be lost silently: surface the recipient
		// as failed with a diagnostic note instead.
		t.logger.WithError(err).WithFields(logrus.Fields{
			"job_id":       job.ID,
			"recipient_id": recipient.ID,
		}).Error("Failed to persist attempt record")
		return "", fmt.Errorf("failed to persist attempt for recipient %s: %w", recipient.ID, err)
	}

	recipient.Attempts = append(recipient.Attempts, attempt)
	recipient.Status = newStatus
	recipient.LastRetryAt = &now
	if attempt.Outcome != models.AttemptOutcomeSuccess {
		recipient.RetryCount++
	}
	if providerMessageID != "" {
		recipient.ProviderMessageID = providerMessageID
	}

	return newStatus, nil
}
