package service

import (
	"context"
	"fmt"

	"wadispatch/internal/metrics"
	"wadispatch/internal/models"
	"wadispatch/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// DeliveryTracker applies provider status callbacks to recipient
// state. Receipts arrive at-least-once and out of order, so every
// update is idempotent and forward-only.
type DeliveryTracker struct {
	store    Store
	notifier ProgressNotifier
	logger   *logrus.Logger
}

// NewDeliveryTracker creates a delivery tracker
func NewDeliveryTracker(store Store, notifier ProgressNotifier, logger *logrus.Logger) *DeliveryTracker {
	return &DeliveryTracker{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Apply processes one status callback for a job. Unknown statuses and
// stale or duplicate receipts are dropped without error.
func (t *DeliveryTracker) Apply(ctx context.Context, jobID string, event types.StatusEvent) error {
	log := t.logger.WithFields(logrus.Fields{
		"job_id":     jobID,
		"message_id": event.MessageID,
		"status":     event.Status,
	})

	metrics.GetRegistry().IncrementCounter(metrics.MetricDeliveryCallbacks, map[string]string{
		"status": event.Status,
	})

	status, known := mapProviderStatus(event.Status)
	if !known {
		log.Debug("Ignoring unknown delivery status")
		return nil
	}
	if event.MessageID == "" {
		return fmt.Errorf("delivery callback is missing a message id")
	}

	recipient, err := t.store.GetRecipientByProviderMessageID(ctx, jobID, event.MessageID)
	if err != nil {
		return fmt.Errorf("failed to find recipient for message %s: %w", event.MessageID, err)
	}
	if recipient == nil {
		return fmt.Errorf("no recipient found for message %s", event.MessageID)
	}
	if !recipient.Status.CanUpgradeTo(status) {
		log.WithField("current_status", recipient.Status).Debug("Ignoring stale delivery callback")
		return nil
	}

	if err := t.store.SetRecipientStatus(ctx, recipient.ID, status); err != nil {
		return fmt.Errorf("failed to update recipient status: %w", err)
	}
	if delta := recipient.Status.DeliveryDelta(status); delta != (models.JobCounters{}) {
		if err := t.store.ApplyCounterDelta(ctx, jobID, delta); err != nil {
			return fmt.Errorf("failed to update job counters: %w", err)
		}
	}

	log.WithField("recipient_id", recipient.ID).Debug("Applied delivery callback")
	publishJobProgress(ctx, t.store, t.notifier, t.logger, jobID)
	return nil
}

// mapProviderStatus translates provider callback statuses onto the
// recipient delivery ladder.
func mapProviderStatus(provider string) (models.RecipientStatus, bool) {
	switch provider {
	case "delivered", "DELIVERY_ACK":
		return models.RecipientStatusDelivered, true
	case "read", "READ":
		return models.RecipientStatusRead, true
	case "played", "completed":
		return models.RecipientStatusCompleted, true
	default:
		return "", false
	}
}
