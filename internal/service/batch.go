package service

import (
	"context"
	"fmt"
	"time"

	"wadispatch/internal/constants"
	"wadispatch/internal/metrics"
	"wadispatch/internal/models"
	"wadispatch/internal/retry"
	"wadispatch/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// BatchResult summarizes one processed batch
type BatchResult struct {
	Total          int
	Sent           int
	Failed         int
	Remaining      int
	PauseRequested bool
}

// BatchProcessor drives the send+retry loop for one batch of
// recipients, checking the job status cooperatively so pause and
// cancel take effect between recipients, not mid-attempt.
type BatchProcessor struct {
	store   Store
	sender  MessageSender
	limiter RateLimiter
	tracker *RetryTracker
	logger  *logrus.Logger

	cancellationPoll time.Duration
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(store Store, sender MessageSender, limiter RateLimiter, tracker *RetryTracker, logger *logrus.Logger) *BatchProcessor {
	return &BatchProcessor{
		store:            store,
		sender:           sender,
		limiter:          limiter,
		tracker:          tracker,
		logger:           logger,
		cancellationPoll: time.Duration(constants.CancellationPollIntervalMs) * time.Millisecond,
	}
}

// Process works through the batch in order. It returns a non-nil error
// only for channel-fatal conditions; per-recipient failures are
// absorbed into recipient state and counters.
func (p *BatchProcessor) Process(ctx context.Context, job *models.DispatchJob, batch []*models.RecipientState) (BatchResult, error) {
	result := BatchResult{Total: len(batch)}
	log := p.logger.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"channel_id": job.ChannelID,
		"batch_size": len(batch),
	})

	for i, recipient := range batch {
		interrupted, err := p.dispatchHalted(ctx, job.ID)
		if err != nil {
			return result, err
		}
		if interrupted {
			result.Remaining = len(batch) - i
			log.WithField("remaining", result.Remaining).Info("Batch stopped by job status change")
			return result, nil
		}

		// Pace distinct recipients; retries of one recipient are paced
		// by backoff instead.
		if i > 0 && job.Dispatch.DelayBetweenSends > 0 {
			if err := retry.SleepInterruptible(ctx, job.Dispatch.DelayBetweenSends, p.cancellationPoll, p.haltProbe(ctx, job.ID)); err != nil {
				return result, err
			}
		}

		outcome, pauseRequested, err := p.processRecipient(ctx, job, recipient)
		if err != nil {
			result.Remaining = len(batch) - i
			return result, err
		}

		switch outcome {
		case models.RecipientStatusSent:
			result.Sent++
		case models.RecipientStatusFailed:
			result.Failed++
		default:
			// The recipient did not settle: either the rate limiter
			// asked for a pause or the job already left the running
			// state. Only the former is reported upward.
			result.Remaining = len(batch) - i
			result.PauseRequested = pauseRequested
			return result, nil
		}
	}

	metrics.GetRegistry().IncrementCounter(metrics.MetricBatchesProcessed, map[string]string{
		"channel_id": job.ChannelID,
	})
	return result, nil
}

// processRecipient runs the admit→send→record cycle for a single
// recipient until it settles (sent or failed), the rate limiter asks
// for a pause, or a channel-fatal error surfaces. The returned status
// is pending/retrying when the recipient did not settle; the bool is
// true only when the rate limiter requested a job pause.
func (p *BatchProcessor) processRecipient(ctx context.Context, job *models.DispatchJob, recipient *models.RecipientState) (models.RecipientStatus, bool, error) {
	log := p.logger.WithFields(logrus.Fields{
		"job_id":       job.ID,
		"recipient_id": recipient.ID,
	})

	for {
		allowed, wait := p.limiter.Admit(ctx, job.ChannelID)
		if !allowed {
			metrics.GetRegistry().IncrementCounter(metrics.MetricRateLimitDenials, map[string]string{
				"channel_id": job.ChannelID,
			})
			if wait >= p.limiter.PauseThreshold() {
				// Do not park a worker for minutes; hand the decision
				// back to the orchestrator.
				log.WithField("wait", wait.String()).Warn("Rate limit wait exceeds pause threshold, requesting job pause")
				return recipient.Status, true, nil
			}
			if err := retry.SleepInterruptible(ctx, wait, p.cancellationPoll, p.haltProbe(ctx, job.ID)); err != nil {
				return recipient.Status, false, err
			}
			if halted, err := p.dispatchHalted(ctx, job.ID); err != nil || halted {
				return recipient.Status, false, err
			}
			continue
		}

		providerMessageID, sendErr := p.sender.Send(ctx, job, recipient)
		// The provider counted the call whether it succeeded or not.
		p.limiter.RecordSent(ctx, job.ChannelID)

		if sendErr != nil && types.IsChannelFatal(sendErr) {
			return recipient.Status, false, fmt.Errorf("channel %s is no longer usable: %w", job.ChannelID, sendErr)
		}

		status, err := p.tracker.RecordAttempt(ctx, job, recipient, providerMessageID, sendErr)
		if err != nil {
			// Persistence failed; convert to a recipient-level failure
			// rather than dropping the outcome silently. The recipient
			// settles, so its counter moves like any other failure.
			if setErr := p.store.SetRecipientStatus(ctx, recipient.ID, models.RecipientStatusFailed); setErr != nil {
				log.WithError(setErr).Error("Failed to mark recipient failed after persistence error")
			}
			recipient.Status = models.RecipientStatusFailed
			if deltaErr := p.store.ApplyCounterDelta(ctx, job.ID, models.JobCounters{Failed: 1, Pending: -1}); deltaErr != nil {
				log.WithError(deltaErr).Error("Failed to update job counters")
			}
			metrics.GetRegistry().IncrementCounter(metrics.MetricSendFailures, map[string]string{
				"channel_id": job.ChannelID,
				"kind":       "persistence",
			})
			return models.RecipientStatusFailed, false, nil
		}

		switch status {
		case models.RecipientStatusSent, models.RecipientStatusFailed:
			delta := models.JobCounters{Pending: -1}
			if status == models.RecipientStatusSent {
				delta.Sent = 1
			} else {
				delta.Failed = 1
			}
			if err := p.store.ApplyCounterDelta(ctx, job.ID, delta); err != nil {
				log.WithError(err).Error("Failed to update job counters")
			}
			return status, false, nil
		case models.RecipientStatusRetrying:
			metrics.GetRegistry().IncrementCounter(metrics.MetricSendRetries, map[string]string{
				"channel_id": job.ChannelID,
			})
			delay := p.tracker.NextDelay(job.Dispatch, recipient.RetryCount-1)
			log.WithFields(logrus.Fields{
				"retry_count": recipient.RetryCount,
				"delay":       delay.String(),
			}).Debug("Scheduling send retry")
			if err := retry.SleepInterruptible(ctx, delay, p.cancellationPoll, p.haltProbe(ctx, job.ID)); err != nil {
				return recipient.Status, false, err
			}
			if halted, err := p.dispatchHalted(ctx, job.ID); err != nil || halted {
				return recipient.Status, false, err
			}
		default:
			return status, false, nil
		}
	}
}

// dispatchHalted reports whether the job left the running state
func (p *BatchProcessor) dispatchHalted(ctx context.Context, jobID string) (bool, error) {
	status, err := p.store.GetJobStatus(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to poll job status: %w", err)
	}
	return status != models.JobStatusRunning, nil
}

// haltProbe adapts dispatchHalted into the interrupt callback long
// sleeps poll. Store errors read as "keep sleeping"; the next real
// status check will surface them.
func (p *BatchProcessor) haltProbe(ctx context.Context, jobID string) func() bool {
	return func() bool {
		halted, err := p.dispatchHalted(ctx, jobID)
		return err == nil && halted
	}
}
