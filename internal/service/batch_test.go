package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wadispatch/internal/models"
	"wadispatch/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(store *mockStore, sender *mockSender, limiter *mockLimiter) *BatchProcessor {
	p := NewBatchProcessor(store, sender, limiter, NewRetryTracker(store, testLogger()), testLogger())
	p.cancellationPoll = time.Millisecond
	return p
}

func seedRunningJob(t *testing.T, store *mockStore, phones ...string) (*models.DispatchJob, []*models.RecipientState) {
	t.Helper()
	job := testJob(3)
	require.NoError(t, store.CreateJob(context.Background(), job))

	var recipients []*models.RecipientState
	for i, phone := range phones {
		recipients = append(recipients, seedRecipient(t, store, phoneID(i), phone))
	}
	require.NoError(t, store.InitializeCounters(context.Background(), job.ID, len(phones)))
	return job, recipients
}

func phoneID(i int) string {
	return string(rune('a' + i))
}

func TestProcessBatchAllSent(t *testing.T) {
	store := newMockStore()
	sender := newMockSender()
	limiter := newMockLimiter()
	processor := newTestProcessor(store, sender, limiter)

	job, batch := seedRunningJob(t, store, "+33600000001", "+33600000002", "+33600000003")

	result, err := processor.Process(context.Background(), job, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.PauseRequested)
	assert.Equal(t, 3, limiter.recorded())

	updated, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Counters.Sent)
	assert.Equal(t, 0, updated.Counters.Pending)
	assert.True(t, updated.Counters.Consistent())
}

func TestProcessBatchRetriesTransientThenSucceeds(t *testing.T) {
	store := newMockStore()
	sender := newMockSender()
	limiter := newMockLimiter()
	processor := newTestProcessor(store, sender, limiter)

	job, batch := seedRunningJob(t, store, "+33600000001")
	job.Dispatch.RetryBaseDelay = time.Millisecond
	job.Dispatch.RetryMaxDelay = 2 * time.Millisecond
	sender.script("+33600000001",
		sendResult{err: types.NewSendError(500, "upstream", nil)},
		sendResult{err: types.NewSendError(500, "upstream", nil)},
		sendResult{messageID: "wamid.ok"},
	)

	result, err := processor.Process(context.Background(), job, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	r, err := store.GetRecipient(context.Background(), batch[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusSent, r.Status)
	assert.Equal(t, 2, r.RetryCount)
	assert.Len(t, r.Attempts, 3)
	// Every attempt counted against the provider window.
	assert.Equal(t, 3, limiter.recorded())
}

func TestProcessBatchPermanentFailure(t *testing.T) {
	store := newMockStore()
	sender := newMockSender()
	limiter := newMockLimiter()
	processor := newTestProcessor(store, sender, limiter)

	job, batch := seedRunningJob(t, store, "+33600000001", "+33600000002")
	sender.script("+33600000001", sendResult{err: types.NewSendError(404, "unknown number", nil)})

	result, err := processor.Process(context.Background(), job, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)

	updated, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Counters.Failed)
	assert.Equal(t, 1, updated.Counters.Sent)
	assert.True(t, updated.Counters.Consistent())
}

func TestProcessBatchPersistenceFailureSettlesCounters(t *testing.T) {
	store := newMockStore()
	store.recordAttemptErr = errors.New("disk full")
	sender := newMockSender()
	limiter := newMockLimiter()
	processor := newTestProcessor(store, sender, limiter)

	job, batch := seedRunningJob(t, store, "+33600000001")

	result, err := processor.Process(context.Background(), job, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, models.RecipientStatusFailed, store.recipientStatus(batch[0].ID))

	// The recipient settled, so its counter moved with it.
	updated, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Counters.Failed)
	assert.Equal(t, 0, updated.Counters.Pending)
	assert.True(t, updated.Counters.Consistent())
}

func TestProcessBatchChannelFatalStopsBatch(t *testing.T) {
	store := newMockStore()
	sender := newMockSender()
	limiter := newMockLimiter()
	processor := newTestProcessor(store, sender, limiter)

	job, batch := seedRunningJob(t, store, "+33600000001", "+33600000002")
	sender.script("+33600000001", sendResult{err: types.NewSendError(401, "channel banned", nil)})

	result, err := processor.Process(context.Background(), job, batch)
	require.Error(t, err)
	assert.Equal(t, 0, result.Sent)

	// The second recipient was never attempted and stays pending.
	r, getErr := store.GetRecipient(context.Background(), batch[1].ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RecipientStatusPending, r.Status)
}

func TestProcessBatchStopsWhenJobLeavesRunning(t *testing.T) {
	store := newMockStore()
	sender := newMockSender()
	limiter := newMockLimiter()
	processor := newTestProcessor(store, sender, limiter)

	job, batch := seedRunningJob(t, store, "+33600000001", "+33600000002")
	// The job is cancelled before the batch starts.
	swapped, err := store.SetJobStatus(context.Background(), job.ID, models.JobStatusRunning, models.JobStatusCancelled)
	require.NoError(t, err)
	require.True(t, swapped)

	result, err := processor.Process(context.Background(), job, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 2, result.Remaining)

	for _, r := range batch {
		assert.Equal(t, models.RecipientStatusPending, store.recipientStatus(r.ID))
	}
}

func TestProcessBatchLongRateLimitWaitRequestsPause(t *testing.T) {
	store := newMockStore()
	sender := newMockSender()
	limiter := newMockLimiter()
	limiter.pause = 10 * time.Millisecond
	limiter.denials = []time.Duration{time.Minute}
	processor := newTestProcessor(store, sender, limiter)

	job, batch := seedRunningJob(t, store, "+33600000001")

	result, err := processor.Process(context.Background(), job, batch)
	require.NoError(t, err)
	assert.True(t, result.PauseRequested)
	assert.Equal(t, 1, result.Remaining)
	// The recipient stays dispatchable for the resume.
	assert.Equal(t, models.RecipientStatusPending, store.recipientStatus(batch[0].ID))
}

func TestProcessBatchShortRateLimitWaitRetriesAdmission(t *testing.T) {
	store := newMockStore()
	sender := newMockSender()
	limiter := newMockLimiter()
	limiter.denials = []time.Duration{time.Millisecond}
	processor := newTestProcessor(store, sender, limiter)

	job, batch := seedRunningJob(t, store, "+33600000001")

	result, err := processor.Process(context.Background(), job, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.False(t, result.PauseRequested)
}

// cancellingSender cancels the job while handling the send, so the
// batch observes the status change during the retry backoff.
type cancellingSender struct {
	store *mockStore
	jobID string
}

func (s *cancellingSender) Send(ctx context.Context, job *models.DispatchJob, recipient *models.RecipientState) (string, error) {
	_, _ = s.store.SetJobStatus(ctx, s.jobID, models.JobStatusRunning, models.JobStatusCancelled)
	return "", types.NewSendError(500, "upstream", nil)
}

func TestProcessBatchCancelDuringRetryDoesNotRequestPause(t *testing.T) {
	store := newMockStore()
	limiter := newMockLimiter()
	job, batch := seedRunningJob(t, store, "+33600000001")
	job.Dispatch.RetryBaseDelay = 20 * time.Millisecond
	job.Dispatch.RetryMaxDelay = 40 * time.Millisecond

	sender := &cancellingSender{store: store, jobID: job.ID}
	processor := NewBatchProcessor(store, sender, limiter, NewRetryTracker(store, testLogger()), testLogger())
	processor.cancellationPoll = time.Millisecond

	result, err := processor.Process(context.Background(), job, batch)
	require.NoError(t, err)
	// The job left running on its own; the batch must not ask the
	// orchestrator to pause it on top.
	assert.False(t, result.PauseRequested)
	assert.Equal(t, 1, result.Remaining)
	assert.Equal(t, models.RecipientStatusRetrying, store.recipientStatus(batch[0].ID))
}

func TestSplitBatchesPreservesOrder(t *testing.T) {
	var recipients []*models.RecipientState
	for i := 0; i < 5; i++ {
		recipients = append(recipients, &models.RecipientState{ID: phoneID(i)})
	}
	batches := splitBatches(recipients, 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 2)
	assert.Len(t, batches[2], 1)
	assert.Equal(t, "a", batches[0][0].ID)
	assert.Equal(t, "e", batches[2][0].ID)
}
