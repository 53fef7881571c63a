package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wadispatch/internal/metrics"
	"wadispatch/internal/models"
	"wadispatch/internal/tracing"
	"wadispatch/pkg/whatsapp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CampaignOrchestrator owns the lifecycle of dispatch jobs
type CampaignOrchestrator interface {
	Start(ctx context.Context, jobID string) error
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
	GetStatus(ctx context.Context, jobID string) (*models.DispatchJob, error)
	// PauseAll pauses every running job, used during shutdown so a
	// restart can resume them where they left off.
	PauseAll(ctx context.Context) error
	// Wait blocks until all in-flight dispatch loops have drained
	Wait()
}

type orchestrator struct {
	store     Store
	processor *BatchProcessor
	client    whatsapp.Client
	audience  AudienceResolver
	notifier  ProgressNotifier
	defaults  models.DispatchDefaults
	logger    *logrus.Logger

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// NewOrchestrator creates a campaign orchestrator
func NewOrchestrator(store Store, processor *BatchProcessor, client whatsapp.Client, audience AudienceResolver, notifier ProgressNotifier, defaults models.DispatchDefaults, logger *logrus.Logger) CampaignOrchestrator {
	return &orchestrator{
		store:     store,
		processor: processor,
		client:    client,
		audience:  audience,
		notifier:  notifier,
		defaults:  defaults,
		logger:    logger,
		running:   make(map[string]struct{}),
	}
}

func (o *orchestrator) Start(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status != models.JobStatusDraft && job.Status != models.JobStatusScheduled {
		return fmt.Errorf("cannot start job in status %s", job.Status)
	}

	channel, err := o.client.GetChannel(ctx, job.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to check channel %s: %w", job.ChannelID, err)
	}
	if !channel.Status.Active() {
		return fmt.Errorf("channel %s is not active (status %s)", job.ChannelID, channel.Status)
	}

	o.applyDispatchDefaults(job)

	// Snapshot the audience once at start; contacts added to the
	// segment afterwards are not picked up by this job.
	members, err := o.audience.Resolve(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to resolve audience: %w", err)
	}
	if len(members) == 0 {
		return fmt.Errorf("job %s has an empty audience", jobID)
	}
	recipients := make([]*models.RecipientState, 0, len(members))
	for _, m := range members {
		recipients = append(recipients, &models.RecipientState{
			ID:          uuid.New().String(),
			JobID:       jobID,
			ContactID:   m.ContactID,
			PhoneNumber: m.PhoneNumber,
			Status:      models.RecipientStatusPending,
		})
	}
	if err := o.store.CreateRecipients(ctx, recipients); err != nil {
		return fmt.Errorf("failed to snapshot recipients: %w", err)
	}
	if err := o.store.InitializeCounters(ctx, jobID, len(members)); err != nil {
		return fmt.Errorf("failed to initialize counters: %w", err)
	}
	swapped, err := o.store.SetJobStatus(ctx, jobID, job.Status, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if !swapped {
		return fmt.Errorf("job %s changed status concurrently", jobID)
	}

	o.logger.WithFields(logrus.Fields{
		"job_id":     jobID,
		"channel_id": job.ChannelID,
		"recipients": len(members),
	}).Info("Starting dispatch job")
	o.launch(job)
	return nil
}

func (o *orchestrator) Pause(ctx context.Context, jobID string) error {
	swapped, err := o.store.SetJobStatus(ctx, jobID, models.JobStatusRunning, models.JobStatusPaused)
	if err != nil {
		return fmt.Errorf("failed to pause job: %w", err)
	}
	if !swapped {
		return fmt.Errorf("job %s is not running", jobID)
	}
	o.logger.WithField("job_id", jobID).Info("Dispatch job paused")
	return nil
}

func (o *orchestrator) Resume(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status != models.JobStatusPaused {
		return fmt.Errorf("cannot resume job in status %s", job.Status)
	}
	o.applyDispatchDefaults(job)
	swapped, err := o.store.SetJobStatus(ctx, jobID, models.JobStatusPaused, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if !swapped {
		return fmt.Errorf("job %s changed status concurrently", jobID)
	}
	o.logger.WithField("job_id", jobID).Info("Resuming dispatch job")
	o.launch(job)
	return nil
}

func (o *orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("cannot cancel job in status %s", job.Status)
	}
	swapped, err := o.store.SetJobStatus(ctx, jobID, job.Status, models.JobStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if !swapped {
		return fmt.Errorf("job %s changed status concurrently", jobID)
	}
	skipped, err := o.store.SkipRemainingRecipients(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to skip remaining recipients: %w", err)
	}
	if skipped > 0 {
		if err := o.store.ApplyCounterDelta(ctx, jobID, models.JobCounters{Skipped: skipped, Pending: -skipped}); err != nil {
			return fmt.Errorf("failed to update counters: %w", err)
		}
	}
	o.logger.WithFields(logrus.Fields{
		"job_id":  jobID,
		"skipped": skipped,
	}).Info("Dispatch job cancelled")
	o.publishProgress(ctx, jobID)
	return nil
}

func (o *orchestrator) GetStatus(ctx context.Context, jobID string) (*models.DispatchJob, error) {
	return o.store.GetJob(ctx, jobID)
}

func (o *orchestrator) PauseAll(ctx context.Context) error {
	jobs, err := o.store.ListJobsByStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to list running jobs: %w", err)
	}
	for _, job := range jobs {
		if err := o.Pause(ctx, job.ID); err != nil {
			o.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to pause job during shutdown")
		}
	}
	return nil
}

func (o *orchestrator) Wait() {
	o.wg.Wait()
}

// launch starts the dispatch loop for a job unless one is already
// active in this process.
func (o *orchestrator) launch(job *models.DispatchJob) {
	o.mu.Lock()
	if _, active := o.running[job.ID]; active {
		o.mu.Unlock()
		o.logger.WithField("job_id", job.ID).Warn("Dispatch loop already active for job")
		return
	}
	o.running[job.ID] = struct{}{}
	o.mu.Unlock()

	metrics.GetRegistry().SetGauge(metrics.MetricJobsRunning, float64(o.activeCount()), nil)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.running, job.ID)
			o.mu.Unlock()
			metrics.GetRegistry().SetGauge(metrics.MetricJobsRunning, float64(o.activeCount()), nil)
		}()
		o.run(context.Background(), job)
	}()
}

func (o *orchestrator) activeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// run drains all dispatchable recipients of the job in batches, then
// finalizes the job status.
func (o *orchestrator) run(ctx context.Context, job *models.DispatchJob) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.run")
	defer span.End()

	log := o.logger.WithField("job_id", job.ID)

	recipients, err := o.store.ListDispatchableRecipients(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("Failed to list recipients")
		o.failJob(ctx, job, fmt.Errorf("failed to list recipients: %w", err))
		return
	}
	batches := splitBatches(recipients, job.Dispatch.BatchSize)
	log.WithFields(logrus.Fields{
		"recipients": len(recipients),
		"batches":    len(batches),
	}).Info("Dispatch loop started")

	workers := job.Dispatch.MaxConcurrentBatches
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var (
		mu       sync.Mutex
		fatalErr error
		paused   bool
		wg       sync.WaitGroup
	)
	for _, batch := range batches {
		mu.Lock()
		stop := fatalErr != nil || paused
		mu.Unlock()
		if stop {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(batch []*models.RecipientState) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := o.processor.Process(ctx, job, batch)
			o.publishProgress(ctx, job.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil && fatalErr == nil {
				fatalErr = err
			}
			if result.PauseRequested {
				paused = true
			}
		}(batch)
	}
	wg.Wait()

	switch {
	case fatalErr != nil:
		o.failJob(ctx, job, fatalErr)
	case paused:
		if err := o.Pause(ctx, job.ID); err != nil {
			log.WithError(err).Error("Failed to pause rate-limited job")
		}
		o.publishProgress(ctx, job.ID)
	default:
		o.finalize(ctx, job.ID)
	}
}

// finalize settles a job whose dispatch loop drained. A job whose
// status changed underneath the loop (paused, cancelled) is left
// alone; otherwise it completes.
func (o *orchestrator) finalize(ctx context.Context, jobID string) {
	log := o.logger.WithField("job_id", jobID)

	status, err := o.store.GetJobStatus(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Failed to read job status for finalization")
		return
	}
	if status != models.JobStatusRunning {
		log.WithField("status", status).Info("Dispatch loop drained, job no longer running")
		o.publishProgress(ctx, jobID)
		return
	}
	swapped, err := o.store.SetJobStatus(ctx, jobID, models.JobStatusRunning, models.JobStatusCompleted)
	if err != nil {
		log.WithError(err).Error("Failed to complete job")
		return
	}
	if !swapped {
		log.Info("Job status changed before completion could be recorded")
		o.publishProgress(ctx, jobID)
		return
	}
	metrics.GetRegistry().IncrementCounter(metrics.MetricJobsCompleted, nil)
	log.Info("Dispatch job completed")
	o.publishProgress(ctx, jobID)
}

func (o *orchestrator) failJob(ctx context.Context, job *models.DispatchJob, cause error) {
	log := o.logger.WithField("job_id", job.ID)
	log.WithError(cause).Error("Dispatch job failed")

	if err := o.store.SetJobError(ctx, job.ID, cause.Error()); err != nil {
		log.WithError(err).Error("Failed to record job error")
	}
	status, err := o.store.GetJobStatus(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("Failed to read job status")
		return
	}
	if status.IsTerminal() {
		return
	}
	if _, err := o.store.SetJobStatus(ctx, job.ID, status, models.JobStatusFailed); err != nil {
		log.WithError(err).Error("Failed to mark job failed")
		return
	}
	metrics.GetRegistry().IncrementCounter(metrics.MetricJobsFailed, nil)
	o.publishProgress(ctx, job.ID)
}

func (o *orchestrator) publishProgress(ctx context.Context, jobID string) {
	publishJobProgress(ctx, o.store, o.notifier, o.logger, jobID)
}

// applyDispatchDefaults fills unset per-job dispatch settings from the
// service-wide defaults.
func (o *orchestrator) applyDispatchDefaults(job *models.DispatchJob) {
	d := &job.Dispatch
	if d.BatchSize <= 0 {
		d.BatchSize = o.defaults.BatchSize
	}
	if d.MaxConcurrentBatches <= 0 {
		d.MaxConcurrentBatches = o.defaults.MaxConcurrentBatches
	}
	if d.RetryMaxAttempts <= 0 {
		d.RetryMaxAttempts = o.defaults.RetryMaxAttempts
	}
	if d.RetryBaseDelay <= 0 {
		d.RetryBaseDelay = time.Duration(o.defaults.RetryBaseDelayMs) * time.Millisecond
	}
	if d.RetryMaxDelay <= 0 {
		d.RetryMaxDelay = time.Duration(o.defaults.RetryMaxDelayMs) * time.Millisecond
	}
	if d.DelayBetweenSends <= 0 {
		d.DelayBetweenSends = time.Duration(o.defaults.DelayBetweenSendsMs) * time.Millisecond
	}
}

// splitBatches chunks recipients preserving order
func splitBatches(recipients []*models.RecipientState, size int) [][]*models.RecipientState {
	if size <= 0 {
		size = 1
	}
	var batches [][]*models.RecipientState
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		batches = append(batches, recipients[start:end])
	}
	return batches
}
