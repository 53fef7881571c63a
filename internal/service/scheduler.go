package service

import (
	"context"
	"time"

	"wadispatch/internal/constants"

	"github.com/sirupsen/logrus"
)

// Scheduler starts scheduled jobs when they come due and prunes
// terminal jobs past the retention window.
type Scheduler struct {
	store         Store
	orchestrator  CampaignOrchestrator
	logger        *logrus.Logger
	interval      time.Duration
	retentionDays int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler creates a scheduler. A retentionDays of zero disables
// cleanup.
func NewScheduler(store Store, orchestrator CampaignOrchestrator, retentionDays int, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:         store,
		orchestrator:  orchestrator,
		logger:        logger,
		interval:      time.Duration(constants.SchedulerIntervalSec) * time.Second,
		retentionDays: retentionDays,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start runs the scheduling loop until Stop is called or the context
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the loop to exit and waits for it to drain
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.startDueJobs(ctx)
		case <-cleanup.C:
			s.cleanupOldJobs(ctx)
		}
	}
}

func (s *Scheduler) startDueJobs(ctx context.Context) {
	jobs, err := s.store.ListDueScheduledJobs(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list due jobs")
		return
	}
	for _, job := range jobs {
		if err := s.orchestrator.Start(ctx, job.ID); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to start scheduled job")
			continue
		}
		s.logger.WithField("job_id", job.ID).Info("Started scheduled job")
	}
}

func (s *Scheduler) cleanupOldJobs(ctx context.Context) {
	if s.retentionDays <= 0 {
		return
	}
	if err := s.store.CleanupOldJobs(ctx, s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to clean up old jobs")
		return
	}
	s.logger.WithField("retention_days", s.retentionDays).Debug("Cleaned up old dispatch data")
}
