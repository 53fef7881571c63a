package service

import (
	"context"
	"time"

	"wadispatch/internal/models"
)

// Store is the persistence the dispatch core depends on. Implemented
// by internal/database; declared here so services can be tested
// against fakes.
type Store interface {
	CreateJob(ctx context.Context, job *models.DispatchJob) error
	GetJob(ctx context.Context, jobID string) (*models.DispatchJob, error)
	GetJobStatus(ctx context.Context, jobID string) (models.JobStatus, error)
	SetJobStatus(ctx context.Context, jobID string, from, to models.JobStatus) (bool, error)
	SetJobError(ctx context.Context, jobID, message string) error
	InitializeCounters(ctx context.Context, jobID string, total int) error
	ApplyCounterDelta(ctx context.Context, jobID string, delta models.JobCounters) error
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.DispatchJob, error)
	ListDueScheduledJobs(ctx context.Context) ([]*models.DispatchJob, error)
	CleanupOldJobs(ctx context.Context, retentionDays int) error

	CreateRecipients(ctx context.Context, recipients []*models.RecipientState) error
	GetRecipient(ctx context.Context, recipientID string) (*models.RecipientState, error)
	GetRecipientByProviderMessageID(ctx context.Context, jobID, providerMessageID string) (*models.RecipientState, error)
	ListDispatchableRecipients(ctx context.Context, jobID string) ([]*models.RecipientState, error)
	RecordAttempt(ctx context.Context, recipientID string, attempt models.AttemptRecord, newStatus models.RecipientStatus) error
	SetRecipientStatus(ctx context.Context, recipientID string, status models.RecipientStatus) error
	SkipRemainingRecipients(ctx context.Context, jobID string) (int, error)
	ListAttempts(ctx context.Context, recipientID string) ([]models.AttemptRecord, error)

	ListAudience(ctx context.Context, organizationID, tag string) ([]models.AudienceMember, error)
}

// RateLimiter is the admission control the batch processor consults
// before every send attempt.
type RateLimiter interface {
	Admit(ctx context.Context, channelID string) (bool, time.Duration)
	RecordSent(ctx context.Context, channelID string)
	PauseThreshold() time.Duration
}

// ProgressNotifier receives best-effort progress events. Publish must
// never block dispatch.
type ProgressNotifier interface {
	Publish(event models.ProgressEvent)
}

// AudienceResolver snapshots the recipients a job will target,
// excluding opted-out and blocked contacts.
type AudienceResolver interface {
	Resolve(ctx context.Context, job *models.DispatchJob) ([]models.AudienceMember, error)
}
