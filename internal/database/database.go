package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"wadispatch/internal/migrations"
	"wadispatch/internal/models"
	"wadispatch/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the dispatch store: jobs, recipients and the per-
// recipient attempt log. Counter updates go through atomic deltas so
// concurrent batch workers never lose increments.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.InitialSchema()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) CreateJob(ctx context.Context, job *models.DispatchJob) error {
	query := `
		INSERT INTO dispatch_jobs (
			id, organization_id, channel_id, name, template_ref, payload,
			audience_filter, status, batch_size, max_concurrent_batches,
			delay_between_sends_ms, retry_max_attempts, retry_base_delay_ms,
			retry_max_delay_ms, scheduled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.ExecContext(ctx, query,
		job.ID,
		job.OrganizationID,
		job.ChannelID,
		job.Name,
		job.TemplateRef,
		job.Payload,
		job.AudienceFilter,
		job.Status,
		job.Dispatch.BatchSize,
		job.Dispatch.MaxConcurrentBatches,
		job.Dispatch.DelayBetweenSends.Milliseconds(),
		job.Dispatch.RetryMaxAttempts,
		job.Dispatch.RetryBaseDelay.Milliseconds(),
		job.Dispatch.RetryMaxDelay.Milliseconds(),
		job.ScheduledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dispatch job: %w", err)
	}
	return nil
}

const jobColumns = `
	id, organization_id, channel_id, name, template_ref, payload,
	audience_filter, status, batch_size, max_concurrent_batches,
	delay_between_sends_ms, retry_max_attempts, retry_base_delay_ms,
	retry_max_delay_ms, total_recipients, sent_count, delivered_count,
	read_count, failed_count, skipped_count, pending_count, last_error,
	scheduled_at, started_at, paused_at, cancelled_at, completed_at,
	created_at, updated_at`

func (d *Database) scanJob(row interface{ Scan(...interface{}) error }) (*models.DispatchJob, error) {
	job := &models.DispatchJob{}
	var delayMs, baseDelayMs, maxDelayMs int64

	err := row.Scan(
		&job.ID,
		&job.OrganizationID,
		&job.ChannelID,
		&job.Name,
		&job.TemplateRef,
		&job.Payload,
		&job.AudienceFilter,
		&job.Status,
		&job.Dispatch.BatchSize,
		&job.Dispatch.MaxConcurrentBatches,
		&delayMs,
		&job.Dispatch.RetryMaxAttempts,
		&baseDelayMs,
		&maxDelayMs,
		&job.Counters.Total,
		&job.Counters.Sent,
		&job.Counters.Delivered,
		&job.Counters.Read,
		&job.Counters.Failed,
		&job.Counters.Skipped,
		&job.Counters.Pending,
		&job.LastError,
		&job.ScheduledAt,
		&job.StartedAt,
		&job.PausedAt,
		&job.CancelledAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dispatch job: %w", err)
	}

	job.Dispatch.DelayBetweenSends = millisToDuration(delayMs)
	job.Dispatch.RetryBaseDelay = millisToDuration(baseDelayMs)
	job.Dispatch.RetryMaxDelay = millisToDuration(maxDelayMs)
	return job, nil
}

func (d *Database) GetJob(ctx context.Context, jobID string) (*models.DispatchJob, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM dispatch_jobs WHERE id = ?`, jobID)
	return d.scanJob(row)
}

// GetJobStatus is the cheap read batch workers poll for cooperative
// pause/cancel checks.
func (d *Database) GetJobStatus(ctx context.Context, jobID string) (models.JobStatus, error) {
	var status models.JobStatus
	err := d.db.QueryRowContext(ctx, `SELECT status FROM dispatch_jobs WHERE id = ?`, jobID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("dispatch job not found: %s", jobID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read job status: %w", err)
	}
	return status, nil
}

// SetJobStatus transitions a job from one status to another. The
// compare-and-set guard keeps concurrent control calls from clobbering
// each other; it reports whether the transition was applied.
func (d *Database) SetJobStatus(ctx context.Context, jobID string, from, to models.JobStatus) (bool, error) {
	stamp := statusTimestampColumn(to)
	query := `UPDATE dispatch_jobs SET status = ?, updated_at = CURRENT_TIMESTAMP`
	if stamp != "" {
		query += fmt.Sprintf(", %s = CURRENT_TIMESTAMP", stamp)
	}
	query += ` WHERE id = ? AND status = ?`

	result, err := d.db.ExecContext(ctx, query, to, jobID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

func statusTimestampColumn(status models.JobStatus) string {
	switch status {
	case models.JobStatusRunning:
		return "started_at"
	case models.JobStatusPaused:
		return "paused_at"
	case models.JobStatusCancelled:
		return "cancelled_at"
	case models.JobStatusCompleted, models.JobStatusFailed:
		return "completed_at"
	default:
		return ""
	}
}

// SetJobError records the human-readable failure reason on the job
func (d *Database) SetJobError(ctx context.Context, jobID, message string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE dispatch_jobs SET last_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		message, jobID)
	if err != nil {
		return fmt.Errorf("failed to record job error: %w", err)
	}
	return nil
}

// InitializeCounters sets total and pending after the audience snapshot
func (d *Database) InitializeCounters(ctx context.Context, jobID string, total int) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE dispatch_jobs
		SET total_recipients = ?, pending_count = ?,
		    sent_count = 0, delivered_count = 0, read_count = 0,
		    failed_count = 0, skipped_count = 0,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		total, total, jobID)
	if err != nil {
		return fmt.Errorf("failed to initialize job counters: %w", err)
	}
	return nil
}

// ApplyCounterDelta applies relative counter changes in one atomic
// UPDATE, so concurrent batch workers on the same job cannot race a
// read-modify-write cycle.
func (d *Database) ApplyCounterDelta(ctx context.Context, jobID string, delta models.JobCounters) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE dispatch_jobs
		SET sent_count = sent_count + ?,
		    delivered_count = delivered_count + ?,
		    read_count = read_count + ?,
		    failed_count = failed_count + ?,
		    skipped_count = skipped_count + ?,
		    pending_count = pending_count + ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		delta.Sent, delta.Delivered, delta.Read, delta.Failed, delta.Skipped, delta.Pending, jobID)
	if err != nil {
		return fmt.Errorf("failed to apply counter delta: %w", err)
	}
	return nil
}

// ListJobsByStatus returns jobs currently in the given status
func (d *Database) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.DispatchJob, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM dispatch_jobs WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.DispatchJob
	for rows.Next() {
		job, err := d.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListDueScheduledJobs returns scheduled jobs whose start time has passed
func (d *Database) ListDueScheduledJobs(ctx context.Context) ([]*models.DispatchJob, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM dispatch_jobs
		WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= CURRENT_TIMESTAMP
		ORDER BY scheduled_at`,
		models.JobStatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.DispatchJob
	for rows.Next() {
		job, err := d.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CleanupOldJobs removes terminal jobs and their recipient state past
// the retention horizon.
func (d *Database) CleanupOldJobs(ctx context.Context, retentionDays int) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := `datetime('now', '-' || ? || ' days')`
	terminal := `SELECT id FROM dispatch_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		AND completed_at IS NOT NULL AND completed_at < ` + cutoff

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM send_attempts WHERE recipient_id IN
			(SELECT id FROM job_recipients WHERE job_id IN (`+terminal+`))`, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old attempts: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM job_recipients WHERE job_id IN (`+terminal+`)`, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old recipients: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dispatch_jobs WHERE id IN (`+terminal+`)`, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cleanup: %w", err)
	}
	return nil
}

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
