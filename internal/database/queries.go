package database

import (
	"context"
	"database/sql"
	"fmt"

	"wadispatch/internal/models"
)

const recipientColumns = `
	id, job_id, contact_id, phone_number, status, retry_count,
	last_retry_at, provider_message_id, created_at, updated_at`

func (d *Database) scanRecipient(row interface{ Scan(...interface{}) error }) (*models.RecipientState, error) {
	r := &models.RecipientState{}
	var encryptedPhone string

	err := row.Scan(
		&r.ID,
		&r.JobID,
		&r.ContactID,
		&encryptedPhone,
		&r.Status,
		&r.RetryCount,
		&r.LastRetryAt,
		&r.ProviderMessageID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan recipient: %w", err)
	}

	r.PhoneNumber, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
	}
	return r, nil
}

// CreateRecipients inserts the audience snapshot in one transaction.
// Duplicate (job, contact) pairs are ignored so a crashed start can be
// re-run without doubling the audience.
func (d *Database) CreateRecipients(ctx context.Context, recipients []*models.RecipientState) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO job_recipients (id, job_id, contact_id, phone_number, status)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare recipient insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recipients {
		encryptedPhone, err := d.encryptor.EncryptIfEnabled(r.PhoneNumber)
		if err != nil {
			return fmt.Errorf("failed to encrypt phone number: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.JobID, r.ContactID, encryptedPhone, r.Status); err != nil {
			return fmt.Errorf("failed to insert recipient %s: %w", r.ContactID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recipients: %w", err)
	}
	return nil
}

func (d *Database) GetRecipient(ctx context.Context, recipientID string) (*models.RecipientState, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM job_recipients WHERE id = ?`, recipientID)
	return d.scanRecipient(row)
}

func (d *Database) GetRecipientByProviderMessageID(ctx context.Context, jobID, providerMessageID string) (*models.RecipientState, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+recipientColumns+` FROM job_recipients
		WHERE job_id = ? AND provider_message_id = ?`,
		jobID, providerMessageID)
	return d.scanRecipient(row)
}

// ListDispatchableRecipients returns the recipients a (re)started job
// still has to process, in insertion order.
func (d *Database) ListDispatchableRecipients(ctx context.Context, jobID string) ([]*models.RecipientState, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+recipientColumns+` FROM job_recipients
		WHERE job_id = ? AND status IN (?, ?)
		ORDER BY created_at, id`,
		jobID, models.RecipientStatusPending, models.RecipientStatusRetrying)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatchable recipients: %w", err)
	}
	defer rows.Close()

	var recipients []*models.RecipientState
	for rows.Next() {
		r, err := d.scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

// RecordAttempt appends one attempt to the recipient's log and applies
// the resulting status in a single transaction. The attempt log is
// append-only; prior records are never touched.
func (d *Database) RecordAttempt(ctx context.Context, recipientID string, attempt models.AttemptRecord, newStatus models.RecipientStatus) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO send_attempts (recipient_id, attempt_number, attempted_at, outcome, error_detail, provider_message_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		recipientID, attempt.AttemptNumber, attempt.Timestamp, attempt.Outcome,
		attempt.ErrorDetail, attempt.ProviderMessageID); err != nil {
		return fmt.Errorf("failed to append attempt record: %w", err)
	}

	// retry_count mirrors the number of failed attempts, so the log
	// length always equals retry_count, plus one once a send lands.
	query := `
		UPDATE job_recipients
		SET status = ?, last_retry_at = ?, updated_at = CURRENT_TIMESTAMP`
	args := []interface{}{newStatus, attempt.Timestamp}
	if attempt.Outcome != models.AttemptOutcomeSuccess {
		query += `, retry_count = retry_count + 1`
	}
	if attempt.ProviderMessageID != "" {
		query += `, provider_message_id = ?`
		args = append(args, attempt.ProviderMessageID)
	}
	query += ` WHERE id = ?`
	args = append(args, recipientID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update recipient after attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempt: %w", err)
	}
	return nil
}

// SetRecipientStatus updates a recipient's status without touching the
// attempt log (skip marking, delivery-status upgrades).
func (d *Database) SetRecipientStatus(ctx context.Context, recipientID string, status models.RecipientStatus) error {
	result, err := d.db.ExecContext(ctx, `
		UPDATE job_recipients SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, recipientID)
	if err != nil {
		return fmt.Errorf("failed to set recipient status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("recipient not found: %s", recipientID)
	}
	return nil
}

// SkipRemainingRecipients marks every still-dispatchable recipient of
// a job as skipped and returns how many were affected. Used by Cancel;
// Pause leaves recipients pending so Resume can pick them up.
func (d *Database) SkipRemainingRecipients(ctx context.Context, jobID string) (int, error) {
	result, err := d.db.ExecContext(ctx, `
		UPDATE job_recipients
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE job_id = ? AND status IN (?, ?)`,
		models.RecipientStatusSkipped, jobID,
		models.RecipientStatusPending, models.RecipientStatusRetrying)
	if err != nil {
		return 0, fmt.Errorf("failed to skip remaining recipients: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

// ListAttempts returns a recipient's attempt history in order
func (d *Database) ListAttempts(ctx context.Context, recipientID string) ([]models.AttemptRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT attempt_number, attempted_at, outcome, error_detail, provider_message_id
		FROM send_attempts
		WHERE recipient_id = ?
		ORDER BY attempt_number`,
		recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.AttemptRecord
	for rows.Next() {
		var a models.AttemptRecord
		if err := rows.Scan(&a.AttemptNumber, &a.Timestamp, &a.Outcome, &a.ErrorDetail, &a.ProviderMessageID); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Contact operations

// SaveContact inserts or updates a contact
func (d *Database) SaveContact(ctx context.Context, contact *models.Contact) error {
	encryptedPhone, err := d.encryptor.EncryptIfEnabled(contact.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone number: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO contacts (id, organization_id, phone_number, name, tag, opted_out, is_blocked)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		contact.ID, contact.OrganizationID, encryptedPhone, contact.Name,
		contact.Tag, contact.OptedOut, contact.IsBlocked)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

// ListAudience returns the deliverable contacts for an organization,
// optionally narrowed to a tag. Opted-out and blocked contacts are
// excluded here, not downstream.
func (d *Database) ListAudience(ctx context.Context, organizationID, tag string) ([]models.AudienceMember, error) {
	query := `
		SELECT id, phone_number FROM contacts
		WHERE organization_id = ? AND opted_out = 0 AND is_blocked = 0`
	args := []interface{}{organizationID}
	if tag != "" {
		query += ` AND tag = ?`
		args = append(args, tag)
	}
	query += ` ORDER BY created_at, id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audience: %w", err)
	}
	defer rows.Close()

	var members []models.AudienceMember
	for rows.Next() {
		var m models.AudienceMember
		var encryptedPhone string
		if err := rows.Scan(&m.ContactID, &encryptedPhone); err != nil {
			return nil, fmt.Errorf("failed to scan audience member: %w", err)
		}
		m.PhoneNumber, err = d.encryptor.DecryptIfEnabled(encryptedPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt phone number: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
