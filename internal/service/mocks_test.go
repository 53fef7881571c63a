package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wadispatch/internal/models"
	"wadispatch/pkg/whatsapp/types"
)

// mockStore is an in-memory Store with the same semantics as the
// sqlite implementation, plus error hooks for failure injection.
type mockStore struct {
	mu sync.Mutex

	jobs           map[string]*models.DispatchJob
	recipients     map[string]*models.RecipientState
	recipientOrder []string
	audience       []models.AudienceMember

	recordAttemptErr error
	jobStatusErr     error
	listAudienceErr  error
}

func newMockStore() *mockStore {
	return &mockStore{
		jobs:       make(map[string]*models.DispatchJob),
		recipients: make(map[string]*models.RecipientState),
	}
}

func (m *mockStore) CreateJob(ctx context.Context, job *models.DispatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *mockStore) GetJob(ctx context.Context, jobID string) (*models.DispatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	copied := *job
	return &copied, nil
}

func (m *mockStore) GetJobStatus(ctx context.Context, jobID string) (models.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobStatusErr != nil {
		return "", m.jobStatusErr
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("job not found: %s", jobID)
	}
	return job.Status, nil
}

func (m *mockStore) SetJobStatus(ctx context.Context, jobID string, from, to models.JobStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false, fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	return true, nil
}

func (m *mockStore) SetJobError(ctx context.Context, jobID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.LastError = message
	}
	return nil
}

func (m *mockStore) InitializeCounters(ctx context.Context, jobID string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.Counters = models.JobCounters{Total: total, Pending: total}
	return nil
}

func (m *mockStore) ApplyCounterDelta(ctx context.Context, jobID string, delta models.JobCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.Counters.Sent += delta.Sent
	job.Counters.Delivered += delta.Delivered
	job.Counters.Read += delta.Read
	job.Counters.Failed += delta.Failed
	job.Counters.Skipped += delta.Skipped
	job.Counters.Pending += delta.Pending
	return nil
}

func (m *mockStore) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.DispatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.DispatchJob
	for _, job := range m.jobs {
		if job.Status == status {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

func (m *mockStore) ListDueScheduledJobs(ctx context.Context) ([]*models.DispatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var jobs []*models.DispatchJob
	for _, job := range m.jobs {
		if job.Status == models.JobStatusScheduled && job.ScheduledAt != nil && !job.ScheduledAt.After(now) {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

func (m *mockStore) CleanupOldJobs(ctx context.Context, retentionDays int) error {
	return nil
}

func (m *mockStore) CreateRecipients(ctx context.Context, recipients []*models.RecipientState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recipients {
		if _, exists := m.recipients[r.ID]; exists {
			continue
		}
		copied := *r
		m.recipients[r.ID] = &copied
		m.recipientOrder = append(m.recipientOrder, r.ID)
	}
	return nil
}

func (m *mockStore) GetRecipient(ctx context.Context, recipientID string) (*models.RecipientState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return nil, fmt.Errorf("recipient not found: %s", recipientID)
	}
	copied := *r
	return &copied, nil
}

func (m *mockStore) GetRecipientByProviderMessageID(ctx context.Context, jobID, providerMessageID string) (*models.RecipientState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients {
		if r.JobID == jobID && r.ProviderMessageID == providerMessageID {
			copied := *r
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("recipient not found for message %s", providerMessageID)
}

func (m *mockStore) ListDispatchableRecipients(ctx context.Context, jobID string) ([]*models.RecipientState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RecipientState
	for _, id := range m.recipientOrder {
		r := m.recipients[id]
		if r.JobID == jobID && r.Dispatchable() {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockStore) RecordAttempt(ctx context.Context, recipientID string, attempt models.AttemptRecord, newStatus models.RecipientStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordAttemptErr != nil {
		return m.recordAttemptErr
	}
	r, ok := m.recipients[recipientID]
	if !ok {
		return fmt.Errorf("recipient not found: %s", recipientID)
	}
	// Mirrors the unique (recipient, attempt_number) constraint of the
	// sqlite attempt log.
	for _, existing := range r.Attempts {
		if existing.AttemptNumber == attempt.AttemptNumber {
			return fmt.Errorf("duplicate attempt %d for recipient %s", attempt.AttemptNumber, recipientID)
		}
	}
	r.Attempts = append(r.Attempts, attempt)
	r.Status = newStatus
	if attempt.Outcome != models.AttemptOutcomeSuccess {
		r.RetryCount++
	}
	if attempt.ProviderMessageID != "" {
		r.ProviderMessageID = attempt.ProviderMessageID
	}
	return nil
}

func (m *mockStore) SetRecipientStatus(ctx context.Context, recipientID string, status models.RecipientStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return fmt.Errorf("recipient not found: %s", recipientID)
	}
	r.Status = status
	return nil
}

func (m *mockStore) SkipRemainingRecipients(ctx context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	skipped := 0
	for _, r := range m.recipients {
		if r.JobID == jobID && r.Dispatchable() {
			r.Status = models.RecipientStatusSkipped
			skipped++
		}
	}
	return skipped, nil
}

func (m *mockStore) ListAttempts(ctx context.Context, recipientID string) ([]models.AttemptRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return nil, fmt.Errorf("recipient not found: %s", recipientID)
	}
	return append([]models.AttemptRecord(nil), r.Attempts...), nil
}

func (m *mockStore) ListAudience(ctx context.Context, organizationID, tag string) ([]models.AudienceMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listAudienceErr != nil {
		return nil, m.listAudienceErr
	}
	return append([]models.AudienceMember(nil), m.audience...), nil
}

// recipientStatus reads the stored status without copying
func (m *mockStore) recipientStatus(recipientID string) models.RecipientStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recipients[recipientID].Status
}

// sendResult scripts one provider response for the mock sender
type sendResult struct {
	messageID string
	err       error
}

// mockSender replays scripted results per phone number
type mockSender struct {
	mu      sync.Mutex
	results map[string][]sendResult
	calls   int
}

func newMockSender() *mockSender {
	return &mockSender{results: make(map[string][]sendResult)}
}

func (m *mockSender) script(phone string, results ...sendResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[phone] = append(m.results[phone], results...)
}

func (m *mockSender) Send(ctx context.Context, job *models.DispatchJob, recipient *models.RecipientState) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	queue := m.results[recipient.PhoneNumber]
	if len(queue) == 0 {
		return fmt.Sprintf("msg-%s-%d", recipient.PhoneNumber, m.calls), nil
	}
	next := queue[0]
	m.results[recipient.PhoneNumber] = queue[1:]
	return next.messageID, next.err
}

// mockLimiter admits everything unless denials are scripted
type mockLimiter struct {
	mu        sync.Mutex
	denials   []time.Duration
	pause     time.Duration
	sentCount int
}

func newMockLimiter() *mockLimiter {
	return &mockLimiter{pause: 300 * time.Second}
}

func (m *mockLimiter) Admit(ctx context.Context, channelID string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.denials) > 0 {
		wait := m.denials[0]
		m.denials = m.denials[1:]
		return false, wait
	}
	return true, 0
}

func (m *mockLimiter) RecordSent(ctx context.Context, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentCount++
}

func (m *mockLimiter) PauseThreshold() time.Duration {
	return m.pause
}

func (m *mockLimiter) recorded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentCount
}

// mockNotifier collects published events
type mockNotifier struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (m *mockNotifier) Publish(event models.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockNotifier) published() []models.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ProgressEvent(nil), m.events...)
}

// mockProviderClient serves channel lookups for the orchestrator
type mockProviderClient struct {
	channelStatus types.ChannelStatus
	channelErr    error
}

func (m *mockProviderClient) SendText(ctx context.Context, channelID, number, text string) (*types.SendMessageResponse, error) {
	return &types.SendMessageResponse{MessageID: "msg-1", Status: "sent"}, nil
}

func (m *mockProviderClient) SendTemplate(ctx context.Context, channelID, number string, req *types.SendTemplateRequest) (*types.SendMessageResponse, error) {
	return &types.SendMessageResponse{MessageID: "msg-1", Status: "sent"}, nil
}

func (m *mockProviderClient) GetChannel(ctx context.Context, channelID string) (*types.Channel, error) {
	if m.channelErr != nil {
		return nil, m.channelErr
	}
	status := m.channelStatus
	if status == "" {
		status = types.ChannelStatusConnected
	}
	return &types.Channel{ID: channelID, Status: status}, nil
}
