package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"wadispatch/internal/database"
	apperrors "wadispatch/internal/errors"
	"wadispatch/internal/middleware"
	"wadispatch/internal/models"
	"wadispatch/internal/service"
	"wadispatch/internal/validation"
	"wadispatch/pkg/whatsapp/types"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the dispatch API: job lifecycle control, contact
// management, the provider status webhook, and operational endpoints.
type Server struct {
	cfg          *models.Config
	db           *database.Database
	orchestrator service.CampaignOrchestrator
	delivery     *service.DeliveryTracker
	hub          *service.ProgressHub
	logger       *logrus.Logger
	router       *mux.Router
	httpServer   *http.Server
}

// NewServer creates the HTTP server
func NewServer(cfg *models.Config, db *database.Database, orchestrator service.CampaignOrchestrator, delivery *service.DeliveryTracker, hub *service.ProgressHub, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		db:           db,
		orchestrator: orchestrator,
		delivery:     delivery,
		hub:          hub,
		logger:       logger,
		router:       mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.Handle("/ws/progress", s.hub).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/jobs", s.handleCreateJob()).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", s.handleGetJob()).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/start", s.handleJobAction(s.orchestrator.Start)).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/pause", s.handleJobAction(s.orchestrator.Pause)).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/resume", s.handleJobAction(s.orchestrator.Resume)).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/cancel", s.handleJobAction(s.orchestrator.Cancel)).Methods(http.MethodPost)
	api.HandleFunc("/contacts", s.handleSaveContact()).Methods(http.MethodPost)

	s.router.HandleFunc("/webhook/status", s.handleStatusWebhook()).Methods(http.MethodPost)
}

// Start runs the HTTP server until it fails or Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}
	s.logger.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type createJobRequest struct {
	OrganizationID string `json:"organization_id"`
	ChannelID      string `json:"channel_id"`
	Name           string `json:"name"`
	TemplateRef    string `json:"template_ref"`
	Payload        string `json:"payload"`
	AudienceFilter string `json:"audience_filter"`

	BatchSize            int `json:"batch_size"`
	MaxConcurrentBatches int `json:"max_concurrent_batches"`
	DelayBetweenSendsMs  int `json:"delay_between_sends_ms"`
	RetryMaxAttempts     int `json:"retry_max_attempts"`
	RetryBaseDelayMs     int `json:"retry_base_delay_ms"`
	RetryMaxDelayMs      int `json:"retry_max_delay_ms"`

	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (s *Server) handleCreateJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperrors.NewValidationError("body", "invalid JSON"))
			return
		}
		if err := validation.ValidateJobName(req.Name); err != nil {
			s.writeError(w, apperrors.NewValidationError("name", err.Error()))
			return
		}
		if err := validation.ValidateChannelID(req.ChannelID); err != nil {
			s.writeError(w, apperrors.NewValidationError("channel_id", err.Error()))
			return
		}
		if err := validation.ValidateAudienceTag(req.AudienceFilter); err != nil {
			s.writeError(w, apperrors.NewValidationError("audience_filter", err.Error()))
			return
		}
		if req.OrganizationID == "" {
			s.writeError(w, apperrors.NewValidationError("organization_id", "cannot be empty"))
			return
		}
		if req.TemplateRef == "" && req.Payload == "" {
			s.writeError(w, apperrors.NewValidationError("payload", "either template_ref or payload is required"))
			return
		}

		status := models.JobStatusDraft
		if req.ScheduledAt != nil {
			status = models.JobStatusScheduled
		}
		job := &models.DispatchJob{
			ID:             uuid.New().String(),
			OrganizationID: req.OrganizationID,
			ChannelID:      req.ChannelID,
			Name:           req.Name,
			TemplateRef:    req.TemplateRef,
			Payload:        req.Payload,
			AudienceFilter: req.AudienceFilter,
			Status:         status,
			ScheduledAt:    req.ScheduledAt,
			Dispatch: models.DispatchConfig{
				BatchSize:            req.BatchSize,
				MaxConcurrentBatches: req.MaxConcurrentBatches,
				DelayBetweenSends:    time.Duration(req.DelayBetweenSendsMs) * time.Millisecond,
				RetryMaxAttempts:     req.RetryMaxAttempts,
				RetryBaseDelay:       time.Duration(req.RetryBaseDelayMs) * time.Millisecond,
				RetryMaxDelay:        time.Duration(req.RetryMaxDelayMs) * time.Millisecond,
			},
		}
		if err := s.db.CreateJob(r.Context(), job); err != nil {
			s.writeError(w, apperrors.NewDatabaseError("create job", err))
			return
		}
		s.writeJSON(w, http.StatusCreated, job)
	}
}

func (s *Server) handleGetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := mux.Vars(r)["id"]
		job, err := s.orchestrator.GetStatus(r.Context(), jobID)
		if err != nil {
			s.writeError(w, apperrors.NewJobNotFoundError(jobID, err))
			return
		}
		s.writeJSON(w, http.StatusOK, job)
	}
}

// handleJobAction adapts a lifecycle operation into a handler
func (s *Server) handleJobAction(action func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := mux.Vars(r)["id"]
		if err := action(r.Context(), jobID); err != nil {
			appErr := apperrors.NewInvalidStateError(jobID, actionName(r.URL.Path), err)
			apperrors.Log(s.logger, appErr, "Job lifecycle operation rejected")
			s.writeError(w, appErr)
			return
		}
		job, err := s.orchestrator.GetStatus(r.Context(), jobID)
		if err != nil {
			s.writeError(w, apperrors.NewJobNotFoundError(jobID, err))
			return
		}
		s.writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleSaveContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var contact models.Contact
		if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
			s.writeError(w, apperrors.NewValidationError("body", "invalid JSON"))
			return
		}
		if err := validation.ValidatePhoneNumber(contact.PhoneNumber); err != nil {
			s.writeError(w, apperrors.NewValidationError("phone_number", err.Error()))
			return
		}
		if contact.OrganizationID == "" {
			s.writeError(w, apperrors.NewValidationError("organization_id", "cannot be empty"))
			return
		}
		if contact.ID == "" {
			contact.ID = uuid.New().String()
		}
		if err := s.db.SaveContact(r.Context(), &contact); err != nil {
			s.writeError(w, apperrors.NewDatabaseError("save contact", err))
			return
		}
		s.writeJSON(w, http.StatusCreated, contact)
	}
}

type statusWebhookPayload struct {
	JobID     string `json:"job_id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Recipient string `json:"recipient"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleStatusWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := verifySignature(r, s.cfg.Provider.WebhookSecret, s.cfg.Server.WebhookMaxSkewSec)
		if err != nil {
			appErr := apperrors.NewAuthError(err.Error())
			apperrors.Log(s.logger, appErr, "Rejected status webhook")
			s.writeError(w, appErr)
			return
		}

		var payload statusWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			s.writeError(w, apperrors.NewValidationError("body", "invalid JSON"))
			return
		}
		if payload.JobID == "" {
			s.writeError(w, apperrors.NewValidationError("job_id", "cannot be empty"))
			return
		}

		event := whatsappStatusEvent(payload)
		if err := s.delivery.Apply(r.Context(), payload.JobID, event); err != nil {
			apperrors.Log(s.logger, apperrors.NewDatabaseError("apply delivery status", err), "Failed to apply status webhook")
			// The provider retries on 5xx. State updates are idempotent
			// so a replay is safe.
			http.Error(w, "failed to apply status", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	resp := map[string]interface{}{
		"error": err.UserMessage,
		"code":  err.Code,
	}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		s.logger.WithError(encodeErr).Error("Failed to encode error response")
	}
}

// actionName extracts the lifecycle verb from the request path
func actionName(requestPath string) string {
	return path.Base(requestPath)
}

func whatsappStatusEvent(p statusWebhookPayload) types.StatusEvent {
	ts := time.Now()
	if p.Timestamp > 0 {
		ts = time.Unix(p.Timestamp, 0)
	}
	return types.StatusEvent{
		MessageID: p.MessageID,
		Status:    p.Status,
		Recipient: p.Recipient,
		Timestamp: ts,
	}
}
