// Package httpapi exposes the logging core to the companion UI process over
// a localhost HTTP surface: session writes, today's summary, and queue
// management.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/pettrail/pettrail/internal/orchestrator"
	"github.com/pettrail/pettrail/internal/queue"
	"github.com/pettrail/pettrail/pkg/models"
)

// Service wires the orchestrator behind HTTP handlers.
type Service struct {
	orc    *orchestrator.Orchestrator
	router chi.Router
}

// New creates the HTTP service and its routes.
func New(orc *orchestrator.Orchestrator) *Service {
	s := &Service{
		orc:    orc,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Router returns the configured handler.
func (s *Service) Router() http.Handler {
	return s.router
}

func (s *Service) setupRoutes() {
	s.router.Post("/sessions", s.handleLogSession)
	s.router.Patch("/sessions/{id}", s.handleUpdateSession)
	s.router.Delete("/sessions/{id}", s.handleDeleteSession)
	s.router.Get("/summary/today", s.handleTodaySummary)
	s.router.Get("/queue/status", s.handleQueueStatus)
	s.router.Post("/queue/drain", s.handleDrainQueue)
	s.router.Post("/cache/sweep", s.handleCacheSweep)
	s.router.Delete("/cache", s.handleCacheEvictSubject)
}

// sessionRequest is the wire form of a session write.
type sessionRequest struct {
	ID             string                   `json:"id,omitempty"`
	OwnerID        string                   `json:"owner_id"`
	SubjectID      string                   `json:"subject_id"`
	Type           models.SessionType       `json:"type"`
	Timestamp      time.Time                `json:"timestamp"`
	Medication     *models.MedicationDetail `json:"medication,omitempty"`
	Fluid          *models.FluidDetail      `json:"fluid,omitempty"`
	Schedules      []models.ScheduleSlot    `json:"schedules,omitempty"`
	RecentSessions []models.Session         `json:"recent_sessions,omitempty"`
}

func (r *sessionRequest) toSession(now time.Time) *models.Session {
	switch r.Type {
	case models.SessionTypeFluid:
		var volume float64
		var site string
		if r.Fluid != nil {
			volume, site = r.Fluid.VolumeML, r.Fluid.InjectionSite
		}
		session := models.NewFluidSession(r.OwnerID, r.SubjectID, volume, site, r.Timestamp, now)
		if r.ID != "" {
			session.ID = r.ID
		}
		return session
	default:
		var name, unit string
		var dosage float64
		if r.Medication != nil {
			name, dosage, unit = r.Medication.Name, r.Medication.Dosage, r.Medication.Unit
		}
		session := models.NewMedicationSession(r.OwnerID, r.SubjectID, name, dosage, unit, r.Timestamp, now)
		if r.ID != "" {
			session.ID = r.ID
		}
		return session
	}
}

// handleLogSession validates and writes a session. When the remote store is
// unreachable the operation is queued and 202 is returned; a full queue is a
// blocking 503 the UI must surface.
func (s *Service) handleLogSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	session := req.toSession(time.Now())
	id, warnings, err := s.orc.LogSession(r.Context(), session, req.Schedules, req.RecentSessions)
	if err == nil {
		writeJSON(w, http.StatusCreated, map[string]any{
			"session_id": id,
			"warnings":   warnings,
		})
		return
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		writeValidationError(w, verr)
		return
	}

	var batchErr *orchestrator.BatchWriteError
	if errors.As(err, &batchErr) && batchErr.Retryable() {
		s.queueAndRespond(w, r, models.KindForCreate(session.Type), session, req)
		return
	}

	log.Error().Err(err).Msg("session write failed")
	writeError(w, http.StatusBadGateway, "remote store rejected the write")
}

func (s *Service) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.ID = chi.URLParam(r, "id")

	session := req.toSession(time.Now())
	err := s.orc.UpdateSession(r.Context(), session, req.Schedules, req.RecentSessions)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"session_id": session.ID})
		return
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		writeValidationError(w, verr)
		return
	}

	var batchErr *orchestrator.BatchWriteError
	if errors.As(err, &batchErr) && batchErr.Retryable() {
		s.queueAndRespond(w, r, models.OperationUpdate, session, req)
		return
	}

	log.Error().Err(err).Msg("session update failed")
	writeError(w, http.StatusBadGateway, "remote store rejected the update")
}

func (s *Service) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.ID = chi.URLParam(r, "id")

	session := req.toSession(time.Now())
	err := s.orc.DeleteSession(r.Context(), session)
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var batchErr *orchestrator.BatchWriteError
	if errors.As(err, &batchErr) && batchErr.Retryable() {
		s.queueAndRespond(w, r, models.OperationDelete, session, req)
		return
	}

	log.Error().Err(err).Msg("session delete failed")
	writeError(w, http.StatusBadGateway, "remote store rejected the delete")
}

// queueAndRespond converts a failed write into a durable queued operation.
func (s *Service) queueAndRespond(w http.ResponseWriter, r *http.Request, kind models.OperationKind, session *models.Session, req sessionRequest) {
	vctx := models.ValidationContext{
		TodaysSchedules: req.Schedules,
		RecentSessions:  req.RecentSessions,
	}

	warning, err := s.orc.EnqueueOperation(r.Context(), kind, *session, vctx)
	if errors.Is(err, queue.ErrQueueFull) {
		writeError(w, http.StatusServiceUnavailable, "offline queue is full; the session was not saved")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to queue operation")
		writeError(w, http.StatusInternalServerError, "failed to queue the operation")
		return
	}

	resp := map[string]any{
		"session_id": session.ID,
		"queued":     true,
	}
	if warning != nil {
		resp["queue_warning"] = warning.Error()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Service) handleTodaySummary(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	subjectID := r.URL.Query().Get("subject_id")
	if ownerID == "" || subjectID == "" {
		writeError(w, http.StatusBadRequest, "owner_id and subject_id are required")
		return
	}

	summary, err := s.orc.GetTodaySummary(r.Context(), ownerID, subjectID)
	if err != nil {
		log.Error().Err(err).Msg("summary read failed")
		writeError(w, http.StatusInternalServerError, "failed to read summary")
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "no summary for today")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Service) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	size, err := s.orc.QueueSize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	warn, err := s.orc.ShouldShowWarning(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"size": size, "warning": warn})
}

func (s *Service) handleDrainQueue(w http.ResponseWriter, r *http.Request) {
	result, err := s.orc.DrainQueue(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("queue drain failed")
		writeError(w, http.StatusInternalServerError, "queue drain failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	if err := s.orc.ClearExpiredCaches(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "cache sweep failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleCacheEvictSubject(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	subjectID := r.URL.Query().Get("subject_id")
	if ownerID == "" || subjectID == "" {
		writeError(w, http.StatusBadRequest, "owner_id and subject_id are required")
		return
	}
	if err := s.orc.ClearSubjectCache(r.Context(), ownerID, subjectID); err != nil {
		writeError(w, http.StatusInternalServerError, "cache eviction failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeValidationError(w http.ResponseWriter, verr *models.ValidationError) {
	status := http.StatusUnprocessableEntity
	if verr.IsDuplicate() {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"issues":   verr.Issues,
		"conflict": verr.Conflict,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
