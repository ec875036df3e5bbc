package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bpr-rehab/campaigner/internal/dispatch"
	"github.com/bpr-rehab/campaigner/internal/models"
	"github.com/bpr-rehab/campaigner/internal/recipients"
	"github.com/bpr-rehab/campaigner/internal/repository"
	"github.com/bpr-rehab/campaigner/internal/template"
)

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Version is stamped at build time.
var Version = "dev"

// handlePrepare handles POST /api/v1/campaigns/{id}/prepare
func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Prepare(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.operationError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

// handleDispatch handles POST /api/v1/campaigns/{id}/dispatch
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Dispatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.operationError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

// handlePause handles POST /api/v1/campaigns/{id}/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.operationError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// handleCancel handles POST /api/v1/campaigns/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.operationError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

// handleStatus handles GET /api/v1/campaigns/{id}/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.operationError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, res)
}

// handleListJobs handles GET /api/v1/campaigns/{id}/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status := models.JobStatus(r.URL.Query().Get("status"))
	limit, offset := pagination(r, 100)

	jobs, err := s.jobs.ListByCampaign(id, status, limit, offset)
	if err != nil {
		s.logger.Error("failed to list jobs", "campaign_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleUnsubscribe handles GET /unsubscribe?token=...
// The link is embedded in every campaign message; it must work without
// authentication and be safe to open from a mail client preview.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	email, err := s.signer.Verify(token)
	if err != nil {
		http.Error(w, "Invalid unsubscribe link", http.StatusBadRequest)
		return
	}

	if _, err := s.contacts.Unsubscribe(email); err != nil {
		s.logger.Error("failed to unsubscribe contact", "error", err)
		http.Error(w, "Something went wrong, please try again later", http.StatusInternalServerError)
		return
	}

	s.logger.Info("contact unsubscribed", "email", email)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<html><body style="font-family:Arial,sans-serif;text-align:center;padding:48px;">`+
		`<h2>You have been unsubscribed</h2>`+
		`<p>You will no longer receive campaign emails from us.</p>`+
		`</body></html>`)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// operationError maps controller errors to HTTP status codes
func (s *Server) operationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrInvalidState),
		errors.Is(err, repository.ErrBatchClaimed):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrNoRecipients),
		errors.Is(err, recipients.ErrNoSelection):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, template.ErrNoContent):
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("operation failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal error")
	}
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
