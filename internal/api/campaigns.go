package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bpr-rehab/campaigner/internal/models"
)

// CampaignRequest is the request body for creating or updating a campaign
type CampaignRequest struct {
	Name            string         `json:"name"`
	Subject         string         `json:"subject"`
	TemplateSlug    string         `json:"template_slug,omitempty"`
	Body            string         `json:"body,omitempty"`
	Preheader       string         `json:"preheader,omitempty"`
	FromName        string         `json:"from_name"`
	FromEmail       string         `json:"from_email"`
	ReplyTo         string         `json:"reply_to,omitempty"`
	GroupID         string         `json:"group_id,omitempty"`
	SendToAll       bool           `json:"send_to_all"`
	BatchSize       int            `json:"batch_size,omitempty"`
	BatchIntervalMs int            `json:"batch_interval_ms,omitempty"`
	Variables       map[string]any `json:"variables,omitempty"`
}

// CampaignListResponse is the response for GET /api/v1/campaigns
type CampaignListResponse struct {
	Campaigns []models.CampaignWithJobCount `json:"campaigns"`
	Total     int                           `json:"total"`
}

func (req *CampaignRequest) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	if req.FromEmail == "" {
		return "from_email is required"
	}
	if req.Subject == "" && req.TemplateSlug == "" {
		return "subject or template_slug is required"
	}
	if req.Body == "" && req.TemplateSlug == "" {
		return "body or template_slug is required"
	}
	if !req.SendToAll && req.GroupID == "" {
		return "either send_to_all or group_id is required"
	}
	if req.BatchSize < 0 || req.BatchIntervalMs < 0 {
		return "batch_size and batch_interval_ms must not be negative"
	}
	return ""
}

// apply copies request fields onto a campaign, filling batch defaults
// from configuration.
func (s *Server) apply(req *CampaignRequest, c *models.Campaign) error {
	c.Name = req.Name
	c.Subject = req.Subject
	c.TemplateSlug = req.TemplateSlug
	c.Body = req.Body
	c.Preheader = req.Preheader
	c.FromName = req.FromName
	c.FromEmail = req.FromEmail
	c.ReplyTo = req.ReplyTo
	c.GroupID = req.GroupID
	c.SendToAll = req.SendToAll

	c.BatchSize = req.BatchSize
	if c.BatchSize == 0 {
		c.BatchSize = s.cfg.Dispatch.DefaultBatchSize
	}
	c.BatchIntervalMs = req.BatchIntervalMs
	if c.BatchIntervalMs == 0 {
		c.BatchIntervalMs = s.cfg.Dispatch.DefaultBatchIntervalMs
	}

	c.Variables = ""
	if len(req.Variables) > 0 {
		data, err := json.Marshal(req.Variables)
		if err != nil {
			return err
		}
		c.Variables = string(data)
	}
	return nil
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.sendError(w, http.StatusBadRequest, msg)
		return
	}

	c := &models.Campaign{}
	if err := s.apply(&req, c); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid variables")
		return
	}
	if err := s.campaigns.Create(c); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		return
	}

	s.logger.Info("campaign created", "campaign_id", c.ID, "name", c.Name)
	s.sendJSON(w, http.StatusCreated, c)
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	filter := models.CampaignListFilter{
		Status: models.CampaignStatus(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	}

	campaigns, total, err := s.campaigns.List(filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}
	s.sendJSON(w, http.StatusOK, CampaignListResponse{Campaigns: campaigns, Total: total})
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "campaign not found")
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleUpdateCampaign handles PUT /api/v1/campaigns/{id}.
// Configuration is frozen once a campaign reaches a terminal state.
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaigns.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to load campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if c.Status.Terminal() {
		s.sendError(w, http.StatusConflict, "campaign is "+string(c.Status)+" and can no longer be edited")
		return
	}

	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.sendError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.apply(&req, c); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid variables")
		return
	}
	if err := s.campaigns.Update(c); err != nil {
		s.logger.Error("failed to update campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update campaign")
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("failed to load campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load campaign")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "campaign not found")
		return
	}

	if err := s.campaigns.Delete(id); err != nil {
		s.logger.Error("failed to delete campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete campaign")
		return
	}

	s.logger.Info("campaign deleted", "campaign_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}
