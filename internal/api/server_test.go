package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bpr-rehab/campaigner/internal/config"
	"github.com/bpr-rehab/campaigner/internal/db"
	"github.com/bpr-rehab/campaigner/internal/dispatch"
	"github.com/bpr-rehab/campaigner/internal/models"
	"github.com/bpr-rehab/campaigner/internal/repository"
	"github.com/bpr-rehab/campaigner/internal/unsubscribe"
)

// mockController lets each test script the operation outcomes.
type mockController struct {
	prepareRes  *dispatch.PrepareResult
	dispatchRes *dispatch.DispatchResult
	cancelRes   *dispatch.CancelResult
	statusRes   *dispatch.StatusResult
	err         error
	calls       []string
}

func (m *mockController) Prepare(ctx context.Context, id string) (*dispatch.PrepareResult, error) {
	m.calls = append(m.calls, "prepare:"+id)
	return m.prepareRes, m.err
}

func (m *mockController) Dispatch(ctx context.Context, id string) (*dispatch.DispatchResult, error) {
	m.calls = append(m.calls, "dispatch:"+id)
	return m.dispatchRes, m.err
}

func (m *mockController) Pause(ctx context.Context, id string) error {
	m.calls = append(m.calls, "pause:"+id)
	return m.err
}

func (m *mockController) Cancel(ctx context.Context, id string) (*dispatch.CancelResult, error) {
	m.calls = append(m.calls, "cancel:"+id)
	return m.cancelRes, m.err
}

func (m *mockController) Status(ctx context.Context, id string) (*dispatch.StatusResult, error) {
	m.calls = append(m.calls, "status:"+id)
	return m.statusRes, m.err
}

type serverFixture struct {
	server     *Server
	controller *mockController
	campaigns  *repository.CampaignRepository
	contacts   *repository.ContactRepository
}

func setupServer(t *testing.T, apiKeys ...string) *serverFixture {
	t.Helper()

	database, err := db.NewMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := &config.Config{}
	cfg.Auth.APIKeys = apiKeys
	cfg.Dispatch.DefaultBatchSize = 10
	cfg.Dispatch.DefaultBatchIntervalMs = 300000

	mc := &mockController{}
	campaigns := repository.NewCampaignRepository(database.DB)
	contacts := repository.NewContactRepository(database.DB)

	server := NewServer(
		mc,
		campaigns,
		repository.NewJobRepository(database.DB),
		contacts,
		unsubscribe.NewSigner("0123456789abcdef0123456789abcdef", "https://clinic.example"),
		cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return &serverFixture{server: server, controller: mc, campaigns: campaigns, contacts: contacts}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func validCampaignBody() map[string]any {
	return map[string]any{
		"name":        "Spring newsletter",
		"subject":     "Hello {{firstName}}",
		"body":        "<p>Hi</p>",
		"from_name":   "Clinic",
		"from_email":  "clinic@example.com",
		"send_to_all": true,
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	res := decodeJSON[HealthResponse](t, rec)
	if res.Status != "ok" {
		t.Errorf("health status = %q", res.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	f := setupServer(t, "secret-key")

	rec := f.do(t, http.MethodGet, "/api/v1/campaigns/", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/campaigns/", nil,
		map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/campaigns/", nil,
		map[string]string{"Authorization": "Bearer secret-key"})
	if rec.Code != http.StatusOK {
		t.Errorf("bearer: status = %d, want 200", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/campaigns/", nil,
		map[string]string{"X-API-Key": "secret-key"})
	if rec.Code != http.StatusOK {
		t.Errorf("x-api-key: status = %d, want 200", rec.Code)
	}
}

func TestAuthDisabledWhenNoKeys(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/campaigns/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestCreateCampaign(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/campaigns/", validCampaignBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	c := decodeJSON[models.Campaign](t, rec)
	if c.ID == "" {
		t.Error("campaign id not assigned")
	}
	if c.Status != models.CampaignDraft {
		t.Errorf("status = %s, want DRAFT", c.Status)
	}
	if c.BatchSize != 10 || c.BatchIntervalMs != 300000 {
		t.Errorf("defaults not applied: size=%d interval=%d", c.BatchSize, c.BatchIntervalMs)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	f := setupServer(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing name", func(b map[string]any) { delete(b, "name") }},
		{"missing from_email", func(b map[string]any) { delete(b, "from_email") }},
		{"no content", func(b map[string]any) { delete(b, "body"); delete(b, "subject") }},
		{"no selection", func(b map[string]any) { b["send_to_all"] = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validCampaignBody()
			tt.mutate(body)
			rec := f.do(t, http.MethodPost, "/api/v1/campaigns/", body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestUpdateCampaignFrozenWhenTerminal(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/campaigns/", validCampaignBody(), nil)
	c := decodeJSON[models.Campaign](t, rec)

	if err := f.campaigns.SetStatus(c.ID, models.CampaignCancelled); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	rec = f.do(t, http.MethodPut, "/api/v1/campaigns/"+c.ID, validCampaignBody(), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGetCampaignNotFound(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/campaigns/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteCampaign(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodPost, "/api/v1/campaigns/", validCampaignBody(), nil)
	c := decodeJSON[models.Campaign](t, rec)

	rec = f.do(t, http.MethodDelete, "/api/v1/campaigns/"+c.ID, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/campaigns/"+c.ID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", rec.Code)
	}
}
