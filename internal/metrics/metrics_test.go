package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDeliveryCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncMessagesSent("camp-1")
	IncMessagesSent("camp-1")
	IncMessagesFailed("camp-1", false)
	IncMessagesFailed("camp-1", true)
	IncMessagesFailed("camp-1", true)

	if got := testutil.ToFloat64(m.MessagesSentTotal.WithLabelValues("camp-1")); got != 2 {
		t.Errorf("sent counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesFailedTotal.WithLabelValues("camp-1", "permanent")); got != 1 {
		t.Errorf("permanent failed counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MessagesFailedTotal.WithLabelValues("camp-1", "temporary")); got != 2 {
		t.Errorf("temporary failed counter = %v, want 2", got)
	}
}

func TestJobGauges(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetJobGauges(5, 0, 10, 1, 0)

	if got := testutil.ToFloat64(m.JobsByState.WithLabelValues("pending")); got != 5 {
		t.Errorf("pending gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.JobsByState.WithLabelValues("sent")); got != 10 {
		t.Errorf("sent gauge = %v, want 10", got)
	}
}

func TestHelpersNoopWithoutGlobal(t *testing.T) {
	SetGlobal(nil)

	// Must not panic.
	IncMessagesSent("x")
	IncMessagesFailed("x", true)
	IncRateLimitExceeded("example.com")
	ObserveBatch(0.5)
	SetJobGauges(1, 2, 3, 4, 5)
	IncCampaignsPrepared()
	IncCampaignsCompleted()
	IncCampaignsCancelled()
}

func TestHTTPMiddlewareRecordsRequests(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("GET", "/health", "418")); got != 1 {
		t.Errorf("request counter = %v, want 1", got)
	}
}

func TestNormalizePathCollapsesIDs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/campaigns/3b9f2c70-aaaa-bbbb-cccc-111122223333", nil)

	if got := normalizePath(req); got != "/api/campaigns/{id}" {
		t.Errorf("normalizePath() = %q", got)
	}
}
