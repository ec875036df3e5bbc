package repository

import (
	"testing"
	"time"

	"github.com/bpr-rehab/campaigner/internal/models"
)

func TestCampaignCreateAndGet(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)

	c := createTestCampaign(t, campaigns)

	if c.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}
	if c.Status != models.CampaignDraft {
		t.Errorf("Status = %v, want DRAFT", c.Status)
	}

	got, err := campaigns.GetByID(c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() = nil, want campaign")
	}
	if got.Name != c.Name {
		t.Errorf("Name = %q, want %q", got.Name, c.Name)
	}
	if got.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", got.BatchSize)
	}
	if got.StartedAt != nil {
		t.Errorf("StartedAt = %v, want nil", got.StartedAt)
	}
}

func TestCampaignGetByIDNotFound(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)

	got, err := campaigns.GetByID("missing")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetByID() = %v, want nil", got)
	}
}

func TestCampaignSetSendingPreservesStartedAt(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	c := createTestCampaign(t, campaigns)

	first := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := campaigns.SetSending(c.ID, 25, first); err != nil {
		t.Fatalf("SetSending() error = %v", err)
	}

	got, _ := campaigns.GetByID(c.ID)
	if got.Status != models.CampaignSending {
		t.Errorf("Status = %v, want SENDING", got.Status)
	}
	if got.TotalRecipients != 25 {
		t.Errorf("TotalRecipients = %d, want 25", got.TotalRecipients)
	}
	if got.StartedAt == nil {
		t.Fatal("StartedAt = nil after SetSending")
	}

	// A second prepare must not reset the original start time.
	if err := campaigns.SetSending(c.ID, 30, time.Now()); err != nil {
		t.Fatalf("SetSending() error = %v", err)
	}
	got2, _ := campaigns.GetByID(c.ID)
	if !got2.StartedAt.Equal(*got.StartedAt) {
		t.Errorf("StartedAt changed on re-prepare: %v != %v", got2.StartedAt, got.StartedAt)
	}
	if got2.TotalRecipients != 30 {
		t.Errorf("TotalRecipients = %d, want 30", got2.TotalRecipients)
	}
}

func TestCampaignAddCounters(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	c := createTestCampaign(t, campaigns)

	if err := campaigns.AddCounters(c.ID, 9, 1); err != nil {
		t.Fatalf("AddCounters() error = %v", err)
	}
	if err := campaigns.AddCounters(c.ID, 5, 0); err != nil {
		t.Fatalf("AddCounters() error = %v", err)
	}

	got, _ := campaigns.GetByID(c.ID)
	if got.SentCount != 14 {
		t.Errorf("SentCount = %d, want 14", got.SentCount)
	}
	if got.FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", got.FailedCount)
	}
}

func TestCampaignReconcileCounters(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	contacts := NewContactRepository(database)
	jobs := NewJobRepository(database)

	c := createTestCampaign(t, campaigns)
	list := createTestContacts(t, contacts, 3)

	if _, err := jobs.ReplacePending(c.ID, list, 10); err != nil {
		t.Fatalf("ReplacePending() error = %v", err)
	}

	_, claimed, err := jobs.ClaimNextBatch(c.ID)
	if err != nil {
		t.Fatalf("ClaimNextBatch() error = %v", err)
	}
	if err := jobs.MarkSent(claimed[0].ID, time.Now()); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}
	if err := jobs.MarkSent(claimed[1].ID, time.Now()); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}
	if err := jobs.MarkFailed(claimed[2].ID, "mailbox full"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	// Counters were never incremented; jobs are the source of truth.
	if err := campaigns.ReconcileCounters(c.ID); err != nil {
		t.Fatalf("ReconcileCounters() error = %v", err)
	}

	got, _ := campaigns.GetByID(c.ID)
	if got.SentCount != 2 || got.FailedCount != 1 {
		t.Errorf("counters = %d/%d, want 2/1", got.SentCount, got.FailedCount)
	}
}

func TestCampaignList(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)

	createTestCampaign(t, campaigns)
	c2 := createTestCampaign(t, campaigns)
	if err := campaigns.SetStatus(c2.ID, models.CampaignPaused); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	all, total, err := campaigns.List(models.CampaignListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("List() total = %d len = %d, want 2/2", total, len(all))
	}

	paused, total, err := campaigns.List(models.CampaignListFilter{Status: models.CampaignPaused})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(paused) != 1 {
		t.Fatalf("filtered List() total = %d len = %d, want 1/1", total, len(paused))
	}
	if paused[0].ID != c2.ID {
		t.Errorf("filtered List() returned %s, want %s", paused[0].ID, c2.ID)
	}
}

func TestCampaignDeleteCascadesJobs(t *testing.T) {
	database := setupTestDB(t)
	campaigns := NewCampaignRepository(database)
	contacts := NewContactRepository(database)
	jobs := NewJobRepository(database)

	c := createTestCampaign(t, campaigns)
	list := createTestContacts(t, contacts, 2)
	if _, err := jobs.ReplacePending(c.ID, list, 10); err != nil {
		t.Fatalf("ReplacePending() error = %v", err)
	}

	if err := campaigns.Delete(c.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	counts, err := jobs.CountByStatus(c.ID)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts.Total != 0 {
		t.Errorf("jobs remaining after campaign delete: %d", counts.Total)
	}
}
