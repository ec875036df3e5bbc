package repository

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/bpr-rehab/campaigner/internal/db"
	"github.com/bpr-rehab/campaigner/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.NewMemory()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database.DB
}

func createTestContacts(t *testing.T, contacts *ContactRepository, n int) []models.Contact {
	t.Helper()

	created := make([]models.Contact, 0, n)
	for i := 0; i < n; i++ {
		c := models.Contact{
			Email:      fmt.Sprintf("patient%02d@example.com", i),
			FirstName:  fmt.Sprintf("Pat%d", i),
			LastName:   "Doe",
			Subscribed: true,
		}
		if err := contacts.Create(&c); err != nil {
			t.Fatalf("failed to create contact: %v", err)
		}
		created = append(created, c)
	}
	return created
}

func createTestCampaign(t *testing.T, campaigns *CampaignRepository) *models.Campaign {
	t.Helper()

	c := &models.Campaign{
		Name:            "Spring newsletter",
		Subject:         "Hello {{firstName}}",
		Body:            "<p>Hello {{recipientName}}</p>",
		FromName:        "Clinic",
		FromEmail:       "clinic@example.com",
		SendToAll:       true,
		BatchSize:       10,
		BatchIntervalMs: 1000,
	}
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	return c
}
