package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bpr-rehab/campaigner/internal/models"
)

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create creates a new subscribed contact
func (r *ContactRepository) Create(c *models.Contact) error {
	c.ID = uuid.New().String()
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO contacts (id, email, first_name, last_name, subscribed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Email, c.FirstName, c.LastName, c.Subscribed, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// GetByEmail returns a contact by email, or nil when not found
func (r *ContactRepository) GetByEmail(email string) (*models.Contact, error) {
	c := &models.Contact{}
	err := r.db.QueryRow(`
		SELECT id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), subscribed, created_at
		FROM contacts WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Subscribed, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListSubscribed returns all subscribed contacts in creation order
func (r *ContactRepository) ListSubscribed() ([]models.Contact, error) {
	return r.scanContacts(`
		SELECT id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), subscribed, created_at
		FROM contacts WHERE subscribed = 1
		ORDER BY created_at, id`)
}

// ListGroupSubscribed returns the subscribed members of a group in
// membership creation order
func (r *ContactRepository) ListGroupSubscribed(groupID string) ([]models.Contact, error) {
	return r.scanContacts(`
		SELECT c.id, c.email, COALESCE(c.first_name, ''), COALESCE(c.last_name, ''), c.subscribed, c.created_at
		FROM contacts c
		JOIN group_members m ON m.contact_id = c.id
		WHERE m.group_id = ? AND c.subscribed = 1
		ORDER BY m.created_at, c.id`, groupID)
}

// Unsubscribe clears the subscription flag for an address.
// Reports whether a contact was updated.
func (r *ContactRepository) Unsubscribe(email string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE contacts SET subscribed = 0 WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreateGroup creates a named contact group
func (r *ContactRepository) CreateGroup(g *models.Group) error {
	g.ID = uuid.New().String()
	g.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO groups (id, name, description, created_at)
		VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, g.Description, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// AddToGroup adds a contact to a group; adding twice is a no-op
func (r *ContactRepository) AddToGroup(groupID, contactID string) error {
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO group_members (group_id, contact_id, created_at)
		VALUES (?, ?, ?)`,
		groupID, contactID, time.Now(),
	)
	return err
}

func (r *ContactRepository) scanContacts(query string, args ...any) ([]models.Contact, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Subscribed, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}
