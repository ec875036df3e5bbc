package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bpr-rehab/campaigner/internal/models"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetBySlug returns a stored template by slug, or nil when not found
func (r *TemplateRepository) GetBySlug(slug string) (*models.Template, error) {
	t := &models.Template{}
	err := r.db.QueryRow(`
		SELECT id, slug, name, subject, html_body, created_at, updated_at
		FROM templates WHERE slug = ?`, slug,
	).Scan(&t.ID, &t.Slug, &t.Name, &t.Subject, &t.HTMLBody, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Upsert creates a template or replaces the stored content for its slug
func (r *TemplateRepository) Upsert(t *models.Template) error {
	now := time.Now()
	t.UpdatedAt = now
	if t.ID == "" {
		t.ID = uuid.New().String()
		t.CreatedAt = now
	}

	_, err := r.db.Exec(`
		INSERT INTO templates (id, slug, name, subject, html_body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			subject = excluded.subject,
			html_body = excluded.html_body,
			updated_at = excluded.updated_at`,
		t.ID, t.Slug, t.Name, t.Subject, t.HTMLBody, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}
	return nil
}

// SeedDefaults installs the stock clinic templates, skipping any slug
// that already exists so operator edits are preserved.
func (r *TemplateRepository) SeedDefaults() (int, error) {
	seeded := 0
	for _, t := range defaultTemplates {
		existing, err := r.GetBySlug(t.Slug)
		if err != nil {
			return seeded, err
		}
		if existing != nil {
			continue
		}
		tmpl := t
		if err := r.Upsert(&tmpl); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

var defaultTemplates = []models.Template{
	{
		Slug:    "NEWSLETTER",
		Name:    "Monthly Newsletter",
		Subject: "News from the clinic, {{recipientName}}",
		HTMLBody: `<h2>Hello {{firstName}},</h2>
<p>Here is what has been happening at the clinic this month.</p>
<p><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>`,
	},
	{
		Slug:    "REACTIVATION",
		Name:    "Patient Reactivation",
		Subject: "We miss you, {{firstName}}",
		HTMLBody: `<h2>Hello {{recipientName}},</h2>
<p>It has been a while since your last visit. Book a follow-up whenever suits you.</p>
<p><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>`,
	},
	{
		Slug:    "ANNOUNCEMENT",
		Name:    "Clinic Announcement",
		Subject: "An update from the clinic",
		HTMLBody: `<h2>Hello {{recipientName}},</h2>
<p>{{announcement}}</p>
<p><a href="{{unsubscribeUrl}}">Unsubscribe</a></p>`,
	},
}
