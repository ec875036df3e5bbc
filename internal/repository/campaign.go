package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bpr-rehab/campaigner/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign in DRAFT state
func (r *CampaignRepository) Create(c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.Status = models.CampaignDraft
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO campaigns (id, name, subject, template_slug, body, preheader,
			from_name, from_email, reply_to, group_id, send_to_all,
			batch_size, batch_interval_ms, variables, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Subject, nullString(c.TemplateSlug), c.Body, c.Preheader,
		c.FromName, c.FromEmail, c.ReplyTo, nullString(c.GroupID), c.SendToAll,
		c.BatchSize, c.BatchIntervalMs, c.Variables, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil when not found
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	c := &models.Campaign{}
	var templateSlug, groupID sql.NullString
	var startedAt, completedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, name, subject, template_slug, COALESCE(body, ''), COALESCE(preheader, ''),
			from_name, from_email, COALESCE(reply_to, ''), group_id, send_to_all,
			batch_size, batch_interval_ms, COALESCE(variables, ''), status,
			total_recipients, sent_count, failed_count,
			started_at, completed_at, created_at, updated_at
		FROM campaigns WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Subject, &templateSlug, &c.Body, &c.Preheader,
		&c.FromName, &c.FromEmail, &c.ReplyTo, &groupID, &c.SendToAll,
		&c.BatchSize, &c.BatchIntervalMs, &c.Variables, &c.Status,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount,
		&startedAt, &completedAt, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if templateSlug.Valid {
		c.TemplateSlug = templateSlug.String
	}
	if groupID.Valid {
		c.GroupID = groupID.String
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}

	return c, nil
}

// List returns campaigns with optional filtering
func (r *CampaignRepository) List(filter models.CampaignListFilter) ([]models.CampaignWithJobCount, int, error) {
	countQuery := "SELECT COUNT(*) FROM campaigns WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		countQuery += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		countQuery += " AND (name LIKE ? OR subject LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT c.id, c.name, c.subject, c.template_slug, COALESCE(c.body, ''), COALESCE(c.preheader, ''),
			c.from_name, c.from_email, COALESCE(c.reply_to, ''), c.group_id, c.send_to_all,
			c.batch_size, c.batch_interval_ms, COALESCE(c.variables, ''), c.status,
			c.total_recipients, c.sent_count, c.failed_count,
			c.started_at, c.completed_at, c.created_at, c.updated_at,
			COALESCE((SELECT COUNT(*) FROM campaign_jobs WHERE campaign_id = c.id), 0) as job_count
		FROM campaigns c
		WHERE 1=1`

	args = []any{}
	if filter.Status != "" {
		query += " AND c.status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		query += " AND (c.name LIKE ? OR c.subject LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	query += " ORDER BY c.created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []models.CampaignWithJobCount{}
	for rows.Next() {
		var c models.CampaignWithJobCount
		var templateSlug, groupID sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(&c.ID, &c.Name, &c.Subject, &templateSlug, &c.Body, &c.Preheader,
			&c.FromName, &c.FromEmail, &c.ReplyTo, &groupID, &c.SendToAll,
			&c.BatchSize, &c.BatchIntervalMs, &c.Variables, &c.Status,
			&c.TotalRecipients, &c.SentCount, &c.FailedCount,
			&startedAt, &completedAt, &c.CreatedAt, &c.UpdatedAt, &c.JobCount)
		if err != nil {
			return nil, 0, err
		}

		if templateSlug.Valid {
			c.TemplateSlug = templateSlug.String
		}
		if groupID.Valid {
			c.GroupID = groupID.String
		}
		if startedAt.Valid {
			c.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			c.CompletedAt = &completedAt.Time
		}

		campaigns = append(campaigns, c)
	}

	return campaigns, total, nil
}

// Update updates campaign configuration fields
func (r *CampaignRepository) Update(c *models.Campaign) error {
	c.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE campaigns SET name = ?, subject = ?, template_slug = ?, body = ?, preheader = ?,
			from_name = ?, from_email = ?, reply_to = ?, group_id = ?, send_to_all = ?,
			batch_size = ?, batch_interval_ms = ?, variables = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Subject, nullString(c.TemplateSlug), c.Body, c.Preheader,
		c.FromName, c.FromEmail, c.ReplyTo, nullString(c.GroupID), c.SendToAll,
		c.BatchSize, c.BatchIntervalMs, c.Variables, c.UpdatedAt, c.ID,
	)
	return err
}

// Delete deletes a campaign and, via cascade, its jobs
func (r *CampaignRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

// SetSending moves a campaign into SENDING after queue preparation.
// started_at is set only when previously unset, so a re-prepare from
// PAUSED keeps the original start time.
func (r *CampaignRepository) SetSending(id string, totalRecipients int, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, total_recipients = ?,
			started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = ?`,
		models.CampaignSending, totalRecipients, now, now, id,
	)
	return err
}

// SetStatus updates the lifecycle state without touching counters
func (r *CampaignRepository) SetStatus(id string, status models.CampaignStatus) error {
	_, err := r.db.Exec("UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id)
	return err
}

// SetCompleted marks a campaign COMPLETED and records the finish time
func (r *CampaignRepository) SetCompleted(id string, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		models.CampaignCompleted, now, now, id,
	)
	return err
}

// AddCounters atomically adds one batch's tallies to the cumulative counters
func (r *CampaignRepository) AddCounters(id string, sent, failed int) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET sent_count = sent_count + ?, failed_count = failed_count + ?, updated_at = ?
		WHERE id = ?`,
		sent, failed, time.Now(), id,
	)
	return err
}

// ReconcileCounters recomputes sent/failed counters from job states.
// The job records are the durable source of truth; this repairs drift
// after a crash between a job write and the counter increment.
func (r *CampaignRepository) ReconcileCounters(id string) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET
			sent_count = (SELECT COUNT(*) FROM campaign_jobs WHERE campaign_id = campaigns.id AND status = 'SENT'),
			failed_count = (SELECT COUNT(*) FROM campaign_jobs WHERE campaign_id = campaigns.id AND status = 'FAILED'),
			updated_at = ?
		WHERE id = ?`,
		time.Now(), id,
	)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
