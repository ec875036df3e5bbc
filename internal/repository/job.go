package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bpr-rehab/campaigner/internal/models"
)

var (
	// ErrNoPendingJobs is returned by ClaimNextBatch when every job of the
	// campaign has reached a terminal state.
	ErrNoPendingJobs = errors.New("no pending jobs")

	// ErrBatchClaimed is returned when another dispatch call currently
	// holds a claimed batch for the campaign.
	ErrBatchClaimed = errors.New("a batch is already claimed for this campaign")
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// ReplacePending rebuilds the pending job set for a campaign.
// Jobs still PENDING are deleted and recreated from the resolved
// recipient list; contacts that already hold a terminal job keep it
// (the unique campaign/contact constraint skips them), so delivery
// history survives a re-prepare. Batch numbers follow resolution
// order: recipient i lands in batch i/batchSize.
// Returns the number of jobs created.
func (r *JobRepository) ReplacePending(campaignID string, contacts []models.Contact, batchSize int) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM campaign_jobs WHERE campaign_id = ? AND status = ?",
		campaignID, models.JobPending,
	); err != nil {
		return 0, fmt.Errorf("failed to delete pending jobs: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO campaign_jobs (id, campaign_id, contact_id, batch_number, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	created := 0
	for i, c := range contacts {
		res, err := stmt.Exec(uuid.New().String(), campaignID, c.ID, i/batchSize, models.JobPending, now)
		if err != nil {
			return 0, fmt.Errorf("failed to create job for %s: %w", c.Email, err)
		}
		n, _ := res.RowsAffected()
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// ClaimNextBatch atomically claims the lowest-numbered pending batch by
// moving its jobs from PENDING to IN_PROGRESS. Only one caller can win:
// a campaign with any IN_PROGRESS job is considered busy. Returns the
// claimed batch number and its jobs with recipient fields joined, in
// creation order.
func (r *JobRepository) ClaimNextBatch(campaignID string) (int, []models.Job, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback()

	var inFlight int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM campaign_jobs WHERE campaign_id = ? AND status = ?",
		campaignID, models.JobInProgress,
	).Scan(&inFlight); err != nil {
		return 0, nil, err
	}
	if inFlight > 0 {
		return 0, nil, ErrBatchClaimed
	}

	var batch sql.NullInt64
	if err := tx.QueryRow(
		"SELECT MIN(batch_number) FROM campaign_jobs WHERE campaign_id = ? AND status = ?",
		campaignID, models.JobPending,
	).Scan(&batch); err != nil {
		return 0, nil, err
	}
	if !batch.Valid {
		return 0, nil, ErrNoPendingJobs
	}

	res, err := tx.Exec(`
		UPDATE campaign_jobs SET status = ?, claimed_at = ?
		WHERE campaign_id = ? AND batch_number = ? AND status = ?`,
		models.JobInProgress, time.Now(), campaignID, batch.Int64, models.JobPending,
	)
	if err != nil {
		return 0, nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, nil, ErrBatchClaimed
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}

	jobs, err := r.batchJobs(campaignID, int(batch.Int64), models.JobInProgress)
	if err != nil {
		return 0, nil, err
	}
	return int(batch.Int64), jobs, nil
}

// ReleaseBatch returns a claimed batch to PENDING without recording any
// outcome. Used when the whole batch is abandoned before the first send,
// e.g. on template resolution failure.
func (r *JobRepository) ReleaseBatch(campaignID string, batchNumber int) error {
	_, err := r.db.Exec(`
		UPDATE campaign_jobs SET status = ?, claimed_at = NULL
		WHERE campaign_id = ? AND batch_number = ? AND status = ?`,
		models.JobPending, campaignID, batchNumber, models.JobInProgress,
	)
	return err
}

// MarkSent records a successful delivery
func (r *JobRepository) MarkSent(jobID string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE campaign_jobs SET status = ?, sent_at = ?, error = NULL
		WHERE id = ?`,
		models.JobSent, at, jobID,
	)
	return err
}

// MarkFailed records a failed delivery with the transport's error detail
func (r *JobRepository) MarkFailed(jobID, errorMsg string) error {
	_, err := r.db.Exec(`
		UPDATE campaign_jobs SET status = ?, error = ?
		WHERE id = ?`,
		models.JobFailed, errorMsg, jobID,
	)
	return err
}

// SkipRemaining marks every job not yet in a terminal state as SKIPPED.
// Jobs are kept rather than deleted so an audit can distinguish
// "skipped due to cancellation" from "never attempted".
func (r *JobRepository) SkipRemaining(campaignID string) (int, error) {
	res, err := r.db.Exec(`
		UPDATE campaign_jobs SET status = ?, claimed_at = NULL
		WHERE campaign_id = ? AND status IN (?, ?)`,
		models.JobSkipped, campaignID, models.JobPending, models.JobInProgress,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountPending returns the number of jobs still awaiting dispatch
func (r *JobRepository) CountPending(campaignID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM campaign_jobs WHERE campaign_id = ? AND status = ?",
		campaignID, models.JobPending,
	).Scan(&n)
	return n, err
}

// CountByStatus returns aggregated job counts for a campaign
func (r *JobRepository) CountByStatus(campaignID string) (models.JobCounts, error) {
	var counts models.JobCounts
	err := r.db.QueryRow(`
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0) as pending,
			COALESCE(SUM(CASE WHEN status = 'IN_PROGRESS' THEN 1 ELSE 0 END), 0) as in_progress,
			COALESCE(SUM(CASE WHEN status = 'SENT' THEN 1 ELSE 0 END), 0) as sent,
			COALESCE(SUM(CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(SUM(CASE WHEN status = 'SKIPPED' THEN 1 ELSE 0 END), 0) as skipped
		FROM campaign_jobs WHERE campaign_id = ?`, campaignID,
	).Scan(&counts.Total, &counts.Pending, &counts.InProgress,
		&counts.Sent, &counts.Failed, &counts.Skipped)

	return counts, err
}

// RequeueStale returns IN_PROGRESS jobs claimed before the cutoff to
// PENDING. Recovers batches orphaned by a crash mid-dispatch; jobs whose
// outcome was already written are untouched.
func (r *JobRepository) RequeueStale(cutoff time.Time) (int, error) {
	res, err := r.db.Exec(`
		UPDATE campaign_jobs SET status = ?, claimed_at = NULL
		WHERE status = ? AND claimed_at < ?`,
		models.JobPending, models.JobInProgress, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListByCampaign returns jobs for a campaign, optionally filtered by status
func (r *JobRepository) ListByCampaign(campaignID string, status models.JobStatus, limit, offset int) ([]models.Job, error) {
	query := `
		SELECT j.id, j.campaign_id, j.contact_id, j.batch_number, j.status,
			COALESCE(j.error, ''), j.sent_at, j.created_at,
			c.email, COALESCE(c.first_name, ''), COALESCE(c.last_name, '')
		FROM campaign_jobs j
		JOIN contacts c ON j.contact_id = c.id
		WHERE j.campaign_id = ?`
	args := []any{campaignID}

	if status != "" {
		query += " AND j.status = ?"
		args = append(args, status)
	}

	query += " ORDER BY j.batch_number, j.created_at, j.id"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	return r.scanJobs(query, args...)
}

func (r *JobRepository) batchJobs(campaignID string, batchNumber int, status models.JobStatus) ([]models.Job, error) {
	return r.scanJobs(`
		SELECT j.id, j.campaign_id, j.contact_id, j.batch_number, j.status,
			COALESCE(j.error, ''), j.sent_at, j.created_at,
			c.email, COALESCE(c.first_name, ''), COALESCE(c.last_name, '')
		FROM campaign_jobs j
		JOIN contacts c ON j.contact_id = c.id
		WHERE j.campaign_id = ? AND j.batch_number = ? AND j.status = ?
		ORDER BY j.created_at, j.id`,
		campaignID, batchNumber, status,
	)
}

func (r *JobRepository) scanJobs(query string, args ...any) ([]models.Job, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		var j models.Job
		var sentAt sql.NullTime

		err := rows.Scan(&j.ID, &j.CampaignID, &j.ContactID, &j.BatchNumber, &j.Status,
			&j.Error, &sentAt, &j.CreatedAt,
			&j.Email, &j.FirstName, &j.LastName)
		if err != nil {
			return nil, err
		}
		if sentAt.Valid {
			j.SentAt = &sentAt.Time
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}
