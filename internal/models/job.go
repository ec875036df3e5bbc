package models

import "time"

// JobStatus is the delivery state of one recipient's job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSent       JobStatus = "SENT"
	JobFailed     JobStatus = "FAILED"
	JobSkipped    JobStatus = "SKIPPED"
)

// Terminal reports whether the job has reached a final outcome.
// IN_PROGRESS is a transient claim state, not an outcome.
func (s JobStatus) Terminal() bool {
	return s == JobSent || s == JobFailed || s == JobSkipped
}

// Job represents one recipient's pending or attempted delivery
// within a campaign. Jobs are grouped into numbered batches at
// preparation time and processed one batch per dispatch call.
type Job struct {
	ID          string     `json:"id"`
	CampaignID  string     `json:"campaign_id"`
	ContactID   string     `json:"contact_id"`
	BatchNumber int        `json:"batch_number"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	// Joined contact fields, populated when loading a batch for sending.
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// JobCounts holds per-state job totals for one campaign.
type JobCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Remaining returns the number of jobs that still need a dispatch call.
func (c JobCounts) Remaining() int {
	return c.Pending + c.InProgress
}
