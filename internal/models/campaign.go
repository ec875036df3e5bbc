package models

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignSending   CampaignStatus = "SENDING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignCancelled CampaignStatus = "CANCELLED"
)

// Terminal reports whether no further transitions can leave this state.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// CanPrepare reports whether a job queue may be built from this state.
func (s CampaignStatus) CanPrepare() bool {
	return s == CampaignDraft || s == CampaignPaused
}

// CanDispatch reports whether a batch may be sent from this state.
func (s CampaignStatus) CanDispatch() bool {
	return s == CampaignSending
}

// CanPause reports whether the campaign may be paused from this state.
func (s CampaignStatus) CanPause() bool {
	return s == CampaignSending
}

// CanCancel reports whether the campaign may be cancelled from this state.
func (s CampaignStatus) CanCancel() bool {
	return s == CampaignDraft || s == CampaignSending || s == CampaignPaused
}

// Campaign represents one bulk mailing: a template plus a recipient
// selection rule, sent in paced batches.
type Campaign struct {
	ID              string         `json:"id"`
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
	BatchSize       int            `json:"batch_size"`
	BatchIntervalMs int            `json:"batch_interval_ms"`
	Variables       string         `json:"variables,omitempty"` // JSON
	Status          CampaignStatus `json:"status"`

	TotalRecipients int `json:"total_recipients"`
	SentCount       int `json:"sent_count"`
	FailedCount     int `json:"failed_count"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CampaignListFilter for filtering campaigns
type CampaignListFilter struct {
	Status CampaignStatus
	Search string
	Limit  int
	Offset int
}

// CampaignWithJobCount includes the total job count for list views
type CampaignWithJobCount struct {
	Campaign
	JobCount int `json:"job_count"`
}
