// Package dispatch implements the campaign lifecycle operations:
// prepare, dispatch, pause, cancel and status. The controller is
// stateless between calls; an external scheduler re-invokes Dispatch
// at the pacing interval each result suggests.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bpr-rehab/campaigner/internal/metrics"
	"github.com/bpr-rehab/campaigner/internal/models"
	"github.com/bpr-rehab/campaigner/internal/ratelimit"
	"github.com/bpr-rehab/campaigner/internal/recipients"
	"github.com/bpr-rehab/campaigner/internal/repository"
	"github.com/bpr-rehab/campaigner/internal/template"
	"github.com/bpr-rehab/campaigner/internal/transport"
	"github.com/bpr-rehab/campaigner/internal/unsubscribe"
)

// RateLimiter is the slice of the limiter the controller uses. Nil
// disables rate limiting.
type RateLimiter interface {
	Allow(recipient string) *ratelimit.Result
}

// Controller executes campaign operations against the durable store.
type Controller struct {
	campaigns *repository.CampaignRepository
	jobs      *repository.JobRepository
	resolver  *recipients.Resolver
	renderer  *template.Renderer
	transport transport.Transport
	limiter   RateLimiter
	signer    *unsubscribe.Signer
	logger    *slog.Logger

	defaultBatchSize int
	sendTimeout      time.Duration
}

type Options struct {
	Campaigns *repository.CampaignRepository
	Jobs      *repository.JobRepository
	Resolver  *recipients.Resolver
	Renderer  *template.Renderer
	Transport transport.Transport
	Limiter   RateLimiter
	Signer    *unsubscribe.Signer
	Logger    *slog.Logger

	DefaultBatchSize int
	SendTimeout      time.Duration
}

func NewController(opts Options) *Controller {
	if opts.DefaultBatchSize <= 0 {
		opts.DefaultBatchSize = 10
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		campaigns:        opts.Campaigns,
		jobs:             opts.Jobs,
		resolver:         opts.Resolver,
		renderer:         opts.Renderer,
		transport:        opts.Transport,
		limiter:          opts.Limiter,
		signer:           opts.Signer,
		logger:           opts.Logger,
		defaultBatchSize: opts.DefaultBatchSize,
		sendTimeout:      opts.SendTimeout,
	}
}

// PrepareResult reports what a prepare call built.
type PrepareResult struct {
	JobsCreated int `json:"jobs_created"`
	Batches     int `json:"batches"`
	Recipients  int `json:"recipients"`
}

// DispatchResult reports one dispatch call. BatchNumber is -1 when no
// batch was processed (the call only observed completion).
type DispatchResult struct {
	BatchNumber    int    `json:"batch_number"`
	Sent           int    `json:"sent"`
	Failed         int    `json:"failed"`
	Remaining      int    `json:"remaining"`
	Done           bool   `json:"done"`
	NextDispatchMs int    `json:"next_dispatch_ms"`
	Message        string `json:"message,omitempty"`
}

// StatusResult is the read-only view of a campaign and its queue.
type StatusResult struct {
	Campaign *models.Campaign `json:"campaign"`
	Jobs     models.JobCounts `json:"jobs"`
}

// CancelResult reports a cancellation.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
	Skipped   int  `json:"skipped"`
}

// Prepare resolves the campaign's recipients and rebuilds its pending
// job queue, then moves the campaign to SENDING. Legal from DRAFT and
// PAUSED; jobs already in a terminal state are preserved, so resuming
// a paused campaign never re-sends.
func (c *Controller) Prepare(ctx context.Context, campaignID string) (*PrepareResult, error) {
	campaign, err := c.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrNotFound
	}
	if !campaign.Status.CanPrepare() {
		return nil, invalidState(campaign.Status, models.CampaignDraft, models.CampaignPaused)
	}

	list, err := c.resolver.Resolve(campaign)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoRecipients
	}

	batchSize := campaign.BatchSize
	if batchSize <= 0 {
		batchSize = c.defaultBatchSize
	}

	created, err := c.jobs.ReplacePending(campaignID, list, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build job queue: %w", err)
	}
	if err := c.campaigns.SetSending(campaignID, len(list), time.Now()); err != nil {
		return nil, err
	}

	metrics.IncCampaignsPrepared()
	c.logger.Info("campaign prepared",
		"campaign_id", campaignID,
		"recipients", len(list),
		"jobs_created", created,
		"batch_size", batchSize,
	)

	return &PrepareResult{
		JobsCreated: created,
		Batches:     (len(list) + batchSize - 1) / batchSize,
		Recipients:  len(list),
	}, nil
}

// Dispatch claims and sends exactly one batch. When the queue is empty
// it transitions the campaign to COMPLETED instead. The caller is
// expected to call again after NextDispatchMs until Done.
func (c *Controller) Dispatch(ctx context.Context, campaignID string) (*DispatchResult, error) {
	campaign, err := c.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrNotFound
	}
	if !campaign.Status.CanDispatch() {
		return nil, invalidState(campaign.Status, models.CampaignSending)
	}

	batchNumber, batch, err := c.jobs.ClaimNextBatch(campaignID)
	if errors.Is(err, repository.ErrNoPendingJobs) {
		return c.complete(campaignID, "all batches dispatched")
	}
	if err != nil {
		return nil, err
	}

	content, err := c.renderer.ResolveContent(campaign)
	if err != nil {
		// The whole batch is meaningless without content. Put the
		// claimed jobs back untouched and surface the error.
		if relErr := c.jobs.ReleaseBatch(campaignID, batchNumber); relErr != nil {
			c.logger.Error("failed to release claimed batch",
				"campaign_id", campaignID, "batch", batchNumber, "error", relErr)
		}
		return nil, err
	}

	start := time.Now()
	sent, failed := c.sendBatch(ctx, campaign, content, batch)

	if err := c.campaigns.AddCounters(campaignID, sent, failed); err != nil {
		return nil, fmt.Errorf("failed to update campaign counters: %w", err)
	}

	remaining, err := c.jobs.CountPending(campaignID)
	if err != nil {
		return nil, err
	}

	metrics.ObserveBatch(time.Since(start).Seconds())
	c.publishJobGauges(campaignID)

	result := &DispatchResult{
		BatchNumber: batchNumber,
		Sent:        sent,
		Failed:      failed,
		Remaining:   remaining,
		Done:        remaining == 0,
	}
	if result.Done {
		now := time.Now()
		if err := c.campaigns.SetCompleted(campaignID, now); err != nil {
			return nil, err
		}
		metrics.IncCampaignsCompleted()
	} else {
		result.NextDispatchMs = campaign.BatchIntervalMs
	}

	c.logger.Info("batch dispatched",
		"campaign_id", campaignID,
		"batch", batchNumber,
		"sent", sent,
		"failed", failed,
		"remaining", remaining,
	)

	return result, nil
}

// sendBatch processes the claimed jobs sequentially, writing each
// job's outcome before moving to the next so a crash mid-batch loses
// at most the in-flight message.
func (c *Controller) sendBatch(ctx context.Context, campaign *models.Campaign, content *template.Content, batch []models.Job) (sent, failed int) {
	for i := range batch {
		job := &batch[i]

		if c.limiter != nil {
			if res := c.limiter.Allow(job.Email); !res.Allowed {
				reason := fmt.Sprintf("rate limited for %s, retry after %s",
					res.Domain, res.RetryAfter.Round(time.Second))
				c.failJob(campaign, job, reason, true)
				failed++
				metrics.IncRateLimitExceeded(res.Domain)
				continue
			}
		}

		contact := models.Contact{
			ID:        job.ContactID,
			Email:     job.Email,
			FirstName: job.FirstName,
			LastName:  job.LastName,
		}
		unsubscribeURL := c.signer.URL(job.Email)
		rendered := c.renderer.RenderFor(content, &contact, campaign.Preheader, unsubscribeURL)

		msg := &transport.Message{
			To:             job.Email,
			ToName:         contact.DisplayName(),
			FromEmail:      campaign.FromEmail,
			FromName:       campaign.FromName,
			ReplyTo:        campaign.ReplyTo,
			Subject:        rendered.Subject,
			HTML:           rendered.HTML,
			UnsubscribeURL: unsubscribeURL,
		}

		sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
		err := c.transport.Send(sendCtx, msg)
		cancel()

		if err != nil {
			c.failJob(campaign, job, err.Error(), transport.IsTemporaryError(err))
			failed++
			continue
		}

		if err := c.jobs.MarkSent(job.ID, time.Now()); err != nil {
			c.logger.Error("failed to record sent job",
				"campaign_id", campaign.ID, "job_id", job.ID, "error", err)
		}
		metrics.IncMessagesSent(campaign.ID)
		sent++
	}
	return sent, failed
}

func (c *Controller) failJob(campaign *models.Campaign, job *models.Job, reason string, temporary bool) {
	if err := c.jobs.MarkFailed(job.ID, reason); err != nil {
		c.logger.Error("failed to record failed job",
			"campaign_id", campaign.ID, "job_id", job.ID, "error", err)
	}
	metrics.IncMessagesFailed(campaign.ID, temporary)
	c.logger.Warn("delivery failed",
		"campaign_id", campaign.ID,
		"recipient", job.Email,
		"temporary", temporary,
		"error", reason,
	)
}

func (c *Controller) complete(campaignID, message string) (*DispatchResult, error) {
	if err := c.campaigns.SetCompleted(campaignID, time.Now()); err != nil {
		return nil, err
	}
	metrics.IncCampaignsCompleted()
	c.publishJobGauges(campaignID)
	c.logger.Info("campaign completed", "campaign_id", campaignID)

	return &DispatchResult{
		BatchNumber: -1,
		Done:        true,
		Message:     message,
	}, nil
}

// Pause stops further dispatching without touching the job queue.
func (c *Controller) Pause(ctx context.Context, campaignID string) error {
	campaign, err := c.campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if campaign == nil {
		return ErrNotFound
	}
	if !campaign.Status.CanPause() {
		return invalidState(campaign.Status, models.CampaignSending)
	}

	if err := c.campaigns.SetStatus(campaignID, models.CampaignPaused); err != nil {
		return err
	}
	c.logger.Info("campaign paused", "campaign_id", campaignID)
	return nil
}

// Cancel terminates a campaign. Jobs not yet attempted become SKIPPED
// so an audit can tell cancellation from never-prepared.
func (c *Controller) Cancel(ctx context.Context, campaignID string) (*CancelResult, error) {
	campaign, err := c.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrNotFound
	}
	if !campaign.Status.CanCancel() {
		return nil, invalidState(campaign.Status,
			models.CampaignDraft, models.CampaignSending, models.CampaignPaused)
	}

	skipped, err := c.jobs.SkipRemaining(campaignID)
	if err != nil {
		return nil, err
	}
	if err := c.campaigns.SetStatus(campaignID, models.CampaignCancelled); err != nil {
		return nil, err
	}

	metrics.IncCampaignsCancelled()
	c.logger.Info("campaign cancelled", "campaign_id", campaignID, "skipped", skipped)

	return &CancelResult{Cancelled: true, Skipped: skipped}, nil
}

// Status returns the campaign and its job counts without mutating anything.
func (c *Controller) Status(ctx context.Context, campaignID string) (*StatusResult, error) {
	campaign, err := c.campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrNotFound
	}

	counts, err := c.jobs.CountByStatus(campaignID)
	if err != nil {
		return nil, err
	}

	return &StatusResult{Campaign: campaign, Jobs: counts}, nil
}

func (c *Controller) publishJobGauges(campaignID string) {
	counts, err := c.jobs.CountByStatus(campaignID)
	if err != nil {
		return
	}
	metrics.SetJobGauges(counts.Pending, counts.InProgress, counts.Sent, counts.Failed, counts.Skipped)
}
