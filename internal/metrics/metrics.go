// Package metrics exposes Prometheus instrumentation for the campaign
// dispatcher: delivery counters, batch throughput, job-state gauges and
// HTTP API metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the dispatcher
type Metrics struct {
	// Delivery counters
	MessagesSentTotal   *prometheus.CounterVec
	MessagesFailedTotal *prometheus.CounterVec

	// Batch processing
	BatchesDispatchedTotal prometheus.Counter
	BatchDurationSeconds   prometheus.Histogram

	// Campaign lifecycle
	CampaignsPreparedTotal  prometheus.Counter
	CampaignsCompletedTotal prometheus.Counter
	CampaignsCancelledTotal prometheus.Counter

	// Job queue gauges, refreshed on each dispatch
	JobsByState *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_messages_sent_total",
				Help: "Total number of successfully relayed campaign messages",
			},
			[]string{"campaign"},
		),
		MessagesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_messages_failed_total",
				Help: "Total number of failed campaign messages, by failure kind",
			},
			[]string{"campaign", "kind"},
		),

		BatchesDispatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaigner_batches_dispatched_total",
				Help: "Total number of dispatched batches",
			},
		),
		BatchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "campaigner_batch_duration_seconds",
				Help:    "Wall time spent sending one batch",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		CampaignsPreparedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaigner_campaigns_prepared_total",
				Help: "Total number of successful prepare operations",
			},
		),
		CampaignsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaigner_campaigns_completed_total",
				Help: "Total number of campaigns reaching COMPLETED",
			},
		),
		CampaignsCancelledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaigner_campaigns_cancelled_total",
				Help: "Total number of cancelled campaigns",
			},
		),

		JobsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campaigner_jobs",
				Help: "Job counts of the most recently dispatched campaign, by state",
			},
			[]string{"state"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaigner_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_ratelimit_exceeded_total",
				Help: "Total number of sends denied by the recipient-domain rate limiter",
			},
			[]string{"domain"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.BatchesDispatchedTotal,
		m.BatchDurationSeconds,
		m.CampaignsPreparedTotal,
		m.CampaignsCompletedTotal,
		m.CampaignsCancelledTotal,
		m.JobsByState,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.RateLimitExceededTotal,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance, or nil when unset
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncMessagesSent increments the sent message counter
func IncMessagesSent(campaign string) {
	if m := Global(); m != nil {
		m.MessagesSentTotal.WithLabelValues(campaign).Inc()
	}
}

// IncMessagesFailed increments the failed message counter. Temporary
// failures (connection trouble, 4xx responses) are labelled apart from
// permanent rejections so alerting can tell smarthost outages from bad
// recipient lists.
func IncMessagesFailed(campaign string, temporary bool) {
	kind := "permanent"
	if temporary {
		kind = "temporary"
	}
	if m := Global(); m != nil {
		m.MessagesFailedTotal.WithLabelValues(campaign, kind).Inc()
	}
}

// IncRateLimitExceeded increments the rate limit denial counter
func IncRateLimitExceeded(domain string) {
	if m := Global(); m != nil {
		m.RateLimitExceededTotal.WithLabelValues(domain).Inc()
	}
}

// ObserveBatch records one completed batch dispatch
func ObserveBatch(seconds float64) {
	if m := Global(); m != nil {
		m.BatchesDispatchedTotal.Inc()
		m.BatchDurationSeconds.Observe(seconds)
	}
}

// SetJobGauges publishes job counts by state
func SetJobGauges(pending, inProgress, sent, failed, skipped int) {
	m := Global()
	if m == nil {
		return
	}
	m.JobsByState.WithLabelValues("pending").Set(float64(pending))
	m.JobsByState.WithLabelValues("in_progress").Set(float64(inProgress))
	m.JobsByState.WithLabelValues("sent").Set(float64(sent))
	m.JobsByState.WithLabelValues("failed").Set(float64(failed))
	m.JobsByState.WithLabelValues("skipped").Set(float64(skipped))
}

// IncCampaignsPrepared increments the prepare counter
func IncCampaignsPrepared() {
	if m := Global(); m != nil {
		m.CampaignsPreparedTotal.Inc()
	}
}

// IncCampaignsCompleted increments the completion counter
func IncCampaignsCompleted() {
	if m := Global(); m != nil {
		m.CampaignsCompletedTotal.Inc()
	}
}

// IncCampaignsCancelled increments the cancellation counter
func IncCampaignsCancelled() {
	if m := Global(); m != nil {
		m.CampaignsCancelledTotal.Inc()
	}
}
