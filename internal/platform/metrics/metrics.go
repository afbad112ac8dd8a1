package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	HTTPLatency          *prometheus.HistogramVec
	FlowRequestsCreated  prometheus.Counter
	Confirmations        *prometheus.CounterVec
	ConsentResolutions   *prometheus.CounterVec
	ChannelsActivated    prometheus.Counter
	AnnouncementsSent    prometheus.Counter
	AnnouncementsFailed  prometheus.Counter
	OutboxPending        prometheus.Gauge
	MessagesRead         *prometheus.CounterVec
	SourceCatalogLookups *prometheus.CounterVec
	RateLimited          prometheus.Counter
}

// New registers collectors on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		FlowRequestsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "flowgate_flow_requests_created_total",
			Help: "Flow requests accepted in PENDING state",
		}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgate_confirmations_total",
			Help: "Confirmation attempts by action and outcome",
		}, []string{"action", "outcome"}),
		ConsentResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgate_consent_resolutions_total",
			Help: "Consent confirmations resolved by outcome",
		}, []string{"outcome"}),
		ChannelsActivated: f.NewCounter(prometheus.CounterOpts{
			Name: "flowgate_channels_activated_total",
			Help: "Channels moved to ACTIVE",
		}),
		AnnouncementsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "flowgate_announcements_published_total",
			Help: "Activation announcements published to the control topic",
		}),
		AnnouncementsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "flowgate_announcements_failed_total",
			Help: "Activation announcement publish attempts that failed",
		}),
		OutboxPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "flowgate_outbox_pending",
			Help: "Unpublished outbox entries seen by the last worker pass",
		}),
		MessagesRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgate_messages_read_total",
			Help: "Message log reads by operation and outcome",
		}, []string{"operation", "outcome"}),
		SourceCatalogLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgate_source_catalog_lookups_total",
			Help: "Source catalog cache lookups by result",
		}, []string{"result"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "flowgate_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
	}
}
