package announcer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/metrics"
)

var tracer = otel.Tracer("flowgate/announcer")

// Announcer writes activation announcements to the outbox and publishes them.
type Announcer struct {
	outbox    OutboxStore
	publisher Publisher
	topic     string
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Announcer)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Announcer) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Announcer) {
		a.metrics = m
	}
}

// WithPublishTimeout bounds each broker round trip.
func WithPublishTimeout(d time.Duration) Option {
	return func(a *Announcer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Announcer) {
		a.now = now
	}
}

// New creates an Announcer publishing to the control topic.
func New(outbox OutboxStore, publisher Publisher, topic string, opts ...Option) *Announcer {
	a := &Announcer{
		outbox:    outbox,
		publisher: publisher,
		topic:     topic,
		timeout:   5 * time.Second,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Announce records one announcement per channel. Call it inside the
// transaction that activates the channels so both commit together.
func (a *Announcer) Announce(ctx context.Context, dest models.Destination, fr *models.FlowRequest, channels []*models.Channel) ([]uuid.UUID, error) {
	now := a.now()
	entries := make([]*Entry, 0, len(channels))
	ids := make([]uuid.UUID, 0, len(channels))
	for _, ch := range channels {
		entry, err := newEntry(a.topic, NewPayload(dest, fr, ch), now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		ids = append(ids, entry.ID)
	}
	if err := a.outbox.Append(ctx, entries...); err != nil {
		return nil, err
	}
	return ids, nil
}

// Flush publishes the given entries that are still pending. Every entry is
// attempted; the joined error reports the ones that failed and remain in
// the outbox for the worker.
func (a *Announcer) Flush(ctx context.Context, ids []uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "announcer.flush")
	defer span.End()
	span.SetAttributes(attribute.Int("outbox.entries", len(ids)))

	entries, err := a.outbox.Find(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load outbox entries")
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := a.publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

func (a *Announcer) publish(ctx context.Context, e *Entry) error {
	pubCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.publisher.Publish(pubCtx, e.Topic, e.Key, e.Payload); err != nil {
		if recErr := a.outbox.RecordAttempt(ctx, e.ID); recErr != nil {
			a.logger.ErrorContext(ctx, "failed to record outbox attempt", "entry_id", e.ID, "error", recErr)
		}
		a.logger.WarnContext(ctx, "announcement publish failed",
			"entry_id", e.ID,
			"channel_id", e.AggregateID,
			"attempts", e.Attempts+1,
			"error", err,
		)
		if a.metrics != nil {
			a.metrics.AnnouncementsFailed.Inc()
		}
		return err
	}
	if err := a.outbox.MarkPublished(ctx, e.ID, a.now()); err != nil {
		// Published but not marked: the worker will send it again.
		a.logger.ErrorContext(ctx, "failed to mark outbox entry published", "entry_id", e.ID, "error", err)
	}
	if a.metrics != nil {
		a.metrics.AnnouncementsSent.Inc()
	}
	a.logger.InfoContext(ctx, "channel activation announced", "channel_id", e.AggregateID, "topic", e.Topic)
	return nil
}
