// Package messages serves windowed reads over a destination's message log.
//
// Each destination owns one partition: partition 0 of the topic named after
// the destination id. Offsets are message ids.
package messages

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/config"
	"flowgate/internal/platform/metrics"
	dErrors "flowgate/pkg/domain-errors"
)

var tracer = otel.Tracer("flowgate/messages")

// PartitionLog is read access to the destination partitions.
type PartitionLog interface {
	// Offsets returns the first retained offset and the next offset to be
	// written. An empty partition has first == end.
	Offsets(ctx context.Context, topic string) (first, end int64, err error)
	// Fetch returns up to count consecutive messages starting at from.
	Fetch(ctx context.Context, topic string, from int64, count int) ([]models.Message, error)
}

// Bounds is the retained offset range [FirstID, LastID]. LastID < FirstID
// when the partition is empty.
type Bounds struct {
	FirstID int64 `json:"first_id"`
	LastID  int64 `json:"last_id"`
}

// OutOfRangeError is a not_found carrying the partition bounds.
type OutOfRangeError struct {
	Bounds Bounds
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("message out of range [%d, %d]", e.Bounds.FirstID, e.Bounds.LastID)
}

func (e *OutOfRangeError) Unwrap() error {
	return dErrors.New(dErrors.CodeNotFound, "message not found")
}

// Window is one page of a range read.
type Window struct {
	Messages   []models.Message
	TotalCount int64
	Skipped    int64
}

// Info summarizes a partition.
type Info struct {
	StartID int64 `json:"start_id"`
	LastID  int64 `json:"last_id"`
	Count   int64 `json:"count"`
}

// RangeQuery holds the optional start and limit of GetRange; nil means
// the default.
type RangeQuery struct {
	Start *int64
	Limit *int64
}

type Reader struct {
	log          PartitionLog
	defaultLimit int64
	maxLimit     int64
	metrics      *metrics.Metrics
}

func New(log PartitionLog, cfg config.MessagesConfig, m *metrics.Metrics) *Reader {
	r := &Reader{log: log, defaultLimit: int64(cfg.DefaultLimit), maxLimit: int64(cfg.MaxLimit), metrics: m}
	if r.defaultLimit <= 0 {
		r.defaultLimit = 5
	}
	if r.maxLimit <= 0 {
		r.maxLimit = 10
	}
	return r
}

func (r *Reader) bounds(ctx context.Context, topic string) (Bounds, error) {
	first, end, err := r.log.Offsets(ctx, topic)
	if err != nil {
		return Bounds{}, dErrors.Wrap(err, dErrors.CodeGateway, "read partition offsets")
	}
	return Bounds{FirstID: first, LastID: end - 1}, nil
}

// GetOne returns the message at offset id.
func (r *Reader) GetOne(ctx context.Context, destinationID string, id int64) (msg *models.Message, err error) {
	ctx, span := r.start(ctx, "messages.get_one", destinationID)
	defer func() { r.finish(span, "get_one", err) }()

	b, err := r.bounds(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	if id < b.FirstID || id > b.LastID {
		return nil, &OutOfRangeError{Bounds: b}
	}
	msgs, err := r.log.Fetch(ctx, destinationID, id, 1)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeGateway, "fetch message")
	}
	if len(msgs) == 0 || msgs[0].ID != id {
		// compacted or deleted between the offset lookup and the fetch
		return nil, &OutOfRangeError{Bounds: b}
	}
	return &msgs[0], nil
}

// GetRange returns offsets [max(S,F), min(S+L-1,Lst)] for start S and
// limit L over a partition holding [F, Lst].
func (r *Reader) GetRange(ctx context.Context, destinationID string, q RangeQuery) (w *Window, err error) {
	ctx, span := r.start(ctx, "messages.get_range", destinationID)
	defer func() { r.finish(span, "get_range", err) }()

	limit := r.defaultLimit
	if q.Limit != nil {
		if *q.Limit < 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "limit must not be negative")
		}
		limit = min(*q.Limit, r.maxLimit)
	}
	if q.Start != nil && *q.Start < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "start must not be negative")
	}

	b, err := r.bounds(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	start := b.FirstID
	if q.Start != nil {
		start = *q.Start
	}
	upper := start + limit - 1
	if start > b.LastID || upper < b.FirstID || limit == 0 {
		return nil, &OutOfRangeError{Bounds: b}
	}

	from := max(start, b.FirstID)
	to := min(upper, b.LastID)
	msgs, err := r.log.Fetch(ctx, destinationID, from, int(to-from+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeGateway, "fetch messages")
	}
	span.SetAttributes(attribute.Int64("messages.from", from), attribute.Int64("messages.to", to))
	return &Window{
		Messages:   msgs,
		TotalCount: b.LastID - b.FirstID + 1,
		Skipped:    max(0, b.FirstID-start),
	}, nil
}

// Info reports the retained range of the partition.
func (r *Reader) Info(ctx context.Context, destinationID string) (info *Info, err error) {
	ctx, span := r.start(ctx, "messages.info", destinationID)
	defer func() { r.finish(span, "info", err) }()

	b, err := r.bounds(ctx, destinationID)
	if err != nil {
		return nil, err
	}
	return &Info{StartID: b.FirstID, LastID: b.LastID, Count: b.LastID - b.FirstID + 1}, nil
}

func (r *Reader) start(ctx context.Context, name, destinationID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("destination.id", destinationID))
	return ctx, span
}

func (r *Reader) finish(span trace.Span, op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		outcome = "not_found"
	case dErrors.HasCode(err, dErrors.CodeValidation):
		outcome = "invalid"
	default:
		outcome = "error"
		span.RecordError(err)
	}
	if r.metrics != nil {
		r.metrics.MessagesRead.WithLabelValues(op, outcome).Inc()
	}
	span.End()
}
