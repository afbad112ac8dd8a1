package announcer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStore persists announcements until they are published. Append joins
// the transaction carried by ctx, if any.
type OutboxStore interface {
	Append(ctx context.Context, entries ...*Entry) error
	// Find returns the unpublished entries among ids.
	Find(ctx context.Context, ids []uuid.UUID) ([]*Entry, error)
	// Pending returns up to limit unpublished entries created before cutoff,
	// oldest first.
	Pending(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error)
	CountPending(ctx context.Context) (int, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordAttempt(ctx context.Context, id uuid.UUID) error
}
