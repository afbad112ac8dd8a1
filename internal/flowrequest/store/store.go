// Package store is the persistence port for flow requests, channels,
// confirmation codes and consent confirmations, with in-memory and
// PostgreSQL adapters.
//
// Error contract:
//   - sentinel.ErrNotFound when the requested row does not exist
//   - sentinel.ErrConflict when a uniqueness rule is hit
//   - sentinel.ErrInvalidState when a conditional update finds another status
//   - sentinel.ErrAlreadyUsed / sentinel.ErrExpired from ConsumeCode
//   - wrapped errors for infrastructure failures
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"flowgate/internal/flowrequest/models"
)

// Page selects a window of a listing. Limit 0 means no limit.
type Page struct {
	Offset int
	Limit  int
}

// FlowRequestFilter narrows ListFlowRequests. Empty fields match everything.
type FlowRequestFilter struct {
	DestinationID string
}

// ChannelFilter narrows ListChannels. Empty fields match everything.
type ChannelFilter struct {
	DestinationID string
	FlowRequestID uuid.UUID
	Status        models.ChannelStatus
}

// Store is the set of persistence operations available inside and outside
// a transaction.
type Store interface {
	CreateFlowRequest(ctx context.Context, fr *models.FlowRequest) error
	FindFlowRequest(ctx context.Context, id uuid.UUID) (*models.FlowRequest, error)
	// FindFlowRequestForUpdate serializes writers of one flow request inside a transaction.
	FindFlowRequestForUpdate(ctx context.Context, id uuid.UUID) (*models.FlowRequest, error)
	FindFlowRequestByProcessID(ctx context.Context, processID string) (*models.FlowRequest, error)
	ListFlowRequests(ctx context.Context, filter FlowRequestFilter, page Page) ([]*models.FlowRequest, int, error)
	// UpdateFlowRequest persists fr only if the stored status still equals expected.
	UpdateFlowRequest(ctx context.Context, fr *models.FlowRequest, expected models.Status) error
	// DeleteFlowRequest removes the flow request with its channels, codes and confirmations.
	DeleteFlowRequest(ctx context.Context, id uuid.UUID) error

	// EnsureProfile stores p unless its code exists; an existing code with a
	// different payload yields ErrConflict.
	EnsureProfile(ctx context.Context, p *models.Profile) error

	CreateChannels(ctx context.Context, channels []*models.Channel) error
	FindChannel(ctx context.Context, id string) (*models.Channel, error)
	ListChannels(ctx context.Context, filter ChannelFilter, page Page) ([]*models.Channel, int, error)
	// UpdateChannel persists c only if the stored status still equals expected.
	UpdateChannel(ctx context.Context, c *models.Channel, expected models.ChannelStatus) error

	CreateCode(ctx context.Context, code *models.ConfirmationCode) error
	// InvalidateCodes marks every unconsumed code of the flow request consumed.
	InvalidateCodes(ctx context.Context, flowRequestID uuid.UUID) error
	// ConsumeCode marks an unconsumed, unexpired code consumed and returns it.
	ConsumeCode(ctx context.Context, code string, now time.Time) (*models.ConfirmationCode, error)

	CreateConfirmations(ctx context.Context, confirmations []*models.ConsentConfirmation) error
	FindConfirmation(ctx context.Context, confirmID string) (*models.ConsentConfirmation, error)
	ListConfirmationsByBatch(ctx context.Context, batchID string) ([]*models.ConsentConfirmation, error)
	// FindOpenConfirmation returns the newest unresolved confirmation of the channel.
	FindOpenConfirmation(ctx context.Context, channelID string) (*models.ConsentConfirmation, error)
	// MoveConfirmation stores a new batch and callback for an unresolved
	// confirmation; a resolved row yields ErrAlreadyUsed.
	MoveConfirmation(ctx context.Context, c *models.ConsentConfirmation) error
	// ResolveConfirmation records the outcome once; a resolved row yields ErrAlreadyUsed.
	ResolveConfirmation(ctx context.Context, c *models.ConsentConfirmation) error
}

// Tx runs fn against a Store in one atomic unit. The ctx passed to fn carries
// the transaction so other stores sharing the database join it.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	// View runs fn without a transaction or lock. fn must only read.
	View(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
