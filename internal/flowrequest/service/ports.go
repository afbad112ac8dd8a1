package service

import (
	"context"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/store"
)

// SourceRegistry resolves the sources a flow request may draw from.
type SourceRegistry interface {
	ListSources(ctx context.Context) ([]models.Source, error)
	GetSource(ctx context.Context, sourceID string) (*models.Source, error)
}

// Ceremony starts the consent round trip for channels awaiting consent.
// It runs on the store of the caller's transaction.
type Ceremony interface {
	Begin(ctx context.Context, s store.Store, fr *models.FlowRequest, channels []*models.Channel, callbackURL string) (string, error)
}
