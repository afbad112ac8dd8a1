package ceremony

import (
	"context"

	"github.com/google/uuid"

	"flowgate/internal/consentauthority"
	"flowgate/internal/flowrequest/models"
)

// ConsentAuthority registers consents and hosts the page where the subject
// confirms them.
type ConsentAuthority interface {
	CreateConsent(ctx context.Context, req consentauthority.ConsentRequest) (*consentauthority.Consent, error)
	ConfirmationPage() string
}

// Announcer records activation announcements inside a transaction and
// publishes them once it committed.
type Announcer interface {
	Announce(ctx context.Context, dest models.Destination, fr *models.FlowRequest, channels []*models.Channel) ([]uuid.UUID, error)
	Flush(ctx context.Context, ids []uuid.UUID) error
}

// Destinations resolves the destination an announcement is addressed to.
type Destinations interface {
	Destination(ctx context.Context, id string) (*models.Destination, error)
}
