package clients

import (
	"context"
	"errors"
	"time"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/models"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/sentinel"
)

// Service authenticates clients and looks up destinations.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Authenticate checks client credentials. Unknown clients and wrong secrets
// are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, clientID, secret string) (*RESTClient, error) {
	c, err := s.store.FindClient(ctx, clientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeInvalidClient, "invalid client credentials")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load client")
	}
	if !c.VerifySecret(secret) {
		return nil, dErrors.New(dErrors.CodeInvalidClient, "invalid client credentials")
	}
	return c, nil
}

// Destination returns the destination with id.
func (s *Service) Destination(ctx context.Context, id string) (*models.Destination, error) {
	d, err := s.store.FindDestination(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "destination not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load destination")
	}
	return d, nil
}

// RegisterDestination creates or updates a destination.
func (s *Service) RegisterDestination(ctx context.Context, d *models.Destination) error {
	if d.ID == "" || d.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "destination id and name are required")
	}
	return s.store.SaveDestination(ctx, d)
}

// RegisterClient hashes secret and stores the client.
func (s *Service) RegisterClient(ctx context.Context, c *RESTClient, secret string) error {
	if c.ClientID == "" || secret == "" {
		return dErrors.New(dErrors.CodeValidation, "client id and secret are required")
	}
	for _, sc := range c.Scopes {
		if !knownScope(sc) {
			return dErrors.New(dErrors.CodeValidation, "unknown scope "+string(sc))
		}
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return err
	}
	c.SecretHash = hash
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if err := s.store.SaveClient(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeValidation, "unknown destination")
		}
		return err
	}
	return nil
}

func knownScope(sc access.Scope) bool {
	for _, known := range AllScopes() {
		if known == sc {
			return true
		}
	}
	return false
}
