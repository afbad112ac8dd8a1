// Package codes issues and redeems the single-use confirmation codes that
// authorize one add or delete transition of a flow request.
package codes

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/store"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/sentinel"
	"flowgate/pkg/requestcontext"
)

const codeBytes = 32

// Registry operates on the store handed in by the caller, so issue and
// consume take part in the caller's transaction.
type Registry struct {
	ttl      time.Duration
	generate func() (string, error)
}

type Option func(*Registry)

// WithGenerator replaces the random code source, for tests.
func WithGenerator(fn func() (string, error)) Option {
	return func(r *Registry) {
		r.generate = fn
	}
}

func New(ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{ttl: ttl, generate: randomCode}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func randomCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate confirmation code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue invalidates any open code of the flow request and stores a fresh one.
func (r *Registry) Issue(ctx context.Context, s store.Store, flowRequestID uuid.UUID, action models.Action) (*models.ConfirmationCode, error) {
	if err := s.InvalidateCodes(ctx, flowRequestID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate confirmation codes")
	}
	value, err := r.generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate confirmation code")
	}
	now := requestcontext.Now(ctx)
	code := &models.ConfirmationCode{
		Code:          value,
		FlowRequestID: flowRequestID,
		Action:        action,
		CreatedAt:     now,
		ExpiresAt:     now.Add(r.ttl),
	}
	if err := s.CreateCode(ctx, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store confirmation code")
	}
	return code, nil
}

// ValidateAndConsume marks the code consumed and returns it. Unknown,
// expired and already consumed codes are all invalid_confirmation_code.
func (r *Registry) ValidateAndConsume(ctx context.Context, s store.Store, value string) (*models.ConfirmationCode, error) {
	code, err := s.ConsumeCode(ctx, value, requestcontext.Now(ctx))
	switch {
	case err == nil:
		return code, nil
	case errors.Is(err, sentinel.ErrNotFound),
		errors.Is(err, sentinel.ErrAlreadyUsed),
		errors.Is(err, sentinel.ErrExpired):
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidConfirmationCode, "invalid confirmation code")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume confirmation code")
	}
}
