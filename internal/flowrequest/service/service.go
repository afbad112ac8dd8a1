// Package service is the flow request and channel state machine.
//
// Every mutation runs in one store transaction: precondition checks, the
// transition, code consumption and consent bookkeeping commit or roll back
// together.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/codes"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/store"
	"flowgate/internal/platform/metrics"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/sentinel"
	"flowgate/pkg/requestcontext"
)

const (
	processIDLength   = 32
	processIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	sourceLookups     = 4
)

type Service struct {
	tx       store.Tx
	codes    *codes.Registry
	sources  SourceRegistry
	ceremony Ceremony
	logger   *slog.Logger
	metrics  *metrics.Metrics
	maxLimit int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxPageSize caps listing pages.
func WithMaxPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

func New(tx store.Tx, codeRegistry *codes.Registry, sources SourceRegistry, ceremony Ceremony, opts ...Option) *Service {
	s := &Service{
		tx:       tx,
		codes:    codeRegistry,
		sources:  sources,
		ceremony: ceremony,
		logger:   slog.Default(),
		maxLimit: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is a validated-for-shape create request. Status and process
// id sent by callers are not part of it: both are server controlled.
type CreateInput struct {
	FlowID         string
	Profile        *models.Profile
	StartValidity  *time.Time
	ExpireValidity *time.Time
	SourceIDs      []string
}

// Create registers a PENDING flow request with one channel per resolved
// source and issues the add code the subject will confirm with.
func (s *Service) Create(ctx context.Context, id *access.Identity, in CreateInput) (*models.FlowRequest, *models.ConfirmationCode, error) {
	if err := authorize(id, access.Operation{Resource: access.ResourceFlowRequest, Action: access.ActionWrite}); err != nil {
		return nil, nil, err
	}
	if id.DestinationID == "" {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "client is not bound to a destination")
	}
	if in.Profile != nil && (in.Profile.Code == "" || in.Profile.Version == "" || in.Profile.Payload == "") {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "profile requires code, version and payload")
	}

	processID, err := newProcessID()
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate process id")
	}
	now := requestcontext.Now(ctx)
	// Validate the request before touching the registry.
	fr, err := models.NewFlowRequest(uuid.New(), in.FlowID, processID, id.DestinationID,
		in.Profile, in.StartValidity, in.ExpireValidity, nil, now)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid flow request")
	}

	sources, err := s.resolveSources(ctx, in.SourceIDs)
	if err != nil {
		return nil, nil, err
	}
	fr.Sources = sources

	var code *models.ConfirmationCode
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		if fr.Profile != nil {
			if err := st.EnsureProfile(ctx, fr.Profile); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return dErrors.New(dErrors.CodeValidation, "profile code already used with a different payload")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "store profile")
			}
		}
		if err := st.CreateFlowRequest(ctx, fr); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeValidation, "flow_id already used by this destination")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "store flow request")
		}
		if _, err := s.ensureChannels(ctx, st, fr, now); err != nil {
			return err
		}
		code, err = s.codes.Issue(ctx, st, fr.ID, models.ActionAdd)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.FlowRequestsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "flow request created",
		"request_id", requestcontext.RequestID(ctx),
		"process_id", fr.ProcessID,
		"destination_id", fr.DestinationID,
		"sources", len(fr.Sources),
	)
	return fr, code, nil
}

// resolveSources returns the whole catalog when ids is empty, otherwise the
// deduplicated ids after checking each against the registry.
func (s *Service) resolveSources(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		catalog, err := s.sources.ListSources(ctx)
		if err != nil {
			return nil, gatewayError(err, "list sources")
		}
		out := make([]string, 0, len(catalog))
		for _, src := range catalog {
			out = append(out, src.SourceID)
		}
		return out, nil
	}

	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "empty source id")
		}
		if !slices.Contains(unique, id) {
			unique = append(unique, id)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sourceLookups)
	for _, id := range unique {
		g.Go(func() error {
			if _, err := s.sources.GetSource(gctx, id); err != nil {
				if dErrors.HasCode(err, dErrors.CodeNotFound) {
					return dErrors.New(dErrors.CodeValidation, "unknown source "+id)
				}
				return gatewayError(err, "get source")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return unique, nil
}

// ensureChannels creates the missing CONSENT_REQUESTED channel of every
// source and returns all channels of the flow request.
func (s *Service) ensureChannels(ctx context.Context, st store.Store, fr *models.FlowRequest, now time.Time) ([]*models.Channel, error) {
	existing, _, err := st.ListChannels(ctx, store.ChannelFilter{FlowRequestID: fr.ID}, store.Page{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list channels")
	}
	have := make(map[string]bool, len(existing))
	for _, ch := range existing {
		have[ch.SourceID] = true
	}
	var missing []*models.Channel
	for _, src := range fr.Sources {
		if have[src] {
			continue
		}
		missing = append(missing, &models.Channel{
			ID:            uuid.NewString(),
			FlowRequestID: fr.ID,
			SourceID:      src,
			DestinationID: fr.DestinationID,
			Status:        models.ChannelConsentRequested,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if len(missing) > 0 {
		if err := st.CreateChannels(ctx, missing); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create channels")
		}
	}
	return append(existing, missing...), nil
}

func newProcessID() (string, error) {
	buf := make([]byte, processIDLength)
	limit := big.NewInt(int64(len(processIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = processIDAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// gatewayError hides registry failure details behind internal_gateway_error.
func gatewayError(err error, op string) error {
	return dErrors.Wrap(err, dErrors.CodeGateway, op)
}

// authorize turns a gate decision into an error. Denials caused only by
// ownership read as not_found.
func authorize(id *access.Identity, op access.Operation) error {
	decision := access.Evaluate(id, op)
	switch {
	case decision.Allowed:
		return nil
	case decision.OwnerMismatch:
		return dErrors.New(dErrors.CodeNotFound, "not found")
	case decision.Reason == access.ReasonNotAuthenticated:
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	default:
		return dErrors.New(dErrors.CodeForbidden, "operation not permitted")
	}
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "load "+what)
}
