// Package ceremony runs the consent round trip: it registers consents for
// the channels of a flow request, sends the subject to the authority's
// confirmation page and resolves the outcome the authority reports back.
package ceremony

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"flowgate/internal/consentauthority"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/store"
	"flowgate/internal/platform/metrics"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/sentinel"
	"flowgate/pkg/requestcontext"
)

// ConsentsConfirmedPath is where the authority sends the subject back.
const ConsentsConfirmedPath = "/v1/flow_requests/consents_confirmed/"

var tracer = otel.Tracer("flowgate/ceremony")

type Coordinator struct {
	tx           store.Tx
	authority    ConsentAuthority
	announcer    Announcer
	destinations Destinations
	publicURL    string
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a Coordinator. publicURL is this service's externally
// reachable base URL, without trailing slash.
func New(tx store.Tx, authority ConsentAuthority, announcer Announcer, destinations Destinations, publicURL string, opts ...Option) *Coordinator {
	c := &Coordinator{
		tx:           tx,
		authority:    authority,
		announcer:    announcer,
		destinations: destinations,
		publicURL:    publicURL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PendingConsent is a consent the authority registered for a channel.
type PendingConsent struct {
	Channel      *models.Channel
	Confirmation *models.ConsentConfirmation
}

// AbandonedConsentsError is returned by Begin when it fails after the
// authority already registered some consents. Those consents outlive the
// caller's rollback; the caller records Consents outside its transaction
// so that a retry picks them up again.
type AbandonedConsentsError struct {
	Consents []PendingConsent
	Err      error
}

func (e *AbandonedConsentsError) Error() string { return e.Err.Error() }

func (e *AbandonedConsentsError) Unwrap() error { return e.Err }

// Begin registers one consent per channel still awaiting consent and records
// the resulting confirmations under a fresh batch. It runs on the caller's
// store; any error must abort the caller's transaction.
//
// When the authority already holds a consent for a channel, the channel's
// open confirmation from an earlier attempt joins the new batch. Channels
// without one are skipped.
func (c *Coordinator) Begin(ctx context.Context, s store.Store, fr *models.FlowRequest, channels []*models.Channel, callbackURL string) (string, error) {
	ctx, span := tracer.Start(ctx, "ceremony.begin")
	defer span.End()
	span.SetAttributes(attribute.String("flow_request.process_id", fr.ProcessID))

	page, err := url.Parse(c.authority.ConfirmationPage())
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "invalid confirmation page")
	}

	now := requestcontext.Now(ctx)
	batchID := uuid.NewString()
	var (
		confirmations []*models.ConsentConfirmation
		registered    []PendingConsent
	)
	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin")
		if len(registered) == 0 {
			return "", err
		}
		return "", &AbandonedConsentsError{Consents: registered, Err: err}
	}

	for _, ch := range channels {
		if ch.Status != models.ChannelConsentRequested {
			continue
		}
		consent, err := c.authority.CreateConsent(ctx, consentauthority.ConsentRequest{
			ChannelID:      ch.ID,
			SourceID:       ch.SourceID,
			DestinationID:  fr.DestinationID,
			PersonID:       fr.SubjectID,
			Profile:        fr.Profile,
			StartValidity:  fr.StartValidity,
			ExpireValidity: fr.ExpireValidity,
		})
		if errors.Is(err, consentauthority.ErrConsentExists) {
			open, err := reuseOpenConfirmation(ctx, s, ch.ID, batchID, callbackURL)
			if err != nil {
				return fail(err)
			}
			c.logger.InfoContext(ctx, "consent already registered",
				"request_id", requestcontext.RequestID(ctx),
				"channel_id", ch.ID,
				"reused", open != nil,
			)
			if open != nil {
				confirmations = append(confirmations, open)
			}
			continue
		}
		if err != nil {
			return fail(dErrors.Wrap(err, dErrors.CodeGateway, "create consent"))
		}
		cc := &models.ConsentConfirmation{
			ConfirmID:     consent.ConfirmID,
			ConsentID:     consent.ConsentID,
			ChannelID:     ch.ID,
			FlowRequestID: fr.ID,
			BatchID:       batchID,
			CallbackURL:   callbackURL,
			CreatedAt:     now,
		}
		confirmations = append(confirmations, cc)
		registered = append(registered, PendingConsent{Channel: ch, Confirmation: cc})
	}
	if len(confirmations) == 0 {
		span.SetStatus(codes.Error, "nothing to confirm")
		return "", dErrors.New(dErrors.CodeConsentsAlreadyCreated, "every consent already exists")
	}

	fresh := make([]*models.ConsentConfirmation, 0, len(registered))
	for _, p := range registered {
		fresh = append(fresh, p.Confirmation)
	}
	if err := s.CreateConfirmations(ctx, fresh); err != nil {
		return fail(dErrors.Wrap(err, dErrors.CodeInternal, "store confirmations"))
	}
	fr.BatchID = batchID
	fr.UpdatedAt = now
	if err := s.UpdateFlowRequest(ctx, fr, fr.Status); err != nil {
		return fail(dErrors.Wrap(err, dErrors.CodeInternal, "store batch"))
	}

	q := page.Query()
	for _, cc := range confirmations {
		q.Add("confirm_id", cc.ConfirmID)
	}
	q.Set("batch_id", batchID)
	q.Set("callback_url", c.publicURL+ConsentsConfirmedPath)
	page.RawQuery = q.Encode()

	span.SetAttributes(attribute.Int("ceremony.consents", len(confirmations)))
	c.logger.InfoContext(ctx, "consent ceremony started",
		"request_id", requestcontext.RequestID(ctx),
		"process_id", fr.ProcessID,
		"batch_id", batchID,
		"consents", len(confirmations),
	)
	return page.String(), nil
}

// reuseOpenConfirmation moves the channel's unresolved confirmation into
// batchID. It returns nil when the channel has none.
func reuseOpenConfirmation(ctx context.Context, s store.Store, channelID, batchID, callbackURL string) (*models.ConsentConfirmation, error) {
	cc, err := s.FindOpenConfirmation(ctx, channelID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load open confirmation")
	}
	cc.BatchID = batchID
	cc.CallbackURL = callbackURL
	if err := s.MoveConfirmation(ctx, cc); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "move confirmation")
	}
	return cc, nil
}
