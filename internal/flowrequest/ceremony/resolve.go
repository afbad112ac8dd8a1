package ceremony

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/store"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/sentinel"
	strs "flowgate/pkg/platform/strings"
	"flowgate/pkg/requestcontext"
)

// Outcome is the result of one resolution callback.
type Outcome struct {
	ProcessID   string
	Success     bool
	Error       dErrors.Code
	Activated   int
	RedirectURL string
}

// Resolve applies the authority's verdict to the given confirmations.
// Already resolved confirmations are skipped, so repeating a callback
// changes nothing and announces nothing twice. The reported outcome is the
// recorded one: a repeated callback cannot flip it.
func (c *Coordinator) Resolve(ctx context.Context, subjectID string, confirmIDs []string, success bool) (*Outcome, error) {
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeMissingPersonID, "subject has no person id")
	}
	confirmIDs = strs.DedupeAndTrim(confirmIDs)
	if len(confirmIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeMissingParam, "consent_confirm_id is required")
	}

	ctx, span := tracer.Start(ctx, "ceremony.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("ceremony.confirmations", len(confirmIDs)),
		attribute.Bool("ceremony.success", success),
	)

	var (
		out         = &Outcome{}
		callbackURL string
		pending     []uuid.UUID
	)
	err := c.tx.RunInTx(ctx, func(ctx context.Context, s store.Store) error {
		confirmations, err := loadConfirmations(ctx, s, confirmIDs)
		if err != nil {
			return err
		}
		callbackURL = confirmations[0].CallbackURL

		fr, err := s.FindFlowRequestForUpdate(ctx, confirmations[0].FlowRequestID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeValidation, "unknown confirmation")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load flow request")
		}
		out.ProcessID = fr.ProcessID
		previous := fr.Status
		subject := fr.SubjectID
		now := requestcontext.Now(ctx)

		changed := false
		recorded := true
		for _, cc := range confirmations {
			if !cc.Resolve(success, now) {
				recorded = recorded && cc.Success
				continue
			}
			if err := s.ResolveConfirmation(ctx, cc); err != nil {
				if !errors.Is(err, sentinel.ErrAlreadyUsed) {
					return dErrors.Wrap(err, dErrors.CodeInternal, "resolve confirmation")
				}
				stored, err := s.FindConfirmation(ctx, cc.ConfirmID)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "load confirmation")
				}
				recorded = recorded && stored.Success
				continue
			}
			changed = true
			recorded = recorded && success
			if err := c.applyToChannel(ctx, s, fr, cc, subjectID, success, now); err != nil {
				return err
			}
		}
		out.Success = recorded && fr.Status != models.StatusFailed
		if !changed {
			return nil
		}

		if success && fr.Status == models.StatusPending {
			complete, err := batchSucceeded(ctx, s, fr.BatchID)
			if err != nil {
				return err
			}
			if complete {
				pending, err = c.activate(ctx, s, fr, now)
				if err != nil {
					return err
				}
				out.Activated = len(pending)
			}
		}
		if fr.Status != previous || fr.SubjectID != subject {
			fr.UpdatedAt = now
			if err := s.UpdateFlowRequest(ctx, fr, previous); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update flow request")
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve")
		return nil, err
	}
	c.recordResolution(success, out.Activated)

	if len(pending) > 0 {
		if err := c.announcer.Flush(ctx, pending); err != nil {
			span.RecordError(err)
			c.logger.ErrorContext(ctx, "channel activation not announced",
				"request_id", requestcontext.RequestID(ctx),
				"process_id", out.ProcessID,
				"error", err,
			)
			out.Success = false
			out.Error = dErrors.CodeGateway
		}
	}

	redirect, err := outcomeURL(callbackURL, out)
	if err != nil {
		return nil, err
	}
	out.RedirectURL = redirect
	c.logger.InfoContext(ctx, "consents resolved",
		"request_id", requestcontext.RequestID(ctx),
		"process_id", out.ProcessID,
		"success", out.Success,
		"activated", out.Activated,
	)
	return out, nil
}

// loadConfirmations expects deduplicated ids. It rejects the whole call
// when any id is unknown or the ids span several flow requests.
func loadConfirmations(ctx context.Context, s store.Store, ids []string) ([]*models.ConsentConfirmation, error) {
	out := make([]*models.ConsentConfirmation, 0, len(ids))
	for _, id := range ids {
		cc, err := s.FindConfirmation(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeValidation, "unknown confirmation")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load confirmation")
		}
		if len(out) > 0 && cc.FlowRequestID != out[0].FlowRequestID {
			return nil, dErrors.New(dErrors.CodeValidation, "confirmations belong to different flow requests")
		}
		out = append(out, cc)
	}
	return out, nil
}

func (c *Coordinator) applyToChannel(ctx context.Context, s store.Store, fr *models.FlowRequest, cc *models.ConsentConfirmation, subjectID string, success bool, now time.Time) error {
	ch, err := s.FindChannel(ctx, cc.ChannelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load channel")
	}

	if success {
		if err := fr.AssignSubject(subjectID); err != nil {
			return err
		}
	} else if fr.Status == models.StatusPending {
		if err := fr.Fail(now); err != nil {
			return err
		}
	}
	if ch.Status != models.ChannelConsentRequested {
		return nil
	}
	if success {
		err = ch.Grant(now)
	} else {
		err = ch.Reject(now)
	}
	if err != nil {
		return err
	}
	if err := s.UpdateChannel(ctx, ch, models.ChannelConsentRequested); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "update channel")
	}
	return nil
}

// batchSucceeded reports whether every confirmation of the batch resolved
// successfully.
func batchSucceeded(ctx context.Context, s store.Store, batchID string) (bool, error) {
	if batchID == "" {
		return false, nil
	}
	batch, err := s.ListConfirmationsByBatch(ctx, batchID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "load batch")
	}
	if len(batch) == 0 {
		return false, nil
	}
	for _, cc := range batch {
		if !cc.Resolved || !cc.Success {
			return false, nil
		}
	}
	return true, nil
}

// activate moves the flow request and its granted channels to ACTIVE and
// records their announcements. It returns the outbox entries to flush.
func (c *Coordinator) activate(ctx context.Context, s store.Store, fr *models.FlowRequest, now time.Time) ([]uuid.UUID, error) {
	if err := fr.Activate(now); err != nil {
		return nil, err
	}
	granted, _, err := s.ListChannels(ctx, store.ChannelFilter{
		FlowRequestID: fr.ID,
		Status:        models.ChannelConsentGranted,
	}, store.Page{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list granted channels")
	}
	for _, ch := range granted {
		if err := ch.Activate(fr, now); err != nil {
			return nil, err
		}
		if err := s.UpdateChannel(ctx, ch, models.ChannelConsentGranted); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "activate channel")
		}
	}
	if len(granted) == 0 {
		return nil, nil
	}

	dest, err := c.destinations.Destination(ctx, fr.DestinationID)
	if err != nil {
		return nil, err
	}
	ids, err := c.announcer.Announce(ctx, *dest, fr, granted)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record announcements")
	}
	return ids, nil
}

func (c *Coordinator) recordResolution(success bool, activated int) {
	if c.metrics == nil {
		return
	}
	outcome := "rejected"
	if success {
		outcome = "granted"
	}
	c.metrics.ConsentResolutions.WithLabelValues(outcome).Inc()
	c.metrics.ChannelsActivated.Add(float64(activated))
}

func outcomeURL(callbackURL string, out *Outcome) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "invalid stored callback url")
	}
	q := u.Query()
	q.Set("process_id", out.ProcessID)
	q.Set("success", strconv.FormatBool(out.Success))
	if out.Error != "" {
		q.Set("error", string(out.Error))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
