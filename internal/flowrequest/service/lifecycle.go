package service

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/ceremony"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/store"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/sentinel"
	"flowgate/pkg/requestcontext"
)

// ConfirmResult tells the subject's browser where to go next. ProcessID is
// set as soon as the code resolved to a flow request, also on failure, so
// gateway failures can be reported back on the callback.
type ConfirmResult struct {
	RedirectURL string
	ProcessID   string
}

// Confirm redeems a confirmation code on behalf of the logged-in subject.
// Parameter errors are reported before the code is looked at; everything
// after runs in one transaction so a failed transition leaves the code usable.
func (s *Service) Confirm(ctx context.Context, subjectID, code, action, callbackURL string) (*ConfirmResult, error) {
	if code == "" || action == "" || callbackURL == "" {
		return nil, dErrors.New(dErrors.CodeMissingParam, "confirm_id, action and callback_url are required")
	}
	act := models.Action(action)
	if !act.IsValid() {
		return nil, dErrors.New(dErrors.CodeUnknownAction, "action must be add or delete")
	}
	callback, err := url.Parse(callbackURL)
	if err != nil || !callback.IsAbs() {
		return nil, dErrors.New(dErrors.CodeValidation, "callback_url must be an absolute url")
	}

	result := &ConfirmResult{}
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		consumed, err := s.codes.ValidateAndConsume(ctx, st, code)
		if err != nil {
			return err
		}
		if consumed.Action != act {
			return dErrors.New(dErrors.CodeInvalidConfirmationCode, "code was issued for another action")
		}
		fr, err := st.FindFlowRequestForUpdate(ctx, consumed.FlowRequestID)
		if err != nil {
			return notFoundOr(err, "flow request")
		}
		result.ProcessID = fr.ProcessID

		switch act {
		case models.ActionAdd:
			return s.confirmAdd(ctx, st, fr, subjectID, callbackURL, result)
		default:
			return s.confirmDelete(ctx, st, fr, callback, result)
		}
	})
	s.recordConfirm(act, err)
	if err != nil {
		var abandoned *ceremony.AbandonedConsentsError
		if errors.As(err, &abandoned) {
			s.keepPendingConsents(ctx, abandoned.Consents)
		}
		s.logger.WarnContext(ctx, "confirmation failed",
			"request_id", requestcontext.RequestID(ctx),
			"action", action,
			"process_id", result.ProcessID,
			"error", err,
		)
		if result.ProcessID == "" {
			return nil, err
		}
		return result, err
	}
	return result, nil
}

func (s *Service) confirmAdd(ctx context.Context, st store.Store, fr *models.FlowRequest, subjectID, callbackURL string, result *ConfirmResult) error {
	if fr.Status != models.StatusPending {
		return dErrors.New(dErrors.CodeInvalidStatus, "flow request is not pending")
	}
	// The ceremony persists fr, subject included.
	if subjectID != "" {
		if err := fr.AssignSubject(subjectID); err != nil {
			return err
		}
	}
	channels, err := s.ensureChannels(ctx, st, fr, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	redirect, err := s.ceremony.Begin(ctx, st, fr, channels, callbackURL)
	if err != nil {
		return err
	}
	result.RedirectURL = redirect
	return nil
}

func (s *Service) confirmDelete(ctx context.Context, st store.Store, fr *models.FlowRequest, callback *url.URL, result *ConfirmResult) error {
	if fr.Status != models.StatusDeleteRequested {
		return dErrors.New(dErrors.CodeInvalidStatus, "flow request deletion was not requested")
	}
	if err := st.DeleteFlowRequest(ctx, fr.ID); err != nil {
		return notFoundOr(err, "flow request")
	}
	// The destination learns the outcome from the flow request being gone.
	result.RedirectURL = callback.String()
	return nil
}

// keepPendingConsents records consents the authority registered during a
// rolled back confirmation, with their channels, in a transaction of their
// own. A retry of the same code then finds them through the channel.
func (s *Service) keepPendingConsents(ctx context.Context, consents []ceremony.PendingConsent) {
	kept := 0
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		kept = 0
		for _, pc := range consents {
			fr, err := st.FindFlowRequestForUpdate(ctx, pc.Confirmation.FlowRequestID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return nil
				}
				return err
			}
			if fr.Status != models.StatusPending {
				return nil
			}
			if _, err := st.FindChannel(ctx, pc.Channel.ID); errors.Is(err, sentinel.ErrNotFound) {
				if err := st.CreateChannels(ctx, []*models.Channel{pc.Channel}); err != nil {
					if errors.Is(err, sentinel.ErrConflict) {
						continue
					}
					return err
				}
			} else if err != nil {
				return err
			}
			err = st.CreateConfirmations(ctx, []*models.ConsentConfirmation{pc.Confirmation})
			if err != nil && !errors.Is(err, sentinel.ErrConflict) {
				return err
			}
			if err == nil {
				kept++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "pending consents lost",
			"request_id", requestcontext.RequestID(ctx),
			"consents", len(consents),
			"error", err,
		)
		return
	}
	s.logger.InfoContext(ctx, "pending consents kept for retry",
		"request_id", requestcontext.RequestID(ctx),
		"consents", kept,
	)
}

func (s *Service) recordConfirm(action models.Action, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.Confirmations.WithLabelValues(string(action), outcome).Inc()
}

// RequestDelete moves the caller's flow request to DELETE_REQUESTED and
// issues the delete code the subject must confirm.
func (s *Service) RequestDelete(ctx context.Context, id *access.Identity, processID string) (*models.FlowRequest, *models.ConfirmationCode, error) {
	var (
		fr   *models.FlowRequest
		code *models.ConfirmationCode
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		found, err := st.FindFlowRequestByProcessID(ctx, processID)
		if err != nil {
			return notFoundOr(err, "flow request")
		}
		if err := authorize(id, access.Operation{
			Resource: access.ResourceFlowRequest,
			Action:   access.ActionWrite,
			Owner:    found.DestinationID,
		}); err != nil {
			return err
		}
		fr, err = st.FindFlowRequestForUpdate(ctx, found.ID)
		if err != nil {
			return notFoundOr(err, "flow request")
		}
		previous := fr.Status
		if err := fr.RequestDelete(requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := st.UpdateFlowRequest(ctx, fr, previous); err != nil {
			return stateError(err, "flow request")
		}
		code, err = s.codes.Issue(ctx, st, fr.ID, models.ActionDelete)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "flow request deletion requested",
		"request_id", requestcontext.RequestID(ctx),
		"process_id", fr.ProcessID,
	)
	return fr, code, nil
}

// FinalizeDelete removes a DELETE_REQUESTED flow request together with its
// channels, codes and confirmations.
func (s *Service) FinalizeDelete(ctx context.Context, flowRequestID uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		fr, err := st.FindFlowRequestForUpdate(ctx, flowRequestID)
		if err != nil {
			return notFoundOr(err, "flow request")
		}
		if fr.Status != models.StatusDeleteRequested {
			return dErrors.New(dErrors.CodeInvalidStatus, "flow request deletion was not requested")
		}
		if err := st.DeleteFlowRequest(ctx, fr.ID); err != nil {
			return notFoundOr(err, "flow request")
		}
		return nil
	})
}

// stateError maps a lost conditional update to invalid_fr_status.
func stateError(err error, what string) error {
	if errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.Wrap(err, dErrors.CodeInvalidStatus, what+" changed concurrently")
	}
	return notFoundOr(err, what)
}
