// Package handler exposes flow requests and channels over HTTP: the
// client-facing REST API and the two browser endpoints of the consent
// ceremony.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/ceremony"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/service"
	"flowgate/internal/flowrequest/store"
	"flowgate/internal/platform/middleware"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/httputil"
	"flowgate/pkg/platform/middleware/device"
	"flowgate/pkg/requestcontext"
)

// FlowRequests is the state machine API the handlers drive.
type FlowRequests interface {
	Create(ctx context.Context, id *access.Identity, in service.CreateInput) (*models.FlowRequest, *models.ConfirmationCode, error)
	Confirm(ctx context.Context, subjectID, code, action, callbackURL string) (*service.ConfirmResult, error)
	RequestDelete(ctx context.Context, id *access.Identity, processID string) (*models.FlowRequest, *models.ConfirmationCode, error)
	Get(ctx context.Context, id *access.Identity, processID string) (*models.FlowRequest, error)
	List(ctx context.Context, id *access.Identity, page store.Page) ([]*models.FlowRequest, int, error)
	SearchByChannel(ctx context.Context, id *access.Identity, channelID string) (*models.FlowRequest, error)
	ListChannels(ctx context.Context, id *access.Identity, q service.ChannelQuery, page store.Page) ([]*models.Channel, int, error)
	GetChannel(ctx context.Context, id *access.Identity, channelID string) (*models.Channel, error)
}

// Resolver settles consent confirmations reported by the authority.
type Resolver interface {
	Resolve(ctx context.Context, subjectID string, confirmIDs []string, success bool) (*ceremony.Outcome, error)
}

type Handler struct {
	flows        FlowRequests
	resolver     Resolver
	logger       *slog.Logger
	defaultLimit int
}

func New(flows FlowRequests, resolver Resolver, defaultLimit int, logger *slog.Logger) *Handler {
	return &Handler{flows: flows, resolver: resolver, defaultLimit: defaultLimit, logger: logger}
}

// RegisterClientRoutes mounts the REST API. Bearer authentication is
// applied by the caller; scope and ownership are checked per operation.
func (h *Handler) RegisterClientRoutes(r chi.Router) {
	r.Get("/v1/flow_requests/", h.handleList)
	r.With(middleware.RequireJSON).Post("/v1/flow_requests/", h.handleCreate)
	r.Get("/v1/flow_requests/search/", h.handleSearch)
	r.Get("/v1/flow_requests/{process_id}/", h.handleGet)
	r.Delete("/v1/flow_requests/{process_id}/", h.handleDelete)
	r.Get("/v1/flow_requests/{process_id}/channels/", h.handleListChannels)
	r.Get("/v1/channels/", h.handleListChannels)
	r.Get("/v1/channels/{channel_id}/", h.handleGetChannel)
}

// RegisterSubjectRoutes mounts the browser endpoints. The caller applies
// the subject middleware and the login redirect.
func (h *Handler) RegisterSubjectRoutes(r chi.Router) {
	r.Get("/v1/flow_requests/confirm/", h.handleConfirm)
	r.Get(ceremony.ConsentsConfirmedPath, h.handleConsentsConfirmed)
}

type sourceRef struct {
	SourceID string `json:"source_id"`
}

type createRequest struct {
	FlowID         string          `json:"flow_id"`
	Profile        *models.Profile `json:"profile"`
	StartValidity  *time.Time      `json:"start_validity"`
	ExpireValidity *time.Time      `json:"expire_validity"`
	Sources        []sourceRef     `json:"sources"`
}

type flowRequestResponse struct {
	ProcessID      string          `json:"process_id"`
	FlowID         string          `json:"flow_id"`
	Status         models.Status   `json:"status"`
	Profile        *models.Profile `json:"profile"`
	StartValidity  time.Time       `json:"start_validity"`
	ExpireValidity time.Time       `json:"expire_validity"`
	Sources        []sourceRef     `json:"sources"`
}

type createResponse struct {
	flowRequestResponse
	ConfirmID string `json:"confirm_id"`
}

type deleteResponse struct {
	ProcessID string `json:"process_id"`
	ConfirmID string `json:"confirm_id"`
}

type channelResponse struct {
	ChannelID     string               `json:"channel_id"`
	ProcessID     string               `json:"process_id,omitempty"`
	SourceID      string               `json:"source_id"`
	DestinationID string               `json:"destination_id"`
	Status        models.ChannelStatus `json:"status"`
}

func toFlowRequestResponse(fr *models.FlowRequest) flowRequestResponse {
	sources := make([]sourceRef, 0, len(fr.Sources))
	for _, s := range fr.Sources {
		sources = append(sources, sourceRef{SourceID: s})
	}
	return flowRequestResponse{
		ProcessID:      fr.ProcessID,
		FlowID:         fr.FlowID,
		Status:         fr.Status,
		Profile:        fr.Profile,
		StartValidity:  fr.StartValidity,
		ExpireValidity: fr.ExpireValidity,
		Sources:        sources,
	}
}

func toChannelResponse(ch *models.Channel, processID string) channelResponse {
	return channelResponse{
		ChannelID:     ch.ID,
		ProcessID:     processID,
		SourceID:      ch.SourceID,
		DestinationID: ch.DestinationID,
		Status:        ch.Status,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode flow request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid json body"))
		return
	}
	in := service.CreateInput{
		FlowID:         req.FlowID,
		Profile:        req.Profile,
		StartValidity:  req.StartValidity,
		ExpireValidity: req.ExpireValidity,
	}
	for _, s := range req.Sources {
		in.SourceIDs = append(in.SourceIDs, s.SourceID)
	}

	fr, code, err := h.flows.Create(ctx, access.IdentityFrom(ctx), in)
	if err != nil {
		h.fail(w, r, "create flow request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createResponse{
		flowRequestResponse: toFlowRequestResponse(fr),
		ConfirmID:           code.Code,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.page(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, total, err := h.flows.List(ctx, access.IdentityFrom(ctx), page)
	if err != nil {
		h.fail(w, r, "list flow requests", err)
		return
	}
	out := make([]flowRequestResponse, 0, len(items))
	for _, fr := range items {
		out = append(out, toFlowRequestResponse(fr))
	}
	httputil.SetTotalCount(w, total)
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fr, err := h.flows.Get(ctx, access.IdentityFrom(ctx), chi.URLParam(r, "process_id"))
	if err != nil {
		h.fail(w, r, "get flow request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toFlowRequestResponse(fr))
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fr, err := h.flows.SearchByChannel(ctx, access.IdentityFrom(ctx), r.URL.Query().Get("channel_id"))
	if err != nil {
		h.fail(w, r, "search flow request", err)
		return
	}
	httputil.SetTotalCount(w, 1)
	httputil.WriteJSON(w, http.StatusOK, toFlowRequestResponse(fr))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fr, code, err := h.flows.RequestDelete(ctx, access.IdentityFrom(ctx), chi.URLParam(r, "process_id"))
	if err != nil {
		h.fail(w, r, "request flow request deletion", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, deleteResponse{ProcessID: fr.ProcessID, ConfirmID: code.Code})
}

func (h *Handler) handleListChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.page(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := service.ChannelQuery{
		ProcessID: chi.URLParam(r, "process_id"),
		Status:    r.URL.Query().Get("status"),
	}
	items, total, err := h.flows.ListChannels(ctx, access.IdentityFrom(ctx), q, page)
	if err != nil {
		h.fail(w, r, "list channels", err)
		return
	}
	out := make([]channelResponse, 0, len(items))
	for _, ch := range items {
		out = append(out, toChannelResponse(ch, q.ProcessID))
	}
	httputil.SetTotalCount(w, total)
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ch, err := h.flows.GetChannel(ctx, access.IdentityFrom(ctx), chi.URLParam(r, "channel_id"))
	if err != nil {
		h.fail(w, r, "get channel", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChannelResponse(ch, ""))
}

// handleConfirm redeems a confirmation code. Failures caused by the consent
// authority go back to the destination on its callback; input errors are
// answered directly.
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	subject := requestcontext.Subject(ctx)
	h.logger.InfoContext(ctx, "confirmation requested",
		"request_id", middleware.GetRequestID(ctx),
		"action", q.Get("action"),
		"device", device.FromContext(ctx).String(),
	)

	result, err := h.flows.Confirm(ctx, subject.ID, q.Get("confirm_id"), q.Get("action"), q.Get("callback_url"))
	if err != nil {
		if result != nil && redirectsToCallback(err) {
			target, buildErr := withOutcome(q.Get("callback_url"), result.ProcessID, false, dErrors.CodeOf(err))
			if buildErr == nil {
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
		}
		h.fail(w, r, "confirm flow request", err)
		return
	}
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func (h *Handler) handleConsentsConfirmed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	h.logger.InfoContext(ctx, "consents confirmed callback",
		"request_id", middleware.GetRequestID(ctx),
		"confirmations", len(q["consent_confirm_id"]),
		"device", device.FromContext(ctx).String(),
	)

	success, err := strconv.ParseBool(q.Get("success"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeMissingParam, "success is required"))
		return
	}
	out, err := h.resolver.Resolve(ctx, requestcontext.Subject(ctx).ID, q["consent_confirm_id"], success)
	if err != nil {
		h.fail(w, r, "resolve consents", err)
		return
	}
	http.Redirect(w, r, out.RedirectURL, http.StatusFound)
}

func redirectsToCallback(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeGateway, dErrors.CodeConsentsAlreadyCreated:
		return true
	}
	return false
}

func withOutcome(callbackURL, processID string, success bool, code dErrors.Code) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("process_id", processID)
	q.Set("success", strconv.FormatBool(success))
	if code != "" {
		q.Set("error", string(code))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *Handler) page(r *http.Request) (store.Page, error) {
	page := store.Page{Limit: h.defaultLimit}
	if v, ok, err := httputil.QueryInt(r, "offset"); err != nil {
		return page, err
	} else if ok {
		page.Offset = int(v)
	}
	if v, ok, err := httputil.QueryInt(r, "limit"); err != nil {
		return page, err
	} else if ok && v > 0 {
		page.Limit = int(v)
	}
	return page, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.DebugContext(ctx, op+" rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
