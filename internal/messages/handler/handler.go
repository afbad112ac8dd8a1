package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/messages"
	"flowgate/internal/platform/middleware"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/httputil"
)

// Reader is the message log read API.
type Reader interface {
	GetOne(ctx context.Context, destinationID string, id int64) (*models.Message, error)
	GetRange(ctx context.Context, destinationID string, q messages.RangeQuery) (*messages.Window, error)
	Info(ctx context.Context, destinationID string) (*messages.Info, error)
}

type Handler struct {
	reader Reader
	logger *slog.Logger
}

func New(reader Reader, logger *slog.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

// Register mounts the message routes. Authentication middleware is applied
// by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(access.ResourceMessages, access.ActionRead))
		r.Get("/v1/messages/", h.handleList)
		r.Get("/v1/messages/info/", h.handleInfo)
		r.Get("/v1/messages/{message_id}/", h.handleGet)
	})
}

type messageResponse struct {
	MessageID int64  `json:"message_id"`
	ChannelID string `json:"channel_id"`
	Data      []byte `json:"data"`
}

func toResponse(m models.Message) messageResponse {
	return messageResponse{MessageID: m.ID, ChannelID: m.ChannelID, Data: m.Data}
}

// outOfRangeBody is the whole 404 answer for an offset outside the log.
type outOfRangeBody struct {
	FirstID int64 `json:"first_id"`
	LastID  int64 `json:"last_id"`
}

// destination resolves whose log is read. Super clients may name one with
// ?destination_id=; everyone else reads their own.
func destination(r *http.Request) (string, error) {
	id := access.IdentityFrom(r.Context())
	if id != nil && id.Super {
		if q := r.URL.Query().Get("destination_id"); q != "" {
			return q, nil
		}
	}
	if id == nil || id.DestinationID == "" {
		return "", dErrors.New(dErrors.CodeForbidden, "client is not bound to a destination")
	}
	return id.DestinationID, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	dest, err := destination(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "message_id"), 10, 64)
	if err != nil || id < 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid message id"))
		return
	}
	msg, err := h.reader.GetOne(r.Context(), dest, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(*msg))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	dest, err := destination(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var q messages.RangeQuery
	if v, ok, err := httputil.QueryInt(r, "start"); err != nil {
		httputil.WriteError(w, err)
		return
	} else if ok {
		q.Start = &v
	}
	if v, ok, err := httputil.QueryInt(r, "limit"); err != nil {
		httputil.WriteError(w, err)
		return
	} else if ok {
		q.Limit = &v
	}

	window, err := h.reader.GetRange(r.Context(), dest, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]messageResponse, 0, len(window.Messages))
	for _, m := range window.Messages {
		out = append(out, toResponse(m))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(window.TotalCount, 10))
	w.Header().Set("X-Skipped", strconv.FormatInt(window.Skipped, 10))
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	dest, err := destination(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	info, err := h.reader.Info(r.Context(), dest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var oor *messages.OutOfRangeError
	if errors.As(err, &oor) {
		httputil.WriteJSON(w, http.StatusNotFound, outOfRangeBody{
			FirstID: oor.Bounds.FirstID,
			LastID:  oor.Bounds.LastID,
		})
		return
	}
	if httputil.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "message read failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
