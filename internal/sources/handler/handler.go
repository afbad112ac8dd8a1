package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/middleware"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/httputil"
)

// Registry is the subset of the source registry exposed to REST clients.
type Registry interface {
	ListSources(ctx context.Context) ([]models.Source, error)
	GetSource(ctx context.Context, sourceID string) (*models.Source, error)
	ListProfiles(ctx context.Context) ([]models.Profile, error)
}

// Handler proxies the source catalog to authenticated destinations.
type Handler struct {
	registry Registry
	logger   *slog.Logger
}

func New(registry Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register mounts the catalog routes. Authentication middleware is applied
// by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(access.ResourceSources, access.ActionRead))
		r.Get("/v1/sources/", h.handleListSources)
		r.Get("/v1/sources/{source_id}/", h.handleGetSource)
		r.Get("/v1/profiles/", h.handleListProfiles)
	})
}

func (h *Handler) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.registry.ListSources(r.Context())
	if err != nil {
		h.fail(w, r, "list sources", err)
		return
	}
	httputil.SetTotalCount(w, len(sources))
	httputil.WriteJSON(w, http.StatusOK, sources)
}

func (h *Handler) handleGetSource(w http.ResponseWriter, r *http.Request) {
	source, err := h.registry.GetSource(r.Context(), chi.URLParam(r, "source_id"))
	if err != nil {
		h.fail(w, r, "get source", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, source)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.registry.ListProfiles(r.Context())
	if err != nil {
		h.fail(w, r, "list profiles", err)
		return
	}
	httputil.SetTotalCount(w, len(profiles))
	httputil.WriteJSON(w, http.StatusOK, profiles)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		h.logger.ErrorContext(r.Context(), "source registry call failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"operation", op,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
