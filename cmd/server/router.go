package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	flowhandler "flowgate/internal/flowrequest/handler"
	messageshandler "flowgate/internal/messages/handler"
	"flowgate/internal/oauth"
	oauthhandler "flowgate/internal/oauth/handler"
	"flowgate/internal/platform/middleware"
	sourceshandler "flowgate/internal/sources/handler"
	"flowgate/pkg/platform/httputil"
	"flowgate/pkg/platform/middleware/metadata"
	"flowgate/pkg/platform/middleware/requesttime"
)

// newRouter mounts three surfaces: the token endpoint, the REST client API
// behind bearer tokens, and the subject endpoints behind the login proxy.
func newRouter(a *app) http.Handler {
	cfg := a.cfg
	tokens := oauth.NewTokenService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	limiter := middleware.NewClientLimiter(cfg.RateLimit)

	flows := flowhandler.New(a.flows, a.coordinator, cfg.Flow.DefaultLimit, a.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.Logger(a.logger))
	r.Use(middleware.LatencyMiddleware(a.metrics))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(a))
	r.Handle("/metrics", promhttp.Handler())

	oauthhandler.New(a.clients, tokens, a.logger).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireClient(tokens, a.logger))
		r.Use(middleware.RateLimit(limiter, a.metrics, a.logger))
		flows.RegisterClientRoutes(r)
		sourceshandler.New(a.sources, a.logger).Register(r)
		messageshandler.New(a.messages, a.logger).Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Subject(cfg.Subject, a.logger))
		r.Use(middleware.RequireSubjectLogin(cfg.Subject.LoginURL))
		flows.RegisterSubjectRoutes(r)
	})
	return r
}

func healthHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health(ctx); err != nil {
			a.logger.WarnContext(ctx, "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
