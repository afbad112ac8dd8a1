package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"flowgate/internal/platform/config"
	"flowgate/pkg/platform/middleware/device"
	"flowgate/pkg/requestcontext"
)

// Subject reads the subject identity set by the authenticating proxy in
// front of the subject-facing endpoints.
func Subject(cfg config.SubjectConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := requestcontext.SubjectInfo{
				User: r.Header.Get(cfg.UserHeader),
				ID:   r.Header.Get(cfg.IDHeader),
			}
			ctx := requestcontext.WithSubject(r.Context(), subject)
			logger.DebugContext(ctx, "subject request",
				"request_id", GetRequestID(ctx),
				"authenticated", subject.Authenticated(),
				"device", device.FromContext(ctx).String(),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSubjectLogin redirects anonymous subjects to the login page,
// returning them to the original URL afterwards.
func RequireSubjectLogin(loginURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requestcontext.Subject(r.Context()).Authenticated() {
				target := loginURL + "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
