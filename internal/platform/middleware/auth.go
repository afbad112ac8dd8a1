package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"flowgate/internal/access"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/httputil"
)

// TokenValidator turns a bearer token into the client identity it was issued to.
type TokenValidator interface {
	ValidateToken(token string) (*access.Identity, error)
}

// RequireClient authenticates REST clients by bearer token and stores the
// identity for access.IdentityFrom.
func RequireClient(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			identity, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", GetRequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(access.WithIdentity(ctx, identity)))
		})
	}
}

// RequireScope rejects clients lacking the scope of an operation that is not
// tied to one destination. Ownership checks stay in the handlers.
func RequireScope(resource access.Resource, action access.Action) func(http.Handler) http.Handler {
	op := access.Operation{Resource: resource, Action: action}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if decision := access.Evaluate(access.IdentityFrom(r.Context()), op); !decision.Allowed {
				WriteDenial(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteDenial renders a denied decision. An ownership-only denial reads as
// not found so clients cannot probe other destinations' resources.
func WriteDenial(w http.ResponseWriter, decision access.Decision) {
	switch {
	case decision.OwnerMismatch:
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "resource not found"))
	case decision.Reason == access.ReasonNotAuthenticated:
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing scope"))
	}
}
