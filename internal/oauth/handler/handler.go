// Package handler serves the OAuth2 client-credentials token endpoint.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"flowgate/internal/access"
	"flowgate/internal/clients"
	"flowgate/internal/platform/middleware"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/httputil"
)

// Authenticator checks client credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, clientID, secret string) (*clients.RESTClient, error)
}

// Issuer signs access tokens.
type Issuer interface {
	Issue(id *access.Identity) (string, time.Duration, error)
}

type Handler struct {
	clients Authenticator
	issuer  Issuer
	logger  *slog.Logger
}

func New(clients Authenticator, issuer Issuer, logger *slog.Logger) *Handler {
	return &Handler{clients: clients, issuer: issuer, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/oauth2/token/", h.handleToken)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type tokenError struct {
	Error string `json:"error"`
}

// handleToken follows RFC 6749 section 4.4. Credentials come from HTTP basic
// auth or the form body; errors use the {"error": code} shape of section 5.2.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		h.writeError(w, dErrors.CodeInvalidRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		if r.PostForm.Get("grant_type") == "" {
			h.writeError(w, dErrors.CodeInvalidRequest)
			return
		}
		h.writeError(w, dErrors.CodeUnsupportedGrantType)
		return
	}

	clientID, secret, ok := r.BasicAuth()
	if !ok {
		clientID, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID == "" || secret == "" {
		h.writeError(w, dErrors.CodeInvalidClient)
		return
	}

	client, err := h.clients.Authenticate(ctx, clientID, secret)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidClient) {
			h.logger.WarnContext(ctx, "token request with invalid client credentials",
				"request_id", middleware.GetRequestID(ctx),
				"client_id", clientID,
			)
			h.writeError(w, dErrors.CodeInvalidClient)
			return
		}
		h.logger.ErrorContext(ctx, "client authentication failed", "request_id", middleware.GetRequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}

	token, ttl, err := h.issuer.Issue(client.Identity())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token", "request_id", middleware.GetRequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}

	scopes := ""
	for i, sc := range client.Scopes {
		if i > 0 {
			scopes += " "
		}
		scopes += string(sc)
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		Scope:       scopes,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, code dErrors.Code) {
	httputil.WriteJSON(w, httputil.StatusFor(dErrors.New(code, string(code))), tokenError{Error: string(code)})
}
