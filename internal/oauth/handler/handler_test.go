package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/access"
	"flowgate/internal/clients"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/oauth"
	"flowgate/internal/platform/logger"
	"flowgate/pkg/testutil"
)

func setup(t *testing.T) (chi.Router, *oauth.TokenService) {
	t.Helper()
	ctx := context.Background()
	svc := clients.NewService(clients.NewInMemoryStore())
	require.NoError(t, svc.RegisterDestination(ctx, &models.Destination{ID: "dest-1", Name: "Dest"}))
	require.NoError(t, svc.RegisterClient(ctx, &clients.RESTClient{
		ClientID:      "client-1",
		Name:          "Dest client",
		DestinationID: "dest-1",
		Scopes:        []access.Scope{access.ScopeFlowRequestRead, access.ScopeFlowRequestWrite},
	}, "s3cret"))

	tokens := oauth.NewTokenService("test-key", "flowgate", time.Hour)
	r := chi.NewRouter()
	New(svc, tokens, logger.Discard()).Register(r)
	return r, tokens
}

func tokenRequest(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/oauth2/token/", form.Encode())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestTokenEndpoint(t *testing.T) {
	r, tokens := setup(t)

	t.Run("valid credentials in the form", func(t *testing.T) {
		rr := testutil.DoRequest(r, tokenRequest(t, url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {"client-1"},
			"client_secret": {"s3cret"},
		}))
		testutil.AssertStatusOK(t, rr)
		body := testutil.UnmarshalResponse[tokenResponse](t, rr)
		assert.Equal(t, "Bearer", body.TokenType)
		assert.Equal(t, int64(3600), body.ExpiresIn)
		assert.Equal(t, "flow_request:read flow_request:write", body.Scope)

		id, err := tokens.ValidateToken(body.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "dest-1", id.DestinationID)
	})

	t.Run("valid credentials with basic auth", func(t *testing.T) {
		req := tokenRequest(t, url.Values{"grant_type": {"client_credentials"}})
		req.SetBasicAuth("client-1", "s3cret")
		rr := testutil.DoRequest(r, req)
		testutil.AssertStatusOK(t, rr)
	})

	tests := []struct {
		name   string
		form   url.Values
		status int
		code   string
	}{
		{
			name:   "unknown client",
			form:   url.Values{"grant_type": {"client_credentials"}, "client_id": {"unknown"}, "client_secret": {"x"}},
			status: http.StatusUnauthorized,
			code:   "invalid_client",
		},
		{
			name:   "wrong secret",
			form:   url.Values{"grant_type": {"client_credentials"}, "client_id": {"client-1"}, "client_secret": {"bad"}},
			status: http.StatusUnauthorized,
			code:   "invalid_client",
		},
		{
			name:   "wrong grant type",
			form:   url.Values{"grant_type": {"wrong"}, "client_id": {"client-1"}, "client_secret": {"s3cret"}},
			status: http.StatusBadRequest,
			code:   "unsupported_grant_type",
		},
		{
			name:   "missing grant type",
			form:   url.Values{"client_id": {"client-1"}, "client_secret": {"s3cret"}},
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.DoRequest(r, tokenRequest(t, tt.form))
			testutil.AssertStatus(t, rr, tt.status)
			assert.True(t, strings.Contains(rr.Body.String(), `"error":"`+tt.code+`"`), rr.Body.String())
		})
	}
}
