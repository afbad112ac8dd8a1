package consentauthority

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/platform/config"
	dErrors "flowgate/pkg/domain-errors"
)

func newAuthority(t *testing.T, consentStatus int) (*Client, *[]ConsentRequest) {
	t.Helper()
	var received []ConsentRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "ca-token", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/consents/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ca-token", r.Header.Get("Authorization"))
		var req ConsentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = append(received, req)
		if consentStatus != http.StatusCreated {
			w.WriteHeader(consentStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Consent{ConsentID: "consent-" + req.ChannelID, ConfirmID: "confirm-" + req.ChannelID})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(config.ConsentAuthorityConfig{
		BackendConfig: config.BackendConfig{
			BaseURL:      srv.URL,
			TokenURL:     srv.URL + "/oauth2/token/",
			ClientID:     "flowgate",
			ClientSecret: "secret",
			Timeout:      2 * time.Second,
		},
		ConfirmationPage: "https://consents.example/confirm/",
	})
	return c, &received
}

func TestCreateConsent(t *testing.T) {
	c, received := newAuthority(t, http.StatusCreated)

	consent, err := c.CreateConsent(context.Background(), ConsentRequest{ChannelID: "ch-1", SourceID: "src-a", DestinationID: "dest-1"})
	require.NoError(t, err)
	assert.Equal(t, "confirm-ch-1", consent.ConfirmID)
	assert.Equal(t, "consent-ch-1", consent.ConsentID)
	require.Len(t, *received, 1)
	assert.Equal(t, "src-a", (*received)[0].SourceID)
	assert.Equal(t, "https://consents.example/confirm/", c.ConfirmationPage())
}

func TestCreateConsent_ExistingConsent(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusConflict} {
		c, _ := newAuthority(t, status)
		_, err := c.CreateConsent(context.Background(), ConsentRequest{ChannelID: "ch-1"})
		assert.True(t, errors.Is(err, ErrConsentExists), "status %d", status)
	}
}

func TestCreateConsent_GatewayFailures(t *testing.T) {
	c, _ := newAuthority(t, http.StatusInternalServerError)
	_, err := c.CreateConsent(context.Background(), ConsentRequest{ChannelID: "ch-1"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeGateway))

	unreachable := NewClient(config.ConsentAuthorityConfig{
		BackendConfig: config.BackendConfig{
			BaseURL:  "http://127.0.0.1:1",
			TokenURL: "http://127.0.0.1:1/oauth2/token/",
			Timeout:  500 * time.Millisecond,
		},
	})
	_, err = unreachable.CreateConsent(context.Background(), ConsentRequest{ChannelID: "ch-1"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeGateway))
}
