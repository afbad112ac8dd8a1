// Package consentauthority registers consents at the external consent
// authority on behalf of a flow request's channels.
package consentauthority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/config"
	dErrors "flowgate/pkg/domain-errors"
)

// ErrConsentExists is returned when the authority already holds a consent
// for the channel.
var ErrConsentExists = errors.New("consent already exists")

// ConsentRequest describes one channel the subject is asked to authorize.
type ConsentRequest struct {
	ChannelID      string          `json:"channel_id"`
	SourceID       string          `json:"source_id"`
	DestinationID  string          `json:"destination_id"`
	PersonID       string          `json:"person_id,omitempty"`
	Profile        *models.Profile `json:"profile,omitempty"`
	StartValidity  time.Time       `json:"start_validity"`
	ExpireValidity time.Time       `json:"expire_validity"`
}

// Consent is the authority's answer to a registration.
type Consent struct {
	ConsentID string `json:"consent_id"`
	ConfirmID string `json:"confirm_id"`
}

// Client calls the consent authority with a client-credentials token.
type Client struct {
	baseURL          string
	confirmationPage string
	http             *http.Client
}

func NewClient(cfg config.ConsentAuthorityConfig) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: cfg.Timeout}
	httpClient := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
	httpClient.Timeout = cfg.Timeout
	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		confirmationPage: cfg.ConfirmationPage,
		http:             httpClient,
	}
}

// ConfirmationPage is where subjects are sent to review pending consents.
func (c *Client) ConfirmationPage() string {
	return c.confirmationPage
}

// CreateConsent registers a consent. A 400 or 409 answer means the consent
// is already there and yields ErrConsentExists; any other failure is a
// gateway error.
func (c *Client) CreateConsent(ctx context.Context, req ConsentRequest) (*Consent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode consent request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/consents/", bytes.NewReader(body))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build consent request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeGateway, "consent authority unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict:
		return nil, ErrConsentExists
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, dErrors.New(dErrors.CodeGateway, fmt.Sprintf("consent authority returned %d", resp.StatusCode))
	}

	var out Consent
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeGateway, "decode consent response")
	}
	if out.ConfirmID == "" {
		return nil, dErrors.New(dErrors.CodeGateway, "consent response without confirm id")
	}
	return &out, nil
}
