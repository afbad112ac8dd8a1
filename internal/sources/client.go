// Package sources talks to the external source registry: the catalog of
// data sources and the profiles they can serve.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/config"
	dErrors "flowgate/pkg/domain-errors"
)

// Registry is the read API of the source registry.
type Registry interface {
	ListSources(ctx context.Context) ([]models.Source, error)
	GetSource(ctx context.Context, sourceID string) (*models.Source, error)
	ListProfiles(ctx context.Context) ([]models.Profile, error)
}

// Client calls the registry with a client-credentials token minted for this
// service's own registration.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client. The token source caches and refreshes tokens.
func NewClient(cfg config.BackendConfig) *Client {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := cc.Client(ctx)
	httpClient.Timeout = cfg.Timeout
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: httpClient}
}

func (c *Client) ListSources(ctx context.Context) ([]models.Source, error) {
	var out []models.Source
	if err := c.get(ctx, "/v1/sources/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetSource(ctx context.Context, sourceID string) (*models.Source, error) {
	var out models.Source
	if err := c.get(ctx, "/v1/sources/"+url.PathEscape(sourceID)+"/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	var out []models.Profile
	if err := c.get(ctx, "/v1/profiles/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build source registry request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, "source not found")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return dErrors.New(dErrors.CodeBackendClient, fmt.Sprintf("source registry rejected client: %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return dErrors.New(dErrors.CodeBackendConnection, fmt.Sprintf("source registry returned %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBackendConnection, "decode source registry response")
	}
	return nil
}

// classifyTransportError separates a rejected token request from a backend
// that could not be reached.
func classifyTransportError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return dErrors.Wrap(err, dErrors.CodeBackendClient, "source registry token request rejected")
	}
	return dErrors.Wrap(err, dErrors.CodeBackendConnection, "source registry unreachable")
}

var _ Registry = (*Client)(nil)
