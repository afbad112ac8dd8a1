package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/platform/config"
	dErrors "flowgate/pkg/domain-errors"
)

type registryServer struct {
	*httptest.Server
	tokenStatus int
	apiStatus   int
	tokenCalls  atomic.Int32
}

func newRegistryServer(t *testing.T) *registryServer {
	t.Helper()
	rs := &registryServer{tokenStatus: http.StatusOK, apiStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token/", func(w http.ResponseWriter, r *http.Request) {
		rs.tokenCalls.Add(1)
		if rs.tokenStatus != http.StatusOK {
			w.WriteHeader(rs.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "registry-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/sources/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer registry-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if rs.apiStatus != http.StatusOK {
			w.WriteHeader(rs.apiStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/sources/" {
			_ = json.NewEncoder(w).Encode([]models.Source{{SourceID: "src-a", Name: "A"}, {SourceID: "src-b", Name: "B"}})
			return
		}
		if r.URL.Path == "/v1/sources/src-a/" {
			_ = json.NewEncoder(w).Encode(models.Source{SourceID: "src-a", Name: "A"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *registryServer) client() *Client {
	return NewClient(config.BackendConfig{
		BaseURL:      rs.URL,
		TokenURL:     rs.URL + "/oauth2/token/",
		ClientID:     "flowgate",
		ClientSecret: "secret",
		Timeout:      2 * time.Second,
	})
}

func TestClient_ListSourcesReusesToken(t *testing.T) {
	rs := newRegistryServer(t)
	c := rs.client()

	for range 2 {
		sources, err := c.ListSources(context.Background())
		require.NoError(t, err)
		assert.Len(t, sources, 2)
	}
	assert.Equal(t, int32(1), rs.tokenCalls.Load())
}

func TestClient_GetSource(t *testing.T) {
	rs := newRegistryServer(t)
	c := rs.client()

	src, err := c.GetSource(context.Background(), "src-a")
	require.NoError(t, err)
	assert.Equal(t, "A", src.Name)

	_, err = c.GetSource(context.Background(), "missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Run("rejected token request is a client error", func(t *testing.T) {
		rs := newRegistryServer(t)
		rs.tokenStatus = http.StatusUnauthorized
		_, err := rs.client().ListSources(context.Background())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBackendClient))
	})

	t.Run("server failure is a connection error", func(t *testing.T) {
		rs := newRegistryServer(t)
		rs.apiStatus = http.StatusBadGateway
		_, err := rs.client().ListSources(context.Background())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBackendConnection))
	})

	t.Run("forbidden is a client error", func(t *testing.T) {
		rs := newRegistryServer(t)
		rs.apiStatus = http.StatusForbidden
		_, err := rs.client().ListSources(context.Background())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBackendClient))
	})

	t.Run("unreachable registry is a connection error", func(t *testing.T) {
		rs := newRegistryServer(t)
		c := rs.client()
		rs.Close()
		_, err := c.ListSources(context.Background())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBackendConnection) || dErrors.HasCode(err, dErrors.CodeBackendClient))
	})
}
