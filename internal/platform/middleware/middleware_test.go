package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/access"
	"flowgate/internal/platform/config"
	"flowgate/internal/platform/logger"
	"flowgate/pkg/requestcontext"
)

type stubValidator struct {
	identity *access.Identity
	err      error
}

func (s stubValidator) ValidateToken(string) (*access.Identity, error) {
	return s.identity, s.err
}

func okHandler(t *testing.T, seen **access.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = access.IdentityFrom(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireClient(t *testing.T) {
	log := logger.Discard()

	t.Run("missing token", func(t *testing.T) {
		h := RequireClient(stubValidator{}, log)(okHandler(t, nil))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"errors":["not_authenticated"]}`, rec.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		h := RequireClient(stubValidator{err: errors.New("expired")}, log)(okHandler(t, nil))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token stores identity", func(t *testing.T) {
		want := &access.Identity{ClientID: "c1", DestinationID: "d1"}
		var seen *access.Identity
		h := RequireClient(stubValidator{identity: want}, log)(okHandler(t, &seen))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, seen)
	})
}

func TestRequireJSON(t *testing.T) {
	h := RequireJSON(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubjectLoginRedirect(t *testing.T) {
	cfg := config.SubjectConfig{UserHeader: "X-Authenticated-User", IDHeader: "X-Subject-ID", LoginURL: "/saml2/login/"}
	var seen requestcontext.SubjectInfo
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Subject(r.Context())
	})
	h := Subject(cfg, logger.Discard())(RequireSubjectLogin(cfg.LoginURL)(inner))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/flow_requests/confirm/?confirm_id=x", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/saml2/login/?next=%2Fv1%2Fflow_requests%2Fconfirm%2F%3Fconfirm_id%3Dx", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/v1/flow_requests/confirm/", nil)
	req.Header.Set("X-Authenticated-User", "alice")
	req.Header.Set("X-Subject-ID", "CF100001")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, requestcontext.SubjectInfo{User: "alice", ID: "CF100001"}, seen)
}

func TestRateLimit(t *testing.T) {
	lim := NewClientLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})
	h := RateLimit(lim, nil, logger.Discard())(okHandler(t, nil))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(access.WithIdentity(req.Context(), &access.Identity{ClientID: "c1"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
