package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/access"
	"flowgate/internal/messages"
	"flowgate/internal/platform/config"
	"flowgate/internal/platform/logger"
	"flowgate/pkg/testutil"
)

func newRouter() chi.Router {
	log := messages.NewMemoryLog()
	for i := range 33 {
		log.Append("dest-1", "ch-1", []byte(fmt.Sprintf("m%d", i)))
	}
	log.Truncate("dest-1", 3)
	log.Append("dest-2", "ch-9", []byte("other"))

	r := chi.NewRouter()
	New(messages.New(log, config.MessagesConfig{DefaultLimit: 5, MaxLimit: 10}, nil), logger.Discard()).Register(r)
	return r
}

func do(t *testing.T, r http.Handler, id *access.Identity, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.WithClient(testutil.NewRequest(t, http.MethodGet, path), id)
	return testutil.DoRequest(r, req)
}

func TestMessagesEndpoints(t *testing.T) {
	r := newRouter()
	reader := testutil.DestinationClient("dest-1", access.ScopeMessagesRead)

	testutil.Given(t, "a destination with messages 3..32", func(t *testing.T) {
		testutil.When(t, "a single message is requested", func(t *testing.T) {
			rr := do(t, r, reader, "/v1/messages/15/")
			testutil.AssertStatusOK(t, rr)
			body := testutil.UnmarshalResponse[messageResponse](t, rr)
			assert.Equal(t, int64(15), body.MessageID)
			assert.Equal(t, "m15", string(body.Data))
		})

		testutil.When(t, "a missing message is requested", func(t *testing.T) {
			rr := do(t, r, reader, "/v1/messages/33/")
			testutil.AssertStatus(t, rr, http.StatusNotFound)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, map[string]any{"first_id": float64(3), "last_id": float64(32)}, body)
		})

		testutil.When(t, "a window past the last message is listed", func(t *testing.T) {
			rr := do(t, r, reader, "/v1/messages/?start=40&limit=5")
			testutil.AssertStatus(t, rr, http.StatusNotFound)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, map[string]any{"first_id": float64(3), "last_id": float64(32)}, body)
		})

		testutil.When(t, "a window is listed", func(t *testing.T) {
			rr := do(t, r, reader, "/v1/messages/?start=0&limit=5")
			testutil.AssertStatusOK(t, rr)
			assert.Equal(t, "30", rr.Header().Get("X-Total-Count"))
			assert.Equal(t, "3", rr.Header().Get("X-Skipped"))
			body := testutil.UnmarshalResponse[[]messageResponse](t, rr)
			require.Len(t, *body, 2)
			assert.Equal(t, int64(3), (*body)[0].MessageID)
		})

		testutil.When(t, "the limit is negative", func(t *testing.T) {
			rr := do(t, r, reader, "/v1/messages/?limit=-1")
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_data")
		})

		testutil.When(t, "info is requested", func(t *testing.T) {
			rr := do(t, r, reader, "/v1/messages/info/")
			testutil.AssertStatusOK(t, rr)
			body := testutil.UnmarshalResponse[messages.Info](t, rr)
			assert.Equal(t, messages.Info{StartID: 3, LastID: 32, Count: 30}, *body)
		})
	})

	testutil.Given(t, "a client without the messages scope", func(t *testing.T) {
		rr := do(t, r, testutil.DestinationClient("dest-1", access.ScopeFlowRequestRead), "/v1/messages/info/")
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	testutil.Given(t, "an unauthenticated request", func(t *testing.T) {
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/v1/messages/info/"))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "not_authenticated")
	})

	testutil.Given(t, "a super client naming another destination", func(t *testing.T) {
		super := &access.Identity{ClientID: "ops", Super: true, Scopes: []access.Scope{access.ScopeMessagesRead}}
		rr := do(t, r, super, "/v1/messages/?destination_id=dest-2")
		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "1", rr.Header().Get("X-Total-Count"))
	})

	testutil.Given(t, "a client bound to no destination", func(t *testing.T) {
		orphan := &access.Identity{ClientID: "orphan", Scopes: []access.Scope{access.ScopeMessagesRead}}
		rr := do(t, r, orphan, "/v1/messages/")
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})
}
