package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"flowgate/internal/access"
	"flowgate/internal/consentauthority"
	"flowgate/internal/flowrequest/ceremony"
	ceremonymocks "flowgate/internal/flowrequest/ceremony/mocks"
	"flowgate/internal/flowrequest/codes"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/service"
	servicemocks "flowgate/internal/flowrequest/service/mocks"
	"flowgate/internal/flowrequest/store"
	"flowgate/internal/platform/config"
	"flowgate/internal/platform/logger"
	"flowgate/internal/platform/middleware"
	"flowgate/pkg/testutil"
)

const (
	confirmationPage = "https://consent.example/confirm/"
	destCallback     = "https://dest.example/done"
)

var (
	owner = testutil.DestinationClient("dest-1",
		access.ScopeFlowRequestRead, access.ScopeFlowRequestWrite, access.ScopeChannelRead)
	stranger = testutil.DestinationClient("dest-2",
		access.ScopeFlowRequestRead, access.ScopeFlowRequestWrite, access.ScopeChannelRead)
)

type HandlerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	sources   *servicemocks.MockSourceRegistry
	authority *ceremonymocks.MockConsentAuthority
	announcer *ceremonymocks.MockAnnouncer
	dests     *ceremonymocks.MockDestinations
	router    chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.sources = servicemocks.NewMockSourceRegistry(s.ctrl)
	s.authority = ceremonymocks.NewMockConsentAuthority(s.ctrl)
	s.announcer = ceremonymocks.NewMockAnnouncer(s.ctrl)
	s.dests = ceremonymocks.NewMockDestinations(s.ctrl)
	s.authority.EXPECT().ConfirmationPage().Return(confirmationPage).AnyTimes()

	log := logger.Discard()
	st := store.NewInMemory()
	coordinator := ceremony.New(st, s.authority, s.announcer, s.dests, "https://gate.example", ceremony.WithLogger(log))
	svc := service.New(st, codes.New(time.Hour), s.sources, coordinator, service.WithLogger(log))
	h := New(svc, coordinator, 50, log)

	subjectCfg := config.SubjectConfig{UserHeader: "X-Authenticated-User", IDHeader: "X-Subject-ID", LoginURL: "/saml2/login/"}
	r := chi.NewRouter()
	r.Group(h.RegisterClientRoutes)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Subject(subjectCfg, log))
		r.Use(middleware.RequireSubjectLogin(subjectCfg.LoginURL))
		h.RegisterSubjectRoutes(r)
	})
	s.router = r
}

func (s *HandlerSuite) do(req *http.Request, id *access.Identity) *httptest.ResponseRecorder {
	if id != nil {
		req = testutil.WithClient(req, id)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) browser(path string) *httptest.ResponseRecorder {
	req := testutil.NewRequest(s.T(), http.MethodGet, path)
	req.Header.Set("X-Authenticated-User", "mario.rossi")
	req.Header.Set("X-Subject-ID", "CH00000000000001")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0")
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) create() createResponse {
	s.sources.EXPECT().ListSources(gomock.Any()).Return([]models.Source{{SourceID: "src-a"}, {SourceID: "src-b"}}, nil)
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/flow_requests/", map[string]any{
		"flow_id": "f_44444",
		"status":  "AC",
		"profile": map[string]string{"code": "PROF_001", "version": "v0", "payload": `[{"clinical_domain": "Laboratory"}]`},
	}), owner)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[createResponse](s.T(), rr)
}

func confirmPath(code, action string) string {
	return "/v1/flow_requests/confirm/?" + url.Values{
		"confirm_id":   {code},
		"action":       {action},
		"callback_url": {destCallback},
	}.Encode()
}

func (s *HandlerSuite) TestCreateIgnoresClientStatus() {
	created := s.create()
	s.Equal(models.StatusPending, created.Status)
	s.NotEmpty(created.ConfirmID)
	s.Len(created.ProcessID, 32)
	s.Len(created.Sources, 2)
}

func (s *HandlerSuite) TestCreateRequiresJSON() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/flow_requests/", `{"flow_id":"x"}`)
	req.Header.Set("Content-Type", "text/plain")
	rr := s.do(req, owner)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnsupportedMediaType, "unsupported_media_type")
}

func (s *HandlerSuite) TestCreateInvalidBody() {
	rr := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/flow_requests/", `{"flow_id":`), owner)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_data")
}

func (s *HandlerSuite) TestListAndGetAreScoped() {
	created := s.create()

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/"), owner)
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("1", rr.Header().Get("X-Total-Count"))

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/"+created.ProcessID+"/"), stranger)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/"), nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "not_authenticated")
}

func (s *HandlerSuite) TestChannelListing() {
	created := s.create()

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/"+created.ProcessID+"/channels/?status=CR"), owner)
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("2", rr.Header().Get("X-Total-Count"))

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/channels/?status=ZZ"), owner)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_data")
}

// activate runs the consent ceremony for created through to ACTIVE.
func (s *HandlerSuite) activate(created createResponse) {
	s.authority.EXPECT().CreateConsent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req consentauthority.ConsentRequest) (*consentauthority.Consent, error) {
			return &consentauthority.Consent{ConsentID: "c-" + req.SourceID, ConfirmID: "k-" + req.SourceID}, nil
		}).Times(2)
	s.Require().Equal(http.StatusFound, s.browser(confirmPath(created.ConfirmID, "add")).Code)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	s.dests.EXPECT().Destination(gomock.Any(), "dest-1").Return(&models.Destination{ID: "dest-1"}, nil)
	s.announcer.EXPECT().Announce(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Len(2)).Return(ids, nil)
	s.announcer.EXPECT().Flush(gomock.Any(), ids).Return(nil)
	rr := s.browser(ceremony.ConsentsConfirmedPath + "?success=true&consent_confirm_id=k-src-a&consent_confirm_id=k-src-b")
	s.Require().Equal("true", testutil.RedirectTarget(s.T(), rr).Query().Get("success"))
}

func (s *HandlerSuite) TestSearchByChannel() {
	created := s.create()
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/channels/"), owner)
	channels := testutil.UnmarshalResponse[[]channelResponse](s.T(), rr)
	s.Require().NotEmpty(*channels)

	dispatcher := testutil.DestinationClient("dispatcher", access.ScopeFlowRequestQuery)
	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/search/?channel_id="+(*channels)[0].ChannelID), dispatcher)
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("1", rr.Header().Get("X-Total-Count"))
	testutil.AssertJSONContains(s.T(), rr, "process_id", created.ProcessID)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/search/?channel_id=unknown"), dispatcher)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/search/?channel_id="+(*channels)[0].ChannelID), owner)
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
}

func (s *HandlerSuite) TestConfirmRetryAfterPartialAuthorityFailure() {
	created := s.create()

	var first string
	gomock.InOrder(
		s.authority.EXPECT().CreateConsent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req consentauthority.ConsentRequest) (*consentauthority.Consent, error) {
				first = req.ChannelID
				return &consentauthority.Consent{ConsentID: "c-" + req.SourceID, ConfirmID: "k-" + req.SourceID}, nil
			}),
		s.authority.EXPECT().CreateConsent(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset")),
	)
	rr := s.browser(confirmPath(created.ConfirmID, "add"))
	back := testutil.RedirectTarget(s.T(), rr)
	s.Equal("internal_gateway_error", back.Query().Get("error"))

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/channels/?status=CR"), owner)
	s.Equal("1", rr.Header().Get("X-Total-Count"), "the channel with a registered consent is kept")

	gomock.InOrder(
		s.authority.EXPECT().CreateConsent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req consentauthority.ConsentRequest) (*consentauthority.Consent, error) {
				s.Equal(first, req.ChannelID)
				return nil, consentauthority.ErrConsentExists
			}),
		s.authority.EXPECT().CreateConsent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req consentauthority.ConsentRequest) (*consentauthority.Consent, error) {
				return &consentauthority.Consent{ConsentID: "c-" + req.SourceID, ConfirmID: "k-" + req.SourceID}, nil
			}),
	)
	rr = s.browser(confirmPath(created.ConfirmID, "add"))
	target := testutil.RedirectTarget(s.T(), rr)
	s.Equal("consent.example", target.Host)
	s.ElementsMatch([]string{"k-src-a", "k-src-b"}, target.Query()["confirm_id"])

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	s.dests.EXPECT().Destination(gomock.Any(), "dest-1").Return(&models.Destination{ID: "dest-1"}, nil)
	s.announcer.EXPECT().Announce(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Len(2)).Return(ids, nil)
	s.announcer.EXPECT().Flush(gomock.Any(), ids).Return(nil)

	rr = s.browser(ceremony.ConsentsConfirmedPath + "?success=true&consent_confirm_id=k-src-a&consent_confirm_id=k-src-b")
	s.Equal("true", testutil.RedirectTarget(s.T(), rr).Query().Get("success"))
	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/channels/?status=AC"), owner)
	s.Equal("2", rr.Header().Get("X-Total-Count"))
}

func (s *HandlerSuite) TestConsentCeremonyActivatesFlowRequest() {
	created := s.create()
	s.authority.EXPECT().CreateConsent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req consentauthority.ConsentRequest) (*consentauthority.Consent, error) {
			s.Equal("CH00000000000001", req.PersonID)
			return &consentauthority.Consent{ConsentID: "c-" + req.SourceID, ConfirmID: "k-" + req.SourceID}, nil
		}).Times(2)

	rr := s.browser(confirmPath(created.ConfirmID, "add"))
	target := testutil.RedirectTarget(s.T(), rr)
	s.Equal("consent.example", target.Host)
	s.ElementsMatch([]string{"k-src-a", "k-src-b"}, target.Query()["confirm_id"])
	s.Equal("https://gate.example/v1/flow_requests/consents_confirmed/", target.Query().Get("callback_url"))

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	s.dests.EXPECT().Destination(gomock.Any(), "dest-1").Return(&models.Destination{ID: "dest-1"}, nil)
	s.announcer.EXPECT().Announce(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Len(2)).Return(ids, nil)
	s.announcer.EXPECT().Flush(gomock.Any(), ids).Return(nil)

	rr = s.browser(ceremony.ConsentsConfirmedPath + "?success=true&consent_confirm_id=k-src-a&consent_confirm_id=k-src-b")
	back := testutil.RedirectTarget(s.T(), rr)
	s.Equal("dest.example", back.Host)
	s.Equal(created.ProcessID, back.Query().Get("process_id"))
	s.Equal("true", back.Query().Get("success"))

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/"+created.ProcessID+"/"), owner)
	testutil.AssertJSONContains(s.T(), rr, "status", "AC")
	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/channels/?status=AC"), owner)
	s.Equal("2", rr.Header().Get("X-Total-Count"))
}

func (s *HandlerSuite) TestConfirmGatewayFailureRedirectsToCallback() {
	created := s.create()
	s.authority.EXPECT().CreateConsent(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	rr := s.browser(confirmPath(created.ConfirmID, "add"))
	back := testutil.RedirectTarget(s.T(), rr)
	s.Equal("dest.example", back.Host)
	s.Equal(created.ProcessID, back.Query().Get("process_id"))
	s.Equal("false", back.Query().Get("success"))
	s.Equal("internal_gateway_error", back.Query().Get("error"))
}

func (s *HandlerSuite) TestConfirmInputErrors() {
	created := s.create()

	rr := s.browser(confirmPath(created.ConfirmID, "NOT_VALID"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "unknown_action")

	rr = s.browser("/v1/flow_requests/confirm/?confirm_id=" + created.ConfirmID + "&action=add")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "missing_param")

	rr = s.browser(confirmPath("invalid", "add"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_confirmation_code")
}

func (s *HandlerSuite) TestConfirmRequiresLogin() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, confirmPath("x", "add")))
	s.Equal(http.StatusFound, rr.Code)
	s.Contains(rr.Header().Get("Location"), "/saml2/login/?next=")
}

func (s *HandlerSuite) TestDeleteFlow() {
	created := s.create()

	rr := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/v1/flow_requests/"+created.ProcessID+"/"), owner)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_fr_status")

	s.activate(created)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/v1/flow_requests/"+created.ProcessID+"/"), stranger)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	rr = s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/v1/flow_requests/"+created.ProcessID+"/"), owner)
	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	body := testutil.UnmarshalResponse[deleteResponse](s.T(), rr)
	s.Equal(created.ProcessID, body.ProcessID)

	rr = s.browser(confirmPath(body.ConfirmID, "delete"))
	s.Require().Equal(http.StatusFound, rr.Code)
	s.Equal(destCallback, rr.Header().Get("Location"))

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/flow_requests/"+created.ProcessID+"/"), owner)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
}

func (s *HandlerSuite) TestConsentsConfirmedWithoutPersonID() {
	req := testutil.NewRequest(s.T(), http.MethodGet, ceremony.ConsentsConfirmedPath+"?success=true&consent_confirm_id=x")
	req.Header.Set("X-Authenticated-User", "mario.rossi")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "missing_person_id")
}
