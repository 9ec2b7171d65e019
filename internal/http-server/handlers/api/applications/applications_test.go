package applications

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/application"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/request"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/notify"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/storage/postgres"
)

type fakeDecisionSubmitter struct {
	err      error
	lastKind request.Kind
	decision application.Decision
}

func (f *fakeDecisionSubmitter) SubmitDecision(kind request.Kind, applicationId, customerId string, decision application.Decision) (application.Application, error) {
	f.lastKind = kind
	f.decision = decision
	if f.err != nil {
		return application.Application{}, f.err
	}
	return application.Application{
		Id:        applicationId,
		RequestId: "r1",
		BidderId:  "u2",
		Kind:      kind,
		Status:    application.Status(decision),
	}, nil
}

type fakeSaver struct {
	err error
}

func (f *fakeSaver) SaveApplication(app application.CreateApplication) (application.Application, error) {
	if f.err != nil {
		return application.Application{}, f.err
	}
	return application.Application{Id: "b1", RequestId: app.RequestId, BidderId: app.BidderId, Kind: app.Kind, Status: application.Pending}, nil
}

type recordingPublisher struct {
	kinds []string
}

func (p *recordingPublisher) Publish(kind string, payload any) error {
	p.kinds = append(p.kinds, kind)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func putDecision(t *testing.T, handler http.HandlerFunc, applicationId, query string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Put("/api/applications/{applicationId}/decision", handler)

	req := httptest.NewRequest(http.MethodPut, "/api/applications/"+applicationId+"/decision?"+query, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPutApplicationDecisionApproves(t *testing.T) {
	submitter := &fakeDecisionSubmitter{}
	pub := &recordingPublisher{}
	rec := putDecision(t, NewPutApplicationDecision(testLogger(), submitter, pub),
		"b1", "kind=Service&customerId=u1&decision=Approved")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, request.KindService, submitter.lastKind)
	require.Equal(t, application.DecisionApproved, submitter.decision)
	require.Equal(t, []string{notify.KindApplicationApproved}, pub.kinds)
}

func TestPutApplicationDecisionRejectsWrongDecision(t *testing.T) {
	submitter := &fakeDecisionSubmitter{}
	rec := putDecision(t, NewPutApplicationDecision(testLogger(), submitter, nil),
		"b1", "kind=Service&customerId=u1&decision=Maybe")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutApplicationDecisionStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{postgres.ErrBadRequest, http.StatusBadRequest},
		{postgres.ErrUserNotFound, http.StatusUnauthorized},
		{postgres.ErrForbidden, http.StatusForbidden},
		{postgres.ErrNotFound, http.StatusNotFound},
	}

	for _, tc := range cases {
		submitter := &fakeDecisionSubmitter{err: fmt.Errorf("op: %w", tc.err)}
		pub := &recordingPublisher{}
		rec := putDecision(t, NewPutApplicationDecision(testLogger(), submitter, pub),
			"b1", "kind=Material&customerId=u1&decision=Rejected")

		require.Equal(t, tc.want, rec.Code)
		require.Empty(t, pub.kinds, "no event on failure")
	}
}

func TestPostApplicationValidatesBody(t *testing.T) {
	handler := NewPostApplication(testLogger(), &fakeSaver{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/applications/new",
		strings.NewReader(`{"kind":"Service","requestId":"not-a-uuid","bidderId":"also-not"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostApplicationPublishesSubmittedEvent(t *testing.T) {
	pub := &recordingPublisher{}
	handler := NewPostApplication(testLogger(), &fakeSaver{}, pub)

	body := `{"kind":"Service","requestId":"0b81b6a4-3b9f-4f8e-9a5e-2f1f1a2b3c4d","bidderId":"4f6a2c9e-8d7b-4a1c-b2e3-5d6f7a8b9c0d"}`
	req := httptest.NewRequest(http.MethodPost, "/api/applications/new", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{notify.KindApplicationSubmitted}, pub.kinds)
}
