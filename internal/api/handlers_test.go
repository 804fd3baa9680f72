package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/drama-notifier/internal/auth"
	"github.com/LeventeLantos/drama-notifier/internal/cache"
	"github.com/LeventeLantos/drama-notifier/internal/model"
	"github.com/LeventeLantos/drama-notifier/internal/repo"
	"github.com/LeventeLantos/drama-notifier/internal/scheduler"
	"github.com/LeventeLantos/drama-notifier/internal/service"
)

// fakeClient rejects numbers ending in 0.
type fakeClient struct {
	calls atomic.Int64
}

var _ service.SendClient = (*fakeClient)(nil)

func (f *fakeClient) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	f.calls.Add(1)
	if strings.HasSuffix(phoneNumber, "0") {
		return "", errors.New("rejected")
	}
	return "req-" + phoneNumber, nil
}

type fakeLedger struct {
	*repo.MemoryStore

	got repo.DeliveryQuery
	err error
}

func (f *fakeLedger) ListDeliveries(ctx context.Context, q repo.DeliveryQuery) ([]model.DeliveryRecord, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return f.MemoryStore.ListDeliveries(ctx, q)
}

type testServer struct {
	store    *repo.MemoryStore
	ledger   *fakeLedger
	client   *fakeClient
	mux      http.Handler
	admin    string
	subAdmin string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repo.NewMemoryStore()
	ledger := &fakeLedger{MemoryStore: store}
	client := &fakeClient{}
	runs := cache.NewMemoryRunStore()

	authn := auth.NewAuthenticator(store, "test-secret", time.Hour)
	dispatcher := service.NewDispatcher(store, store, store, client).
		WithWorkers(1).
		WithRunHook(func(ctx context.Context, s model.RunSummary) { _ = runs.SaveRun(ctx, s) })
	catalog := service.NewCatalog(store, store, 160).WithLocker(dispatcher.Locker())

	sched, err := scheduler.New(time.Hour, func(context.Context, time.Time) error { return nil })
	require.NoError(t, err)
	t.Cleanup(func() { sched.Stop() })

	h := NewHandler(Deps{
		Auth:       authn,
		Catalog:    catalog,
		Dispatcher: dispatcher,
		Ledger:     ledger,
		Scheduler:  sched,
		Runs:       runs,
	})
	h.now = func() time.Time { return time.Date(2024, 6, 8, 6, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	_, err = authn.SeedAdmin(ctx, "admin@example.com", "admin-pass")
	require.NoError(t, err)
	_, err = authn.CreateSubAdmin(ctx, "sub@example.com", "sub-pass-1")
	require.NoError(t, err)

	adminToken, _, err := authn.Authenticate(ctx, "admin@example.com", "admin-pass")
	require.NoError(t, err)
	subToken, _, err := authn.Authenticate(ctx, "sub@example.com", "sub-pass-1")
	require.NoError(t, err)

	return &testServer{
		store:    store,
		ledger:   ledger,
		client:   client,
		mux:      Router(h),
		admin:    adminToken,
		subAdmin: subToken,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	return rr
}

// expect asserts the status code and decodes a JSON object body.
func expect(t *testing.T, rr *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	require.Equal(t, status, rr.Code, "body=%q", rr.Body.String())

	if rr.Body.Len() == 0 || !strings.Contains(rr.Header().Get("Content-Type"), "application/json") {
		return nil
	}
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m), "body=%q", rr.Body.String())
	return m
}

func (ts *testServer) createDrama(t *testing.T, name, date string) string {
	t.Helper()

	body := expect(t, ts.do(t, http.MethodPost, "/v1/dramas", ts.admin, map[string]any{
		"name":        name,
		"displayDate": date,
		"message":     name + " tonight",
	}), http.StatusCreated)
	return body["id"].(string)
}

func (ts *testServer) createContact(t *testing.T, name, phone string) string {
	t.Helper()

	body := expect(t, ts.do(t, http.MethodPost, "/v1/contacts", ts.admin, map[string]any{"name": name, "phone": phone}), http.StatusCreated)
	return body["id"].(string)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/health", "", nil)
	body := expect(t, rr, http.StatusOK)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	require.Equal(t, true, body["ok"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	body := expect(t, ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "sub@example.com", "password": "sub-pass-1"}), http.StatusOK)
	require.Equal(t, string(model.RoleSubAdmin), body["role"])
	require.NotEmpty(t, body["token"])

	expect(t, ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "sub@example.com", "password": "nope-nope"}), http.StatusUnauthorized)
	expect(t, ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "nobody@example.com", "password": "nope-nope"}), http.StatusUnauthorized)
	expect(t, ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": "sub@example.com", "extra": 1}), http.StatusBadRequest)
}

func TestAccessControl(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/v1/dramas", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/v1/dramas", "abc.def.ghi", http.StatusUnauthorized},
		{"sub-admin lists dramas", http.MethodGet, "/v1/dramas", ts.subAdmin, http.StatusOK},
		{"sub-admin lists contacts", http.MethodGet, "/v1/contacts", ts.subAdmin, http.StatusForbidden},
		{"sub-admin creates drama", http.MethodPost, "/v1/dramas", ts.subAdmin, http.StatusForbidden},
		{"sub-admin deletes drama", http.MethodDelete, "/v1/dramas/x", ts.subAdmin, http.StatusForbidden},
		{"sub-admin sends", http.MethodPost, "/v1/sms/send/x", ts.subAdmin, http.StatusForbidden},
		{"sub-admin runs scheduled", http.MethodPost, "/v1/sms/scheduled", ts.subAdmin, http.StatusForbidden},
		{"sub-admin reads logs", http.MethodGet, "/v1/sms/logs", ts.subAdmin, http.StatusForbidden},
		{"sub-admin controls scheduler", http.MethodPost, "/v1/scheduler/start", ts.subAdmin, http.StatusForbidden},
		{"sub-admin creates sub-admin", http.MethodPost, "/v1/auth/sub-admins", ts.subAdmin, http.StatusForbidden},
		{"admin lists contacts", http.MethodGet, "/v1/contacts", ts.admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.do(t, tc.method, tc.path, tc.token, nil)
			require.Equal(t, tc.want, rr.Code, "body=%q", rr.Body.String())
		})
	}
}

func TestCreateSubAdmin(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/auth/sub-admins", ts.admin, map[string]any{"email": "new@example.com", "password": "password-1"})
	body := expect(t, rr, http.StatusCreated)
	require.Equal(t, string(model.RoleSubAdmin), body["role"])
	require.NotContains(t, rr.Body.String(), "password")

	expect(t, ts.do(t, http.MethodPost, "/v1/auth/sub-admins", ts.admin, map[string]any{"email": "new@example.com", "password": "password-1"}), http.StatusConflict)
	expect(t, ts.do(t, http.MethodPost, "/v1/auth/sub-admins", ts.admin, map[string]any{"email": "weak@example.com", "password": "x"}), http.StatusBadRequest)
}

func TestDramaLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDrama(t, "Hamlet", "2024-06-10")

	expect(t, ts.do(t, http.MethodPost, "/v1/dramas", ts.admin, map[string]any{"name": "Bad", "displayDate": "10/06/2024", "message": "m"}), http.StatusBadRequest)
	expect(t, ts.do(t, http.MethodPost, "/v1/dramas", ts.admin, map[string]any{"name": "", "displayDate": "2024-06-10", "message": "m"}), http.StatusBadRequest)

	body := expect(t, ts.do(t, http.MethodPut, "/v1/dramas/"+id, ts.subAdmin, map[string]any{"displayDate": "2024-06-12"}), http.StatusOK)
	require.Equal(t, "2024-06-12", body["displayDate"])
	require.Equal(t, "Hamlet", body["name"], "name untouched")
	require.NotEmpty(t, body["updatedBy"])
	require.NotEqual(t, body["createdBy"], body["updatedBy"])

	expect(t, ts.do(t, http.MethodPut, "/v1/dramas/"+id, ts.subAdmin, map[string]any{}), http.StatusBadRequest)

	body = expect(t, ts.do(t, http.MethodGet, "/v1/dramas", ts.subAdmin, nil), http.StatusOK)
	require.Len(t, body["items"], 1)

	expect(t, ts.do(t, http.MethodDelete, "/v1/dramas/"+id, ts.admin, nil), http.StatusNoContent)
	expect(t, ts.do(t, http.MethodPut, "/v1/dramas/"+id, ts.admin, map[string]any{"name": "Gone"}), http.StatusNotFound)
	expect(t, ts.do(t, http.MethodDelete, "/v1/dramas/"+id, ts.admin, nil), http.StatusNotFound)
}

func TestRescheduleClearsLogs(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDrama(t, "Hamlet", "2024-06-10")
	ts.createContact(t, "A", "+8801")

	expect(t, ts.do(t, http.MethodPost, "/v1/sms/send/"+id, ts.admin, nil), http.StatusOK)
	body := expect(t, ts.do(t, http.MethodGet, "/v1/sms/logs?dramaId="+id, ts.admin, nil), http.StatusOK)
	require.Len(t, body["items"], 1)

	expect(t, ts.do(t, http.MethodPut, "/v1/dramas/"+id, ts.subAdmin, map[string]any{"displayDate": "2024-06-11"}), http.StatusOK)

	body = expect(t, ts.do(t, http.MethodGet, "/v1/sms/logs?dramaId="+id, ts.admin, nil), http.StatusOK)
	require.Empty(t, body["items"])
}

func TestContacts(t *testing.T) {
	ts := newTestServer(t)

	expect(t, ts.do(t, http.MethodPost, "/v1/contacts", ts.admin, map[string]any{"name": "Rahim"}), http.StatusBadRequest)

	id := ts.createContact(t, "Rahim", "+8801711000001")

	body := expect(t, ts.do(t, http.MethodPut, "/v1/contacts/"+id, ts.admin, map[string]any{"phone": "+8801711000002"}), http.StatusOK)
	require.Equal(t, "+8801711000002", body["phone"])
	require.Equal(t, "Rahim", body["name"])

	expect(t, ts.do(t, http.MethodPut, "/v1/contacts/missing", ts.admin, map[string]any{"name": "x"}), http.StatusNotFound)
	expect(t, ts.do(t, http.MethodDelete, "/v1/contacts/"+id, ts.admin, nil), http.StatusNoContent)
}

func TestSendManual(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDrama(t, "Hamlet", "2024-06-10")
	ts.createContact(t, "A", "+8801")
	ts.createContact(t, "B", "+8802")
	ts.createContact(t, "C", "+8800")

	body := expect(t, ts.do(t, http.MethodPost, "/v1/sms/send/"+id, ts.admin, nil), http.StatusOK)
	require.Equal(t, "SMS sent to 2/3 contacts", body["message"])
	require.EqualValues(t, 3, ts.client.calls.Load())

	expect(t, ts.do(t, http.MethodPost, "/v1/sms/send/missing", ts.admin, nil), http.StatusNotFound)
	require.EqualValues(t, 3, ts.client.calls.Load(), "unknown drama must not reach the provider")
}

func TestSendScheduled(t *testing.T) {
	ts := newTestServer(t)

	body := expect(t, ts.do(t, http.MethodPost, "/v1/sms/scheduled", ts.admin, nil), http.StatusOK)
	require.Equal(t, "No dramas scheduled for sending today", body["message"])
	require.Equal(t, "2024-06-10", body["targetDate"])

	ts.createDrama(t, "Hamlet", "2024-06-10")
	body = expect(t, ts.do(t, http.MethodPost, "/v1/sms/scheduled", ts.admin, nil), http.StatusOK)
	require.Equal(t, "No contacts in database", body["message"])

	ts.createContact(t, "A", "+8801")
	ts.createContact(t, "B", "+8802")

	body = expect(t, ts.do(t, http.MethodPost, "/v1/sms/scheduled", ts.admin, nil), http.StatusOK)
	require.Equal(t, "Scheduled send complete. 2 SMS sent.", body["message"])

	body = expect(t, ts.do(t, http.MethodPost, "/v1/sms/scheduled", ts.admin, nil), http.StatusOK)
	require.Equal(t, "Scheduled send complete. 0 SMS sent.", body["message"])
	require.EqualValues(t, 2, body["skipped"])
}

func TestListLogs(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDrama(t, "Hamlet", "2024-06-10")
	ts.createContact(t, "A", "+8801")
	ts.createContact(t, "B", "+8800")

	expect(t, ts.do(t, http.MethodPost, "/v1/sms/send/"+id, ts.admin, nil), http.StatusOK)

	body := expect(t, ts.do(t, http.MethodGet, "/v1/sms/logs", ts.admin, nil), http.StatusOK)
	require.Equal(t, 50, ts.ledger.got.Limit)
	require.Zero(t, ts.ledger.got.Offset)
	require.Len(t, body["items"], 2)

	body = expect(t, ts.do(t, http.MethodGet, "/v1/sms/logs?dramaId="+id+"&status=failed&limit=10&offset=0", ts.admin, nil), http.StatusOK)
	require.Equal(t, repo.DeliveryQuery{EventID: id, Status: model.Failed, Limit: 10}, ts.ledger.got)

	items := body["items"].([]any)
	require.Len(t, items, 1)
	rec := items[0].(map[string]any)
	require.Equal(t, "rejected", rec["error"])
	require.Equal(t, id, rec["dramaId"])
	require.NotContains(t, rec, "providerId")

	expect(t, ts.do(t, http.MethodGet, "/v1/sms/logs?limit=abc&offset=zzz", ts.admin, nil), http.StatusOK)
	require.Equal(t, 50, ts.ledger.got.Limit)
	require.Zero(t, ts.ledger.got.Offset)

	expect(t, ts.do(t, http.MethodGet, "/v1/sms/logs?status=queued", ts.admin, nil), http.StatusBadRequest)
}

func TestListLogs_RepoErrorReturns500(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.err = errors.New("db down")

	rr := ts.do(t, http.MethodGet, "/v1/sms/logs", ts.admin, nil)
	expect(t, rr, http.StatusInternalServerError)
	require.Contains(t, rr.Body.String(), "db down")
}

func TestSchedulerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	steps := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/v1/scheduler/status", false},
		{http.MethodPost, "/v1/scheduler/start", true},
		{http.MethodGet, "/v1/scheduler/status", true},
		{http.MethodPost, "/v1/scheduler/stop", false},
	}
	for _, st := range steps {
		body := expect(t, ts.do(t, st.method, st.path, ts.admin, nil), http.StatusOK)
		require.Equal(t, st.want, body["running"], "%s %s", st.method, st.path)
	}
}

func TestSchedulerStatus_ReportsLastRuns(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDrama(t, "Hamlet", "2024-06-10")
	ts.createContact(t, "A", "+8801")

	expect(t, ts.do(t, http.MethodPost, "/v1/sms/send/"+id, ts.admin, nil), http.StatusOK)

	body := expect(t, ts.do(t, http.MethodGet, "/v1/scheduler/status", ts.admin, nil), http.StatusOK)
	lastRuns, ok := body["lastRuns"].(map[string]any)
	require.True(t, ok, "lastRuns object in %v", body)

	manual, ok := lastRuns["manual"].(map[string]any)
	require.True(t, ok, "manual summary in %v", lastRuns)
	require.Equal(t, "SMS sent to 1/1 contacts", manual["message"])
	require.Equal(t, id, manual["eventId"])
	require.NotContains(t, lastRuns, "scheduled")
}

func TestRouterRoot(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "drama-notifier", strings.TrimSpace(rr.Body.String()))
}
