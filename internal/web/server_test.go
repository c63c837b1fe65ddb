package web

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

type fakeRefresher struct {
	status  dashboard.Status
	accept  bool
	refresh int
}

func (f *fakeRefresher) Status() dashboard.Status { return f.status }
func (f *fakeRefresher) Refresh() bool {
	f.refresh++
	return f.accept
}

func newTestServer(r Refresher, store *dashboard.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return NewServer(r, store, opts)
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestSnapshotLoadingBeforeFirstSuccess(t *testing.T) {
	srv := newTestServer(&fakeRefresher{status: dashboard.Status{State: dashboard.StateFetching}}, dashboard.NewStore(), Options{})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"state":"loading"}`, rec.Body.String())
}

func TestSnapshotErrorBeforeFirstSuccess(t *testing.T) {
	srv := newTestServer(&fakeRefresher{status: dashboard.Status{State: dashboard.StateError, Message: "Failed to load data: x"}}, dashboard.NewStore(), Options{})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"state":"error","message":"Failed to load data: x"}`, rec.Body.String())
}

func TestSnapshotServesCommittedSnapshot(t *testing.T) {
	store := dashboard.NewStore()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.Replace(&telemetry.Snapshot{
		CycleID:            "c1",
		Summary:            telemetry.SummaryMetrics{telemetry.CounterHTTPRequests: 2},
		MethodDistribution: map[string]int{"GET": 2},
	}, at)
	srv := newTestServer(&fakeRefresher{status: dashboard.Status{State: dashboard.StateError, Message: "boom"}}, store, Options{})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body SnapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.State)
	assert.True(t, body.Stale)
	assert.True(t, body.LastUpdated.Equal(at))
	require.NotNil(t, body.Snapshot)
	assert.Equal(t, "c1", body.Snapshot.CycleID)
	assert.Equal(t, 2, body.Snapshot.MethodDistribution["GET"])
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(&fakeRefresher{status: dashboard.Status{State: dashboard.StateReady, CycleID: "c9", Failures: 0}}, dashboard.NewStore(), Options{})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, "c9", body["cycle_id"])
}

func TestRefreshEndpoint(t *testing.T) {
	r := &fakeRefresher{status: dashboard.Status{State: dashboard.StateReady}, accept: true}
	srv := newTestServer(r, dashboard.NewStore(), Options{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	r.accept = false
	r.status.State = dashboard.StateFetching
	rec = do(t, srv.Handler(), http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"result":"ignored","state":"fetching"}`, rec.Body.String())
	assert.Equal(t, 2, r.refresh)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 2, r.refresh)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeRefresher{}, dashboard.NewStore(), Options{})
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv.Handler(), http.MethodPost, "/api/snapshot").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv.Handler(), http.MethodDelete, "/api/status").Code)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(&fakeRefresher{}, dashboard.NewStore(), Options{RPS: 1, Burst: 1})
	defer srv.limiter.Close()
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/api/status").Code)
}

func TestStartServesAndShutsDown(t *testing.T) {
	srv := newTestServer(&fakeRefresher{status: dashboard.Status{State: dashboard.StateIdle}}, dashboard.NewStore(), Options{Bind: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Start(ctx))
	assert.Error(t, srv.Start(ctx), "second start must fail")

	resp, err := http.Get("http://" + srv.Addr() + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.Eventually(t, func() bool {
		_, err := http.Get("http://" + srv.Addr() + "/api/status")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRemoteIP(t *testing.T) {
	assert.Equal(t, "10.0.0.5", remoteIP("10.0.0.5:5555"))
	assert.Equal(t, "nohost", remoteIP("nohost"))
}
