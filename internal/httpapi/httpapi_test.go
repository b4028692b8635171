package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/appify/internal/config"
	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/log"
	"github.com/felixgeelhaar/appify/internal/metrics"
	"github.com/felixgeelhaar/appify/internal/proxy"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

const testKey = "apify_api_test"

// fakeProxy records calls and answers from canned values.
type fakeProxy struct {
	mu    sync.Mutex
	calls []string
	creds []string

	err       error
	user      *types.User
	run       *types.Run
	page      *types.DatasetPage
	log       string
	actorsArg proxy.ListActorsFilter
	runsArg   proxy.ListRunsFilter
	resultArg proxy.ResultsQuery
	input     map[string]any
	options   types.RunOptions
}

func (f *fakeProxy) record(op, credential string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	f.creds = append(f.creds, credential)
}

func (f *fakeProxy) ValidateCredential(_ context.Context, credential string) (*types.User, error) {
	f.record("validate", credential)
	return f.user, f.err
}

func (f *fakeProxy) ListActors(_ context.Context, credential string, filter proxy.ListActorsFilter) (*types.Page[types.ActorSummary], error) {
	f.record("list_actors", credential)
	f.actorsArg = filter
	if f.err != nil {
		return nil, f.err
	}
	return &types.Page[types.ActorSummary]{
		Items: []types.ActorSummary{{ID: "a1", Name: "web-scraper"}},
		Total: 1, Count: 1, Limit: 50,
	}, nil
}

func (f *fakeProxy) GetActorDetail(_ context.Context, credential, actorID string) (*types.ActorDetail, error) {
	f.record("get_actor", credential)
	if f.err != nil {
		return nil, f.err
	}
	return &types.ActorDetail{ID: actorID, Name: "web-scraper"}, nil
}

func (f *fakeProxy) StartRun(_ context.Context, credential, _ string, input map[string]any, opts types.RunOptions) (*types.Run, error) {
	f.record("start_run", credential)
	f.input = input
	f.options = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func (f *fakeProxy) GetRun(_ context.Context, credential, _ string) (*types.Run, error) {
	f.record("get_run", credential)
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func (f *fakeProxy) ListRuns(_ context.Context, credential string, filter proxy.ListRunsFilter) (*types.Page[types.Run], error) {
	f.record("list_runs", credential)
	f.runsArg = filter
	if f.err != nil {
		return nil, f.err
	}
	return &types.Page[types.Run]{Items: []types.Run{*f.run}, Total: 1, Count: 1}, nil
}

func (f *fakeProxy) AbortRun(_ context.Context, credential, runID string) (*types.AbortResult, error) {
	f.record("abort_run", credential)
	if f.err != nil {
		return nil, f.err
	}
	return &types.AbortResult{ID: runID, Status: types.RunStatusAborting}, nil
}

func (f *fakeProxy) GetRunResults(_ context.Context, credential, _ string, q proxy.ResultsQuery) (*types.DatasetPage, error) {
	f.record("get_results", credential)
	f.resultArg = q
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeProxy) GetRunLog(_ context.Context, credential, _ string) (string, error) {
	f.record("get_log", credential)
	return f.log, f.err
}

func (f *fakeProxy) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWatcher struct {
	mu      sync.Mutex
	watched []string
	creds   []string
}

func (w *fakeWatcher) WatchStarted(run *types.Run, credential string) (bool, error) {
	if !run.Status.IsActive() {
		return false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched = append(w.watched, run.ID)
	w.creds = append(w.creds, credential)
	return true, nil
}

type testAPI struct {
	handler http.Handler
	proxy   *fakeProxy
	watcher *fakeWatcher
	metrics *metrics.Metrics
	reg     *prometheus.Registry
}

func newTestAPI(t *testing.T, fp *fakeProxy, mutate ...func(*Config)) *testAPI {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	w := &fakeWatcher{}

	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	return &testAPI{
		handler: NewRouter(Deps{
			Proxy:    fp,
			Relay:    w,
			Metrics:  m,
			Gatherer: reg,
			Logger:   log.Discard(),
		}, cfg),
		proxy:   fp,
		watcher: w,
		metrics: m,
		reg:     reg,
	}
}

func (a *testAPI) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func withKey() map[string]string {
	return map[string]string{APIKeyHeader: testKey}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func runningRun() *types.Run {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &types.Run{ID: "r1", ActID: "a1", Status: types.RunStatusRunning, StartedAt: &started}
}

func TestProtectedRoutesRequireCredential(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/actors"},
		{http.MethodGet, "/api/actors/a1"},
		{http.MethodPost, "/api/actors/a1/run"},
		{http.MethodPost, "/api/actors/a1/run-with-updates"},
		{http.MethodGet, "/api/runs"},
		{http.MethodGet, "/api/runs/r1"},
		{http.MethodGet, "/api/runs/r1/results"},
		{http.MethodGet, "/api/runs/r1/log"},
		{http.MethodPost, "/api/runs/r1/abort"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			api := newTestAPI(t, &fakeProxy{run: runningRun()})

			rec := api.do(rt.method, rt.path, "", nil)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "API key is required", decodeBody(t, rec)["error"])
			assert.Zero(t, api.proxy.callCount(), "no upstream call expected")
		})
	}
}

func TestCredentialFromBody(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{run: runningRun()})

	rec := api.do(http.MethodPost, "/api/actors/a1/run", `{"apiKey":"body-key","input":{"url":"https://example.com"}}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"body-key"}, api.proxy.creds)
	assert.Equal(t, map[string]any{"url": "https://example.com"}, api.proxy.input)
}

func TestHeaderCredentialWinsOverBody(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{run: runningRun()})

	rec := api.do(http.MethodPost, "/api/actors/a1/run", `{"apiKey":"body-key"}`, withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{testKey}, api.proxy.creds)
}

func TestValidateKey(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		api := newTestAPI(t, &fakeProxy{})
		rec := api.do(http.MethodPost, "/api/validate-key", `{}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, map[string]any{"valid": false, "error": "API key is required"}, decodeBody(t, rec))
		assert.Zero(t, api.proxy.callCount())
	})

	t.Run("valid key", func(t *testing.T) {
		api := newTestAPI(t, &fakeProxy{user: &types.User{ID: "u1", Username: "jane", Email: "j@example.com"}})
		rec := api.do(http.MethodPost, "/api/validate-key", `{"apiKey":"k"}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "jane", body["user"].(map[string]any)["username"])
	})

	t.Run("rejected key", func(t *testing.T) {
		api := newTestAPI(t, &fakeProxy{err: errors.NewInvalidCredentialError(nil)})
		rec := api.do(http.MethodPost, "/api/validate-key", `{"apiKey":"bad"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, map[string]any{"valid": false, "error": "Invalid API key"}, decodeBody(t, rec))
	})

	t.Run("upstream down", func(t *testing.T) {
		api := newTestAPI(t, &fakeProxy{err: errors.NewUpstreamUnavailableError(fmt.Errorf("connection refused"))})
		rec := api.do(http.MethodPost, "/api/validate-key", `{"apiKey":"k"}`, nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, map[string]any{"valid": false, "error": "Apify service unavailable"}, decodeBody(t, rec))
	})

	t.Run("upstream error", func(t *testing.T) {
		api := newTestAPI(t, &fakeProxy{err: errors.NewUpstreamError(http.StatusInternalServerError, "boom")})
		rec := api.do(http.MethodPost, "/api/validate-key", `{"apiKey":"k"}`, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, map[string]any{"valid": false, "error": "Apify request failed"}, decodeBody(t, rec))
	})

	t.Run("malformed body", func(t *testing.T) {
		api := newTestAPI(t, &fakeProxy{})
		rec := api.do(http.MethodPost, "/api/validate-key", `{"apiKey":`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["valid"])
		assert.Zero(t, api.proxy.callCount())
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{"invalid key", errors.NewInvalidCredentialError(nil), http.StatusUnauthorized, "Invalid API key", ""},
		{"not found", errors.NewNotFoundError(nil), http.StatusNotFound, "Resource not found", ""},
		{"unavailable", errors.NewUpstreamUnavailableError(nil), http.StatusServiceUnavailable, "Apify service unavailable", ""},
		{"upstream error", errors.NewUpstreamError(http.StatusBadRequest, "Input is not valid"), http.StatusBadRequest, "Apify request failed", "Input is not valid"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "Internal server error", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, &fakeProxy{err: tt.err})
			rec := api.do(http.MethodGet, "/api/runs/r1", "", withKey())

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantError, body["error"])
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body["message"])
			} else {
				assert.NotContains(t, body, "message")
			}
		})
	}
}

func TestListActorsPassesFilter(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{})

	rec := api.do(http.MethodGet, "/api/actors?limit=10&offset=20&category=AI&search=maps", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, proxy.ListActorsFilter{Limit: 10, Offset: 20, Category: "AI", Search: "maps"}, api.proxy.actorsArg)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["total"])
	assert.Len(t, body["items"], 1)
}

func TestBadPaginationIsRejectedLocally(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{})

	rec := api.do(http.MethodGet, "/api/actors?limit=abc", "", withKey())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit must be a non-negative integer", decodeBody(t, rec)["error"])
	assert.Zero(t, api.proxy.callCount())
}

func TestGetActorWithoutSchema(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{})

	rec := api.do(http.MethodGet, "/api/actors/a1", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "inputSchema")
	assert.Nil(t, body["inputSchema"])
}

func TestStartRunWithUpdatesWatchesActiveRun(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{run: runningRun()})

	rec := api.do(http.MethodPost, "/api/actors/a1/run-with-updates", `{"input":{},"options":{"memory":1024}}`, withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", decodeBody(t, rec)["id"])
	assert.Equal(t, []string{"r1"}, api.watcher.watched)
	assert.Equal(t, []string{testKey}, api.watcher.creds)
	assert.Equal(t, types.RunOptions{Memory: 1024}, api.proxy.options)
	assert.Equal(t, 1.0, testutil.ToFloat64(api.metrics.RunsStarted.WithLabelValues("true")))
}

func TestStartRunWithoutUpdatesDoesNotWatch(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{run: runningRun()})

	rec := api.do(http.MethodPost, "/api/actors/a1/run", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, api.watcher.watched)
	assert.Equal(t, 1.0, testutil.ToFloat64(api.metrics.RunsStarted.WithLabelValues("false")))
}

func TestStartRunWithUpdatesSkipsFinishedRun(t *testing.T) {
	run := runningRun()
	run.Status = types.RunStatusSucceeded
	api := newTestAPI(t, &fakeProxy{run: run})

	rec := api.do(http.MethodPost, "/api/actors/a1/run-with-updates", `{}`, withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, api.watcher.watched)
}

func TestStartRunRejectsMalformedBody(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{run: runningRun()})

	rec := api.do(http.MethodPost, "/api/actors/a1/run", `{"input":`, withKey())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, api.proxy.callCount())
}

func TestBodyLimit(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{run: runningRun()}, func(c *Config) { c.BodyLimit = 32 })

	rec := api.do(http.MethodPost, "/api/actors/a1/run", `{"input":{"text":"`+strings.Repeat("x", 64)+`"}}`, withKey())

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, api.proxy.callCount())
}

func TestListRunsPassesFilter(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{run: runningRun()})

	rec := api.do(http.MethodGet, "/api/runs?status=RUNNING&limit=5", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, proxy.ListRunsFilter{Limit: 5, Status: "RUNNING"}, api.proxy.runsArg)
}

func TestAbortRun(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{})

	rec := api.do(http.MethodPost, "/api/runs/r1/abort", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"id": "r1", "status": "ABORTING"}, decodeBody(t, rec))
}

func TestRunResultsJSON(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{page: &types.DatasetPage{
		Items:  []json.RawMessage{json.RawMessage(`{"a":1}`)},
		Total:  1,
		Format: "json",
	}})

	rec := api.do(http.MethodGet, "/api/runs/r1/results?limit=10", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[{"a":1}],"total":1,"format":"json"}`, rec.Body.String())
	assert.Equal(t, proxy.ResultsQuery{Limit: 10}, api.proxy.resultArg)
}

func TestRunResultsEmptyDataset(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{page: &types.DatasetPage{Items: []json.RawMessage{}}})

	rec := api.do(http.MethodGet, "/api/runs/r1/results", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"total":0}`, rec.Body.String())
}

func TestRunResultsRaw(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{page: &types.DatasetPage{
		Format:      "csv",
		Raw:         []byte("a,b\n1,2\n"),
		ContentType: "text/csv; charset=utf-8",
	}})

	rec := api.do(http.MethodGet, "/api/runs/r1/results?format=csv", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "a,b\n1,2\n", rec.Body.String())
}

func TestRunLogIsPlainText(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{log: "2026-01-01 INFO started\n"})

	rec := api.do(http.MethodGet, "/api/runs/r1/log", "", withKey())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2026-01-01 INFO started\n", rec.Body.String())
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{})

	rec := api.do(http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "OK", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}

func TestMetricsEndpointAndRouteLabels(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{run: runningRun()})

	api.do(http.MethodGet, "/api/runs/r1", "", withKey())
	api.do(http.MethodGet, "/api/runs/r2", "", withKey())

	assert.Equal(t, 2.0, testutil.ToFloat64(api.metrics.HTTPRequests.WithLabelValues("GET", "/api/runs/{runId}", "200")))

	rec := api.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "appify_http_requests_total")
}

func TestNotFoundIsJSON(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{})

	rec := api.do(http.MethodGet, "/api/nope", "", withKey())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeBody(t, rec)["error"])
}

// The real proxy against a counting upstream: a request without a key must
// never reach it.
func TestMissingCredentialNeverReachesUpstream(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"data":{"id":"r1","status":"RUNNING"}}`)
	}))
	defer upstream.Close()

	svc := proxy.New(proxy.Config{BaseURL: upstream.URL}, proxy.WithLogger(log.Discard()))
	handler := NewRouter(Deps{Proxy: svc, Logger: log.Discard()}, DefaultConfig())

	for _, path := range []string{"/api/runs/r1", "/api/actors", "/api/runs/r1/log"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Zero(t, hits.Load())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs/r1", nil)
	req.Header.Set(APIKeyHeader, testKey)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, hits.Load())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(&config.Config{
		Server:    config.ServerConfig{FrontendURL: "https://app.example.com", BodyLimit: 1024},
		RateLimit: config.RateLimitConfig{Enabled: true, Requests: 5, Window: time.Minute},
	})

	assert.Equal(t, "https://app.example.com", cfg.FrontendURL)
	assert.EqualValues(t, 1024, cfg.BodyLimit)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
}
