package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"stratbench/internal/analysis"
	"stratbench/internal/data"
	"stratbench/internal/engine"
	"stratbench/internal/sandbox"
	"stratbench/internal/scheduler"
)

const okStrategy = `package main

import "stratbench/strategy"

func Universe() []string { return []string{"BTCUSDT"} }

func OnData(s *strategy.Slice, p *strategy.Portfolio) strategy.Signal {
	return strategy.Hold()
}
`

const badStrategy = `package main

import (
	"os"

	"stratbench/strategy"
)

func Universe() []string { return []string{"BTCUSDT"} }

func OnData(s *strategy.Slice, p *strategy.Portfolio) strategy.Signal {
	os.Exit(1)
	return strategy.Hold()
}
`

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, job *sandbox.Job) (*engine.Outcome, error) {
	return &engine.Outcome{
		EquityCurve: []engine.Snapshot{
			{Timestamp: job.Start, Cash: job.InitialCapital, Equity: job.InitialCapital},
			{Timestamp: job.End, Cash: job.InitialCapital, Equity: job.InitialCapital * 1.1},
		},
		FinalEquity: job.InitialCapital * 1.1,
		Manifest:    engine.Manifest{Hash: strings.Repeat("ab", 32)},
	}, nil
}

func newTestServer(t *testing.T) (*Server, *scheduler.Scheduler) {
	t.Helper()
	store, err := data.NewStore(t.TempDir())
	require.NoError(t, err)
	cache, err := data.NewCache(data.CacheConfig{
		Store:           store,
		Provider:        data.NewSyntheticProvider(),
		RateLimitPerMin: 600000,
	})
	require.NoError(t, err)
	runs, err := scheduler.NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })

	gate := analysis.NewGate(nil)
	sched := scheduler.New(gate, cache, stubRunner{}, runs, 3)
	srv, err := NewServer(Config{Addr: ":0", Scheduler: sched, Gate: gate, Cache: cache})
	require.NoError(t, err)
	return srv, sched
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func submitBody(source string) string {
	start := int64(1700000000000) - int64(1700000000000)%3600000
	payload, _ := json.Marshal(map[string]any{
		"name":            "api-test",
		"source":          source,
		"resolution":      "1h",
		"start":           start,
		"end":             start + 23*3600000,
		"initial_capital": 10000,
		"commission":      0.02,
	})
	return string(payload)
}

func jsonString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/analyze", `{"source":`+jsonString(okStrategy)+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "verdict.accepted").Bool())

	rec = doJSON(t, srv, http.MethodPost, "/api/analyze", `{"source":`+jsonString(badStrategy)+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.False(t, gjson.Get(body, "verdict.accepted").Bool())
	assert.Positive(t, gjson.Get(body, "verdict.violations.#").Int())

	rec = doJSON(t, srv, http.MethodPost, "/api/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAndFetchRun(t *testing.T) {
	srv, sched := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/backtests", submitBody(okStrategy))
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := gjson.Get(rec.Body.String(), "run.id").String()
	require.NotEmpty(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	final, err := sched.Await(ctx, id)
	require.NoError(t, err)
	require.Equal(t, string(scheduler.StatusSucceeded), final.Status)

	rec = doJSON(t, srv, http.MethodGet, "/api/backtests/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "succeeded", gjson.Get(body, "run.status").String())
	assert.Len(t, gjson.Get(body, "run.manifest.hash").String(), 64)

	rec = doJSON(t, srv, http.MethodGet, "/api/backtests/"+id+"/equity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "equity_curve.#").Int())

	rec = doJSON(t, srv, http.MethodGet, "/api/backtests/"+id+"/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.1, gjson.Get(rec.Body.String(), "metrics.total_return").Float(), 1e-9)

	rec = doJSON(t, srv, http.MethodGet, "/api/backtests/"+id+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestSubmitRejectedReturnsViolations(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/backtests", submitBody(badStrategy))
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "rejected", gjson.Get(body, "run.status").String())

	id := gjson.Get(body, "run.id").String()
	rec = doJSON(t, srv, http.MethodGet, "/api/backtests/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, gjson.Get(rec.Body.String(), "run.violations.#").Int())

	// 被拒绝的 run 没有结果可查
	rec = doJSON(t, srv, http.MethodGet, "/api/backtests/"+id+"/trades", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/backtests/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCandlesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	start := int64(1700000000000) - int64(1700000000000)%3600000
	end := start + 9*3600000
	rec := doJSON(t, srv, http.MethodGet,
		"/api/data/candles?symbol=BTCUSDT&resolution=1h&start_ts="+itoa(start)+"&end_ts="+itoa(end), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10), gjson.Get(rec.Body.String(), "candles.#").Int())

	rec = doJSON(t, srv, http.MethodGet, "/api/data/candles?symbol=BTCUSDT", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
