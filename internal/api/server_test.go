package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trendsync/internal/metrics"
	"trendsync/internal/trends"
)

type fakeRunner struct {
	mu      sync.Mutex
	outcome trends.RunOutcome
	err     error
	block   chan struct{} // when set, Run waits until closed
	calls   int
}

func (r *fakeRunner) Run(ctx context.Context) (trends.RunOutcome, error) {
	r.mu.Lock()
	r.calls++
	block := r.block
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return trends.RunOutcome{Status: trends.RunStatusFailed}, ctx.Err()
		}
	}
	return r.outcome, r.err
}

func newTestServer(runner *fakeRunner) *Server {
	metrics.Init()
	return NewServer(runner, zap.NewNop())
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTriggerRunReturnsOutcome(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outcome: trends.RunOutcome{
		RunID:      "run-1",
		Status:     trends.RunStatusSuccess,
		RowsLoaded: 12,
	}}
	srv := newTestServer(runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got trends.RunOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "run-1", got.RunID)
	require.Equal(t, trends.RunStatusSuccess, got.Status)
	require.Equal(t, 12, got.RowsLoaded)
}

func TestTriggerRunFatalErrorIs500(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		outcome: trends.RunOutcome{RunID: "run-2", Status: trends.RunStatusFailed},
		err:     errors.New("store unreachable"),
	}
	srv := newTestServer(runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var got trends.RunOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, trends.RunStatusFailed, got.Status)
}

func TestTriggerRunRejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	runner := &fakeRunner{
		outcome: trends.RunOutcome{RunID: "run-3", Status: trends.RunStatusSuccess},
		block:   block,
	}
	srv := newTestServer(runner)

	firstDone := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
		firstDone <- rec.Code
	}()

	// Wait for the first request to take the run lock.
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls == 1
	}, time.Second, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	close(block)
	require.Equal(t, http.StatusOK, <-firstDone)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Equal(t, 1, runner.calls)
}

func TestLastRun(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outcome: trends.RunOutcome{
		RunID:  "run-4",
		Status: trends.RunStatusPartialFailure,
	}}
	srv := newTestServer(runner)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got trends.RunOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "run-4", got.RunID)
	require.Equal(t, trends.RunStatusPartialFailure, got.Status)
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeRunner{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
