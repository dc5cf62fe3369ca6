package observability

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/logger"
	"github.com/forumkit/flarum-importer/internal/target"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

type stubStatus struct {
	report *target.RunReport
	err    error
}

func (s stubStatus) Report() (*target.RunReport, error) {
	return s.report, s.err
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func newTestEndpoint(t *testing.T, status StatusProvider) (*Endpoint, *Metrics) {
	t.Helper()
	m, err := NewMetrics()
	require.NoError(t, err)
	e, err := NewEndpoint(&conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"}, m, status, quietLogger())
	require.NoError(t, err)
	return e, m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestNewEndpoint_Disabled(t *testing.T) {
	t.Parallel()
	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint(&conf.MetricsSettings{}, m, stubStatus{}, nil)
	require.Error(t, err)
}

func TestEndpoint_Routes(t *testing.T) {
	t.Parallel()
	report := &target.RunReport{
		State: entities.ImportStatusRunning,
		RunID: "run-1",
		Steps: []target.StepReport{{Step: "users", Total: 10, Offset: 5, Percent: 50, Created: 5}},
	}
	e, m := newTestEndpoint(t, stubStatus{report: report})
	m.Import.RecordBatch("users", "written", 0.1)

	rec := get(t, e.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, e.Handler(), "/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	var got target.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, entities.ImportStatusRunning, got.State)
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, int64(5), got.Steps[0].Created)

	rec = get(t, e.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `importer_batches_total{result="written",step="users"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestEndpoint_ProgressError(t *testing.T) {
	t.Parallel()
	e, _ := newTestEndpoint(t, stubStatus{err: errors.NewStd("db closed")})

	rec := get(t, e.Handler(), "/progress")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db closed")
}

func TestEndpoint_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	e, _ := newTestEndpoint(t, stubStatus{report: &target.RunReport{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		addr := e.echo.ListenerAddr()
		if addr == nil {
			return false
		}
		conn, err := net.DialTimeout("tcp", addr.String(), 100*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("endpoint did not stop")
	}
}
