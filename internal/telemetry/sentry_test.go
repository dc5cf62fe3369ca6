package telemetry

import (
	"io"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/logger"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

// setupMockSentry initializes Sentry against a mock transport. Tests using it
// share the global hub and must not run in parallel.
func setupMockSentry(t *testing.T) *MockTransport {
	t.Helper()
	transport := NewMockTransport()
	enabled, err := initSentry(&conf.SentrySettings{Enabled: true, SampleRate: 1.0}, "1.2.3", quietLogger(), transport)
	require.NoError(t, err)
	require.True(t, enabled)
	t.Cleanup(func() {
		Shutdown(time.Second)
		_ = sentry.Init(sentry.ClientOptions{})
	})
	return transport
}

func TestInit_Disabled(t *testing.T) {
	enabled, err := Init(&conf.SentrySettings{Enabled: false}, "dev", quietLogger())
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = Init(nil, "dev", quietLogger())
	require.NoError(t, err)
	assert.False(t, enabled)

	assert.True(t, Flush(10*time.Millisecond), "flush without sentry is a no-op")
}

func TestInit_InvalidDSN(t *testing.T) {
	_, err := Init(&conf.SentrySettings{Enabled: true, DSN: "::not a dsn::"}, "dev", quietLogger())
	require.Error(t, err)
}

func TestEnhancedErrorsReachSentry(t *testing.T) {
	transport := setupMockSentry(t)

	_ = errors.Newf("target login failed for importer:s3cret@tcp(db:3306) owner admin@example.com").
		Component("target").
		Category(errors.CategoryTarget).
		Build()

	require.True(t, Flush(time.Second))
	events := transport.GetEvents()
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, "target", event.Tags["component"])
	assert.Equal(t, string(errors.CategoryTarget), event.Tags["category"])
	assert.Equal(t, "flarum-importer@1.2.3", event.Release)
	assert.NotContains(t, event.Message, "s3cret")
	assert.NotContains(t, event.Message, "admin@example.com")
	assert.Empty(t, event.ServerName)
}

func TestShutdownDetachesReporter(t *testing.T) {
	transport := setupMockSentry(t)
	Shutdown(time.Second)

	_ = errors.Newf("after shutdown").Component("importer").Category(errors.CategoryTarget).Build()
	assert.Empty(t, transport.GetEvents())
	assert.Nil(t, errors.GetTelemetryReporter())
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := &sentry.Event{
		ServerName: "forum-db-01",
		User:       sentry.User{ID: "42", Email: "admin@example.com", IPAddress: "10.0.0.1"},
		Contexts: map[string]sentry.Context{
			"os":      {"name": "linux"},
			"device":  {"arch": "amd64"},
			"runtime": {"name": "go"},
			"value":   {"value": "kept"},
		},
		Extra: map[string]any{"component": "importer", "path": "/home/admin"},
		Tags:  map[string]string{"hostname": "forum-db-01", "category": "target"},
	}

	got := applyPrivacyFilters(event)
	assert.Empty(t, got.ServerName)
	assert.True(t, got.User.IsEmpty())
	assert.NotContains(t, got.Contexts, "os")
	assert.NotContains(t, got.Contexts, "device")
	assert.NotContains(t, got.Contexts, "runtime")
	assert.Contains(t, got.Contexts, "value")
	assert.Equal(t, map[string]any{"component": "importer"}, got.Extra)
	assert.Equal(t, map[string]string{"category": "target"}, got.Tags)
}
