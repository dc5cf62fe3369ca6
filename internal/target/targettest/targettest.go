// Package targettest opens throwaway target stores for tests.
package targettest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forumkit/flarum-importer/internal/logger"
	"github.com/forumkit/flarum-importer/internal/target"
)

// NewSQLite returns an initialized SQLite target in t.TempDir(). The
// database is closed when the test ends.
func NewSQLite(t testing.TB) *target.SQLiteManager {
	t.Helper()

	mgr, err := target.NewSQLiteManager(target.Config{
		Path:   filepath.Join(t.TempDir(), "discourse.db"),
		Logger: logger.NewSlogLogger(nil, logger.LogLevelError, nil),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	require.NoError(t, mgr.Initialize())
	return mgr
}
