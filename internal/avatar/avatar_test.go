package avatar

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/logger"
)

// pngBytes starts with the PNG signature, enough for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"abc.png", "abc.png", false},
		{"  abc.png ", "abc.png", false},
		{"../../etc/passwd", "passwd", false},
		{`..\..\secret.png`, "secret.png", false},
		{"", "", true},
		{"..", "", true},
		{"/", "", true},
	}

	for _, tt := range tests {
		got, err := cleanName(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvalidName, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestLocalSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), pngBytes, 0o600))

	src := NewLocalSource(dir)
	assert.Equal(t, "local", src.Name())

	rc, err := src.Open(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, readAll(t, rc))

	_, err = src.Open(context.Background(), "missing.png")
	require.ErrorIs(t, err, ErrNotFound)

	// Traversal is reduced to the base name inside dir.
	_, err = src.Open(context.Background(), "../a.png")
	require.NoError(t, err)

	require.NoError(t, src.Close())
}

func TestHTTPSource(t *testing.T) {
	t.Parallel()

	src, err := NewHTTPSource("https://forum.test/assets/avatars", time.Second)
	require.NoError(t, err)

	transport := httpmock.NewMockTransport()
	src.client.Transport = transport

	transport.RegisterResponder(http.MethodGet, "https://forum.test/assets/avatars/a.png",
		httpmock.NewBytesResponder(http.StatusOK, pngBytes))
	transport.RegisterResponder(http.MethodGet, "https://cdn.test/external.png",
		httpmock.NewBytesResponder(http.StatusOK, pngBytes))
	transport.RegisterResponder(http.MethodGet, "https://forum.test/assets/avatars/gone.png",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))
	transport.RegisterResponder(http.MethodGet, "https://forum.test/assets/avatars/broken.png",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	ctx := context.Background()

	rc, err := src.Open(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, readAll(t, rc))

	rc, err = src.Open(ctx, "https://cdn.test/external.png")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, readAll(t, rc))

	_, err = src.Open(ctx, "gone.png")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = src.Open(ctx, "broken.png")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAvatar))
	assert.Contains(t, err.Error(), "500")

	assert.Equal(t, 4, transport.GetTotalCallCount())
	require.NoError(t, src.Close())
}

func TestNewHTTPSource_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPSource("not a url", 0)
	require.Error(t, err)
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		settings conf.AvatarSettings
		want     string
		wantErr  bool
	}{
		{conf.AvatarSettings{Type: conf.AvatarLocal, Dir: t.TempDir()}, "local", false},
		{conf.AvatarSettings{Type: conf.AvatarSFTP, Host: "h"}, "sftp", false},
		{conf.AvatarSettings{Type: conf.AvatarFTP, Host: "h"}, "ftp", false},
		{conf.AvatarSettings{Type: conf.AvatarHTTP, BaseURL: "https://forum.test"}, "http", false},
		{conf.AvatarSettings{Type: "s3"}, "", true},
	}

	for _, tt := range tests {
		src, err := NewSource(&tt.settings, quietLogger())
		if tt.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, src.Name())
		require.NoError(t, src.Close())
	}
}

func TestSFTPSource_RequiresAuth(t *testing.T) {
	t.Parallel()

	src := NewSFTPSource(&conf.AvatarSettings{Host: "127.0.0.1"}, quietLogger())
	assert.Equal(t, defaultSFTPPort, src.port)

	_, err := src.clientConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no authentication method")
}

func TestSFTPSource_MissingKnownHosts(t *testing.T) {
	t.Parallel()

	src := NewSFTPSource(&conf.AvatarSettings{
		Host:       "127.0.0.1",
		Password:   "pw",
		KnownHosts: filepath.Join(t.TempDir(), "missing_known_hosts"),
	}, quietLogger())

	_, err := src.clientConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known hosts")
}

func TestFTPSource_ConnectFailure(t *testing.T) {
	t.Parallel()

	// Port 1 on loopback refuses connections.
	src := NewFTPSource(&conf.AvatarSettings{Host: "127.0.0.1", Port: 1, Timeout: time.Second}, quietLogger())
	assert.Equal(t, "ftp", src.Name())

	_, err := src.Open(context.Background(), "a.png")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAvatar))
	require.NoError(t, src.Close())
}

func TestUploader_Store(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	u := NewUploader(root, 1024)

	upload, err := u.Store(bytes.NewReader(pngBytes), 7, "carol.png")
	require.NoError(t, err)

	assert.Equal(t, int64(7), upload.UserID)
	assert.Equal(t, "carol.png", upload.OriginalFilename)
	assert.Equal(t, "png", upload.Extension)
	assert.Len(t, upload.SHA1, 40)
	assert.Equal(t, int64(len(pngBytes)), upload.Filesize)
	assert.Equal(t, "/uploads/default/original/1X/"+upload.SHA1+".png", upload.URL)

	stored, err := os.ReadFile(filepath.Join(root, "original", "1X", upload.SHA1+".png"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	// The same content maps to the same file.
	again, err := u.Store(bytes.NewReader(pngBytes), 8, "copy.png")
	require.NoError(t, err)
	assert.Equal(t, upload.SHA1, again.SHA1)

	entries, err := os.ReadDir(filepath.Join(root, "original", "1X"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestUploader_Rejects(t *testing.T) {
	t.Parallel()
	u := NewUploader(t.TempDir(), 16)

	_, err := u.Store(bytes.NewReader(pngBytes), 1, "big.png")
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = u.Store(strings.NewReader("hello"), 1, "note.txt")
	require.ErrorIs(t, err, ErrNotImage)
}
