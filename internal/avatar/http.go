package avatar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPSource downloads avatars from the Flarum site, e.g.
// https://forum.example/assets/avatars.
type HTTPSource struct {
	baseURL *url.URL
	client  *http.Client
}

// NewHTTPSource creates a source resolving avatar names against baseURL.
func NewHTTPSource(baseURL string, timeout time.Duration) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid avatar base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPSource{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name returns "http".
func (s *HTTPSource) Name() string { return "http" }

// resolve returns the download URL. Absolute avatar URLs, stored by Flarum
// when avatars live on external storage, are used as-is.
func (s *HTTPSource) resolve(name string) (string, error) {
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return name, nil
	}
	file, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return s.baseURL.JoinPath(file).String(), nil
}

// Open downloads the avatar.
func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	target, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, avatarError(err, s.Name(), "request", name)
	}
	req.Header.Set("User-Agent", "flarum-importer")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, avatarError(err, s.Name(), "get", name)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_ = resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_ = resp.Body.Close()
		return nil, avatarError(fmt.Errorf("unexpected status %s", resp.Status), s.Name(), "get", name)
	}
	return resp.Body, nil
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
