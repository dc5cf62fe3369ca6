// Package avatar fetches Flarum avatar files and stores them as Discourse
// uploads.
package avatar

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/logger"
)

// Source opens avatar files by the name stored in Flarum's avatar_url column.
type Source interface {
	// Open returns the avatar contents. A missing file returns ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Name identifies the source kind in logs.
	Name() string
	// Close releases any connection held by the source.
	Close() error
}

var (
	// ErrNotFound indicates the avatar file does not exist in the source.
	ErrNotFound = errors.NewStd("avatar not found")

	// ErrInvalidName indicates an avatar name that cannot be resolved safely.
	ErrInvalidName = errors.NewStd("invalid avatar name")
)

// NewSource creates the avatar source selected in settings.
func NewSource(settings *conf.AvatarSettings, log logger.Logger) (Source, error) {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	log = log.Module("avatar")

	switch settings.Type {
	case conf.AvatarLocal:
		return NewLocalSource(settings.Dir), nil
	case conf.AvatarSFTP:
		return NewSFTPSource(settings, log), nil
	case conf.AvatarFTP:
		return NewFTPSource(settings, log), nil
	case conf.AvatarHTTP:
		return NewHTTPSource(settings.BaseURL, settings.Timeout)
	default:
		return nil, fmt.Errorf("unsupported avatar source %q", settings.Type)
	}
}

// cleanName reduces an avatar name to a single file name so it cannot
// escape the avatar directory.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

func avatarError(err error, source, op, name string) error {
	return errors.New(fmt.Errorf("avatar %s %s failed: %w", source, op, err)).
		Component("avatar").
		Category(errors.CategoryAvatar).
		Priority(errors.PriorityLow).
		Context("source", source).
		Context("avatar", name).
		Build()
}
