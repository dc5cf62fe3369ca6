package avatar

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/forumkit/flarum-importer/internal/errors"
)

// LocalSource reads avatars from a directory, typically a copy of Flarum's
// public/assets/avatars.
type LocalSource struct {
	dir string
}

// NewLocalSource creates a source reading from dir.
func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{dir: dir}
}

// Name returns "local".
func (s *LocalSource) Name() string { return "local" }

// Open opens the avatar file.
func (s *LocalSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, avatarError(err, s.Name(), "open", file)
	}
	return f, nil
}

// Close is a no-op.
func (s *LocalSource) Close() error { return nil }
