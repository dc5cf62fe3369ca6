package avatar

import (
	"crypto/sha1" //nolint:gosec // Discourse keys uploads by SHA-1
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// uploadsSubdir mirrors Discourse's local store layout.
const uploadsSubdir = "original/1X"

var (
	// ErrTooLarge indicates an avatar above the configured size limit.
	ErrTooLarge = errors.NewStd("avatar exceeds size limit")

	// ErrNotImage indicates a file that is not a supported image type.
	ErrNotImage = errors.NewStd("avatar is not a supported image")
)

// imageExtensions maps the sniffed content type to the stored extension.
var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Uploader writes avatar files into the target uploads directory, named by
// content hash so identical files are stored once.
type Uploader struct {
	root    string
	urlBase string
	maxSize int64
}

// NewUploader creates an uploader writing below root. Files larger than
// maxSize bytes are rejected.
func NewUploader(root string, maxSize int64) *Uploader {
	return &Uploader{
		root:    root,
		urlBase: "/uploads/default",
		maxSize: maxSize,
	}
}

// Store reads r, writes it to the uploads directory and returns the upload
// row to insert. The row is not persisted.
func (u *Uploader) Store(r io.Reader, userID int64, originalName string) (*entities.Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, u.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if int64(len(data)) > u.maxSize {
		return nil, fmt.Errorf("%w: %s is over %d bytes", ErrTooLarge, originalName, u.maxSize)
	}

	ext, ok := imageExtensions[http.DetectContentType(data)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, originalName)
	}

	sum := sha1.Sum(data) //nolint:gosec // content addressing, not security
	hash := hex.EncodeToString(sum[:])
	name := hash + "." + ext

	dir := filepath.Join(u.root, filepath.FromSlash(uploadsSubdir))
	if err := writeFileAtomic(dir, name, data); err != nil {
		return nil, errors.New(err).
			Component("avatar").
			Category(errors.CategoryFileIO).
			Context("path", filepath.Join(dir, name)).
			Build()
	}

	return &entities.Upload{
		UserID:           userID,
		OriginalFilename: originalName,
		SHA1:             hash,
		Filesize:         int64(len(data)),
		Extension:        ext,
		URL:              path.Join(u.urlBase, uploadsSubdir, name),
	}, nil
}

// writeFileAtomic writes data to dir/name through a temp file and rename.
// An existing file with the same name is kept.
func writeFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create uploads directory: %w", err)
	}

	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(dir, ".avatar-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("rename upload: %w", err)
	}
	return nil
}
