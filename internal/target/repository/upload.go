package repository

import (
	"context"

	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// UploadRepository provides access to the uploads table.
type UploadRepository interface {
	// GetOrCreate returns the upload with upload.SHA1, creating it from
	// upload when none exists. Identical files share one upload.
	GetOrCreate(ctx context.Context, upload *entities.Upload) (*entities.Upload, error)

	// GetBySHA1 retrieves an upload by content hash.
	// Returns ErrUploadNotFound if not found.
	GetBySHA1(ctx context.Context, sha1 string) (*entities.Upload, error)

	// Count returns the total number of uploads.
	Count(ctx context.Context) (int64, error)
}
