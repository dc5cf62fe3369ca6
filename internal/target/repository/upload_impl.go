package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// uploadRepository implements UploadRepository.
type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

// GetOrCreate returns the upload with upload.SHA1, creating it when missing.
func (r *uploadRepository) GetOrCreate(ctx context.Context, upload *entities.Upload) (*entities.Upload, error) {
	existing, err := r.GetBySHA1(ctx, upload.SHA1)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUploadNotFound) {
		return nil, err
	}

	createErr := r.db.WithContext(ctx).Create(upload).Error
	if createErr == nil {
		return upload, nil
	}
	if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("create upload %s: %w", upload.SHA1, createErr)
	}

	// Another writer stored the same file first.
	existing, err = r.GetBySHA1(ctx, upload.SHA1)
	if err != nil {
		return nil, fmt.Errorf("create upload %s: %w", upload.SHA1, createErr)
	}
	return existing, nil
}

// GetBySHA1 retrieves an upload by content hash.
func (r *uploadRepository) GetBySHA1(ctx context.Context, sha1 string) (*entities.Upload, error) {
	var upload entities.Upload
	err := r.db.WithContext(ctx).Where("sha1 = ?", sha1).Take(&upload).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUploadNotFound
		}
		return nil, err
	}
	return &upload, nil
}

// Count returns the total number of uploads.
func (r *uploadRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Upload{}).Count(&count).Error
	return count, err
}
