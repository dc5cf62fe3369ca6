package importer

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/avatar"
	"github.com/forumkit/flarum-importer/internal/target/repository"
)

// AvatarImporter copies a user's Flarum avatar into the uploads directory
// and makes it the user's custom avatar.
type AvatarImporter struct {
	source   avatar.Source
	uploader *avatar.Uploader
	db       *gorm.DB
}

// NewAvatarImporter creates an avatar importer writing to db.
func NewAvatarImporter(source avatar.Source, uploader *avatar.Uploader, db *gorm.DB) *AvatarImporter {
	return &AvatarImporter{source: source, uploader: uploader, db: db}
}

// Import fetches name and attaches it to the target user userID.
func (a *AvatarImporter) Import(ctx context.Context, userID int64, name string) error {
	rc, err := a.source.Open(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	upload, err := a.uploader.Store(rc, userID, name)
	if err != nil {
		return err
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := repository.New(tx)
		stored, err := repos.Uploads.GetOrCreate(ctx, upload)
		if err != nil {
			return fmt.Errorf("save upload %s: %w", upload.SHA1, err)
		}
		return repos.Users.SetCustomAvatar(ctx, userID, stored.ID)
	})
}
