package repository

import (
	"context"

	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// UserRepository provides access to the users and user_avatars tables.
type UserRepository interface {
	// Create inserts a user. UsernameLower is derived from Username.
	Create(ctx context.Context, user *entities.User) error

	// GetByID retrieves a user by its ID.
	// Returns ErrUserNotFound if not found.
	GetByID(ctx context.Context, id int64) (*entities.User, error)

	// UsernameTaken reports whether a username is in use, ignoring case.
	UsernameTaken(ctx context.Context, username string) (bool, error)

	// SetCustomAvatar points the user's avatar at an upload.
	SetCustomAvatar(ctx context.Context, userID, uploadID int64) error

	// Count returns the total number of users.
	Count(ctx context.Context) (int64, error)
}
