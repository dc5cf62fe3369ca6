package importer

import (
	"context"
	"time"

	"github.com/forumkit/flarum-importer/internal/flarum"
	"github.com/forumkit/flarum-importer/internal/target/entities"
	"github.com/forumkit/flarum-importer/internal/target/repository"
)

// UserMapper maps Flarum users to target users.
type UserMapper struct {
	users       repository.UserRepository
	skipAvatars bool
	now         func() time.Time
}

// NewUserMapper creates a user mapper. users is used to avoid username
// collisions.
func NewUserMapper(users repository.UserRepository, skipAvatars bool) *UserMapper {
	return &UserMapper{users: users, skipAvatars: skipAvatars, now: time.Now}
}

// Transform builds the target user for u.
func (m *UserMapper) Transform(ctx context.Context, u flarum.User) (UserPayload, Outcome) {
	username, err := uniqueUsername(ctx, NormalizeUsername(u.Username), m.users.UsernameTaken)
	if err != nil {
		return UserPayload{}, Fatal(err)
	}

	created := m.now().UTC()
	if u.JoinedAt != nil {
		created = *u.JoinedAt
	}

	payload := UserPayload{
		User: &entities.User{
			Username:   username,
			Name:       u.Username,
			Email:      u.Email,
			Active:     true,
			LastSeenAt: u.LastSeenAt,
			CreatedAt:  created,
		},
	}
	if u.AvatarURL != nil && !m.skipAvatars {
		payload.AvatarName = *u.AvatarURL
	}
	return payload, Proceed()
}
