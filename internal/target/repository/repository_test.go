package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/target"
	"github.com/forumkit/flarum-importer/internal/target/entities"
	"github.com/forumkit/flarum-importer/internal/target/targettest"
)

func setupRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, _ := setupReposWithDB(t)
	return repos
}

func setupReposWithDB(t *testing.T) (*Repositories, *gorm.DB) {
	t.Helper()
	db := targettest.NewSQLite(t).DB()
	return New(db), db
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	t.Parallel()
	repos := setupRepos(t)
	ctx := context.Background()

	user := &entities.User{Username: "Alice", Name: "Alice", Email: "alice@example.test", Active: true, CreatedAt: time.Now()}
	require.NoError(t, repos.Users.Create(ctx, user))
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice", user.UsernameLower)

	got, err := repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Username)

	_, err = repos.Users.GetByID(ctx, 999)
	require.ErrorIs(t, err, ErrUserNotFound)

	taken, err := repos.Users.UsernameTaken(ctx, "ALICE")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repos.Users.UsernameTaken(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	t.Parallel()
	repos := setupRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Users.Create(ctx, &entities.User{Username: "alice", CreatedAt: time.Now()}))

	err := repos.Users.Create(ctx, &entities.User{Username: "ALICE", CreatedAt: time.Now()})
	require.Error(t, err)
	assert.True(t, target.IsDuplicateKey(err))

	count, err := repos.Users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUserRepository_SetCustomAvatar(t *testing.T) {
	t.Parallel()
	repos, db := setupReposWithDB(t)
	ctx := context.Background()

	user := &entities.User{Username: "carol", CreatedAt: time.Now()}
	require.NoError(t, repos.Users.Create(ctx, user))

	first, err := repos.Uploads.GetOrCreate(ctx, &entities.Upload{UserID: user.ID, OriginalFilename: "a.png", SHA1: "aa", Filesize: 1, URL: "/a"})
	require.NoError(t, err)
	second, err := repos.Uploads.GetOrCreate(ctx, &entities.Upload{UserID: user.ID, OriginalFilename: "b.png", SHA1: "bb", Filesize: 1, URL: "/b"})
	require.NoError(t, err)

	require.NoError(t, repos.Users.SetCustomAvatar(ctx, user.ID, first.ID))
	require.NoError(t, repos.Users.SetCustomAvatar(ctx, user.ID, second.ID))

	got, err := repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UploadedAvatarID)
	assert.Equal(t, second.ID, *got.UploadedAvatarID)

	var avatars []entities.UserAvatar
	require.NoError(t, db.Find(&avatars).Error)
	require.Len(t, avatars, 1)
	assert.Equal(t, second.ID, *avatars[0].CustomUploadID)

	err = repos.Users.SetCustomAvatar(ctx, 999, first.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUploadRepository_GetOrCreateDeduplicates(t *testing.T) {
	t.Parallel()
	repos := setupRepos(t)
	ctx := context.Background()

	first, err := repos.Uploads.GetOrCreate(ctx, &entities.Upload{UserID: 1, OriginalFilename: "a.png", SHA1: "abc", Filesize: 3, URL: "/u/abc.png"})
	require.NoError(t, err)

	again, err := repos.Uploads.GetOrCreate(ctx, &entities.Upload{UserID: 2, OriginalFilename: "copy.png", SHA1: "abc", Filesize: 3, URL: "/u/abc.png"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "a.png", again.OriginalFilename)

	count, err := repos.Uploads.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = repos.Uploads.GetBySHA1(ctx, "nope")
	require.ErrorIs(t, err, ErrUploadNotFound)
}

func TestCategoryRepository(t *testing.T) {
	t.Parallel()
	repos := setupRepos(t)
	ctx := context.Background()

	top := &entities.Category{Name: "General", Slug: "general"}
	require.NoError(t, repos.Categories.Create(ctx, top))
	assert.True(t, top.IsTopLevel())

	child := &entities.Category{Name: "General", Slug: "general", ParentCategoryID: &top.ID}
	require.NoError(t, repos.Categories.Create(ctx, child))
	assert.False(t, child.IsTopLevel())

	children, err := repos.Categories.Children(ctx, top.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	_, err = repos.Categories.GetByID(ctx, 999)
	require.ErrorIs(t, err, ErrCategoryNotFound)

	count, err := repos.Categories.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTopicRepository_TopicAndReplies(t *testing.T) {
	t.Parallel()
	repos := setupRepos(t)
	ctx := context.Background()

	category := &entities.Category{Name: "General", Slug: "general"}
	require.NoError(t, repos.Categories.Create(ctx, category))

	opened := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	topic := &entities.Topic{Title: "Hello", CategoryID: &category.ID, UserID: 1, CreatedAt: opened}
	first := &entities.Post{UserID: 1, Raw: "first", CreatedAt: opened}
	require.NoError(t, repos.Topics.CreateTopic(ctx, topic, first))

	assert.Equal(t, topic.ID, first.TopicID)
	assert.Equal(t, 1, first.PostNumber)

	reply := &entities.Post{TopicID: topic.ID, UserID: entities.SystemUserID, Raw: "second", CreatedAt: opened.Add(time.Hour)}
	require.NoError(t, repos.Topics.CreateReply(ctx, reply))
	assert.Equal(t, 2, reply.PostNumber)

	// A reply older than the last bump does not move bumped_at back.
	late := &entities.Post{TopicID: topic.ID, UserID: 1, Raw: "third", CreatedAt: opened.Add(time.Minute)}
	require.NoError(t, repos.Topics.CreateReply(ctx, late))
	assert.Equal(t, 3, late.PostNumber)

	got, err := repos.Topics.GetTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PostsCount)
	assert.Equal(t, 3, got.HighestPostNum)
	assert.True(t, got.BumpedAt.Equal(opened.Add(time.Hour)))

	posts, err := repos.Topics.Posts(ctx, topic.ID)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{posts[0].Raw, posts[1].Raw, posts[2].Raw})

	cat, err := repos.Categories.GetByID(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.TopicCount)

	topics, err := repos.Topics.CountTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), topics)
	total, err := repos.Topics.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestTopicRepository_ReplyToMissingTopic(t *testing.T) {
	t.Parallel()
	repos := setupRepos(t)

	err := repos.Topics.CreateReply(context.Background(), &entities.Post{TopicID: 42, UserID: 1, Raw: "x", CreatedAt: time.Now()})
	require.ErrorIs(t, err, ErrTopicNotFound)

	_, err = repos.Topics.GetTopic(context.Background(), 42)
	require.ErrorIs(t, err, ErrTopicNotFound)
}
