// Package flarumtest seeds Flarum-shaped databases for tests.
package flarumtest

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/forumkit/flarum-importer/internal/flarum"
)

// Discussion is a row of the discussions table plus its tag links.
type Discussion struct {
	ID          int64
	Title       string
	FirstPostID int64
	TagIDs      []int64
}

// Post is a row of the posts table. An empty Type is stored as "comment".
type Post struct {
	ID           int64
	DiscussionID int64
	UserID       *int64
	Type         string
	Content      string
	CreatedAt    time.Time
}

// Fixture is the content seeded into a Flarum database.
type Fixture struct {
	Users       []flarum.User
	Tags        []flarum.Tag
	Discussions []Discussion
	Posts       []Post
}

// The subset of Flarum's schema the importer reads. The statements run on
// both SQLite and MySQL.
var schema = []string{
	`CREATE TABLE %susers (
		id INTEGER PRIMARY KEY,
		username VARCHAR(100) NOT NULL,
		email VARCHAR(150) NOT NULL,
		joined_at DATETIME NULL,
		last_seen_at DATETIME NULL,
		avatar_url VARCHAR(100) NULL
	)`,
	`CREATE TABLE %stags (
		id INTEGER PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		description TEXT NULL,
		position INTEGER NULL
	)`,
	`CREATE TABLE %sdiscussions (
		id INTEGER PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		first_post_id INTEGER NULL
	)`,
	`CREATE TABLE %sdiscussion_tag (
		discussion_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		PRIMARY KEY (discussion_id, tag_id)
	)`,
	`CREATE TABLE %sposts (
		id INTEGER PRIMARY KEY,
		discussion_id INTEGER NOT NULL,
		user_id INTEGER NULL,
		type VARCHAR(100) NULL,
		content MEDIUMTEXT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// CreateSchema creates the Flarum tables with the given prefix.
func CreateSchema(db *gorm.DB, prefix string) error {
	for _, stmt := range schema {
		if err := db.Exec(fmt.Sprintf(stmt, prefix)).Error; err != nil {
			return fmt.Errorf("create flarum schema: %w", err)
		}
	}
	return nil
}

// Seed inserts the fixture rows.
func Seed(db *gorm.DB, prefix string, f *Fixture) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for i := range f.Users {
			u := &f.Users[i]
			if err := tx.Table(prefix + "users").Create(map[string]any{
				"id":           u.ID,
				"username":     u.Username,
				"email":        u.Email,
				"joined_at":    u.JoinedAt,
				"last_seen_at": u.LastSeenAt,
				"avatar_url":   u.AvatarURL,
			}).Error; err != nil {
				return fmt.Errorf("seed user %d: %w", u.ID, err)
			}
		}

		for i := range f.Tags {
			tag := &f.Tags[i]
			if err := tx.Table(prefix + "tags").Create(map[string]any{
				"id":          tag.ID,
				"name":        tag.Name,
				"description": tag.Description,
				"position":    tag.Position,
			}).Error; err != nil {
				return fmt.Errorf("seed tag %d: %w", tag.ID, err)
			}
		}

		for _, d := range f.Discussions {
			if err := tx.Table(prefix + "discussions").Create(map[string]any{
				"id":            d.ID,
				"title":         d.Title,
				"first_post_id": d.FirstPostID,
			}).Error; err != nil {
				return fmt.Errorf("seed discussion %d: %w", d.ID, err)
			}
			for _, tagID := range d.TagIDs {
				if err := tx.Table(prefix + "discussion_tag").Create(map[string]any{
					"discussion_id": d.ID,
					"tag_id":        tagID,
				}).Error; err != nil {
					return fmt.Errorf("seed discussion_tag %d/%d: %w", d.ID, tagID, err)
				}
			}
		}

		for _, p := range f.Posts {
			postType := p.Type
			if postType == "" {
				postType = "comment"
			}
			if err := tx.Table(prefix + "posts").Create(map[string]any{
				"id":            p.ID,
				"discussion_id": p.DiscussionID,
				"user_id":       p.UserID,
				"type":          postType,
				"content":       p.Content,
				"created_at":    p.CreatedAt.UTC(),
			}).Error; err != nil {
				return fmt.Errorf("seed post %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// NewSQLite returns a SQLite database in t.TempDir() holding the Flarum
// schema and fixture.
func NewSQLite(t testing.TB, prefix string, f *Fixture) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "flarum.db")), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, CreateSchema(db, prefix))
	if f != nil {
		require.NoError(t, Seed(db, prefix, f))
	}
	return db
}

// NewSource returns a flarum.Source over a seeded SQLite database.
func NewSource(t testing.TB, prefix string, f *Fixture) *flarum.Source {
	t.Helper()

	src, err := flarum.NewSource(NewSQLite(t, prefix, f), prefix, nil)
	require.NoError(t, err)
	return src
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Forum returns a small forum: three users, two tags, two discussions with
// replies, and one non-comment post.
func Forum() *Fixture {
	base := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

	return &Fixture{
		Users: []flarum.User{
			{ID: 1, Username: "alice", Email: "alice@example.test", JoinedAt: Ptr(at(-600)), LastSeenAt: Ptr(at(100))},
			{ID: 2, Username: "Bob Müller", Email: "bob@example.test", JoinedAt: Ptr(at(-500))},
			{ID: 3, Username: "carol", Email: "carol@example.test", JoinedAt: Ptr(at(-400)), AvatarURL: Ptr("carol.png")},
		},
		Tags: []flarum.Tag{
			{ID: 10, Name: "General", Description: Ptr("General talk"), Position: Ptr(0)},
			{ID: 11, Name: "Help &amp; Support", Position: Ptr(1)},
		},
		Discussions: []Discussion{
			{ID: 100, Title: "Welcome &amp; hello", FirstPostID: 1000, TagIDs: []int64{10}},
			{ID: 101, Title: "Printer on fire", FirstPostID: 1003, TagIDs: []int64{11}},
		},
		Posts: []Post{
			{ID: 1000, DiscussionID: 100, UserID: Ptr(int64(1)), Content: "<t><p>Hi <STRONG>all</STRONG></p></t>", CreatedAt: at(0)},
			{ID: 1001, DiscussionID: 100, UserID: Ptr(int64(2)), Content: `<r><URL url="https://x.test">https://x.test</URL></r>`, CreatedAt: at(1)},
			{ID: 1002, DiscussionID: 100, UserID: Ptr(int64(99)), Content: "<t>ghost reply</t>", CreatedAt: at(2)},
			{ID: 1003, DiscussionID: 101, UserID: Ptr(int64(3)), Content: "<t>It burns</t>", CreatedAt: at(3)},
			{ID: 1004, DiscussionID: 101, UserID: nil, Content: "<t>Unplug it</t>", CreatedAt: at(4)},
			{ID: 1005, DiscussionID: 101, UserID: Ptr(int64(1)), Type: "discussionRenamed", Content: `["a","b"]`, CreatedAt: at(5)},
		},
	}
}
