// Package flarum reads users, tags and posts from a Flarum MySQL database in
// deterministic LIMIT/OFFSET batches.
package flarum

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/logger"
)

// User is a row of the Flarum users table.
type User struct {
	ID         int64
	Username   string
	Email      string
	JoinedAt   *time.Time
	LastSeenAt *time.Time
	AvatarURL  *string
}

// Tag is a row of the Flarum tags table. Each tag becomes a top-level and a
// child category.
type Tag struct {
	ID          int64
	Name        string
	Description *string
	Position    *int
}

// PostRow is one post joined with its discussion and one of the
// discussion's tags.
type PostRow struct {
	ID          int64
	TopicID     int64
	Title       string
	FirstPostID int64
	UserID      *int64
	Raw         string
	CreatedAt   time.Time
	CategoryID  int64
}

// OpensTopic reports whether the post is its discussion's first post.
func (p *PostRow) OpensTopic() bool {
	return p.ID == p.FirstPostID
}

var tablePrefixRe = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Source reads batches from a Flarum database.
type Source struct {
	db     *gorm.DB
	prefix string
	log    logger.Logger
}

// DSN builds the go-sql-driver DSN for settings.
func DSN(settings *conf.SourceSettings) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = settings.Username
	cfg.Passwd = settings.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
	cfg.DBName = settings.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Timeout = settings.Timeout
	cfg.ReadTimeout = settings.Timeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open connects to the Flarum database described by settings.
func Open(ctx context.Context, settings *conf.SourceSettings, log logger.Logger) (*Source, error) {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	log = log.Module("flarum")

	db, err := gorm.Open(mysql.New(mysql.Config{DSN: DSN(settings)}), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, 0),
	})
	if err != nil {
		return nil, sourceError(err, "open").
			Context("host", settings.Host).
			Context("database", settings.Database).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	// Reads are sequential.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, sourceError(err, "ping").
			Context("host", settings.Host).
			Context("database", settings.Database).
			Build()
	}

	log.Info("connected to flarum database",
		logger.String("host", settings.Host),
		logger.String("database", settings.Database),
		logger.String("table_prefix", settings.TablePrefix))

	return NewSource(db, settings.TablePrefix, log)
}

// NewSource wraps an open database. prefix is Flarum's table prefix.
func NewSource(db *gorm.DB, prefix string, log logger.Logger) (*Source, error) {
	if !tablePrefixRe.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Source{db: db, prefix: prefix, log: log}, nil
}

func (s *Source) table(name string) string {
	return s.prefix + name
}

// ReadUsers returns up to limit users ordered by id, starting at offset.
func (s *Source) ReadUsers(ctx context.Context, limit, offset int) ([]User, error) {
	started := time.Now()
	var users []User
	err := s.db.WithContext(ctx).
		Table(s.table("users")).
		Select("id, username, email, joined_at, last_seen_at, avatar_url").
		Order("id").
		Limit(limit).
		Offset(offset).
		Scan(&users).Error
	if err != nil {
		return nil, s.readError(ctx, err, "read_users", offset, started)
	}
	s.log.Debug("read users batch",
		logger.Int("offset", offset),
		logger.Int("count", len(users)))
	return users, nil
}

// ReadTags returns every tag ordered by position, then id.
func (s *Source) ReadTags(ctx context.Context) ([]Tag, error) {
	started := time.Now()
	var tags []Tag
	err := s.db.WithContext(ctx).
		Table(s.table("tags")).
		Select("id, name, description, position").
		Order("position, id").
		Scan(&tags).Error
	if err != nil {
		return nil, s.readError(ctx, err, "read_tags", 0, started)
	}
	return tags, nil
}

func (s *Source) postsFrom() string {
	return fmt.Sprintf("FROM %s p JOIN %s d ON p.discussion_id = d.id JOIN %s t ON t.discussion_id = d.id WHERE p.type = 'comment'",
		s.table("posts"), s.table("discussions"), s.table("discussion_tag"))
}

// ReadPosts returns up to limit comment posts, one row per (post, tag),
// ordered by creation time, post id and tag id.
func (s *Source) ReadPosts(ctx context.Context, limit, offset int) ([]PostRow, error) {
	started := time.Now()
	query := "SELECT p.id AS id, d.id AS topic_id, d.title AS title, " +
		"COALESCE(d.first_post_id, 0) AS first_post_id, p.user_id AS user_id, " +
		"COALESCE(p.content, '') AS raw, p.created_at AS created_at, t.tag_id AS category_id " +
		s.postsFrom() +
		" ORDER BY p.created_at, p.id, t.tag_id LIMIT ? OFFSET ?"

	var rows []PostRow
	if err := s.db.WithContext(ctx).Raw(query, limit, offset).Scan(&rows).Error; err != nil {
		return nil, s.readError(ctx, err, "read_posts", offset, started)
	}
	s.log.Debug("read posts batch",
		logger.Int("offset", offset),
		logger.Int("count", len(rows)))
	return rows, nil
}

// CountUsers returns the number of users.
func (s *Source) CountUsers(ctx context.Context) (int64, error) {
	started := time.Now()
	var count int64
	if err := s.db.WithContext(ctx).Table(s.table("users")).Count(&count).Error; err != nil {
		return 0, s.readError(ctx, err, "count_users", 0, started)
	}
	return count, nil
}

// CountTags returns the number of tags.
func (s *Source) CountTags(ctx context.Context) (int64, error) {
	started := time.Now()
	var count int64
	if err := s.db.WithContext(ctx).Table(s.table("tags")).Count(&count).Error; err != nil {
		return 0, s.readError(ctx, err, "count_tags", 0, started)
	}
	return count, nil
}

// CountPosts returns the number of rows ReadPosts pages through.
func (s *Source) CountPosts(ctx context.Context) (int64, error) {
	started := time.Now()
	var count int64
	if err := s.db.WithContext(ctx).Raw("SELECT COUNT(*) " + s.postsFrom()).Scan(&count).Error; err != nil {
		return 0, s.readError(ctx, err, "count_posts", 0, started)
	}
	return count, nil
}

// Close closes the database connection.
func (s *Source) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

func (s *Source) readError(ctx context.Context, err error, op string, offset int, started time.Time) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return sourceError(err, op).
		Timing(op, time.Since(started)).
		Context("table_prefix", s.prefix).
		Context("offset", offset).
		Build()
}

func sourceError(err error, op string) *errors.ErrorBuilder {
	return errors.New(fmt.Errorf("flarum %s failed: %w", op, err)).
		Component("flarum").
		Category(errors.CategorySource).
		Priority(errors.PriorityHigh).
		Context("operation", op)
}
