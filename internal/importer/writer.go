package importer

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/flarum"
	"github.com/forumkit/flarum-importer/internal/logger"
	"github.com/forumkit/flarum-importer/internal/mapping"
	"github.com/forumkit/flarum-importer/internal/target"
	"github.com/forumkit/flarum-importer/internal/target/entities"
	"github.com/forumkit/flarum-importer/internal/target/repository"
)

// BatchStats counts what happened to the records of one batch.
type BatchStats struct {
	Created       int64
	AlreadyMapped int64
	Skipped       int64
	Failed        int64
}

// Total returns the number of records handled.
func (s BatchStats) Total() int64 {
	return s.Created + s.AlreadyMapped + s.Skipped + s.Failed
}

func (s *BatchStats) add(o BatchStats) {
	s.Created += o.Created
	s.AlreadyMapped += o.AlreadyMapped
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

func (s BatchStats) counts() target.BatchCounts {
	return target.BatchCounts{
		Created:       s.Created,
		AlreadyMapped: s.AlreadyMapped,
		Skipped:       s.Skipped,
		Failed:        s.Failed,
	}
}

// Progress locates a batch within its step for logging.
type Progress struct {
	Step   Step
	Offset int
	Total  int64
}

// UserPayload is a user ready to be created, plus the avatar to attach.
type UserPayload struct {
	User       *entities.User
	AvatarName string
}

// CategoryPayload is a category ready to be created.
type CategoryPayload struct {
	Category *entities.Category
}

// PostPayload is a post ready to be created. Topic is set for opening
// posts, which create their topic.
type PostPayload struct {
	Post          *entities.Post
	Topic         *entities.Topic
	SourceTopicID int64
}

// Transform maps one source record to a payload. A non-proceed outcome
// stops the record before anything is written.
type Transform[S, P any] func(ctx context.Context, record S) (P, Outcome)

// Writer creates target entities and their mappings. Each record is
// created with its mapping(s) in one transaction.
type Writer struct {
	db       *gorm.DB
	mappings *mapping.Store
	avatars  *AvatarImporter
	log      logger.Logger
}

// NewWriter creates a writer on the target database. avatars may be nil,
// in which case user avatars are not imported.
func NewWriter(db *gorm.DB, mappings *mapping.Store, avatars *AvatarImporter, log logger.Logger) *Writer {
	return &Writer{
		db:       db,
		mappings: mappings,
		avatars:  avatars,
		log:      log,
	}
}

// recordPlan describes how one kind of record is keyed and persisted.
type recordPlan[S, P any] struct {
	kind   mapping.Kind
	key    func(S) string
	create func(ctx context.Context, repos *repository.Repositories, mappings *mapping.Store, record S, payload P) error
	// after runs once the record is committed. Its failure is ignored.
	after func(ctx context.Context, record S, payload P) error
}

// CreateUsers writes a batch of users.
func (w *Writer) CreateUsers(ctx context.Context, progress Progress, batch []flarum.User, transform Transform[flarum.User, UserPayload]) (BatchStats, error) {
	return writeBatch(ctx, w, progress, batch, transform, recordPlan[flarum.User, UserPayload]{
		kind: mapping.KindUser,
		key:  func(u flarum.User) string { return mapping.Key(u.ID) },
		create: func(ctx context.Context, repos *repository.Repositories, mappings *mapping.Store, u flarum.User, p UserPayload) error {
			if err := repos.Users.Create(ctx, p.User); err != nil {
				return err
			}
			return mappings.Put(ctx, mapping.KindUser, mapping.Key(u.ID), p.User.ID)
		},
		after: func(ctx context.Context, _ flarum.User, p UserPayload) error {
			if p.AvatarName == "" || w.avatars == nil {
				return nil
			}
			return w.avatars.Import(ctx, p.User.ID, p.AvatarName)
		},
	})
}

// CreateCategories writes a batch of tags as categories of kind, which is
// either mapping.KindCategoryTop or mapping.KindCategoryChild.
func (w *Writer) CreateCategories(ctx context.Context, progress Progress, kind mapping.Kind, batch []flarum.Tag, transform Transform[flarum.Tag, CategoryPayload]) (BatchStats, error) {
	key := categoryKey(kind)
	return writeBatch(ctx, w, progress, batch, transform, recordPlan[flarum.Tag, CategoryPayload]{
		kind: kind,
		key:  func(t flarum.Tag) string { return key(t.ID) },
		create: func(ctx context.Context, repos *repository.Repositories, mappings *mapping.Store, t flarum.Tag, p CategoryPayload) error {
			if err := repos.Categories.Create(ctx, p.Category); err != nil {
				return err
			}
			return mappings.Put(ctx, kind, key(t.ID), p.Category.ID)
		},
	})
}

func categoryKey(kind mapping.Kind) func(int64) string {
	if kind == mapping.KindCategoryChild {
		return mapping.ChildCategoryKey
	}
	return mapping.Key
}

// CreatePosts writes a batch of posts. Opening posts create their topic
// and map it as well.
func (w *Writer) CreatePosts(ctx context.Context, progress Progress, batch []flarum.PostRow, transform Transform[flarum.PostRow, PostPayload]) (BatchStats, error) {
	return writeBatch(ctx, w, progress, batch, transform, recordPlan[flarum.PostRow, PostPayload]{
		kind: mapping.KindPost,
		key:  func(r flarum.PostRow) string { return mapping.Key(r.ID) },
		create: func(ctx context.Context, repos *repository.Repositories, mappings *mapping.Store, r flarum.PostRow, p PostPayload) error {
			if p.Topic == nil {
				if err := repos.Topics.CreateReply(ctx, p.Post); err != nil {
					return err
				}
				return mappings.Put(ctx, mapping.KindPost, mapping.Key(r.ID), p.Post.ID)
			}

			if err := repos.Topics.CreateTopic(ctx, p.Topic, p.Post); err != nil {
				return err
			}
			if err := mappings.Put(ctx, mapping.KindPost, mapping.Key(r.ID), p.Post.ID); err != nil {
				return err
			}
			return mappings.Put(ctx, mapping.KindTopic, mapping.Key(p.SourceTopicID), p.Topic.ID)
		},
	})
}

func writeBatch[S, P any](ctx context.Context, w *Writer, progress Progress, batch []S, transform Transform[S, P], plan recordPlan[S, P]) (BatchStats, error) {
	var stats BatchStats
	log := w.log.WithContext(ctx).With(
		logger.String("step", string(progress.Step)),
		logger.String("kind", string(plan.kind)),
		logger.Int("offset", progress.Offset))

	for _, record := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		sourceID := plan.key(record)

		_, err := w.mappings.Get(ctx, plan.kind, sourceID)
		switch {
		case err == nil:
			stats.AlreadyMapped++
			continue
		case !errors.Is(err, mapping.ErrMappingNotFound):
			return stats, err
		}

		payload, outcome := transform(ctx, record)
		if !outcome.IsProceed() {
			switch outcome.Kind {
			case OutcomeFatal:
				return stats, outcome.Err
			case OutcomeIgnored:
				log.Debug("record ignored",
					logger.String("source_id", sourceID),
					logger.String("reason", outcome.Reason))
			default:
				log.Warn("record skipped",
					logger.String("source_id", sourceID),
					logger.String("reason", outcome.Reason))
			}
			stats.Skipped++
			continue
		}

		err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return plan.create(ctx, repository.New(tx), w.mappings.WithTx(tx), record, payload)
		})
		if err != nil {
			if errors.Is(err, mapping.ErrDuplicateMapping) {
				stats.AlreadyMapped++
				continue
			}
			if isFatalWriteError(ctx, err) {
				return stats, err
			}
			log.Error("record rejected by target store",
				logger.String("source_id", sourceID),
				logger.Error(err))
			stats.Failed++
			continue
		}
		stats.Created++

		if plan.after != nil {
			if err := plan.after(ctx, record, payload); err != nil {
				ignored := Ignore(err)
				log.Debug("post-create action ignored",
					logger.String("source_id", sourceID),
					logger.String("reason", ignored.Reason))
			}
		}
	}

	log.Debug("batch written",
		logger.Int64("created", stats.Created),
		logger.Int64("already_mapped", stats.AlreadyMapped),
		logger.Int64("skipped", stats.Skipped),
		logger.Int64("failed", stats.Failed))
	return stats, nil
}

// isFatalWriteError separates errors that end the run from per-record
// rejections such as constraint violations.
func isFatalWriteError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.IsCategory(err, errors.CategoryMapping) {
		return true
	}
	return target.IsConnectionLost(err)
}

// prerequisiteError reports a record whose dependency was never imported.
func prerequisiteError(format string, args ...any) error {
	return errors.New(fmt.Errorf(format, args...)).
		Component("importer").
		Category(errors.CategoryPrerequisite).
		Priority(errors.PriorityHigh).
		Build()
}
