package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// topicRepository implements TopicRepository.
type topicRepository struct {
	db *gorm.DB
}

// NewTopicRepository creates a new TopicRepository.
func NewTopicRepository(db *gorm.DB) TopicRepository {
	return &topicRepository{db: db}
}

// CreateTopic inserts a topic together with its opening post.
func (r *topicRepository) CreateTopic(ctx context.Context, topic *entities.Topic, first *entities.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		topic.PostsCount = 1
		topic.HighestPostNum = 1
		if topic.BumpedAt.IsZero() {
			topic.BumpedAt = topic.CreatedAt
		}
		if err := tx.Create(topic).Error; err != nil {
			return fmt.Errorf("create topic %q: %w", topic.Title, err)
		}

		first.TopicID = topic.ID
		first.PostNumber = 1
		if err := tx.Create(first).Error; err != nil {
			return fmt.Errorf("create first post of topic %d: %w", topic.ID, err)
		}

		if topic.CategoryID != nil {
			err := tx.Model(&entities.Category{}).
				Where("id = ?", *topic.CategoryID).
				UpdateColumn("topic_count", gorm.Expr("topic_count + 1")).Error
			if err != nil {
				return fmt.Errorf("update category %d topic count: %w", *topic.CategoryID, err)
			}
		}
		return nil
	})
}

// CreateReply appends a post to its topic.
func (r *topicRepository) CreateReply(ctx context.Context, post *entities.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Reserve the post number first so concurrent writers serialize on
		// the topic row.
		result := tx.Model(&entities.Topic{}).
			Where("id = ?", post.TopicID).
			UpdateColumns(map[string]any{
				"highest_post_number": gorm.Expr("highest_post_number + 1"),
				"posts_count":         gorm.Expr("posts_count + 1"),
			})
		if result.Error != nil {
			return fmt.Errorf("reserve post number in topic %d: %w", post.TopicID, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTopicNotFound
		}

		var topic entities.Topic
		if err := tx.Select("id", "highest_post_number", "bumped_at").First(&topic, post.TopicID).Error; err != nil {
			return fmt.Errorf("read topic %d: %w", post.TopicID, err)
		}

		post.PostNumber = topic.HighestPostNum
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("create reply in topic %d: %w", post.TopicID, err)
		}

		if post.CreatedAt.After(topic.BumpedAt) {
			err := tx.Model(&entities.Topic{}).
				Where("id = ?", post.TopicID).
				UpdateColumn("bumped_at", post.CreatedAt).Error
			if err != nil {
				return fmt.Errorf("bump topic %d: %w", post.TopicID, err)
			}
		}
		return nil
	})
}

// GetTopic retrieves a topic by its ID.
func (r *topicRepository) GetTopic(ctx context.Context, id int64) (*entities.Topic, error) {
	var topic entities.Topic
	err := r.db.WithContext(ctx).First(&topic, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	return &topic, nil
}

// Posts returns a topic's posts ordered by post number.
func (r *topicRepository) Posts(ctx context.Context, topicID int64) ([]*entities.Post, error) {
	var posts []*entities.Post
	err := r.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("post_number").
		Find(&posts).Error
	return posts, err
}

// CountTopics returns the total number of topics.
func (r *topicRepository) CountTopics(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Topic{}).Count(&count).Error
	return count, err
}

// CountPosts returns the total number of posts.
func (r *topicRepository) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Post{}).Count(&count).Error
	return count, err
}
