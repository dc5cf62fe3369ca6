package repository

import (
	"context"

	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// TopicRepository provides access to the topics and posts tables.
type TopicRepository interface {
	// CreateTopic inserts a topic together with its opening post, which
	// becomes post number 1. The topic's category gains one topic.
	CreateTopic(ctx context.Context, topic *entities.Topic, first *entities.Post) error

	// CreateReply appends a post to post.TopicID with the next post number
	// and bumps the topic.
	// Returns ErrTopicNotFound if the topic does not exist.
	CreateReply(ctx context.Context, post *entities.Post) error

	// GetTopic retrieves a topic by its ID.
	// Returns ErrTopicNotFound if not found.
	GetTopic(ctx context.Context, id int64) (*entities.Topic, error)

	// Posts returns a topic's posts ordered by post number.
	Posts(ctx context.Context, topicID int64) ([]*entities.Post, error)

	// CountTopics returns the total number of topics.
	CountTopics(ctx context.Context) (int64, error)

	// CountPosts returns the total number of posts.
	CountPosts(ctx context.Context) (int64, error)
}
