package importer

import (
	"context"
	"fmt"

	"github.com/k3a/html2text"

	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/flarum"
	"github.com/forumkit/flarum-importer/internal/mapping"
	"github.com/forumkit/flarum-importer/internal/markup"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// titlePreviewLength is how much of a title a skipped-reply message quotes.
const titlePreviewLength = 40

// PostMapper maps Flarum posts to target posts and rebuilds topics from
// discussions: an opening post creates its topic, and replies join the
// topic created for their discussion's first post.
type PostMapper struct {
	mappings *mapping.Store
}

// NewPostMapper creates a post mapper.
func NewPostMapper(mappings *mapping.Store) *PostMapper {
	return &PostMapper{mappings: mappings}
}

// Transform builds the target post for row, and its topic if row opens one.
func (m *PostMapper) Transform(ctx context.Context, row flarum.PostRow) (PostPayload, Outcome) {
	author, err := m.author(ctx, row.UserID)
	if err != nil {
		return PostPayload{}, Fatal(err)
	}

	post := &entities.Post{
		UserID:    author,
		Raw:       markup.Transcode(row.Raw),
		CreatedAt: row.CreatedAt,
	}
	title := html2text.HTMLEntitiesToText(row.Title)

	if !row.OpensTopic() {
		topicID, err := m.mappings.TopicForPost(ctx, mapping.Key(row.FirstPostID))
		if errors.Is(err, mapping.ErrMappingNotFound) {
			return PostPayload{}, Skip(fmt.Sprintf("post %d: no topic for first post %d of %q",
				row.ID, row.FirstPostID, preview(title, titlePreviewLength)))
		}
		if err != nil {
			return PostPayload{}, Fatal(err)
		}
		post.TopicID = topicID
		return PostPayload{Post: post}, Proceed()
	}

	categoryID, err := m.mappings.Get(ctx, mapping.KindCategoryChild, mapping.ChildCategoryKey(row.CategoryID))
	if errors.Is(err, mapping.ErrMappingNotFound) {
		return PostPayload{}, Fatal(prerequisiteError("topic %d (post %d): category for tag %d is not mapped",
			row.TopicID, row.ID, row.CategoryID))
	}
	if err != nil {
		return PostPayload{}, Fatal(err)
	}

	topic := &entities.Topic{
		Title:      title,
		CategoryID: &categoryID,
		UserID:     author,
		CreatedAt:  row.CreatedAt,
	}
	return PostPayload{Post: post, Topic: topic, SourceTopicID: row.TopicID}, Proceed()
}

// author resolves the target user of a post. Deleted and unmapped authors
// fall back to the system user.
func (m *PostMapper) author(ctx context.Context, sourceUserID *int64) (int64, error) {
	if sourceUserID == nil {
		return entities.SystemUserID, nil
	}
	id, err := m.mappings.Get(ctx, mapping.KindUser, mapping.Key(*sourceUserID))
	if errors.Is(err, mapping.ErrMappingNotFound) {
		return entities.SystemUserID, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
