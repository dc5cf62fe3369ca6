package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/k3a/html2text"

	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/flarum"
	"github.com/forumkit/flarum-importer/internal/mapping"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// CategoryMapper maps Flarum tags to a two-level category tree. Every tag
// becomes a top-level category and a child category beneath it, and
// topics are filed under the child.
type CategoryMapper struct {
	mappings *mapping.Store
	now      func() time.Time
}

// NewCategoryMapper creates a category mapper.
func NewCategoryMapper(mappings *mapping.Store) *CategoryMapper {
	return &CategoryMapper{mappings: mappings, now: time.Now}
}

func (m *CategoryMapper) base(t flarum.Tag) *entities.Category {
	name := html2text.HTMLEntitiesToText(t.Name)
	slug := Slugify(name)
	if slug == "" {
		slug = fmt.Sprintf("tag-%d", t.ID)
	}
	c := &entities.Category{
		Name:      name,
		Slug:      slug,
		CreatedAt: m.now().UTC(),
	}
	if t.Position != nil {
		c.Position = *t.Position
	}
	return c
}

// TransformTop builds the top-level category for t.
func (m *CategoryMapper) TransformTop(_ context.Context, t flarum.Tag) (CategoryPayload, Outcome) {
	return CategoryPayload{Category: m.base(t)}, Proceed()
}

// TransformChild builds the child category for t under its top-level
// category. A tag whose top-level category is missing is skipped.
func (m *CategoryMapper) TransformChild(ctx context.Context, t flarum.Tag) (CategoryPayload, Outcome) {
	parentID, err := m.mappings.Get(ctx, mapping.KindCategoryTop, mapping.Key(t.ID))
	if errors.Is(err, mapping.ErrMappingNotFound) {
		return CategoryPayload{}, Skip(fmt.Sprintf("tag %d: top-level category is not mapped", t.ID))
	}
	if err != nil {
		return CategoryPayload{}, Fatal(err)
	}

	c := m.base(t)
	c.ParentCategoryID = &parentID
	if t.Description != nil && *t.Description != "" {
		desc := html2text.HTMLEntitiesToText(*t.Description)
		c.Description = &desc
	}
	return CategoryPayload{Category: c}, Proceed()
}
