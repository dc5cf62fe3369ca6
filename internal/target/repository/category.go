package repository

import (
	"context"

	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// CategoryRepository provides access to the categories table.
type CategoryRepository interface {
	// Create inserts a category.
	Create(ctx context.Context, category *entities.Category) error

	// GetByID retrieves a category by its ID.
	// Returns ErrCategoryNotFound if not found.
	GetByID(ctx context.Context, id int64) (*entities.Category, error)

	// Children returns the categories whose parent is parentID.
	Children(ctx context.Context, parentID int64) ([]*entities.Category, error)

	// Count returns the total number of categories.
	Count(ctx context.Context) (int64, error)
}
