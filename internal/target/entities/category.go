package entities

import "time"

// Category is a node in the two-level category tree. Top-level categories
// have a nil ParentCategoryID.
type Category struct {
	ID               int64     `gorm:"primaryKey"`
	Name             string    `gorm:"type:varchar(255);not null"`
	Slug             string    `gorm:"type:varchar(255);not null;index:idx_categories_slug"`
	Description      *string   `gorm:"type:text"`
	ParentCategoryID *int64    `gorm:"index"`
	Position         int       `gorm:"not null;default:0"`
	TopicCount       int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (Category) TableName() string {
	return "categories"
}

// IsTopLevel reports whether the category has no parent.
func (c *Category) IsTopLevel() bool {
	return c.ParentCategoryID == nil
}
