package entities

import "time"

// Topic is a discussion thread. It is created together with its first post.
type Topic struct {
	ID             int64     `gorm:"primaryKey"`
	Title          string    `gorm:"type:varchar(255);not null"`
	CategoryID     *int64    `gorm:"index"`
	UserID         int64     `gorm:"not null;index"`
	PostsCount     int       `gorm:"not null;default:0"`
	HighestPostNum int       `gorm:"column:highest_post_number;not null;default:0"`
	BumpedAt       time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (Topic) TableName() string {
	return "topics"
}

// Post is a single message. PostNumber 1 is the topic's opening post.
type Post struct {
	ID         int64     `gorm:"primaryKey"`
	TopicID    int64     `gorm:"not null;uniqueIndex:idx_posts_topic_number,priority:1"`
	PostNumber int       `gorm:"not null;uniqueIndex:idx_posts_topic_number,priority:2"`
	UserID     int64     `gorm:"not null;index"`
	Raw        string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (Post) TableName() string {
	return "posts"
}
