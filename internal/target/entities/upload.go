package entities

import "time"

// Upload is a stored file, deduplicated by content hash.
type Upload struct {
	ID               int64     `gorm:"primaryKey"`
	UserID           int64     `gorm:"not null;index"`
	OriginalFilename string    `gorm:"type:varchar(255);not null"`
	SHA1             string    `gorm:"column:sha1;type:varchar(40);not null;uniqueIndex:idx_uploads_sha1"`
	Filesize         int64     `gorm:"not null"`
	Extension        string    `gorm:"type:varchar(10)"`
	URL              string    `gorm:"type:varchar(255);not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (Upload) TableName() string {
	return "uploads"
}

// UserAvatar links a user to a custom avatar upload.
type UserAvatar struct {
	ID             int64     `gorm:"primaryKey"`
	UserID         int64     `gorm:"not null;uniqueIndex:idx_user_avatars_user"`
	CustomUploadID *int64    `gorm:"index"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (UserAvatar) TableName() string {
	return "user_avatars"
}
