package entities

import "time"

// SystemUserID is the owner of posts whose author could not be mapped.
const SystemUserID int64 = -1

// User is a forum account.
type User struct {
	ID               int64      `gorm:"primaryKey"`
	Username         string     `gorm:"type:varchar(60);not null;uniqueIndex:idx_users_username"`
	UsernameLower    string     `gorm:"type:varchar(60);not null;uniqueIndex:idx_users_username_lower"`
	Name             string     `gorm:"type:varchar(255)"`
	Email            string     `gorm:"type:varchar(513);index:idx_users_email"`
	Active           bool       `gorm:"not null;default:true"`
	UploadedAvatarID *int64     `gorm:"index"`
	LastSeenAt       *time.Time `gorm:"index"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (User) TableName() string {
	return "users"
}
