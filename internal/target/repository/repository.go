package repository

import "gorm.io/gorm"

// Repositories bundles the repositories sharing one database handle.
type Repositories struct {
	Users      UserRepository
	Categories CategoryRepository
	Topics     TopicRepository
	Uploads    UploadRepository
}

// New creates all repositories on db, which may be a transaction.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Users:      NewUserRepository(db),
		Categories: NewCategoryRepository(db),
		Topics:     NewTopicRepository(db),
		Uploads:    NewUploadRepository(db),
	}
}
