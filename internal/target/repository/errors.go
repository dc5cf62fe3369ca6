package repository

import "github.com/forumkit/flarum-importer/internal/errors"

// Sentinel errors for repository operations.
var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.NewStd("user not found")

	// ErrCategoryNotFound indicates the requested category does not exist.
	ErrCategoryNotFound = errors.NewStd("category not found")

	// ErrTopicNotFound indicates the requested topic does not exist.
	ErrTopicNotFound = errors.NewStd("topic not found")

	// ErrUploadNotFound indicates the requested upload does not exist.
	ErrUploadNotFound = errors.NewStd("upload not found")
)
