// Package repository provides access to the target store tables the importer
// writes: users, categories, topics, posts and uploads.
//
// Repositories are bound to a *gorm.DB. Pass a transaction handle to New to
// make several writes commit together.
package repository
