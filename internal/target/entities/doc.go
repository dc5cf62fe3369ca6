// Package entities defines the GORM models of the target forum store.
//
// The schema follows Discourse's object model closely enough that the
// imported data can be loaded into a Discourse instance: users, a two-level
// category tree, topics with numbered posts, and uploads attached as
// custom avatars. Bookkeeping tables record the ID mappings and run state
// that make the importer re-runnable.
package entities
