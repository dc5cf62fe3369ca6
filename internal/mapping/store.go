// Package mapping records which target entity was created for each source
// record. The mapping is append-only and is the importer's only memory
// between runs.
package mapping

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/errors"
	"github.com/forumkit/flarum-importer/internal/logger"
	"github.com/forumkit/flarum-importer/internal/target"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// Kind is the entity kind half of a mapping key.
type Kind string

const (
	KindUser          Kind = "user"
	KindCategoryTop   Kind = "category-top"
	KindCategoryChild Kind = "category-child"
	KindPost          Kind = "post"
	KindTopic         Kind = "topic"
)

// Kinds lists every mapping kind in pipeline order.
func Kinds() []Kind {
	return []Kind{KindUser, KindCategoryTop, KindCategoryChild, KindPost, KindTopic}
}

// Key formats a numeric source id as a mapping source id.
func Key(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ChildCategoryKey is the source id of the child category created for a tag.
func ChildCategoryKey(tagID int64) string {
	return "child#" + Key(tagID)
}

// DefaultCacheTTL is used when NewStore gets a zero TTL.
const DefaultCacheTTL = 30 * time.Minute

// allMappedChunk bounds the IN list of a single AllMapped query.
const allMappedChunk = 500

var (
	// ErrMappingNotFound indicates no mapping exists for the key.
	ErrMappingNotFound = errors.NewStd("mapping not found")

	// ErrDuplicateMapping indicates the key is already mapped.
	ErrDuplicateMapping = errors.NewStd("mapping already exists")
)

// Store is the ID mapping store backed by the import_mappings table.
type Store struct {
	db    *gorm.DB
	cache *cache.Cache
	log   logger.Logger
	inTx  bool

	stats *cacheStats
}

type cacheStats struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// NewStore creates a mapping store on db. Positive lookups are cached for ttl.
func NewStore(db *gorm.DB, ttl time.Duration, log logger.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Store{
		db:    db,
		cache: cache.New(ttl, ttl*2),
		log:   log.Module("mapping"),
		stats: &cacheStats{},
	}
}

// WithTx returns a store bound to tx. Writes made through it are not cached,
// since the transaction may still roll back.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{
		db:    tx,
		cache: s.cache,
		log:   s.log,
		inTx:  true,
		stats: s.stats,
	}
}

func cacheKey(kind Kind, sourceID string) string {
	return string(kind) + ":" + sourceID
}

// Put appends a mapping. An existing key fails with ErrDuplicateMapping and
// the stored target id is left unchanged.
func (s *Store) Put(ctx context.Context, kind Kind, sourceID string, targetID int64) error {
	row := entities.ImportMapping{
		Kind:     string(kind),
		SourceID: sourceID,
		TargetID: targetID,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if target.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %s %s", ErrDuplicateMapping, kind, sourceID)
		}
		return s.storeError(err, "put", kind, sourceID)
	}

	if !s.inTx {
		s.cache.Set(cacheKey(kind, sourceID), targetID, cache.DefaultExpiration)
	}
	return nil
}

// Get returns the target id mapped to (kind, sourceID), or ErrMappingNotFound.
func (s *Store) Get(ctx context.Context, kind Kind, sourceID string) (int64, error) {
	key := cacheKey(kind, sourceID)
	if cached, found := s.cache.Get(key); found {
		if id, ok := cached.(int64); ok {
			s.stats.hits.Add(1)
			return id, nil
		}
	}
	s.stats.misses.Add(1)

	var row entities.ImportMapping
	err := s.db.WithContext(ctx).
		Where("kind = ? AND source_id = ?", string(kind), sourceID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrMappingNotFound
		}
		return 0, s.storeError(err, "get", kind, sourceID)
	}

	if !s.inTx {
		s.cache.Set(key, row.TargetID, cache.DefaultExpiration)
	}
	return row.TargetID, nil
}

// AllMapped reports whether every id in sourceIDs is mapped for kind.
// An empty list is vacuously mapped.
func (s *Store) AllMapped(ctx context.Context, kind Kind, sourceIDs []string) (bool, error) {
	pending := make([]string, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if _, found := s.cache.Get(cacheKey(kind, id)); !found {
			pending = append(pending, id)
		}
	}
	slices.Sort(pending)
	pending = slices.Compact(pending)

	for chunk := range slices.Chunk(pending, allMappedChunk) {
		var count int64
		err := s.db.WithContext(ctx).
			Model(&entities.ImportMapping{}).
			Where("kind = ? AND source_id IN ?", string(kind), chunk).
			Count(&count).Error
		if err != nil {
			return false, s.storeError(err, "all_mapped", kind, "")
		}
		if count < int64(len(chunk)) {
			return false, nil
		}
	}
	return true, nil
}

// Count returns the number of mappings of kind.
func (s *Store) Count(ctx context.Context, kind Kind) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&entities.ImportMapping{}).
		Where("kind = ?", string(kind)).
		Count(&count).Error
	if err != nil {
		return 0, s.storeError(err, "count", kind, "")
	}
	return count, nil
}

// Counts returns the number of mappings per kind. Kinds without mappings
// are reported as zero.
func (s *Store) Counts(ctx context.Context) (map[Kind]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	err := s.db.WithContext(ctx).
		Model(&entities.ImportMapping{}).
		Select("kind, COUNT(*) AS total").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, s.storeError(err, "counts", "", "")
	}

	counts := make(map[Kind]int64, len(Kinds()))
	for _, kind := range Kinds() {
		counts[kind] = 0
	}
	for _, row := range rows {
		counts[Kind(row.Kind)] = row.Total
	}
	return counts, nil
}

// TopicForPost resolves the target topic of an imported source post by
// following its post mapping to the created post.
func (s *Store) TopicForPost(ctx context.Context, sourcePostID string) (int64, error) {
	key := "topic-of-post:" + sourcePostID
	if cached, found := s.cache.Get(key); found {
		if id, ok := cached.(int64); ok {
			s.stats.hits.Add(1)
			return id, nil
		}
	}
	s.stats.misses.Add(1)

	var topicIDs []int64
	err := s.db.WithContext(ctx).
		Table(entities.ImportMapping{}.TableName()+" AS m").
		Joins("JOIN posts p ON p.id = m.target_id").
		Where("m.kind = ? AND m.source_id = ?", string(KindPost), sourcePostID).
		Limit(1).
		Pluck("p.topic_id", &topicIDs).Error
	if err != nil {
		return 0, s.storeError(err, "topic_for_post", KindPost, sourcePostID)
	}
	if len(topicIDs) == 0 {
		return 0, ErrMappingNotFound
	}

	if !s.inTx {
		s.cache.Set(key, topicIDs[0], cache.DefaultExpiration)
	}
	return topicIDs[0], nil
}

// CacheStats returns the lookup cache hit and miss counters.
func (s *Store) CacheStats() (hits, misses int64) {
	return s.stats.hits.Load(), s.stats.misses.Load()
}

// FlushCache drops every cached lookup.
func (s *Store) FlushCache() {
	s.cache.Flush()
	s.log.Debug("mapping cache flushed")
}

func (s *Store) storeError(err error, op string, kind Kind, sourceID string) error {
	return errors.New(fmt.Errorf("mapping %s failed: %w", op, err)).
		Component("mapping").
		Category(errors.CategoryMapping).
		Priority(errors.PriorityHigh).
		Context("kind", string(kind)).
		Context("source_id", sourceID).
		Build()
}
