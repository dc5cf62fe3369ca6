package importer

import (
	"context"

	"github.com/forumkit/flarum-importer/internal/logger"
	"github.com/forumkit/flarum-importer/internal/mapping"
)

// Gate skips batches whose records are all mapped already. It only saves
// work: the writer still checks every record it is handed.
type Gate struct {
	mappings *mapping.Store
	log      logger.Logger
}

// NewGate creates a gate over mappings.
func NewGate(mappings *mapping.Store, log logger.Logger) *Gate {
	return &Gate{mappings: mappings, log: log}
}

// AllMigrated reports whether every id of a batch has a mapping of kind.
// An empty batch is never considered migrated.
func (g *Gate) AllMigrated(ctx context.Context, kind mapping.Kind, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	done, err := g.mappings.AllMapped(ctx, kind, ids)
	if err != nil {
		return false, err
	}
	if done {
		g.log.Debug("batch already migrated",
			logger.String("kind", string(kind)),
			logger.Int("records", len(ids)))
	}
	return done, nil
}
