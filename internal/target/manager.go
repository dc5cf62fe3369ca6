// Package target manages the Discourse-shaped store the importer writes into.
package target

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/logger"
	"github.com/forumkit/flarum-importer/internal/target/entities"
)

// Manager defines the interface for target store lifecycle operations.
type Manager interface {
	// Initialize creates the schema and the run state row.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location for display (credentials removed).
	Path() string
	// Dialect returns "sqlite", "mysql" or "postgres".
	Dialect() string
	// Close closes the database connection.
	Close() error
}

// Config holds the settings shared by all managers.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// DSN is the MySQL or Postgres connection string.
	DSN string
	// Logger receives SQL traces and slow query warnings.
	Logger logger.Logger
	// SlowThreshold marks queries as slow. Zero disables the warning.
	SlowThreshold time.Duration
}

// NewManager opens the target store selected in settings.
func NewManager(settings *conf.TargetSettings, log logger.Logger) (Manager, error) {
	cfg := Config{
		Path:          settings.Path,
		DSN:           settings.DSN,
		Logger:        log,
		SlowThreshold: settings.SlowThreshold,
	}
	switch settings.Type {
	case conf.TargetSQLite:
		return NewSQLiteManager(cfg)
	case conf.TargetMySQL:
		return NewMySQLManager(cfg)
	case conf.TargetPostgres:
		return NewPostgresManager(cfg)
	default:
		return nil, fmt.Errorf("unsupported target type %q", settings.Type)
	}
}

func gormConfig(cfg *Config) *gorm.Config {
	return &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(cfg.Logger, cfg.SlowThreshold),
		TranslateError: true,
	}
}

// initializeSchema migrates all entities and seeds the run state singleton.
func initializeSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(entities.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate target schema: %w", err)
	}

	// FirstOrCreate tolerates a concurrent initializer.
	state := entities.ImportState{ID: 1, State: entities.ImportStatusIdle}
	if err := db.FirstOrCreate(&state, entities.ImportState{ID: 1}).Error; err != nil {
		return fmt.Errorf("failed to initialize import state: %w", err)
	}
	return nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// SQLiteManager handles a SQLite target store.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (creating if needed) the SQLite database at cfg.Path.
func NewSQLiteManager(cfg Config) (*SQLiteManager, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite target requires a path")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL keeps the status command readable while an import is running.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(&cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}

	return &SQLiteManager{
		db:     db,
		dbPath: cfg.Path,
	}, nil
}

// Initialize creates the schema and seeds the run state.
func (m *SQLiteManager) Initialize() error {
	return initializeSchema(m.db)
}

// DB returns the underlying GORM database.
func (m *SQLiteManager) DB() *gorm.DB {
	return m.db
}

// Path returns the database file path.
func (m *SQLiteManager) Path() string {
	return m.dbPath
}

// Dialect returns "sqlite".
func (m *SQLiteManager) Dialect() string {
	return conf.TargetSQLite
}

// Close closes the database connection.
func (m *SQLiteManager) Close() error {
	return closeDB(m.db)
}
