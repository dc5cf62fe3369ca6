package target

import (
	"database/sql"
	"fmt"
	"time"

	// lib/pq registers the "postgres" database/sql driver used below.
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/logger"
)

// PostgresManager handles a PostgreSQL target store, the database Discourse
// itself runs on.
type PostgresManager struct {
	db       *gorm.DB
	location string
}

// NewPostgresManager connects to the PostgreSQL database in cfg.DSN through
// the lib/pq driver.
func NewPostgresManager(cfg Config) (*PostgresManager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres target requires a dsn")
	}

	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL target database: %w", err)
	}
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig(&cfg))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize gorm for PostgreSQL: %w", err)
	}

	return &PostgresManager{
		db:       db,
		location: logger.RedactSensitiveData(cfg.DSN),
	}, nil
}

// Initialize creates the schema and seeds the run state.
func (m *PostgresManager) Initialize() error {
	return initializeSchema(m.db)
}

// DB returns the underlying GORM database.
func (m *PostgresManager) DB() *gorm.DB {
	return m.db
}

// Path returns the DSN with the password redacted.
func (m *PostgresManager) Path() string {
	return m.location
}

// Dialect returns "postgres".
func (m *PostgresManager) Dialect() string {
	return conf.TargetPostgres
}

// Close closes the database connection.
func (m *PostgresManager) Close() error {
	return closeDB(m.db)
}
