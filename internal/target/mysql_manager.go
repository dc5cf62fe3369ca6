package target

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/logger"
)

// MySQLManager handles a MySQL target store.
type MySQLManager struct {
	db       *gorm.DB
	location string
}

// NewMySQLManager connects to the MySQL database in cfg.DSN.
func NewMySQLManager(cfg Config) (*MySQLManager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql target requires a dsn")
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN), gormConfig(&cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL target database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	// The pipeline is sequential; a small pool is enough.
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &MySQLManager{
		db:       db,
		location: logger.RedactSensitiveData(cfg.DSN),
	}, nil
}

// Initialize creates the schema and seeds the run state.
func (m *MySQLManager) Initialize() error {
	return initializeSchema(m.db)
}

// DB returns the underlying GORM database.
func (m *MySQLManager) DB() *gorm.DB {
	return m.db
}

// Path returns the DSN with the password redacted.
func (m *MySQLManager) Path() string {
	return m.location
}

// Dialect returns "mysql".
func (m *MySQLManager) Dialect() string {
	return conf.TargetMySQL
}

// Close closes the database connection.
func (m *MySQLManager) Close() error {
	return closeDB(m.db)
}
