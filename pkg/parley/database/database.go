package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const slowQueryThreshold = 500 * time.Millisecond

// Options describes how to reach the relational store
type Options struct {
	Driver       string // sqlite or postgres
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open initializes the database connection.
// SQLite is the default; PostgreSQL is used in production.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(opts.DSN)
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(logrus.StandardLogger(), slowQueryThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB instance: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// OpenInMemory returns a single-connection in-memory SQLite database.
// Every pooled connection to ":memory:" would see its own empty database,
// so the pool is pinned to one connection.
func OpenInMemory() (*gorm.DB, error) {
	return Open(Options{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1})
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
