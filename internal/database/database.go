package database

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/deskgo-io/deskgo/internal/config"
)

// Connect opens the configured database and verifies the connection.
func Connect(cfg *config.DatabaseConfig) (*sql.DB, error) {
	driver, dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Wrap adapts an open connection for the sqlx-based catalog reads.
func Wrap(db *sql.DB, cfg *config.DatabaseConfig) *sqlx.DB {
	return sqlx.NewDb(db, sqlxDriverName(cfg.Driver))
}

func driverDSN(cfg *config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case "postgres", "":
		return "postgres", cfg.DSN(), nil
	case "sqlite", "sqlite3":
		if cfg.Path == "" {
			return "", "", fmt.Errorf("sqlite database path is required")
		}
		// Busy timeout covers the poller and the service writing concurrently.
		return "sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", cfg.Path), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func sqlxDriverName(driver string) string {
	if driver == "sqlite" || driver == "sqlite3" {
		return "sqlite3"
	}
	return "postgres"
}
