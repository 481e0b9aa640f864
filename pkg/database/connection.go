package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/phuslu/log"
)

// Connect opens and pings the PostgreSQL database at databaseURL.
func Connect(ctx context.Context, databaseURL string, logger *log.Logger) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is not set")
	}
	if !strings.HasPrefix(databaseURL, "postgres://") && !strings.HasPrefix(databaseURL, "postgresql://") {
		return nil, fmt.Errorf("database URL must be a PostgreSQL connection string starting with 'postgres://' or 'postgresql://'")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	logger.Info().Str("database", redact(databaseURL)).Msg("database connected")
	return db, nil
}

// InitializeDatabase connects to the database and runs migrations
func InitializeDatabase(ctx context.Context, databaseURL string, logger *log.Logger) (*sql.DB, error) {
	db, err := Connect(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// redact hides the credentials part of a connection URL.
func redact(databaseURL string) string {
	at := strings.LastIndex(databaseURL, "@")
	if at < 0 {
		return databaseURL
	}
	scheme := strings.Index(databaseURL, "://")
	return databaseURL[:scheme+3] + "[HIDDEN]" + databaseURL[at:]
}
