package database

import (
	"database/sql"
	"fmt"

	"github.com/phuslu/log"
)

const createOpenAPISpecsTable = `
	CREATE TABLE IF NOT EXISTS openapi_specs (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		title VARCHAR(500),
		version VARCHAR(100),
		source TEXT NOT NULL DEFAULT '',
		spec_content TEXT NOT NULL,
		file_format VARCHAR(10) NOT NULL DEFAULT 'yaml',
		base_url VARCHAR(2048),
		mode VARCHAR(10) CHECK (mode IN ('full', 'search')),
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP(6) DEFAULT NOW(),
		updated_at TIMESTAMP(6) DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_openapi_specs_is_active ON openapi_specs(is_active);

	CREATE OR REPLACE FUNCTION update_updated_at_column()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ language 'plpgsql';

	DROP TRIGGER IF EXISTS update_openapi_specs_updated_at ON openapi_specs;
	CREATE TRIGGER update_openapi_specs_updated_at
		BEFORE UPDATE ON openapi_specs
		FOR EACH ROW
		EXECUTE FUNCTION update_updated_at_column();
`

const dropOpenAPISpecsTable = `
	DROP TRIGGER IF EXISTS update_openapi_specs_updated_at ON openapi_specs;
	DROP FUNCTION IF EXISTS update_updated_at_column();
	DROP TABLE IF EXISTS openapi_specs CASCADE;
`

// CreateOpenAPISpecsTable creates the openapi_specs table with its index and
// updated_at trigger.
func CreateOpenAPISpecsTable(db *sql.DB) error {
	if _, err := db.Exec(createOpenAPISpecsTable); err != nil {
		return fmt.Errorf("failed to create openapi_specs table: %w", err)
	}
	return nil
}

// DropOpenAPISpecsTable drops the openapi_specs table (useful for testing)
func DropOpenAPISpecsTable(db *sql.DB) error {
	if _, err := db.Exec(dropOpenAPISpecsTable); err != nil {
		return fmt.Errorf("failed to drop openapi_specs table: %w", err)
	}
	return nil
}

// RunMigrations runs all database migrations
func RunMigrations(db *sql.DB, logger *log.Logger) error {
	logger.Debug().Msg("running database migrations")

	if err := CreateOpenAPISpecsTable(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info().Msg("database migrations completed")
	return nil
}
