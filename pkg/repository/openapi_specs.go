package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
)

// ErrNotFound is returned when no spec matches a lookup.
var ErrNotFound = errors.New("openapi spec not found")

const specColumns = `id, name, title, version, source, spec_content, file_format, base_url, mode, is_active, created_at, updated_at`

// OpenAPISpecRepository handles database operations for OpenAPI specs
type OpenAPISpecRepository struct {
	db *sql.DB
}

// NewOpenAPISpecRepository creates a new repository instance
func NewOpenAPISpecRepository(db *sql.DB) *OpenAPISpecRepository {
	return &OpenAPISpecRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpec(row rowScanner) (*models.OpenAPISpec, error) {
	spec := &models.OpenAPISpec{}
	err := row.Scan(
		&spec.ID,
		&spec.Name,
		&spec.Title,
		&spec.Version,
		&spec.Source,
		&spec.SpecContent,
		&spec.FileFormat,
		&spec.BaseURL,
		&spec.Mode,
		&spec.IsActive,
		&spec.CreatedAt,
		&spec.UpdatedAt,
	)
	return spec, err
}

// Upsert inserts spec, or replaces the stored spec with the same name.
func (r *OpenAPISpecRepository) Upsert(spec *models.OpenAPISpec) (*models.OpenAPISpec, error) {
	query := `
		INSERT INTO openapi_specs (name, title, version, source, spec_content, file_format, base_url, mode, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE SET
			title = EXCLUDED.title,
			version = EXCLUDED.version,
			source = EXCLUDED.source,
			spec_content = EXCLUDED.spec_content,
			file_format = EXCLUDED.file_format,
			base_url = EXCLUDED.base_url,
			mode = EXCLUDED.mode,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		query,
		spec.Name,
		spec.Title,
		spec.Version,
		spec.Source,
		spec.SpecContent,
		spec.FileFormat,
		spec.BaseURL,
		spec.Mode,
		spec.IsActive,
	).Scan(&spec.ID, &spec.CreatedAt, &spec.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert openapi spec: %w", err)
	}

	return spec, nil
}

// GetByID retrieves an OpenAPI spec by its ID
func (r *OpenAPISpecRepository) GetByID(id int) (*models.OpenAPISpec, error) {
	spec, err := scanSpec(r.db.QueryRow(`SELECT `+specColumns+` FROM openapi_specs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get openapi spec: %w", err)
	}
	return spec, nil
}

// GetByName retrieves an OpenAPI spec by its name
func (r *OpenAPISpecRepository) GetByName(name string) (*models.OpenAPISpec, error) {
	spec, err := scanSpec(r.db.QueryRow(`SELECT `+specColumns+` FROM openapi_specs WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get openapi spec: %w", err)
	}
	return spec, nil
}

// List retrieves stored specs ordered by name, optionally only active ones.
func (r *OpenAPISpecRepository) List(activeOnly bool) ([]*models.OpenAPISpec, error) {
	query := `SELECT ` + specColumns + ` FROM openapi_specs`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list openapi specs: %w", err)
	}
	defer rows.Close()

	var specs []*models.OpenAPISpec
	for rows.Next() {
		spec, err := scanSpec(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan openapi spec: %w", err)
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list openapi specs: %w", err)
	}

	return specs, nil
}

// SetActive sets the is_active status of an OpenAPI spec
func (r *OpenAPISpecRepository) SetActive(id int, active bool) error {
	query := `UPDATE openapi_specs SET is_active = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(query, id, active)
	if err != nil {
		return fmt.Errorf("failed to set active status: %w", err)
	}
	return expectOneRow(result, id)
}

// Delete removes an OpenAPI spec from the database
func (r *OpenAPISpecRepository) Delete(id int) error {
	result, err := r.db.Exec(`DELETE FROM openapi_specs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete openapi spec: %w", err)
	}
	return expectOneRow(result, id)
}

func expectOneRow(result sql.Result, id int) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}
