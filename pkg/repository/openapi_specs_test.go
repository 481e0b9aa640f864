package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
)

var columns = []string{"id", "name", "title", "version", "source", "spec_content", "file_format", "base_url", "mode", "is_active", "created_at", "updated_at"}

func newRepo(t *testing.T) (*OpenAPISpecRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewOpenAPISpecRepository(db), mock
}

func TestUpsert(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()
	spec := models.NewOpenAPISpec("petstore", "petstore.yaml", "openapi: 3.0.0")
	spec.BaseURL = models.OptionalString("https://api.test")

	mock.ExpectQuery(`INSERT INTO openapi_specs .* ON CONFLICT \(name\) DO UPDATE`).
		WithArgs("petstore", nil, nil, "petstore.yaml", "openapi: 3.0.0", "yaml", spec.BaseURL, nil, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

	got, err := repo.Upsert(spec)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)
	require.NotNil(t, got.CreatedAt)
	assert.Equal(t, now, *got.CreatedAt)

	mock.ExpectQuery(`INSERT INTO openapi_specs`).WillReturnError(errors.New("connection reset"))
	_, err = repo.Upsert(spec)
	assert.ErrorContains(t, err, "connection reset")
}

func TestGetByName(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM openapi_specs WHERE name = \$1`).
		WithArgs("petstore").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "petstore", "Petstore", "1.0.0", "petstore.yaml", "openapi: 3.0.0", "yaml", nil, "search", true, now, now))

	spec, err := repo.GetByName("petstore")
	require.NoError(t, err)
	assert.Equal(t, "Petstore", models.StringValue(spec.Title))
	assert.Nil(t, spec.BaseURL)
	assert.Equal(t, "search", models.StringValue(spec.Mode))
	assert.True(t, spec.IsActive)

	mock.ExpectQuery(`SELECT .* FROM openapi_specs WHERE name = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByName("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByID(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM openapi_specs WHERE id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(3, "weather", nil, nil, "weather.json", "{}", "json", "https://wx.test", nil, false, now, now))

	spec, err := repo.GetByID(3)
	require.NoError(t, err)
	assert.Equal(t, "weather", spec.Name)
	assert.Equal(t, "https://wx.test", models.StringValue(spec.BaseURL))
	assert.False(t, spec.IsActive)

	mock.ExpectQuery(`SELECT .* FROM openapi_specs WHERE id = \$1`).
		WithArgs(9).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByID(9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()
	rows := sqlmock.NewRows(columns).
		AddRow(1, "a", nil, nil, "a.yaml", "x", "yaml", nil, nil, true, now, now).
		AddRow(2, "b", nil, nil, "b.json", "{}", "json", "https://b.test", "full", true, now, now)

	mock.ExpectQuery(`SELECT .* FROM openapi_specs WHERE is_active = true ORDER BY name`).WillReturnRows(rows)
	specs, err := repo.List(true)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "b", specs[1].Name)
	assert.Equal(t, "https://b.test", models.StringValue(specs[1].BaseURL))

	mock.ExpectQuery(`SELECT .* FROM openapi_specs ORDER BY name`).WillReturnRows(sqlmock.NewRows(columns))
	specs, err = repo.List(false)
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestSetActiveAndDelete(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE openapi_specs SET is_active = \$2`).
		WithArgs(3, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetActive(3, false))

	mock.ExpectExec(`UPDATE openapi_specs SET is_active = \$2`).
		WithArgs(4, true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetActive(4, true), ErrNotFound)

	mock.ExpectExec(`DELETE FROM openapi_specs WHERE id = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(3))

	mock.ExpectExec(`DELETE FROM openapi_specs WHERE id = \$1`).
		WithArgs(3).
		WillReturnError(errors.New("locked"))
	assert.ErrorContains(t, repo.Delete(3), "locked")
}
