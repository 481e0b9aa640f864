package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/repository"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/server"
)

const petstoreYAML = `
openapi: 3.0.3
info:
  title: Petstore
  version: 1.0.0
servers:
  - url: https://petstore.test/v1
paths:
  /pets/{id}:
    get:
      operationId: getPet
      parameters:
        - name: id
          in: path
          required: true
          schema: {type: integer}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: '#/components/schemas/Pet'}
components:
  securitySchemes:
    key:
      type: apiKey
      in: header
      name: X-Key
  schemas:
    Pet:
      type: object
      properties:
        name: {type: string}
        parent: {$ref: '#/components/schemas/Pet'}
`

const swaggerJSON = `{
  "swagger": "2.0",
  "info": {"title": "Legacy", "version": "2"},
  "host": "legacy.test",
  "basePath": "/api",
  "paths": {"/items": {"get": {"operationId": "listItems", "responses": {"200": {"description": "ok"}}}}}
}`

func writeSpec(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeSpec(t, "PetStore.yaml", petstoreYAML)
	loaded, err := NewSpecLoader().Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "petstore", loaded.Name)
	assert.Equal(t, path, loaded.Source)
	assert.Empty(t, loaded.UnresolvedRefs)
	assert.Empty(t, loaded.Warnings)
	require.NotNil(t, loaded.Typed)
	assert.Equal(t, "Petstore", loaded.Typed.Info.Title)
	assert.Contains(t, loaded.Typed.Components.SecuritySchemes, "key")
	assert.True(t, loaded.Doc.Has("paths"))
	assert.False(t, loaded.LoadedAt.IsZero())
}

func TestLoadSwagger2TypedView(t *testing.T) {
	loaded, err := NewSpecLoader(WithValidation(true)).Parse(context.Background(), "legacy", "legacy.json", []byte(swaggerJSON))
	require.NoError(t, err)
	require.NotNil(t, loaded.Typed)
	assert.Equal(t, "Legacy", loaded.Typed.Info.Title)
	assert.NotNil(t, loaded.Typed.Paths.Find("/items"))
	assert.Equal(t, "2.0", loaded.Doc.String("swagger"))
}

func TestLoadFromURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/specs/petstore.yaml":
			fmt.Fprint(w, petstoreYAML)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	sl := NewSpecLoader(WithHTTPClient(ts.Client()))
	loaded, err := sl.Load(context.Background(), ts.URL+"/specs/petstore.yaml?token=x")
	require.NoError(t, err)
	assert.Equal(t, "petstore", loaded.Name)

	_, err = sl.Load(context.Background(), ts.URL+"/specs/missing.yaml")
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeNetwork))
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestLoadErrors(t *testing.T) {
	sl := NewSpecLoader()

	_, err := sl.Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, server.IsType(err, server.ErrorTypeNotFound))

	_, err = sl.Load(context.Background(), writeSpec(t, "list.yaml", "- a\n- b\n"))
	assert.True(t, server.IsType(err, server.ErrorTypeValidation))
}

func TestParseReportsWarnings(t *testing.T) {
	src := `{"openapi": "3.0.0", "paths": {"/a": {"get": {"responses": {"200": {"$ref": "other.yaml#/r"}}}}}}`
	loaded, err := NewSpecLoader().Parse(context.Background(), "a", "a.json", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"other.yaml#/r"}, loaded.UnresolvedRefs)
	assert.NotEmpty(t, loaded.Warnings)
}

type fakeStore map[string]*models.OpenAPISpec

func (s fakeStore) GetByName(name string) (*models.OpenAPISpec, error) {
	if spec, ok := s[name]; ok {
		return spec, nil
	}
	return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, name)
}

func TestLoadByName(t *testing.T) {
	inactive := models.NewOpenAPISpec("old", "old.yaml", petstoreYAML)
	inactive.IsActive = false
	store := fakeStore{
		"petstore": models.NewOpenAPISpec("petstore", "petstore.yaml", petstoreYAML),
		"old":      inactive,
	}
	sl := NewSpecLoader(WithStore(store))

	loaded, err := sl.LoadByName(context.Background(), "petstore")
	require.NoError(t, err)
	assert.Equal(t, "db:petstore", loaded.Source)
	assert.Same(t, store["petstore"], loaded.Record)

	_, err = sl.LoadByName(context.Background(), "missing")
	assert.True(t, server.IsType(err, server.ErrorTypeNotFound))

	_, err = sl.LoadByName(context.Background(), "old")
	assert.ErrorContains(t, err, "deactivated")

	_, err = NewSpecLoader().LoadByName(context.Background(), "petstore")
	assert.True(t, server.IsType(err, server.ErrorTypeDatabase))
}

func TestEndpointName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"specs/PetStore.yaml", "petstore"},
		{"/abs/path/github.v3.json", "github.v3"},
		{"https://api.test/openapi.json?x=1", "openapi"},
		{"https://api.test/docs/", "docs"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EndpointName(tt.in), tt.in)
	}
}
