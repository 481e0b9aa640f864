package services

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/repository"
)

const petstoreSpec = `openapi: 3.0.3
info:
  title: Petstore
  version: 1.2.0
servers:
  - url: https://petstore.invalid/v1
paths:
  /pets/{id}:
    get:
      operationId: getPet
      summary: Get a pet
      tags: [pet]
      parameters:
        - name: id
          in: path
          required: true
          schema: {type: integer}
      responses:
        "200": {description: ok}
  /store/orders:
    post:
      operationId: placeOrder
      summary: Place an order
      tags: [store]
      requestBody:
        content:
          application/json:
            schema:
              type: object
              properties:
                petId: {type: integer}
      responses:
        "201": {description: created}
components:
  securitySchemes:
    key:
      type: apiKey
      in: header
      name: X-Pet-Key
`

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "petstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// memStore is an in-memory spec registry.
type memStore struct {
	mu     sync.Mutex
	nextID int
	specs  map[string]*models.OpenAPISpec
}

func newMemStore(specs ...*models.OpenAPISpec) *memStore {
	s := &memStore{specs: map[string]*models.OpenAPISpec{}}
	for _, spec := range specs {
		_, _ = s.Upsert(spec)
	}
	return s
}

func (s *memStore) GetByName(name string) (*models.OpenAPISpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, name)
	}
	return spec, nil
}

func (s *memStore) Upsert(spec *models.OpenAPISpec) (*models.OpenAPISpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.specs[spec.Name]; ok {
		spec.ID = old.ID
	} else {
		s.nextID++
		spec.ID = s.nextID
	}
	s.specs[spec.Name] = spec
	return spec, nil
}

func (s *memStore) List(activeOnly bool) ([]*models.OpenAPISpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.OpenAPISpec
	for _, spec := range s.specs {
		if activeOnly && !spec.IsActive {
			continue
		}
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) GetByID(id int) (*models.OpenAPISpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID(id)
}

func (s *memStore) byID(id int) (*models.OpenAPISpec, error) {
	for _, spec := range s.specs {
		if spec.ID == id {
			return spec, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", repository.ErrNotFound, id)
}

func (s *memStore) SetActive(id int, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, err := s.byID(id)
	if err != nil {
		return err
	}
	spec.IsActive = active
	return nil
}

func (s *memStore) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, err := s.byID(id)
	if err != nil {
		return err
	}
	delete(s.specs, spec.Name)
	return nil
}

// fakeAPI records the last request it served.
type fakeAPI struct {
	*httptest.Server
	mu   sync.Mutex
	last *http.Request
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pets/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%s,"name":"rex"}`, r.PathValue("id"))
	})
	mux.HandleFunc("POST /store/orders", func(w http.ResponseWriter, r *http.Request) {
		api.record(r)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"status":"placed"}`)
	})
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("client_secret") != "s3cret" {
			http.Error(w, "bad client", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-123","token_type":"bearer"}`)
	})
	api.Server = httptest.NewServer(mux)
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) record(r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = r.Clone(r.Context())
}

func (a *fakeAPI) lastRequest() *http.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
