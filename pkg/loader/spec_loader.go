package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/phuslu/log"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/document"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/logging"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/repository"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/server"
)

// MaxSpecBytes caps the size of a spec document read from a file or URL.
const MaxSpecBytes = 32 << 20

// SpecStore is the part of the spec registry the loader reads from.
type SpecStore interface {
	GetByName(name string) (*models.OpenAPISpec, error)
}

// LoadedSpec represents a loaded OpenAPI specification with metadata
type LoadedSpec struct {
	// Name is the registry name, or one derived from the file name or URL.
	Name    string
	Source  string
	Content []byte
	// Doc is the ordered document tree with local $refs resolved in place.
	// It may contain cycles.
	Doc *document.Object
	// Typed is kin-openapi's view of the document (Swagger 2.0 is converted
	// to 3.0). It is nil when kin-openapi could not parse the document.
	Typed *openapi3.T
	// Record is set when the spec came from the registry.
	Record         *models.OpenAPISpec
	UnresolvedRefs []string
	Warnings       []string
	LoadedAt       time.Time
}

// SpecLoader handles loading of OpenAPI specifications
type SpecLoader struct {
	httpClient *http.Client
	store      SpecStore
	logger     *log.Logger
	validate   bool
}

// Option configures a SpecLoader.
type Option func(*SpecLoader)

// WithHTTPClient sets the client used to fetch specs by URL.
func WithHTTPClient(c *http.Client) Option {
	return func(sl *SpecLoader) { sl.httpClient = c }
}

// WithStore enables loading specs by registry name.
func WithStore(store SpecStore) Option {
	return func(sl *SpecLoader) { sl.store = store }
}

func WithLogger(l *log.Logger) Option {
	return func(sl *SpecLoader) { sl.logger = l }
}

// WithValidation runs kin-openapi validation on every loaded spec. Problems
// are reported as warnings, they never fail the load.
func WithValidation(on bool) Option {
	return func(sl *SpecLoader) { sl.validate = on }
}

// NewSpecLoader creates a new specification loader
func NewSpecLoader(opts ...Option) *SpecLoader {
	sl := &SpecLoader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(sl)
	}
	return sl
}

// Load reads a spec from a local file or an http(s) URL.
func (sl *SpecLoader) Load(ctx context.Context, source string) (*LoadedSpec, error) {
	var content []byte
	var err error
	if IsURL(source) {
		content, err = sl.loadFromURL(ctx, source)
	} else {
		content, err = loadFromLocalFile(source)
	}
	if err != nil {
		return nil, err
	}
	return sl.Parse(ctx, EndpointName(source), source, content)
}

// LoadByName reads a spec stored in the registry. Inactive specs are refused.
func (sl *SpecLoader) LoadByName(ctx context.Context, name string) (*LoadedSpec, error) {
	if sl.store == nil {
		return nil, server.NewError(server.ErrorTypeDatabase, "spec registry not configured", name)
	}
	record, err := sl.store.GetByName(name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, server.Wrap(err, server.ErrorTypeNotFound, "spec not found in registry")
		}
		return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to load spec from registry")
	}
	if !record.IsActive {
		return nil, server.NewError(server.ErrorTypeValidation, "spec is deactivated", name)
	}

	loaded, err := sl.Parse(ctx, record.Name, "db:"+record.Name, []byte(record.SpecContent))
	if err != nil {
		return nil, err
	}
	loaded.Record = record
	return loaded, nil
}

// Parse processes raw specification content into a LoadedSpec.
func (sl *SpecLoader) Parse(ctx context.Context, name, source string, content []byte) (*LoadedSpec, error) {
	doc, err := document.Parse(content)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation, "failed to parse spec "+source)
	}

	loaded := &LoadedSpec{
		Name:     name,
		Source:   source,
		Content:  content,
		LoadedAt: time.Now(),
	}

	// the typed view is built before refs are resolved, resolution can
	// leave cycles in the tree
	typed, err := typedView(ctx, content, doc)
	if err != nil {
		loaded.Warnings = append(loaded.Warnings, "kin-openapi could not load the document: "+err.Error())
	}
	loaded.Typed = typed

	loaded.UnresolvedRefs = document.ResolveRefs(doc)
	loaded.Doc = doc
	for _, ref := range loaded.UnresolvedRefs {
		loaded.Warnings = append(loaded.Warnings, "unresolved reference "+ref)
	}

	if sl.validate && typed != nil {
		if err := typed.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
			loaded.Warnings = append(loaded.Warnings, "validation: "+err.Error())
		}
	}

	title := ""
	if typed != nil && typed.Info != nil {
		title = typed.Info.Title
	}
	sl.logger.Info().
		Str("spec", name).
		Str("source", source).
		Str("title", title).
		Int("bytes", len(content)).
		Msg("loaded spec")
	for _, w := range loaded.Warnings {
		sl.logger.Warn().Str("spec", name).Msg(w)
	}
	return loaded, nil
}

func typedView(ctx context.Context, content []byte, raw *document.Object) (*openapi3.T, error) {
	if raw.Has("swagger") {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		var v2 openapi2.T
		if err := json.Unmarshal(data, &v2); err != nil {
			return nil, err
		}
		return openapi2conv.ToV3(&v2)
	}

	l := openapi3.NewLoader()
	l.Context = ctx
	return l.LoadFromData(content)
}

// loadFromURL loads specification from a URL
func (sl *SpecLoader) loadFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeNetwork, "failed to create request")
	}

	resp, err := sl.httpClient.Do(req)
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeNetwork, "failed to fetch spec from URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, server.NewError(server.ErrorTypeNetwork,
			fmt.Sprintf("HTTP %d when fetching spec", resp.StatusCode), url)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, MaxSpecBytes+1))
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeNetwork, "failed to read spec from URL")
	}
	if len(content) > MaxSpecBytes {
		return nil, server.NewError(server.ErrorTypeValidation, "spec too large", url)
	}
	return content, nil
}

// loadFromLocalFile loads specification from a local file
func loadFromLocalFile(filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, server.NewError(server.ErrorTypeNotFound, "spec file not found", filePath)
		}
		return nil, server.Wrap(err, server.ErrorTypeInternal, "failed to read spec file")
	}
	if len(content) > MaxSpecBytes {
		return nil, server.NewError(server.ErrorTypeValidation, "spec too large", filePath)
	}
	return content, nil
}

// IsURL reports whether source is an http(s) URL.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// EndpointName extracts a short lowercase name from a file path or URL:
// the base name without extension and query string.
func EndpointName(path string) string {
	if IsURL(path) {
		if idx := strings.IndexAny(path, "?#"); idx != -1 {
			path = path[:idx]
		}
		path = strings.TrimSuffix(path, "/")
		if idx := strings.LastIndex(path, "/"); idx != -1 {
			path = path[idx+1:]
		}
	} else {
		path = filepath.Base(path)
	}
	if idx := strings.LastIndex(path, "."); idx > 0 {
		path = path[:idx]
	}
	return strings.ToLower(path)
}
