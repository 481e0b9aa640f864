package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
	"gopkg.in/yaml.v3"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/loader"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/openapi2mcp"
)

// SpecRepository is the storage the registry manages.
type SpecRepository interface {
	Upsert(spec *models.OpenAPISpec) (*models.OpenAPISpec, error)
	GetByName(name string) (*models.OpenAPISpec, error)
	GetByID(id int) (*models.OpenAPISpec, error)
	List(activeOnly bool) ([]*models.OpenAPISpec, error)
	SetActive(id int, active bool) error
	Delete(id int) error
}

// ImportOptions describes one import into the registry.
type ImportOptions struct {
	// Name defaults to one derived from the source.
	Name    string
	BaseURL string
	Mode    string
}

// ImportResult reports what was stored.
type ImportResult struct {
	Spec      *models.OpenAPISpec
	Endpoints int
	Warnings  []string
}

// Registry manages the specs stored in the database.
type Registry struct {
	repo   SpecRepository
	loader *loader.SpecLoader
	logger *log.Logger
}

// NewRegistry creates a registry over repo. Specs are read with sl.
func NewRegistry(repo SpecRepository, sl *loader.SpecLoader, logger *log.Logger) *Registry {
	return &Registry{repo: repo, loader: sl, logger: logger}
}

// Import loads the document at source, checks that it normalizes, and
// stores it under opts.Name, replacing any spec of the same name.
func (r *Registry) Import(ctx context.Context, source string, opts ImportOptions) (*ImportResult, error) {
	if opts.Mode != "" {
		if _, ok := openapi2mcp.ParseMode(opts.Mode); !ok {
			return nil, fmt.Errorf("unknown mode %q (want full or search)", opts.Mode)
		}
	}

	loaded, err := r.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	normalized, err := openapi2mcp.Normalize(loaded.Doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	name := opts.Name
	if name == "" {
		name = loaded.Name
	}
	spec := models.NewOpenAPISpec(name, source, string(loaded.Content))
	spec.Title = models.OptionalString(normalized.Title)
	spec.Version = models.OptionalString(normalized.APIVersion)
	spec.BaseURL = models.OptionalString(opts.BaseURL)
	spec.Mode = models.OptionalString(opts.Mode)

	stored, err := r.repo.Upsert(spec)
	if err != nil {
		return nil, err
	}
	r.logger.Info().
		Str("name", name).
		Str("source", source).
		Int("endpoints", len(normalized.Endpoints)).
		Msg("imported spec")

	return &ImportResult{
		Spec:      stored,
		Endpoints: len(normalized.Endpoints),
		Warnings:  append(loaded.Warnings, normalized.Warnings...),
	}, nil
}

// List returns stored specs, optionally only active ones.
func (r *Registry) List(activeOnly bool) ([]*models.OpenAPISpec, error) {
	return r.repo.List(activeOnly)
}

// Get returns the spec stored under name.
func (r *Registry) Get(name string) (*models.OpenAPISpec, error) {
	return r.repo.GetByName(name)
}

// GetByID returns the spec with the given registry id, as shown by List.
func (r *Registry) GetByID(id int) (*models.OpenAPISpec, error) {
	return r.repo.GetByID(id)
}

// Activate marks the named spec as servable.
func (r *Registry) Activate(name string) error {
	return r.setActive(name, true)
}

// Deactivate keeps the named spec but refuses to serve it.
func (r *Registry) Deactivate(name string) error {
	return r.setActive(name, false)
}

func (r *Registry) setActive(name string, active bool) error {
	spec, err := r.repo.GetByName(name)
	if err != nil {
		return err
	}
	return r.repo.SetActive(spec.ID, active)
}

// Delete removes the named spec.
func (r *Registry) Delete(name string) error {
	spec, err := r.repo.GetByName(name)
	if err != nil {
		return err
	}
	return r.repo.Delete(spec.ID)
}

// SpecFileExtensions are the file types ImportDir picks up.
var SpecFileExtensions = []string{".yaml", ".yml", ".json"}

// ImportDir imports every spec file directly inside dir, naming each after
// its file. A file that fails is reported in errs and the rest continue.
func (r *Registry) ImportDir(ctx context.Context, dir string) (results []*ImportResult, errs []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read specs directory: %w", err)}
	}

	for _, entry := range entries {
		if entry.IsDir() || !isSpecFile(entry.Name()) {
			continue
		}
		res, err := r.Import(ctx, filepath.Join(dir, entry.Name()), ImportOptions{})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

func isSpecFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SpecFileExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// SeedEntry defines how one spec is imported by Seed.
type SeedEntry struct {
	File    string `json:"file" yaml:"file"`
	Name    string `json:"name" yaml:"name"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Mode    string `json:"mode" yaml:"mode"`
	// Active defaults to true.
	Active *bool `json:"active" yaml:"active"`
}

// SeedConfig lists the specs to seed the registry with.
type SeedConfig struct {
	Specs []SeedEntry `json:"specs" yaml:"specs"`
}

// LoadSeedConfig reads a seed file, JSON for a .json extension and YAML
// otherwise. Relative spec paths are resolved against the seed file's
// directory.
func LoadSeedConfig(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var cfg SeedConfig
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	base := filepath.Dir(path)
	for i := range cfg.Specs {
		f := cfg.Specs[i].File
		if f != "" && !loader.IsURL(f) && !filepath.IsAbs(f) {
			cfg.Specs[i].File = filepath.Join(base, f)
		}
	}
	return &cfg, nil
}

// Seed imports every entry of cfg, deactivating those marked inactive.
func (r *Registry) Seed(ctx context.Context, cfg *SeedConfig) (results []*ImportResult, errs []error) {
	for _, entry := range cfg.Specs {
		if entry.File == "" {
			errs = append(errs, fmt.Errorf("seed entry %q has no file", entry.Name))
			continue
		}
		res, err := r.Import(ctx, entry.File, ImportOptions{
			Name:    entry.Name,
			BaseURL: entry.BaseURL,
			Mode:    entry.Mode,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.File, err))
			continue
		}
		if entry.Active != nil && !*entry.Active {
			if err := r.repo.SetActive(res.Spec.ID, false); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", entry.File, err))
				continue
			}
			res.Spec.IsActive = false
		}
		results = append(results, res)
	}
	return results, errs
}
