// Package services wires the proxy together: it loads the configured spec,
// turns it into tools, builds the dispatcher and serves it over stdio or
// HTTP.
package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/phuslu/log"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/auth"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/database"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/loader"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/openapi2mcp"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/repository"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/server"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP transport.
const ShutdownTimeout = 25 * time.Second

// Runtime is one running proxy: the loaded spec, its dispatcher and the MCP
// server exposing it. Reload swaps the spec and dispatcher atomically.
type Runtime struct {
	cfg    *server.Config
	logger *log.Logger
	loader *loader.SpecLoader
	db     *sql.DB
	// apiClient is the base client for API calls and OAuth2 token requests.
	apiClient *http.Client

	mcp     *mcpserver.MCPServer
	current atomic.Pointer[openapi2mcp.Dispatcher]
	spec    atomic.Pointer[loader.LoadedSpec]
	// reloadMu serializes reloads.
	reloadMu sync.Mutex
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithAPIClient sets the base HTTP client for API calls. Its timeout is
// replaced by the configured one when that is set.
func WithAPIClient(c *http.Client) RuntimeOption {
	return func(r *Runtime) { r.apiClient = c }
}

// WithSpecStore loads specs by name from store instead of opening
// cfg.DatabaseURL.
func WithSpecStore(store loader.SpecStore) RuntimeOption {
	return func(r *Runtime) {
		r.loader = loader.NewSpecLoader(
			loader.WithStore(store),
			loader.WithLogger(r.logger),
			loader.WithValidation(r.cfg.ValidateSpec),
		)
	}
}

// NewRuntime loads the configured spec and builds everything needed to
// serve it. cfg must have been validated.
func NewRuntime(ctx context.Context, cfg *server.Config, logger *log.Logger, opts ...RuntimeOption) (*Runtime, error) {
	r := &Runtime{
		cfg:       cfg,
		logger:    logger,
		apiClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.loader == nil {
		loaderOpts := []loader.Option{
			loader.WithLogger(logger),
			loader.WithValidation(cfg.ValidateSpec),
		}
		if cfg.SpecName != "" {
			db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return nil, server.Wrap(err, server.ErrorTypeDatabase, "failed to connect to spec registry")
			}
			r.db = db
			loaderOpts = append(loaderOpts, loader.WithStore(repository.NewOpenAPISpecRepository(db)))
		}
		r.loader = loader.NewSpecLoader(loaderOpts...)
	}

	d, spec, err := r.build(ctx)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.current.Store(d)
	r.spec.Store(spec)
	r.mcp = openapi2mcp.NewServer(cfg.ServerName, cfg.ServerVersion, d)
	return r, nil
}

// build runs the whole pipeline: load, normalize, filter, synthesize tools,
// set up auth and construct the dispatcher.
func (r *Runtime) build(ctx context.Context) (*openapi2mcp.Dispatcher, *loader.LoadedSpec, error) {
	loaded, err := r.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	d, err := r.assemble(ctx, loaded)
	if err != nil {
		return nil, nil, err
	}
	return d, loaded, nil
}

func (r *Runtime) load(ctx context.Context) (*loader.LoadedSpec, error) {
	if r.cfg.SpecName != "" {
		return r.loader.LoadByName(ctx, r.cfg.SpecName)
	}
	return r.loader.Load(ctx, r.cfg.Spec)
}

func (r *Runtime) assemble(ctx context.Context, loaded *loader.LoadedSpec) (*openapi2mcp.Dispatcher, error) {
	normalized, err := openapi2mcp.Normalize(loaded.Doc)
	if err != nil {
		return nil, err
	}
	for _, w := range normalized.Warnings {
		r.logger.Warn().Str("spec", loaded.Name).Msg(w)
	}

	endpoints, err := openapi2mcp.FilterEndpoints(normalized.Endpoints, r.cfg.FilterOptions())
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeValidation, "invalid endpoint filter")
	}
	tools := openapi2mcp.BuildTools(endpoints, r.logger)

	mode := r.mode(loaded.Record)
	baseURL := r.baseURL(normalized, loaded.Record)

	provider, err := r.authProvider(ctx, loaded)
	if err != nil {
		return nil, err
	}

	client := *r.apiClient
	if r.cfg.Timeout.Duration > 0 {
		client.Timeout = r.cfg.Timeout.Duration
	}
	opts := openapi2mcp.DispatcherOptions{
		Mode:       mode,
		BaseURL:    baseURL,
		Auth:       provider,
		HTTPClient: &client,
		Logger:     r.logger,
	}
	d := openapi2mcp.NewDispatcher(tools, opts)

	r.logger.Info().
		Str("spec", loaded.Name).
		Str("version", normalized.Version).
		Str("base_url", baseURL).
		Str("mode", string(mode)).
		Int("endpoints", len(normalized.Endpoints)).
		Int("tools", len(tools)).
		Int("exposed", len(d.ListTools())).
		Msg("spec ready")
	return d, nil
}

func (r *Runtime) mode(record *models.OpenAPISpec) openapi2mcp.Mode {
	if r.cfg.Mode == "" && record != nil {
		if m, ok := openapi2mcp.ParseMode(models.StringValue(record.Mode)); ok {
			return m
		}
	}
	return r.cfg.DispatchMode()
}

func (r *Runtime) baseURL(spec *openapi2mcp.NormalizedSpec, record *models.OpenAPISpec) string {
	if r.cfg.BaseURL != "" {
		return r.cfg.BaseURL
	}
	if record != nil && models.StringValue(record.BaseURL) != "" {
		return *record.BaseURL
	}
	return spec.BaseURL
}

// authProvider builds the authenticator for the configured strategy, filling
// in what the spec's security schemes can tell (api key name and location,
// OAuth2 token URL). It returns nil for the none strategy.
func (r *Runtime) authProvider(ctx context.Context, loaded *loader.LoadedSpec) (auth.Provider, error) {
	schemes := auth.InspectSchemes(loaded.Typed)
	for _, s := range schemes {
		r.logger.Debug().
			Str("scheme", s.Name).
			Str("type", string(s.Type)).
			Str("in", s.In).
			Str("param", s.ParamName).
			Msg("security scheme")
	}

	cfg := auth.SuggestConfig(r.cfg.Auth, schemes)
	a, err := auth.New(cfg, auth.WithHTTPClient(r.apiClient), auth.WithLogger(r.logger))
	if err != nil {
		return nil, server.Wrap(err, server.ErrorTypeAuth, "invalid auth configuration")
	}
	if a.Type() == auth.TypeNone {
		if len(schemes) > 0 {
			r.logger.Info().Int("schemes", len(schemes)).Msg("spec declares security schemes but no auth is configured")
		}
		return nil, nil
	}
	a.EnsureToken(ctx)
	return a, nil
}

// Dispatcher returns the dispatcher currently serving calls.
func (r *Runtime) Dispatcher() *openapi2mcp.Dispatcher {
	return r.current.Load()
}

// Spec returns the currently loaded spec.
func (r *Runtime) Spec() *loader.LoadedSpec {
	return r.spec.Load()
}

// MCPServer returns the MCP server exposing the tools.
func (r *Runtime) MCPServer() *mcpserver.MCPServer {
	return r.mcp
}

// Reload re-runs the pipeline from the same source and swaps in the result.
// On failure the previous spec keeps serving.
func (r *Runtime) Reload(ctx context.Context) (int, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	d, spec, err := r.build(ctx)
	if err != nil {
		return 0, err
	}
	r.swap(d, spec)
	return len(d.ListTools()), nil
}

func (r *Runtime) swap(d *openapi2mcp.Dispatcher, spec *loader.LoadedSpec) {
	r.current.Store(d)
	r.spec.Store(spec)
	openapi2mcp.RegisterTools(r.mcp, d)
}

// reloadIfChanged reloads only when the source differs from what is being
// served: the document itself or, for registry specs, the stored mode and
// base URL.
func (r *Runtime) reloadIfChanged(ctx context.Context) (bool, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	loaded, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	if fingerprint(loaded) == fingerprint(r.spec.Load()) {
		return false, nil
	}
	d, err := r.assemble(ctx, loaded)
	if err != nil {
		return false, err
	}
	r.swap(d, loaded)
	return true, nil
}

func fingerprint(spec *loader.LoadedSpec) string {
	h := sha256.New()
	h.Write(spec.Content)
	if spec.Record != nil {
		fmt.Fprintf(h, "\x00%s\x00%s", models.StringValue(spec.Record.Mode), models.StringValue(spec.Record.BaseURL))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Poll checks the spec source every interval and reloads when it changed.
// Failures are logged and the current spec keeps serving. Poll returns when
// ctx is cancelled.
func (r *Runtime) Poll(ctx context.Context, interval time.Duration) {
	r.logger.Info().Dur("interval", interval).Msg("spec polling enabled")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		changed, err := r.reloadIfChanged(ctx)
		if err != nil {
			r.logger.Error().Err(err).Msg("spec polling failed")
			continue
		}
		if changed {
			r.logger.Info().Int("tools", len(r.Dispatcher().ListTools())).Msg("spec changed, reloaded")
		}
	}
}

// Handler returns the HTTP surface: the MCP endpoint, /health, /tools and
// /reload.
func (r *Runtime) Handler() http.Handler {
	return server.NewMux(server.MuxOptions{
		MCP:      r.mcp,
		BasePath: r.cfg.BasePath,
		Current:  r.Dispatcher,
		Reload:   r.Reload,
		Logger:   r.logger,
	})
}

// Serve runs the configured transport until ctx is cancelled.
func (r *Runtime) Serve(ctx context.Context) error {
	if strings.EqualFold(r.cfg.Transport, server.TransportHTTP) {
		if r.cfg.PollInterval.Duration > 0 {
			go r.Poll(ctx, r.cfg.PollInterval.Duration)
		}
		return r.ListenAndServe(ctx)
	}
	if r.cfg.PollInterval.Duration > 0 {
		go r.Poll(ctx, r.cfg.PollInterval.Duration)
	}
	r.logger.Info().Msg("serving MCP over stdio")
	return openapi2mcp.ServeStdio(ctx, r.mcp)
}

// ListenAndServe serves the HTTP surface on cfg.HTTPAddr. When ctx is
// cancelled it shuts down gracefully, waiting up to ShutdownTimeout.
func (r *Runtime) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              r.cfg.HTTPAddr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info().
			Str("addr", r.cfg.HTTPAddr).
			Str("url", openapi2mcp.GetStreamableHTTPURL(r.cfg.HTTPAddr, r.cfg.BasePath)).
			Msg("serving MCP over streamable HTTP")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	r.logger.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close releases the registry connection, if any.
func (r *Runtime) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
