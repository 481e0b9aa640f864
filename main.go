package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/logging"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/openapi2mcp"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/server"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/services"
)

// flags holds command line values. Only flags that were set override the
// config file and environment.
type flags struct {
	configPath string
	jsonLog    bool

	spec         string
	specName     string
	baseURL      string
	mode         string
	transport    string
	httpAddr     string
	basePath     string
	logLevel     string
	verbose      bool
	validate     bool
	timeout      time.Duration
	pollInterval time.Duration
	includeTags  []string
	include      string
	exclude      string

	authType     string
	authToken    string
	authHeader   string
	authIn       string
	username     string
	password     string
	clientID     string
	clientSecret string
	tokenURL     string
	scopes       []string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "openapi-mcp-proxy",
		Short: "Expose a REST API described by OpenAPI as MCP tools",
		Long: `openapi-mcp-proxy reads an OpenAPI 3.x or Swagger 2.0 document and serves
every operation as an MCP tool, over stdio or streamable HTTP.

In full mode each endpoint is its own tool. In search mode only
search_endpoints and call_endpoint are exposed, which keeps the tool list
small for large APIs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "TOML config file (default $"+server.ConfigFileEnv+")")
	pf.BoolVar(&f.jsonLog, "log-json", false, "log JSON lines instead of console output")
	pf.StringVarP(&f.spec, "spec", "s", "", "OpenAPI document: file path or http(s) URL")
	pf.StringVar(&f.specName, "spec-name", "", "load the named spec from the database registry")
	pf.StringVar(&f.baseURL, "base-url", "", "override the API base URL from the spec")
	pf.StringVarP(&f.mode, "mode", "m", "", "tool mode: full or search")
	pf.StringVar(&f.transport, "transport", "", "MCP transport: stdio or http")
	pf.StringVar(&f.httpAddr, "http-addr", "", "listen address for the http transport")
	pf.StringVar(&f.basePath, "base-path", "", "path of the MCP endpoint for the http transport")
	pf.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn or error")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&f.validate, "validate", false, "validate the document and log problems")
	pf.DurationVar(&f.timeout, "timeout", 0, "timeout for each API call (0 for none)")
	pf.DurationVar(&f.pollInterval, "poll-interval", 0, "reload the spec when its source changes, checked this often")
	pf.StringSliceVar(&f.includeTags, "include-tags", nil, "only expose endpoints with one of these tags")
	pf.StringVar(&f.include, "include", "", "only expose endpoints whose operation id or path matches this regexp")
	pf.StringVar(&f.exclude, "exclude", "", "hide endpoints whose operation id or path matches this regexp")

	pf.StringVar(&f.authType, "auth", "", "auth strategy: none, apikey, bearer, basic or oauth2")
	pf.StringVar(&f.authToken, "auth-token", "", "api key or bearer token")
	pf.StringVar(&f.authHeader, "auth-header", "", "api key header or query parameter name")
	pf.StringVar(&f.authIn, "auth-in", "", "where the api key goes: header or query")
	pf.StringVar(&f.username, "username", "", "basic auth username")
	pf.StringVar(&f.password, "password", "", "basic auth password")
	pf.StringVar(&f.clientID, "client-id", "", "oauth2 client id")
	pf.StringVar(&f.clientSecret, "client-secret", "", "oauth2 client secret")
	pf.StringVar(&f.tokenURL, "token-url", "", "oauth2 token URL")
	pf.StringSliceVar(&f.scopes, "scopes", nil, "oauth2 scopes")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the tools (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd, f)
			},
		},
		&cobra.Command{
			Use:   "summary",
			Short: "Print how many tools the spec produces, by method and tag",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := startRuntime(cmd, f)
				if err != nil {
					return err
				}
				defer rt.Close()
				openapi2mcp.PrintToolSummary(cmd.OutOrStdout(), rt.Dispatcher().Tools())
				return nil
			},
		},
		&cobra.Command{
			Use:   "tools",
			Short: "Print the tools exposed to clients as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := startRuntime(cmd, f)
				if err != nil {
					return err
				}
				defer rt.Close()
				tools := rt.Dispatcher().ListTools()
				infos := make([]server.ToolInfo, 0, len(tools))
				for _, t := range tools {
					infos = append(infos, server.ToolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			},
		},
	)
	return root
}

// apply copies the flags that were set on the command line into cfg.
func (f *flags) apply(cmd *cobra.Command, cfg *server.Config) {
	changed := cmd.Flags().Changed

	strs := []struct {
		flag string
		src  *string
		dst  *string
	}{
		{"spec", &f.spec, &cfg.Spec},
		{"spec-name", &f.specName, &cfg.SpecName},
		{"base-url", &f.baseURL, &cfg.BaseURL},
		{"mode", &f.mode, &cfg.Mode},
		{"transport", &f.transport, &cfg.Transport},
		{"http-addr", &f.httpAddr, &cfg.HTTPAddr},
		{"base-path", &f.basePath, &cfg.BasePath},
		{"log-level", &f.logLevel, &cfg.LogLevel},
		{"include", &f.include, &cfg.Filter.Include},
		{"exclude", &f.exclude, &cfg.Filter.Exclude},
		{"auth", &f.authType, &cfg.Auth.Type},
		{"auth-token", &f.authToken, &cfg.Auth.Token},
		{"auth-header", &f.authHeader, &cfg.Auth.HeaderName},
		{"auth-in", &f.authIn, &cfg.Auth.In},
		{"username", &f.username, &cfg.Auth.Username},
		{"password", &f.password, &cfg.Auth.Password},
		{"client-id", &f.clientID, &cfg.Auth.ClientID},
		{"client-secret", &f.clientSecret, &cfg.Auth.ClientSecret},
		{"token-url", &f.tokenURL, &cfg.Auth.TokenURL},
	}
	for _, s := range strs {
		if changed(s.flag) {
			*s.dst = *s.src
		}
	}

	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("validate") {
		cfg.ValidateSpec = f.validate
	}
	if changed("timeout") {
		cfg.Timeout = server.Duration{Duration: f.timeout}
	}
	if changed("poll-interval") {
		cfg.PollInterval = server.Duration{Duration: f.pollInterval}
	}
	if changed("include-tags") {
		cfg.Filter.Tags = f.includeTags
	}
	if changed("scopes") {
		cfg.Auth.Scopes = f.scopes
	}
}

// loadConfig resolves the configuration and builds the logger for it.
func loadConfig(cmd *cobra.Command, f *flags) (*server.Config, *log.Logger, error) {
	cfg, err := server.LoadConfig(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	f.apply(cmd, cfg)
	cfg.Transport = strings.ToLower(cfg.Transport)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var logger *log.Logger
	if f.jsonLog {
		logger = logging.NewJSON(cfg.EffectiveLogLevel(), os.Stderr)
	} else {
		logger = logging.New(cfg.EffectiveLogLevel())
	}
	return cfg, logger, nil
}

func startRuntime(cmd *cobra.Command, f *flags) (*services.Runtime, error) {
	cfg, logger, err := loadConfig(cmd, f)
	if err != nil {
		return nil, err
	}
	cfg.LogConfiguration(logger)
	return services.NewRuntime(cmd.Context(), cfg, logger)
}

func runServe(cmd *cobra.Command, f *flags) error {
	cfg, logger, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	cfg.LogConfiguration(logger)

	rt, err := services.NewRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		var serverErr *server.ServerError
		if errors.As(err, &serverErr) {
			serverErr.LogError(logger)
		}
		return err
	}
	defer rt.Close()

	if cfg.Transport == server.TransportHTTP {
		logger.Info().Msg("available endpoints:")
		logger.Info().Msgf("  POST   %-10s - MCP streamable HTTP", cfg.BasePath)
		logger.Info().Msg("  GET    /health    - health check")
		logger.Info().Msg("  GET    /tools     - exposed tools")
		logger.Info().Msg("  POST   /reload    - reload the spec")
	}
	return rt.Serve(cmd.Context())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
