package server

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/phuslu/log"
	"github.com/spf13/cast"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/auth"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/logging"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/openapi2mcp"
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "OPENAPI_MCP_CONFIG"

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Duration is a time.Duration read from a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// FilterConfig selects which endpoints become tools.
type FilterConfig struct {
	Tags    []string `toml:"tags"`
	Include string   `toml:"include"`
	Exclude string   `toml:"exclude"`
}

// Config holds server configuration
type Config struct {
	// Spec is a file path or http(s) URL of the OpenAPI document.
	Spec string `toml:"spec"`
	// SpecName loads a document stored in the database registry instead.
	SpecName string `toml:"spec_name"`
	BaseURL  string `toml:"base_url"`
	// Mode is full or search. Empty means full, unless the registry entry
	// the spec was loaded from stores a mode.
	Mode          string `toml:"mode"`
	Verbose       bool   `toml:"verbose"`
	LogLevel      string `toml:"log_level"`
	ServerName    string `toml:"server_name"`
	ServerVersion string `toml:"server_version"`
	Transport     string `toml:"transport"`
	HTTPAddr      string `toml:"http_addr"`
	BasePath      string `toml:"base_path"`
	DatabaseURL   string `toml:"database_url"`
	// ValidateSpec runs full OpenAPI validation and logs what it finds.
	ValidateSpec bool `toml:"validate"`
	// Timeout bounds each outbound API call. Zero means no timeout.
	Timeout Duration `toml:"timeout"`
	// PollInterval re-reads the spec source this often and reloads when it
	// changed. Zero disables polling.
	PollInterval Duration     `toml:"poll_interval"`
	Auth         auth.Config  `toml:"auth"`
	Filter       FilterConfig `toml:"filter"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		ServerName:    "openapi-mcp-proxy",
		ServerVersion: "1.0.0",
		Transport:     TransportStdio,
		HTTPAddr:      ":8080",
		BasePath:      openapi2mcp.DefaultBasePath,
		Auth:          auth.Config{Type: string(auth.TypeNone)},
	}
}

// LoadConfig builds the configuration from defaults, then the TOML file at
// path (or $OPENAPI_MCP_CONFIG when path is empty), then environment
// variables. Command line flags are applied on top by the caller.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, Wrap(err, ErrorTypeValidation, "failed to read config file")
		}
		if err := toml.Unmarshal(data, config); err != nil {
			var decodeErr *toml.DecodeError
			if errors.As(err, &decodeErr) {
				row, col := decodeErr.Position()
				return nil, NewError(ErrorTypeValidation, "invalid config file",
					fmt.Sprintf("%s:%d:%d: %s", path, row, col, decodeErr.Error()))
			}
			return nil, Wrap(err, ErrorTypeValidation, "invalid config file")
		}
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"OPENAPI_SPEC":        &c.Spec,
		"OPENAPI_SPEC_NAME":   &c.SpecName,
		"OPENAPI_BASE_URL":    &c.BaseURL,
		"MCP_MODE":            &c.Mode,
		"MCP_TRANSPORT":       &c.Transport,
		"MCP_HTTP_ADDR":       &c.HTTPAddr,
		"LOG_LEVEL":           &c.LogLevel,
		"DATABASE_URL":        &c.DatabaseURL,
		"AUTH_TYPE":           &c.Auth.Type,
		"AUTH_TOKEN":          &c.Auth.Token,
		"AUTH_HEADER_NAME":    &c.Auth.HeaderName,
		"AUTH_USERNAME":       &c.Auth.Username,
		"AUTH_PASSWORD":       &c.Auth.Password,
		"OAUTH_CLIENT_ID":     &c.Auth.ClientID,
		"OAUTH_CLIENT_SECRET": &c.Auth.ClientSecret,
		"OAUTH_TOKEN_URL":     &c.Auth.TokenURL,
		"INCLUDE_PATTERN":     &c.Filter.Include,
		"EXCLUDE_PATTERN":     &c.Filter.Exclude,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("VERBOSE"); ok && v != "" {
		verbose, err := cast.ToBoolE(v)
		if err != nil {
			return NewError(ErrorTypeValidation, "invalid VERBOSE value", v)
		}
		c.Verbose = verbose
	}
	if v, ok := lookup("INCLUDE_TAGS"); ok && v != "" {
		c.Filter.Tags = SplitList(v)
	}
	if v, ok := lookup("POLLING_INTERVAL"); ok && v != "" {
		interval, err := parseInterval(v)
		if err != nil {
			return NewError(ErrorTypeValidation, "invalid POLLING_INTERVAL value", v)
		}
		c.PollInterval = Duration{interval}
	}
	return nil
}

// parseInterval accepts a duration ("30s") or a plain number of seconds.
func parseInterval(v string) (time.Duration, error) {
	if secs, err := cast.ToIntE(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EffectiveLogLevel is LogLevel, or "debug" when Verbose is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.LogLevel
}

// DispatchMode returns the parsed mode. Call Validate first.
func (c *Config) DispatchMode() openapi2mcp.Mode {
	mode, _ := openapi2mcp.ParseMode(c.Mode)
	return mode
}

// FilterOptions converts the filter section for the tool pipeline.
func (c *Config) FilterOptions() openapi2mcp.FilterOptions {
	return openapi2mcp.FilterOptions{
		Tags:    c.Filter.Tags,
		Include: c.Filter.Include,
		Exclude: c.Filter.Exclude,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Spec == "" && c.SpecName == "" {
		return NewError(ErrorTypeValidation, "no OpenAPI spec provided", "set --spec, OPENAPI_SPEC or --spec-name")
	}
	if c.SpecName != "" && c.DatabaseURL == "" {
		return NewError(ErrorTypeValidation, "DATABASE_URL is required to load a spec by name", c.SpecName)
	}
	if _, ok := openapi2mcp.ParseMode(c.Mode); !ok {
		return NewError(ErrorTypeValidation, "unknown mode", fmt.Sprintf("%q (want full or search)", c.Mode))
	}
	switch strings.ToLower(c.Transport) {
	case TransportStdio, TransportHTTP:
	default:
		return NewError(ErrorTypeValidation, "unknown transport", fmt.Sprintf("%q (want stdio or http)", c.Transport))
	}
	if _, err := auth.ParseType(c.Auth.Type); err != nil {
		return Wrap(err, ErrorTypeAuth, "invalid auth configuration")
	}
	if !logging.IsValidLevel(c.EffectiveLogLevel()) {
		return NewError(ErrorTypeValidation, "unknown log level", c.LogLevel)
	}
	for name, pattern := range map[string]string{"include": c.Filter.Include, "exclude": c.Filter.Exclude} {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return Wrap(err, ErrorTypeValidation, "invalid "+name+" pattern")
		}
	}
	if c.Timeout.Duration < 0 {
		return NewError(ErrorTypeValidation, "timeout must not be negative", c.Timeout.String())
	}
	if c.PollInterval.Duration < 0 {
		return NewError(ErrorTypeValidation, "poll interval must not be negative", c.PollInterval.String())
	}
	return nil
}

// Warnings lists settings that are accepted but probably not what was meant.
func (c *Config) Warnings() []string {
	var warnings []string
	typ, _ := auth.ParseType(c.Auth.Type)
	if typ == auth.TypeOAuth2 && c.Auth.Token == "" &&
		(c.Auth.ClientID == "" || c.Auth.ClientSecret == "" || c.Auth.TokenURL == "") {
		warnings = append(warnings, "oauth2 configured without a token or complete client credentials; calls will be sent unauthenticated")
	}
	if (typ == auth.TypeBearer || typ == auth.TypeAPIKey) && c.Auth.Token == "" {
		warnings = append(warnings, fmt.Sprintf("%s auth configured without a token", typ))
	}
	if typ == auth.TypeBasic && c.Auth.Username == "" && c.Auth.Token == "" {
		warnings = append(warnings, "basic auth configured without a username")
	}
	return warnings
}

// LogConfiguration logs the current configuration
func (c *Config) LogConfiguration(logger *log.Logger) {
	source := c.Spec
	if c.SpecName != "" {
		source = "db:" + c.SpecName
	}
	entry := logger.Info().
		Str("spec", source).
		Str("mode", c.Mode).
		Str("transport", c.Transport).
		Str("log_level", c.EffectiveLogLevel()).
		Str("auth", c.Auth.Type).
		Str("token", maskSecret(c.Auth.Token)).
		Str("client_secret", maskSecret(c.Auth.ClientSecret)).
		Str("password", maskSecret(c.Auth.Password))
	if c.BaseURL != "" {
		entry = entry.Str("base_url", c.BaseURL)
	}
	if c.DatabaseURL != "" {
		entry = entry.Str("database_url", maskSensitive(c.DatabaseURL))
	}
	if strings.EqualFold(c.Transport, TransportHTTP) {
		entry = entry.Str("http_addr", c.HTTPAddr).Str("base_path", c.BasePath)
	}
	if c.Timeout.Duration > 0 {
		entry = entry.Dur("timeout", c.Timeout.Duration)
	}
	if c.PollInterval.Duration > 0 {
		entry = entry.Dur("poll_interval", c.PollInterval.Duration)
	}
	entry.Msg("configuration loaded")

	for _, w := range c.Warnings() {
		logger.Warn().Msg(w)
	}
}

// maskSensitive masks sensitive parts of URLs for logging
func maskSensitive(url string) string {
	if len(url) > 20 {
		return url[:8] + "***" + url[len(url)-8:]
	}
	return "***"
}

// maskSecret keeps the first four characters of a secret.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:4] + "****"
	}
}
