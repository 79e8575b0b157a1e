// Package config loads the storefront configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultServerPort          = 8080
	DefaultLogLevel            = "info"
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultMetricsEnabled      = true
	DefaultAuthMode            = "none"
	DefaultCatalogSource       = "file"
	DefaultCatalogPath         = "data/products.json"
	DefaultCatalogFallbackPath = "../data/products.json"
	DefaultCatalogTimeout      = 10 * time.Second
	DefaultAssetPrefix         = "assets/"
	DefaultNestedPrefix        = "/"
	DefaultAssetsDir           = "assets"
	DefaultStorageBackend      = "memory"
	DefaultDataDir             = "data/sessions"
	DefaultRedisNamespace      = "flexishop"
	DefaultSQLitePath          = "data/flexishop.db"
	DefaultSessionCookie       = "flexishop_sid"
)

// Environment variable names.
const (
	EnvServerPort          = "APP_SERVER_PORT"
	EnvLogLevel            = "APP_LOG_LEVEL"
	EnvShutdownTimeout     = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled      = "APP_METRICS_ENABLED"
	EnvAuthMode            = "APP_AUTH_MODE"
	EnvBasicAuthUsers      = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys             = "APP_API_KEYS" //nolint:gosec // env var name, not a credential
	EnvTLSEnabled          = "APP_TLS_ENABLED"
	EnvTLSCertPath         = "APP_TLS_CERT_PATH"
	EnvTLSKeyPath          = "APP_TLS_KEY_PATH"
	EnvCORSOrigins         = "APP_CORS_ORIGINS"
	EnvCatalogSource       = "APP_CATALOG_SOURCE"
	EnvCatalogRoot         = "APP_CATALOG_ROOT"
	EnvCatalogPath         = "APP_CATALOG_PATH"
	EnvCatalogFallbackPath = "APP_CATALOG_FALLBACK_PATH"
	EnvCatalogTimeout      = "APP_CATALOG_TIMEOUT"
	EnvAssetPrefix         = "APP_ASSET_PREFIX"
	EnvNestedPrefix        = "APP_NESTED_PREFIX"
	EnvAssetsDir           = "APP_ASSETS_DIR"
	EnvStorageBackend      = "APP_STORAGE_BACKEND"
	EnvDataDir             = "APP_DATA_DIR"
	EnvRedisURL            = "APP_REDIS_URL"
	EnvRedisNamespace      = "APP_REDIS_NAMESPACE"
	EnvSQLitePath          = "APP_SQLITE_PATH"
	EnvSessionCookie       = "APP_SESSION_COOKIE"
	EnvCookieSecure        = "APP_COOKIE_SECURE"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	CORSOrigins     []string

	// Access gate: none, basic, apikey, multi.
	AuthMode       string
	BasicAuthUsers string // "user1:bcrypt_hash,user2:bcrypt_hash"
	APIKeys        string // "key1:name1,key2:name2"

	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string

	// Catalog settings. CatalogRoot is a directory for the file source and a
	// base URL for the http source.
	CatalogSource       string
	CatalogRoot         string
	CatalogPath         string
	CatalogFallbackPath string
	CatalogTimeout      time.Duration
	AssetPrefix         string
	NestedPrefix        string
	AssetsDir           string

	// Persistence settings.
	StorageBackend string
	DataDir        string
	RedisURL       string
	RedisNamespace string
	SQLitePath     string

	// Browsing-context cookie.
	SessionCookie string
	CookieSecure  bool
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidAuthMode        = errors.New("auth mode must be one of: none, basic, apikey, multi")
	ErrInvalidBasicAuthConfig = errors.New("basic auth users must be set when auth mode is basic")
	ErrInvalidAPIKeyConfig    = errors.New("API keys must be set when auth mode is apikey")
	ErrInvalidMultiAuthConfig = errors.New(
		"basic auth users or API keys must be set when auth mode is multi",
	)
	ErrInvalidTLSCertRequired = errors.New(
		"TLS cert path and key path must be set when TLS is enabled",
	)
	ErrInvalidCatalogSource  = errors.New("catalog source must be one of: file, http")
	ErrInvalidCatalogPath    = errors.New("catalog path must not be empty")
	ErrInvalidCatalogRoot    = errors.New("catalog root must be set when catalog source is http")
	ErrInvalidCatalogTimeout = errors.New("catalog timeout must be positive")
	ErrInvalidStorageBackend = errors.New("storage backend must be one of: memory, file, redis, sqlite")
	ErrInvalidRedisURL       = errors.New("redis URL must be set when storage backend is redis")
	ErrInvalidSessionCookie  = errors.New("session cookie name must not be empty")
)

// Load reads an optional .env file, then the environment, over the defaults.
// Variables already set in the environment win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:          DefaultServerPort,
		LogLevel:            DefaultLogLevel,
		ShutdownTimeout:     DefaultShutdownTimeout,
		MetricsEnabled:      DefaultMetricsEnabled,
		CORSOrigins:         []string{"*"},
		AuthMode:            DefaultAuthMode,
		CatalogSource:       DefaultCatalogSource,
		CatalogPath:         DefaultCatalogPath,
		CatalogFallbackPath: DefaultCatalogFallbackPath,
		CatalogTimeout:      DefaultCatalogTimeout,
		AssetPrefix:         DefaultAssetPrefix,
		NestedPrefix:        DefaultNestedPrefix,
		AssetsDir:           DefaultAssetsDir,
		StorageBackend:      DefaultStorageBackend,
		DataDir:             DefaultDataDir,
		RedisNamespace:      DefaultRedisNamespace,
		SQLitePath:          DefaultSQLitePath,
		SessionCookie:       DefaultSessionCookie,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadAuthEnv(); err != nil {
		return err
	}

	if err := c.loadCatalogEnv(); err != nil {
		return err
	}

	return c.loadStorageEnv()
}

func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvCORSOrigins); val != "" {
		c.CORSOrigins = splitList(val)
	}

	return nil
}

func (c *Config) loadAuthEnv() error {
	if val := os.Getenv(EnvAuthMode); val != "" {
		c.AuthMode = val
	}

	if val := os.Getenv(EnvBasicAuthUsers); val != "" {
		c.BasicAuthUsers = val
	}

	if val := os.Getenv(EnvAPIKeys); val != "" {
		c.APIKeys = val
	}

	if val := os.Getenv(EnvTLSEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvTLSEnabled, err)
		}
		c.TLSEnabled = enabled
	}

	if val := os.Getenv(EnvTLSCertPath); val != "" {
		c.TLSCertPath = val
	}

	if val := os.Getenv(EnvTLSKeyPath); val != "" {
		c.TLSKeyPath = val
	}

	return nil
}

func (c *Config) loadCatalogEnv() error {
	if val := os.Getenv(EnvCatalogSource); val != "" {
		c.CatalogSource = val
	}

	if val := os.Getenv(EnvCatalogRoot); val != "" {
		c.CatalogRoot = val
	}

	if val := os.Getenv(EnvCatalogPath); val != "" {
		c.CatalogPath = val
	}

	// An explicitly empty fallback disables the second attempt.
	if val, ok := os.LookupEnv(EnvCatalogFallbackPath); ok {
		c.CatalogFallbackPath = val
	}

	if val := os.Getenv(EnvCatalogTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvCatalogTimeout, err)
		}
		c.CatalogTimeout = timeout
	}

	if val := os.Getenv(EnvAssetPrefix); val != "" {
		c.AssetPrefix = val
	}

	// An explicitly empty nested prefix disables the image path rewrite.
	if val, ok := os.LookupEnv(EnvNestedPrefix); ok {
		c.NestedPrefix = val
	}

	if val := os.Getenv(EnvAssetsDir); val != "" {
		c.AssetsDir = val
	}

	return nil
}

func (c *Config) loadStorageEnv() error {
	if val := os.Getenv(EnvStorageBackend); val != "" {
		c.StorageBackend = val
	}

	if val := os.Getenv(EnvDataDir); val != "" {
		c.DataDir = val
	}

	if val := os.Getenv(EnvRedisURL); val != "" {
		c.RedisURL = val
	}

	if val := os.Getenv(EnvRedisNamespace); val != "" {
		c.RedisNamespace = val
	}

	if val := os.Getenv(EnvSQLitePath); val != "" {
		c.SQLitePath = val
	}

	if val := os.Getenv(EnvSessionCookie); val != "" {
		c.SessionCookie = val
	}

	if val := os.Getenv(EnvCookieSecure); val != "" {
		secure, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvCookieSecure, err)
		}
		c.CookieSecure = secure
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.validateCatalog(); err != nil {
		return err
	}

	return c.validateStorage()
}

func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.TLSEnabled && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return ErrInvalidTLSCertRequired
	}

	return nil
}

func (c *Config) validateAuth() error {
	switch c.authModeOrDefault() {
	case "none":
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	default:
		return ErrInvalidAuthMode
	}

	return nil
}

func (c *Config) validateCatalog() error {
	switch c.CatalogSource {
	case "file":
	case "http":
		if c.CatalogRoot == "" {
			return ErrInvalidCatalogRoot
		}
	default:
		return ErrInvalidCatalogSource
	}

	if c.CatalogPath == "" {
		return ErrInvalidCatalogPath
	}

	if c.CatalogTimeout <= 0 {
		return ErrInvalidCatalogTimeout
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.StorageBackend {
	case "memory", "file", "sqlite":
	case "redis":
		if c.RedisURL == "" {
			return ErrInvalidRedisURL
		}
	default:
		return ErrInvalidStorageBackend
	}

	if c.SessionCookie == "" {
		return ErrInvalidSessionCookie
	}

	return nil
}

// authModeOrDefault returns the auth mode, defaulting to "none" if empty.
func (c *Config) authModeOrDefault() string {
	if c.AuthMode == "" {
		return DefaultAuthMode
	}
	return c.AuthMode
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
