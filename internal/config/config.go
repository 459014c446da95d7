// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Source   SourceConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Database DatabaseConfig
	History  HistoryConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0s).
	// A cold query may wait for a full load, so this is unbounded by default.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"2m"`
}

// SourceConfig selects where the dataset files come from.
type SourceConfig struct {
	// Mode is "dir" (bundled files on disk) or "http" (Embrapa download site) (default: dir)
	Mode string `env:"SOURCE_MODE" default:"dir"`

	// Dir is the directory holding the CSV files in dir mode (default: data)
	Dir string `env:"SOURCE_DIR" default:"data"`

	// BaseURL is the download prefix in http mode
	BaseURL string `env:"SOURCE_BASE_URL" default:"http://vitibrasil.cnpuv.embrapa.br/download"`

	// Timeout bounds one file download in http mode (default: 60s)
	Timeout time.Duration `env:"SOURCE_TIMEOUT" default:"60s"`

	// MaxRetries is the number of download attempts per file in http mode (default: 3)
	MaxRetries int `env:"SOURCE_MAX_RETRIES" default:"3"`

	// Encoding is the text encoding of the files: utf-8 or latin1 (default: utf-8)
	Encoding string `env:"SOURCE_ENCODING" default:"utf-8"`
}

// CacheConfig holds dataset cache settings.
type CacheConfig struct {
	// LoadOnStartup loads every dataset before the server accepts requests (default: false)
	LoadOnStartup bool `env:"CACHE_LOAD_ON_STARTUP" default:"false"`

	// RefreshInterval reloads the datasets periodically; 0 disables (default: 0s)
	RefreshInterval time.Duration `env:"CACHE_REFRESH_INTERVAL" default:"0s"`

	// RefreshCron reloads on a cron schedule (seconds field first); overrides RefreshInterval
	RefreshCron string `env:"CACHE_REFRESH_CRON"`

	// LoadTimeout bounds a reload triggered by the scheduler (default: 5m)
	LoadTimeout time.Duration `env:"CACHE_LOAD_TIMEOUT" default:"5m"`

	// ParseConcurrency is how many datasets are parsed in parallel; 0 uses GOMAXPROCS
	ParseConcurrency int `env:"CACHE_PARSE_CONCURRENCY" default:"0"`
}

// AuthConfig holds JWT login settings.
type AuthConfig struct {
	// Enabled protects the /vitibrasil routes with bearer tokens (default: true)
	Enabled bool `env:"AUTH_ENABLED" default:"true"`

	// JWTSecret signs the access tokens (required when auth is enabled)
	JWTSecret string `env:"JWT_SECRET_KEY" envAlt:"JWT_SECRET"`

	// TokenTTL is the lifetime of an access token (default: 24h)
	TokenTTL time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRES" default:"24h"`

	// Issuer is the iss claim of issued tokens (default: vitibrasil)
	Issuer string `env:"JWT_ISSUER" default:"vitibrasil"`

	// Username and Password are the accepted login credentials
	Username string `env:"AUTH_USERNAME" default:"4MLET"`
	Password string `env:"AUTH_PASSWORD" default:"4MLET"`
}

// DatabaseConfig holds the optional load-history database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; empty keeps history in memory
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// HistoryConfig holds load-history settings.
type HistoryConfig struct {
	// MemorySize is the number of events kept without a database (default: 100)
	MemorySize int `env:"HISTORY_MEMORY_SIZE" default:"100"`

	// Retention is how long events are kept before the scheduler purges them (default: 720h)
	Retention time.Duration `env:"HISTORY_RETENTION" default:"720h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// LoadLimit is requests per minute for the reload and clear endpoints (default: 5)
	LoadLimit int `env:"RATE_LIMIT_LOAD" default:"5"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
