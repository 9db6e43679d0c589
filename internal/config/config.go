// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendGoogleDrive = "gdrive"
	BackendS3          = "s3"
	BackendLocal       = "local"
)

// Auth modes.
const (
	AuthOIDC   = "oidc"
	AuthStatic = "static"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string
	BaseURL     string // public URL, used for the OAuth redirect
	Env         string // "production" or "development"

	// Logging
	LogLevel  string
	LogFormat string

	// TLS (optional, if both set the server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// Sessions
	SessionSecret string
	SessionMaxAge time.Duration
	CookieSecure  bool

	// Auth ("oidc" or "static")
	AuthMode string

	// OIDC
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string

	// Static single-account login
	StaticUsername     string
	StaticPasswordHash string

	// Storage backend ("gdrive", "s3" or "local")
	StorageBackend   string
	LocalStoragePath string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Prefix    string

	// Limits
	MaxFileSize  int64
	FilesPerPage int
	RateLimitRPM int

	// Web app
	WebappDir string
}

// DefaultScopes are requested from Google when OIDC_SCOPES is unset.
var DefaultScopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/drive.readonly",
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:         envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:        envOr("METRICS_ADDR", ":9090"),
		BaseURL:            strings.TrimRight(envOr("BASE_URL", "http://localhost:8080"), "/"),
		Env:                envOr("APP_ENV", "production"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		TLSCertFile:        envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:         envOr("TLS_KEY_FILE", ""),
		SessionSecret:      envOr("SESSION_SECRET", ""),
		SessionMaxAge:      envDuration("SESSION_MAX_AGE", 24*time.Hour),
		AuthMode:           envOr("AUTH_MODE", AuthOIDC),
		OIDCIssuerURL:      envOr("OIDC_ISSUER_URL", "https://accounts.google.com"),
		OIDCClientID:       envOr("OIDC_CLIENT_ID", ""),
		OIDCClientSecret:   envOr("OIDC_CLIENT_SECRET", ""),
		OIDCScopes:         envList("OIDC_SCOPES", DefaultScopes),
		StaticUsername:     envOr("STATIC_USERNAME", ""),
		StaticPasswordHash: envOr("STATIC_PASSWORD_HASH", ""),
		StorageBackend:     envOr("STORAGE_BACKEND", BackendGoogleDrive),
		LocalStoragePath:   envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		S3Endpoint:         envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:           envOr("S3_BUCKET", "drivepane"),
		S3AccessKey:        envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:           envOr("S3_REGION", "us-east-1"),
		S3Prefix:           envOr("S3_PREFIX", ""),
		MaxFileSize:        envInt64("MAX_FILE_SIZE", 10*1024*1024), // 10MB
		FilesPerPage:       envInt("FILES_PER_PAGE", 30),
		RateLimitRPM:       envInt("RATE_LIMIT_RPM", 0), // 0 = unlimited
		WebappDir:          envOr("WEBAPP_DIR", ""),
	}

	cfg.CookieSecure = envBool("COOKIE_SECURE", !cfg.IsDevelopment())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and incompatible combinations.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	switch c.AuthMode {
	case AuthOIDC:
		if c.OIDCClientID == "" || c.OIDCClientSecret == "" {
			return fmt.Errorf("OIDC_CLIENT_ID and OIDC_CLIENT_SECRET are required when AUTH_MODE=oidc")
		}
	case AuthStatic:
		if c.StaticUsername == "" || c.StaticPasswordHash == "" {
			return fmt.Errorf("STATIC_USERNAME and STATIC_PASSWORD_HASH are required when AUTH_MODE=static")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE: %s", c.AuthMode)
	}
	switch c.StorageBackend {
	case BackendGoogleDrive:
		if c.AuthMode != AuthOIDC {
			return fmt.Errorf("STORAGE_BACKEND=gdrive requires AUTH_MODE=oidc")
		}
	case BackendS3, BackendLocal:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND: %s", c.StorageBackend)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.FilesPerPage <= 0 {
		c.FilesPerPage = 30
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, part)
	}
	return out
}
