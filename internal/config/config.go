package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// TrustProxyHeaders makes client IP resolution honor X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool

	Store           StoreConfig
	Session         SessionConfig
	Admin           AdminConfig
	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
	Validation      ValidationConfig
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Driver         string
	MongoURI       string
	MongoDatabase  string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// SessionConfig holds table session policy.
type SessionConfig struct {
	TTL             time.Duration
	DeviceThreshold int
	// SweepInterval enables the in-process expiry sweep when positive.
	SweepInterval time.Duration
}

// AdminConfig holds the back-office credentials and token settings.
type AdminConfig struct {
	Username     string
	PasswordHash string
	TOTPSecret   string
	JWTSecret    string
	JWTIssuer    string
	TokenTTL     time.Duration
	CookieSecure bool
}

// RateLimitConfig holds the per-IP request limits applied in front of the
// session-aware order limiter.
type RateLimitConfig struct {
	Enabled bool

	PublicRequestsPerMinute int
	PublicWindowMinutes     int

	OrderRequestsPerMinute int
	OrderWindowMinutes     int

	AdminLoginRequestsPerWindow int
	AdminLoginWindowMinutes     int
}

// SecurityHeadersConfig holds security response header values.
type SecurityHeadersConfig struct {
	Enabled            bool
	CSP                string
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// ValidationConfig holds request validation limits.
type ValidationConfig struct {
	MaxRequestBodySize int64
	MaxOrderItems      int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr:        getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort:        getEnvInt("SERVER_PORT", 8080),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),

		Store: StoreConfig{
			Driver:         strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
			MongoURI:       getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase:  getEnv("MONGODB_DATABASE", "qr_ordering"),
			ConnectTimeout: getEnvDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
			MaxPoolSize:    uint64(getEnvInt("MONGODB_MAX_POOL_SIZE", 50)),
		},

		Session: SessionConfig{
			TTL:             getEnvDuration("SESSION_TTL", 3*time.Hour),
			DeviceThreshold: getEnvInt("SESSION_DEVICE_THRESHOLD", 15),
			SweepInterval:   getEnvDuration("SESSION_SWEEP_INTERVAL", 0),
		},

		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			TOTPSecret:   getEnv("ADMIN_TOTP_SECRET", ""),
			JWTSecret:    getEnv("JWT_SECRET", ""),
			JWTIssuer:    getEnv("JWT_ISSUER", "qr-ordering"),
			TokenTTL:     getEnvDuration("ADMIN_TOKEN_TTL", 8*time.Hour),
			CookieSecure: getEnvBool("ADMIN_COOKIE_SECURE", true),
		},

		RateLimit: RateLimitConfig{
			Enabled:                     getEnvBool("RATE_LIMIT_ENABLED", true),
			PublicRequestsPerMinute:     getEnvInt("RATE_LIMIT_PUBLIC_REQUESTS", 120),
			PublicWindowMinutes:         getEnvInt("RATE_LIMIT_PUBLIC_WINDOW", 1),
			OrderRequestsPerMinute:      getEnvInt("RATE_LIMIT_ORDER_REQUESTS", 20),
			OrderWindowMinutes:          getEnvInt("RATE_LIMIT_ORDER_WINDOW", 1),
			AdminLoginRequestsPerWindow: getEnvInt("RATE_LIMIT_ADMIN_LOGIN_REQUESTS", 5),
			AdminLoginWindowMinutes:     getEnvInt("RATE_LIMIT_ADMIN_LOGIN_WINDOW", 15),
		},

		SecurityHeaders: SecurityHeadersConfig{
			Enabled:            getEnvBool("SECURITY_HEADERS_ENABLED", true),
			CSP:                getEnv("SECURITY_CSP", "default-src 'none'; frame-ancestors 'none'"),
			HSTSMaxAge:         getEnvInt("SECURITY_HSTS_MAX_AGE", 31536000),
			FrameOptions:       getEnv("SECURITY_FRAME_OPTIONS", "DENY"),
			ContentTypeOptions: getEnv("SECURITY_CONTENT_TYPE_OPTIONS", "nosniff"),
			XSSProtection:      getEnv("SECURITY_XSS_PROTECTION", "0"),
			ReferrerPolicy:     getEnv("SECURITY_REFERRER_POLICY", "no-referrer"),
			PermissionsPolicy:  getEnv("SECURITY_PERMISSIONS_POLICY", "camera=(), microphone=(), geolocation=()"),
		},

		Validation: ValidationConfig{
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 64*1024)),
			MaxOrderItems:      getEnvInt("MAX_ORDER_ITEMS", 50),
		},
	}

	// Validate required fields
	if cfg.Admin.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Store.Driver != StoreMongo && cfg.Store.Driver != StoreMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMongo, StoreMemory, cfg.Store.Driver)
	}
	if cfg.Session.TTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}

	return cfg, nil
}

// HasAdminLogin returns true if an admin password hash is configured.
func (c *Config) HasAdminLogin() bool {
	return c.Admin.Username != "" && c.Admin.PasswordHash != ""
}

// HasAdminTOTP returns true if admin login requires a TOTP code.
func (c *Config) HasAdminTOTP() bool {
	return c.Admin.TOTPSecret != ""
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
