package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// TokenKeys names the durable storage keys that hold the session.
type TokenKeys struct {
	Token      string
	Refresh    string
	Expiration string
	User       string
}

// All returns the four keys in a stable order.
func (k TokenKeys) All() []string {
	return []string{k.Token, k.Refresh, k.Expiration, k.User}
}

func DefaultTokenKeys() TokenKeys {
	return TokenKeys{
		Token:      "auth_token",
		Refresh:    "refresh_token",
		Expiration: "token_expiration",
		User:       "user_info",
	}
}

type Config struct {
	APIBaseURL      string
	APITimeout      time.Duration
	APIRateLimitRPM int

	StorageDriver    string
	StorageFile      string
	StorageTimeout   time.Duration
	StorageNamespace string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	TokenKeys          TokenKeys
	TokenRefreshBuffer time.Duration

	CartTTL                time.Duration
	CartSyncBreakerTimeout time.Duration

	LogLevel slog.Level

	Stub StubConfig
}

// StubConfig configures the reference backend used in development.
type StubConfig struct {
	Port             string
	JWTSecret        string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	RequestTimeout   time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	defaults := DefaultTokenKeys()
	cfg := &Config{
		APIBaseURL:      strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3000/api"), "/"),
		APITimeout:      getDuration("API_TIMEOUT", 15*time.Second),
		APIRateLimitRPM: getInt("API_RATE_LIMIT_RPM", 0),

		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", StorageFile)),
		StorageFile:      getEnv("STORAGE_FILE", "./state/storefront.json"),
		StorageTimeout:   getDuration("STORAGE_TIMEOUT", 3*time.Second),
		StorageNamespace: getEnv("STORAGE_NAMESPACE", "storefront"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:       getInt("REDIS_DB", 0),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 4)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 0)),

		TokenKeys: TokenKeys{
			Token:      getEnv("JWT_TOKEN_KEY", defaults.Token),
			Refresh:    getEnv("JWT_REFRESH_TOKEN_KEY", defaults.Refresh),
			Expiration: getEnv("JWT_EXPIRATION_KEY", defaults.Expiration),
			User:       getEnv("JWT_USER_KEY", defaults.User),
		},
		TokenRefreshBuffer: getDuration("TOKEN_REFRESH_BUFFER", 5*time.Minute),

		CartTTL:                getDuration("CART_TTL", 30*24*time.Hour),
		CartSyncBreakerTimeout: getDuration("CART_SYNC_BREAKER_TIMEOUT", 30*time.Second),

		LogLevel: getLevel("LOG_LEVEL", slog.LevelInfo),

		Stub: StubConfig{
			Port:             getEnv("STUB_PORT", "3000"),
			JWTSecret:        getEnv("STUB_JWT_SECRET", "storefront-dev-secret"),
			AccessTTL:        getDuration("STUB_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:       getDuration("STUB_REFRESH_TTL", 168*time.Hour),
			CORSOrigins:      splitCSV(getEnv("STUB_CORS_ORIGINS", "*")),
			RateLimitRPM:     getInt("STUB_RATE_LIMIT_RPM", 600),
			AuthRateLimitRPM: getInt("STUB_AUTH_RATE_LIMIT_RPM", 60),
			RequestTimeout:   getDuration("STUB_REQUEST_TIMEOUT", 30*time.Second),
			ReadTimeout:      getDuration("STUB_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:     getDuration("STUB_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:      getDuration("STUB_IDLE_TIMEOUT", 120*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL")
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}

	if c.APIRateLimitRPM < 0 {
		return fmt.Errorf("API_RATE_LIMIT_RPM cannot be negative")
	}

	switch c.StorageDriver {
	case StorageMemory:
	case StorageFile:
		if strings.TrimSpace(c.StorageFile) == "" {
			return fmt.Errorf("STORAGE_FILE cannot be empty")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis storage driver")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MAX_CONNS/DB_MIN_CONNS are out of range")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive")
	}

	if err := c.TokenKeys.validate(); err != nil {
		return err
	}

	if c.TokenRefreshBuffer < 0 {
		return fmt.Errorf("TOKEN_REFRESH_BUFFER cannot be negative")
	}

	if c.CartTTL <= 0 {
		return fmt.Errorf("CART_TTL must be positive")
	}

	if c.CartSyncBreakerTimeout <= 0 {
		return fmt.Errorf("CART_SYNC_BREAKER_TIMEOUT must be positive")
	}

	return nil
}

// ValidateStub checks the settings only the reference backend needs.
func (c *Config) ValidateStub() error {
	if c.Stub.Port == "" {
		return fmt.Errorf("STUB_PORT cannot be empty")
	}

	if len(c.Stub.JWTSecret) < 16 {
		return fmt.Errorf("STUB_JWT_SECRET must be at least 16 characters")
	}

	if c.Stub.AccessTTL <= 0 || c.Stub.RefreshTTL <= 0 {
		return fmt.Errorf("STUB_ACCESS_TTL and STUB_REFRESH_TTL must be positive")
	}

	if c.Stub.RequestTimeout <= 0 {
		return fmt.Errorf("STUB_REQUEST_TIMEOUT must be positive")
	}

	return nil
}

func (k TokenKeys) validate() error {
	seen := make(map[string]struct{}, 4)
	for _, key := range k.All() {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("token storage keys cannot be empty")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("token storage key %q is used twice", key)
		}
		seen[key] = struct{}{}
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getLevel(key string, fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}

	return level
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
