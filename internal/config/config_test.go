package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("TOKEN_REFRESH_BUFFER", "")
	t.Setenv("CART_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:3000/api", cfg.APIBaseURL)
	require.Equal(t, StorageFile, cfg.StorageDriver)
	require.Equal(t, 5*time.Minute, cfg.TokenRefreshBuffer)
	require.Equal(t, 30*24*time.Hour, cfg.CartTTL)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, DefaultTokenKeys(), cfg.TokenKeys)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://shop.example.com/api/")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("JWT_TOKEN_KEY", "access")
	t.Setenv("TOKEN_REFRESH_BUFFER", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "https://shop.example.com/api", cfg.APIBaseURL)
	require.Equal(t, StorageMemory, cfg.StorageDriver)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	require.Equal(t, "access", cfg.TokenKeys.Token)
	require.Equal(t, 90*time.Second, cfg.TokenRefreshBuffer)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			APIBaseURL:             "http://localhost:3000/api",
			APITimeout:             time.Second,
			StorageDriver:          StorageMemory,
			StorageTimeout:         time.Second,
			TokenKeys:              DefaultTokenKeys(),
			TokenRefreshBuffer:     5 * time.Minute,
			CartTTL:                time.Hour,
			CartSyncBreakerTimeout: time.Second,
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"relative base url", func(c *Config) { c.APIBaseURL = "/api" }},
		{"unknown driver", func(c *Config) { c.StorageDriver = "sqlite" }},
		{"file driver without path", func(c *Config) { c.StorageDriver = StorageFile; c.StorageFile = " " }},
		{"postgres without url", func(c *Config) { c.StorageDriver = StoragePostgres }},
		{"duplicate token keys", func(c *Config) { c.TokenKeys.Refresh = c.TokenKeys.Token }},
		{"empty token key", func(c *Config) { c.TokenKeys.User = "" }},
		{"zero cart ttl", func(c *Config) { c.CartTTL = 0 }},
		{"negative refresh buffer", func(c *Config) { c.TokenRefreshBuffer = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidateStub(t *testing.T) {
	t.Parallel()

	cfg := &Config{Stub: StubConfig{
		Port:           "3000",
		JWTSecret:      "short",
		AccessTTL:      time.Minute,
		RefreshTTL:     time.Hour,
		RequestTimeout: time.Second,
	}}
	require.Error(t, cfg.ValidateStub())

	cfg.Stub.JWTSecret = "a-long-enough-development-secret"
	require.NoError(t, cfg.ValidateStub())
}
