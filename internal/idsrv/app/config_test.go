package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httpapi "github.com/aussiebroadwan/idsrv/internal/idsrv/http"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080", cfg.Issuer)
	require.Empty(t, cfg.Audience)
	require.Equal(t, jwtx.AlgorithmEdDSA, cfg.Algorithm)
	require.Equal(t, KeyStorageEphemeral, cfg.KeyStorageMode)
	require.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	require.Equal(t, RevocationStore, cfg.RevocationBackend)
	require.Equal(t, jwtx.DefaultAccessTokenTTL, cfg.AccessTTL)
	require.Equal(t, jwtx.DefaultRefreshTokenTTL, cfg.RefreshTTL)
	require.Equal(t, 8080, cfg.Port)
	require.Contains(t, cfg.Scopes, "openid")
	require.Equal(t, httpapi.DefaultRateLimits, cfg.RateLimits)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "https://id.example.com")
	t.Setenv("AUTH_AUDIENCE", "api1 api2")
	t.Setenv("AUTH_ALGORITHM", jwtx.AlgorithmES256)
	t.Setenv("AUTH_ACCESS_TTL", "15m")
	t.Setenv("AUTH_REFRESH_TTL", "120") // bare integers are minutes
	t.Setenv("AUTH_DATABASE_DRIVER", DriverPostgres)
	t.Setenv("AUTH_DATABASE_URL", "postgres://idsrv@localhost/idsrv")
	t.Setenv("PORT", "9090")
	t.Setenv("RATELIMIT_TOKEN_REQUESTS", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "https://id.example.com", cfg.Issuer)
	require.Equal(t, []string{"api1", "api2"}, cfg.Audience)
	require.Equal(t, jwtx.AlgorithmES256, cfg.Algorithm)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 2*time.Hour, cfg.RefreshTTL)
	require.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 3, cfg.RateLimits.Token.RequestsPerWindow)
}

func TestLoadConfigIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("AUTH_ACCESS_TTL", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, jwtx.DefaultAccessTokenTTL, cfg.AccessTTL)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DatabaseDriver:    DriverSQLite,
			DatabaseFile:      ":memory:",
			KeyStorageMode:    KeyStorageEphemeral,
			RevocationBackend: RevocationStore,
			AccessTTL:         time.Hour,
			RefreshTTL:        24 * time.Hour,
			KeyLifetime:       90 * 24 * time.Hour,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "AUTH_DATABASE_DRIVER"},
		{"postgres without url", func(c *Config) { c.DatabaseDriver = DriverPostgres }, "AUTH_DATABASE_URL"},
		{"unknown key mode", func(c *Config) { c.KeyStorageMode = "vault" }, "AUTH_KEY_STORAGE_MODE"},
		{"unknown revocation backend", func(c *Config) { c.RevocationBackend = "memcached" }, "REVOCATION_BACKEND"},
		{"redis without addr", func(c *Config) { c.RevocationBackend = RevocationRedis }, "REDIS_ADDR"},
		{"zero access ttl", func(c *Config) { c.AccessTTL = 0 }, "lifetimes"},
		{"key lifetime below ttl", func(c *Config) {
			c.KeyStorageMode = KeyStoragePersistent
			c.KeyLifetime = time.Minute
		}, "AUTH_KEY_LIFETIME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}
