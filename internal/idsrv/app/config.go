package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	httpapi "github.com/aussiebroadwan/idsrv/internal/idsrv/http"
	"github.com/aussiebroadwan/idsrv/pkg/httpx"
	"github.com/aussiebroadwan/idsrv/pkg/jwtx"
)

const (
	KeyStorageEphemeral  = "ephemeral"
	KeyStoragePersistent = "persistent"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	RevocationStore = "store"
	RevocationRedis = "redis"
)

type Config struct {
	Issuer   string   // absolute base URL, published as iss and in discovery (default: http://localhost:8080)
	Audience []string // aud claim; empty disables audience checks
	Scopes   []string // scopes advertised in discovery

	Algorithm      string        // RS256, ES256 or EdDSA (default: EdDSA)
	RSABits        int           // RS256 key size (default: jwtx default)
	NumKeys        int           // active signing keys (default: 3)
	KeyStorageMode string        // ephemeral or persistent (default: ephemeral)
	KeyLifetime    time.Duration // lifetime of generated persistent keys (default: 90 days)
	MasterKeyPath  string        // master key sealing persistent keys (default: ./master.key)

	AccessTTL  time.Duration // default: 1h
	RefreshTTL time.Duration // default: 30 days

	DatabaseDriver   string        // sqlite or postgres (default: sqlite)
	DatabaseFile     string        // SQLite path, ":memory:" for a throwaway store (default: ./idsrv.db)
	DatabaseURL      string        // Postgres DSN
	DatabaseMaxConns int           // Postgres pool size, 0 keeps the pgx default
	StoreTimeout     time.Duration // bound on a single store call (default: 5s)
	PepperFile       string        // default: ./pepper
	SeedFile         string        // YAML seed file; empty seeds the built-in demo data

	RevocationBackend string // store or redis (default: store)
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	Env                  string        // dev, staging, prod (default: dev)
	LogLevel             string        // debug, info, warn, error (default: info)
	LogFormat            string        // json, text (default: json)
	LogOutput            io.Writer     // defaults to stdout
	Port                 int           // default: 8080
	ShutdownGracePeriod  time.Duration // default: 10s
	HousekeepingInterval time.Duration // default: 1h

	RateLimits httpapi.RateLimits
}

// LoadConfig reads the configuration from the environment. Values in a
// .env file in the working directory are loaded first but never override
// variables that are already set.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Issuer:   strings.TrimSpace(getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080")),
		Audience: strings.Fields(os.Getenv("AUTH_AUDIENCE")),
		Scopes:   strings.Fields(getEnvOrDefault("AUTH_SCOPES", "openid profile email address api1 offline_access")),

		Algorithm:      getEnvOrDefault("AUTH_ALGORITHM", jwtx.AlgorithmEdDSA),
		RSABits:        getEnvIntOrDefault("AUTH_RSA_BITS", 0),
		NumKeys:        getEnvIntOrDefault("AUTH_NUM_KEYS", 3),
		KeyStorageMode: getEnvOrDefault("AUTH_KEY_STORAGE_MODE", KeyStorageEphemeral),
		KeyLifetime:    getEnvDurationOrDefault("AUTH_KEY_LIFETIME", 90*24*time.Hour),
		MasterKeyPath:  getEnvOrDefault("AUTH_MASTER_KEY_PATH", "master.key"),

		AccessTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),

		DatabaseDriver:   getEnvOrDefault("AUTH_DATABASE_DRIVER", DriverSQLite),
		DatabaseFile:     getEnvOrDefault("AUTH_DATABASE_FILE", "idsrv.db"),
		DatabaseURL:      os.Getenv("AUTH_DATABASE_URL"),
		DatabaseMaxConns: getEnvIntOrDefault("AUTH_DATABASE_MAX_CONNS", 0),
		StoreTimeout:     getEnvDurationOrDefault("AUTH_STORE_TIMEOUT", 5*time.Second),
		PepperFile:       getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		SeedFile:         os.Getenv("AUTH_SEED_FILE"),

		RevocationBackend: getEnvOrDefault("REVOCATION_BACKEND", RevocationStore),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvIntOrDefault("REDIS_DB", 0),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),

		RateLimits: httpapi.RateLimits{
			Token:  httpx.RateLimitFromEnv(os.Getenv, "TOKEN", httpapi.DefaultRateLimits.Token),
			Client: httpx.RateLimitFromEnv(os.Getenv, "CLIENT", httpapi.DefaultRateLimits.Client),
			API:    httpx.RateLimitFromEnv(os.Getenv, "API", httpapi.DefaultRateLimits.API),
			Public: httpx.RateLimitFromEnv(os.Getenv, "PUBLIC", httpapi.DefaultRateLimits.Public),
		},
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_FILE is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_DATABASE_DRIVER %q (sqlite, postgres)", c.DatabaseDriver))
	}

	switch c.KeyStorageMode {
	case KeyStorageEphemeral, KeyStoragePersistent:
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_KEY_STORAGE_MODE %q (ephemeral, persistent)", c.KeyStorageMode))
	}

	switch c.RevocationBackend {
	case RevocationStore:
	case RevocationRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis revocation backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REVOCATION_BACKEND %q (store, redis)", c.RevocationBackend))
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.KeyStorageMode == KeyStoragePersistent && c.KeyLifetime <= c.AccessTTL {
		errs = append(errs, errors.New("AUTH_KEY_LIFETIME must exceed AUTH_ACCESS_TTL"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
