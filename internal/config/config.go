// Package config loads process configuration from the environment:
// a flat struct, env/envInt/envDuration helpers with fallbacks, no config
// file parsing.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the catalog daemon needs at startup: the
// on-disk store locations, the upstream SOAP endpoint and batching
// policy, and the ambient Postgres/Redis/JWT wiring.
type Config struct {
	Port int

	// MetadataPath, ServiceConfigJSON and ContentPath are the three
	// upstream-starter inputs: store location, canned config, content root.
	MetadataPath      string
	ServiceConfigJSON string
	ContentPath       string

	// Upstream is the SOAP endpoint this instance mirrors from.
	UpstreamEndpoint    string
	UpstreamAccount     string
	UpstreamAccountGUID string

	// SendTimeout/ReceiveTimeout are the SOAP client's per-call timeouts.
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration
	RetryAttempts  int
	RetrySleep     time.Duration

	// SyncCron is the cron expression the scheduler uses to enqueue
	// periodic resyncs.
	SyncCron string

	DatabaseURL    string
	MigrationsPath string
	RedisAddr      string
	JWTSecret      string

	// AdminUsername/AdminPasswordHash gate the operator API: a single
	// operator account, bcrypt hash at rest, JWT bearer tokens issued on
	// login.
	AdminUsername     string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration

	// ProductFilter/ClassificationFilter scope the UpdatesSource pull:
	// comma-separated GUIDs, empty meaning the pull matches nothing.
	ProductFilter        string
	ClassificationFilter string

	AdminPort int
}

// Load reads configuration from the environment, filling in the defaults a
// development instance would use.
func Load() *Config {
	return &Config{
		Port: envInt("PORT", 8080),

		MetadataPath:      env("METADATA_PATH", "/data/store"),
		ServiceConfigJSON: env("SERVICE_CONFIG_JSON", ""),
		ContentPath:       env("CONTENT_PATH", ""),

		UpstreamEndpoint:    env("UPSTREAM_ENDPOINT", "https://sws.update.microsoft.com/ServerSyncWebService/ServerSyncWebService.asmx"),
		UpstreamAccount:     env("UPSTREAM_ACCOUNT_NAME", ""),
		UpstreamAccountGUID: env("UPSTREAM_ACCOUNT_GUID", ""),

		SendTimeout:    envDuration("SEND_TIMEOUT", 3*time.Minute),
		ReceiveTimeout: envDuration("RECEIVE_TIMEOUT", 3*time.Minute),
		RetryAttempts:  envInt("RETRY_ATTEMPTS", 10),
		RetrySleep:     envDuration("RETRY_SLEEP", 5*time.Second),

		SyncCron: env("SYNC_CRON", "0 */6 * * *"),

		DatabaseURL:    env("DATABASE_URL", "postgres://wsuscatalog:wsuscatalog@db:5432/wsuscatalog?sslmode=disable"),
		MigrationsPath: env("MIGRATIONS_PATH", "./migrations"),
		RedisAddr:      env("REDIS_ADDR", "redis:6379"),
		JWTSecret:      env("JWT_SECRET", "change-me-in-production"),

		AdminUsername:     env("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: env("ADMIN_PASSWORD_HASH", ""),
		AdminTokenTTL:     envDuration("ADMIN_TOKEN_TTL", 12*time.Hour),

		ProductFilter:        env("PRODUCT_FILTER", ""),
		ClassificationFilter: env("CLASSIFICATION_FILTER", ""),

		AdminPort: envInt("ADMIN_PORT", 8081),
	}
}

// ContentEnabled reports whether a content store is mounted, mirroring the
// upstream starter's CatalogOnlySync toggle.
func (c *Config) ContentEnabled() bool {
	return c.ContentPath != ""
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
