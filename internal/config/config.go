package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL     string
	ServerAddr      string
	MigrationsDir   string
	ApprovalWindow  time.Duration
	SweepInterval   time.Duration
	PlatformContact string
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "peacelink")
		pass := getenv("POSTGRES_PASSWORD", "peacelink_pass")
		db := getenv("POSTGRES_DB", "peacelink")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	addr := getenv("SERVER_ADDR", "0.0.0.0:8080")
	migrations := getenv("MIGRATIONS_DIR", "internal/migrations")
	window := parseDuration(getenv("APPROVAL_WINDOW", "24h"), 24*time.Hour)
	sweep := parseDuration(getenv("EXPIRY_SWEEP_INTERVAL", "1m"), time.Minute)
	contact := getenv("PLATFORM_CONTACT", "ops@peacelink")

	return &Config{
		DatabaseURL:     dsn,
		ServerAddr:      addr,
		MigrationsDir:   migrations,
		ApprovalWindow:  window,
		SweepInterval:   sweep,
		PlatformContact: contact,
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
