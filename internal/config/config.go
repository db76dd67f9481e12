package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Harmony job service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Jobs      JobsConfig
	Reaper    ReaperConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// URLRoot is the public root used to build permalinks and paging links.
	URLRoot string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AWSConfig struct {
	// DefaultRegion may be empty, in which case the SDK's default chain decides.
	DefaultRegion string
}

type JobsConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	// CacheTTL is how long completed jobs stay in the cache.
	CacheTTL time.Duration
}

type ReaperConfig struct {
	Interval       time.Duration
	StalledMinutes int
	BatchSize      int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:    envInt("HARMONY_PORT", 3000),
			Env:     envString("HARMONY_ENV", "development"),
			URLRoot: envString("HARMONY_URL_ROOT", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AWS: AWSConfig{
			DefaultRegion: os.Getenv("AWS_DEFAULT_REGION"),
		},
		Jobs: JobsConfig{
			DefaultPageSize: envInt("JOBS_DEFAULT_PAGE_SIZE", 10),
			MaxPageSize:     envInt("JOBS_MAX_PAGE_SIZE", 2000),
			CacheTTL:        envDuration("JOBS_CACHE_TTL", 30*time.Minute),
		},
		Reaper: ReaperConfig{
			Interval:       envDuration("REAPER_INTERVAL", time.Minute),
			StalledMinutes: envInt("REAPER_STALLED_MINUTES", 60),
			BatchSize:      envInt("REAPER_BATCH_SIZE", 100),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !strings.HasPrefix(c.Server.URLRoot, "http://") && !strings.HasPrefix(c.Server.URLRoot, "https://") {
		return fmt.Errorf("HARMONY_URL_ROOT must start with http:// or https://, got %q", c.Server.URLRoot)
	}

	if c.Jobs.DefaultPageSize <= 0 {
		return fmt.Errorf("JOBS_DEFAULT_PAGE_SIZE must be positive, got %d", c.Jobs.DefaultPageSize)
	}
	if c.Jobs.MaxPageSize < c.Jobs.DefaultPageSize {
		return fmt.Errorf("JOBS_MAX_PAGE_SIZE (%d) must not be smaller than JOBS_DEFAULT_PAGE_SIZE (%d)",
			c.Jobs.MaxPageSize, c.Jobs.DefaultPageSize)
	}

	if c.Reaper.StalledMinutes <= 0 {
		return fmt.Errorf("REAPER_STALLED_MINUTES must be positive, got %d", c.Reaper.StalledMinutes)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
