package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	CDN       CDNConfig
	Telemetry TelemetryConfig

	// Environments holds the per-environment CDN definitions
	// (flush URLs, purge credentials). Loaded from a YAML file.
	Environments []Environment
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings.
// Redis backs both the task queue and the CDN config key-value store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// WorkerConfig holds background worker settings
type WorkerConfig struct {
	// Broker selects the queue implementation: "redis" or "memory"
	Broker string

	// CompleteDelay is how long the completion follow-up of a config
	// deployment is deferred, giving edge caches time to observe the
	// new config before purge URLs referencing it are issued.
	CompleteDelay time.Duration

	// PollInterval bounds how long a consumer blocks waiting for a
	// queued message before re-checking the scheduled set.
	PollInterval time.Duration

	// FlushDeadline is the staleness bound put on ad-hoc cache flush
	// tasks; a flush task claimed past its deadline is abandoned.
	FlushDeadline time.Duration
}

// CDNConfig holds settings shared by all CDN environments
type CDNConfig struct {
	// AutoindexFilename is the reserved filename of auto-generated
	// directory indexes. Clients may delete but never write it.
	AutoindexFilename string

	// ListingFlush controls whether listing paths derived from the
	// config's listing section are included in every flush.
	ListingFlush bool

	// EnvironmentsFile is the YAML file holding the Environment list.
	EnvironmentsFile string
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Environment describes one CDN environment
type Environment struct {
	Name string `yaml:"name"`

	// FlushEnabled gates purge API submission for this environment.
	FlushEnabled bool `yaml:"flush_enabled"`

	// CacheFlushURLs are CDN base URLs to join with each flush path.
	CacheFlushURLs []string `yaml:"cache_flush_urls"`

	// CacheFlushARLTemplates are edge ARL templates with {path} and
	// {ttl} placeholders.
	CacheFlushARLTemplates []string `yaml:"cache_flush_arl_templates"`

	Purge PurgeCredentials `yaml:"purge"`
}

// PurgeCredentials holds environment-scoped purge API credentials
type PurgeCredentials struct {
	Host         string `yaml:"host"`
	ClientToken  string `yaml:"client_token"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "gateway"),
			User:        getEnv("POSTGRES_USER", "gateway"),
			Password:    getEnv("POSTGRES_PASSWORD", "gateway"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Worker: WorkerConfig{
			Broker:        getEnv("BROKER_TYPE", "redis"),
			CompleteDelay: getEnvDuration("DEPLOY_COMPLETE_DELAY", 120*time.Second),
			PollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			FlushDeadline: getEnvDuration("FLUSH_CACHE_DEADLINE", 10*time.Minute),
		},
		CDN: CDNConfig{
			AutoindexFilename: getEnv("AUTOINDEX_FILENAME", ".__autoindex__"),
			ListingFlush:      getEnvBool("CDN_LISTING_FLUSH", true),
			EnvironmentsFile:  getEnv("ENVIRONMENTS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	if cfg.CDN.EnvironmentsFile != "" {
		envs, err := LoadEnvironments(cfg.CDN.EnvironmentsFile)
		if err != nil {
			return nil, fmt.Errorf("load environments: %w", err)
		}
		cfg.Environments = envs
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	seen := map[string]bool{}
	for _, env := range c.Environments {
		if env.Name == "" {
			return fmt.Errorf("environment with empty name")
		}
		if seen[env.Name] {
			return fmt.Errorf("duplicate environment: %s", env.Name)
		}
		seen[env.Name] = true
	}

	return nil
}

// GetEnvironment returns the named CDN environment, or nil if unknown
func (c *Config) GetEnvironment(name string) *Environment {
	for i := range c.Environments {
		if c.Environments[i].Name == name {
			return &c.Environments[i]
		}
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
