package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // report periods are computed in a fixed zone even on minimal images

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	AppsFlyer AppsFlyerConfig `yaml:"appsflyer"`
	Cache     CacheConfig     `yaml:"cache"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Report    ReportConfig    `yaml:"report"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Apps      []AppConfig     `yaml:"apps"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// AppsFlyerConfig holds the attribution platform API configuration
type AppsFlyerConfig struct {
	BaseURL              string `yaml:"base_url"`
	APIToken             string `yaml:"api_token"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
	MaxRetries           int    `yaml:"max_retries"`
	RetryDelaySeconds    int    `yaml:"retry_delay_seconds"`
	MaxRetryAfterSeconds int    `yaml:"max_retry_after_seconds"` // 0 = honor whatever the server sends
	Timezone             string `yaml:"timezone"`
}

// Timeout returns the per-request timeout as a duration
func (c AppsFlyerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay returns the pause between failed attempts
func (c AppsFlyerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// MaxRetryAfter returns the cap applied to Retry-After headers
func (c AppsFlyerConfig) MaxRetryAfter() time.Duration {
	return time.Duration(c.MaxRetryAfterSeconds) * time.Second
}

// Location resolves the reference timezone for period math.
func (c AppsFlyerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// AWSConfig holds credentials shared by the S3 archive and the DynamoDB cache.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// CacheConfig selects and parametrizes the report cache backend
type CacheConfig struct {
	Backend         string    `yaml:"backend"` // memory, postgres, redis, dynamodb
	Table           string    `yaml:"table"`   // postgres table or dynamodb table
	KeyPrefix       string    `yaml:"key_prefix"`
	LockTTLSeconds  int       `yaml:"lock_ttl_seconds"`
	LockWaitSeconds int       `yaml:"lock_wait_seconds"`
	AWS             AWSConfig `yaml:"aws"`
}

// LockTTL returns the lifetime of a cache write lock
func (c CacheConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// LockWait returns how long a writer waits for a held lock
func (c CacheConfig) LockWait() time.Duration {
	return time.Duration(c.LockWaitSeconds) * time.Second
}

// ArchiveConfig holds raw-export archive settings
type ArchiveConfig struct {
	Backend   string    `yaml:"backend"` // none, local, s3
	Bucket    string    `yaml:"bucket"`
	Prefix    string    `yaml:"prefix"`
	LocalPath string    `yaml:"local_path"`
	QueueSize int       `yaml:"queue_size"`
	AWS       AWSConfig `yaml:"aws"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ReportConfig holds orchestrator settings
type ReportConfig struct {
	Concurrency       int    `yaml:"concurrency"` // apps processed in parallel per run
	OverviewPeriod    string `yaml:"overview_period"`
	EventLookbackDays int    `yaml:"event_lookback_days"`
}

// SchedulerConfig holds periodic refresh settings
type SchedulerConfig struct {
	Enabled                  bool     `yaml:"enabled"`
	Schedule                 string   `yaml:"schedule"` // cron expression or @every
	Periods                  []string `yaml:"periods"`
	PauseBetweenKindsSeconds int      `yaml:"pause_between_kinds_seconds"`
	LockTTLMinutes           int      `yaml:"lock_ttl_minutes"`
}

// PauseBetweenKinds returns the pause between the stats and fraud passes
func (c SchedulerConfig) PauseBetweenKinds() time.Duration {
	return time.Duration(c.PauseBetweenKindsSeconds) * time.Second
}

// LockTTL returns how long a refresh may hold the refresher lock
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// AppConfig is one entry of the static app inventory
type AppConfig struct {
	AppID   string `yaml:"app_id"`
	AppName string `yaml:"app_name"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for runs
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.AppsFlyer.BaseURL == "" {
		cfg.AppsFlyer.BaseURL = "https://hq1.appsflyer.com"
	}
	if cfg.AppsFlyer.TimeoutSeconds == 0 {
		cfg.AppsFlyer.TimeoutSeconds = 90
	}
	if cfg.AppsFlyer.MaxRetries == 0 {
		cfg.AppsFlyer.MaxRetries = 7
	}
	if cfg.AppsFlyer.RetryDelaySeconds == 0 {
		cfg.AppsFlyer.RetryDelaySeconds = 30
	}
	if cfg.AppsFlyer.Timezone == "" {
		cfg.AppsFlyer.Timezone = "Europe/Berlin"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.Table == "" {
		cfg.Cache.Table = "report_cache"
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "afreport"
	}
	if cfg.Cache.LockTTLSeconds == 0 {
		cfg.Cache.LockTTLSeconds = 60
	}
	if cfg.Cache.LockWaitSeconds == 0 {
		cfg.Cache.LockWaitSeconds = 30
	}
	if cfg.Archive.Backend == "" {
		cfg.Archive.Backend = "none"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "raw"
	}
	if cfg.Archive.LocalPath == "" {
		cfg.Archive.LocalPath = "./data/archive"
	}
	if cfg.Archive.QueueSize == 0 {
		cfg.Archive.QueueSize = 64
	}
	if cfg.Archive.AWS.Region == "" {
		cfg.Archive.AWS.Region = "us-west-2"
	}
	if cfg.Cache.AWS.Region == "" {
		cfg.Cache.AWS.Region = "us-west-2"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Report.Concurrency == 0 {
		cfg.Report.Concurrency = 1
	}
	if cfg.Report.OverviewPeriod == "" {
		cfg.Report.OverviewPeriod = "last30"
	}
	if cfg.Report.EventLookbackDays == 0 {
		cfg.Report.EventLookbackDays = 10
	}
	if cfg.Scheduler.Schedule == "" {
		cfg.Scheduler.Schedule = "@every 6h"
	}
	if len(cfg.Scheduler.Periods) == 0 {
		cfg.Scheduler.Periods = []string{"last10", "mtd", "lastmonth", "last30"}
	}
	if cfg.Scheduler.PauseBetweenKindsSeconds == 0 {
		cfg.Scheduler.PauseBetweenKindsSeconds = 300
	}
	if cfg.Scheduler.LockTTLMinutes == 0 {
		cfg.Scheduler.LockTTLMinutes = 180
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects unknown backend names and an unusable timezone.
func (cfg *Config) Validate() error {
	switch cfg.Cache.Backend {
	case "memory", "postgres", "redis", "dynamodb":
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "postgres" && cfg.Database.URL == "" {
		return fmt.Errorf("cache backend postgres requires database.url")
	}
	if cfg.Cache.Backend == "redis" && cfg.Redis.URL == "" {
		return fmt.Errorf("cache backend redis requires redis.url")
	}
	switch cfg.Archive.Backend {
	case "none", "local":
	case "s3":
		if cfg.Archive.Bucket == "" {
			return fmt.Errorf("archive backend s3 requires archive.bucket")
		}
	default:
		return fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
	if _, err := cfg.AppsFlyer.Location(); err != nil {
		return fmt.Errorf("invalid appsflyer.timezone: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on ECS. An empty path skips the
// YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("APPSFLYER_API_TOKEN"); v != "" {
		cfg.AppsFlyer.APIToken = v
	}
	if v := os.Getenv("APPSFLYER_BASE_URL"); v != "" {
		cfg.AppsFlyer.BaseURL = v
	}
	if v := os.Getenv("APPSFLYER_TIMEZONE"); v != "" {
		cfg.AppsFlyer.Timezone = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REPORT_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("REPORT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Report.Concurrency = n
		}
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
		cfg.Archive.Backend = "s3"
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Archive.AWS.AccessKeyID = v
		cfg.Cache.AWS.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Archive.AWS.SecretAccessKey = v
		cfg.Cache.AWS.SecretAccessKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	return cfg, nil
}
