package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Scrape    ScrapeConfig
	Hosted    HostedConfig
	Storage   StorageConfig
	Import    ImportConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. Without a host the import
// lock falls back to an in-process lock.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ScrapeConfig holds browser and static-HTTP extraction settings
type ScrapeConfig struct {
	BrowserURL        string // remote DevTools endpoint; empty launches a local browser
	Headless          bool
	NoSandbox         bool
	UserAgent         string
	NavigationTimeout time.Duration
	StaticTimeout     time.Duration
	RequestsPerSecond float64 // per host, shared by the HTTP providers
	SettleTimeout     time.Duration
	PollInterval      time.Duration
	RetryAttempts     int
}

// HostedConfig holds the hosted scraping API settings
type HostedConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// StorageConfig holds the optional S3 destination for snapshots
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
	CreateBucket    bool // create the bucket on startup when missing
}

// Enabled reports whether snapshot upload is configured
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

// ImportConfig holds pipeline settings
type ImportConfig struct {
	SnapshotDir      string
	LockTTL          time.Duration
	MaxSkippedErrors int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with PRICEIMPORT_ prefix (e.g., PRICEIMPORT_HOSTED_API_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/priceimport")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("PRICEIMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("scrape.headless", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Scrape: ScrapeConfig{
			BrowserURL:        v.GetString("scrape.browser_url"),
			Headless:          v.GetBool("scrape.headless"),
			NoSandbox:         v.GetBool("scrape.no_sandbox"),
			UserAgent:         v.GetString("scrape.user_agent"),
			NavigationTimeout: v.GetDuration("scrape.navigation_timeout"),
			StaticTimeout:     v.GetDuration("scrape.static_timeout"),
			RequestsPerSecond: v.GetFloat64("scrape.requests_per_second"),
			SettleTimeout:     v.GetDuration("scrape.settle_timeout"),
			PollInterval:      v.GetDuration("scrape.poll_interval"),
			RetryAttempts:     v.GetInt("scrape.retry_attempts"),
		},
		Hosted: HostedConfig{
			BaseURL: v.GetString("hosted.base_url"),
			APIKey:  v.GetString("hosted.api_key"),
			Timeout: v.GetDuration("hosted.timeout"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			Prefix:          v.GetString("storage.prefix"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			CreateBucket:    v.GetBool("storage.create_bucket"),
		},
		Import: ImportConfig{
			SnapshotDir:      v.GetString("import.snapshot_dir"),
			LockTTL:          v.GetDuration("import.lock_ttl"),
			MaxSkippedErrors: v.GetInt("import.max_skipped_errors"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "priceimport"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "catalog"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host != "" && cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Scrape.NavigationTimeout == 0 {
		cfg.Scrape.NavigationTimeout = 30 * time.Second
	}
	if cfg.Scrape.StaticTimeout == 0 {
		cfg.Scrape.StaticTimeout = 20 * time.Second
	}
	if cfg.Scrape.RequestsPerSecond == 0 {
		cfg.Scrape.RequestsPerSecond = 2
	}
	if cfg.Scrape.SettleTimeout == 0 {
		cfg.Scrape.SettleTimeout = 10 * time.Second
	}
	if cfg.Scrape.PollInterval == 0 {
		cfg.Scrape.PollInterval = 250 * time.Millisecond
	}
	if cfg.Scrape.RetryAttempts == 0 {
		cfg.Scrape.RetryAttempts = 3
	}
	if cfg.Hosted.BaseURL == "" {
		cfg.Hosted.BaseURL = "https://api.firecrawl.dev"
	}
	if cfg.Hosted.Timeout == 0 {
		cfg.Hosted.Timeout = 45 * time.Second
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "eu-north-1"
	}
	if cfg.Import.SnapshotDir == "" {
		cfg.Import.SnapshotDir = "snapshots"
	}
	if cfg.Import.LockTTL == 0 {
		cfg.Import.LockTTL = 15 * time.Minute
	}
	if cfg.Import.MaxSkippedErrors == 0 {
		cfg.Import.MaxSkippedErrors = 500
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "priceimport"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Scrape.RequestsPerSecond < 0 {
		return fmt.Errorf("scrape.requests_per_second cannot be negative")
	}
	if c.Scrape.RetryAttempts < 1 {
		return fmt.Errorf("scrape.retry_attempts must be at least 1")
	}
	if _, err := url.ParseRequestURI(c.Hosted.BaseURL); err != nil {
		return fmt.Errorf("hosted.base_url is invalid: %w", err)
	}
	if c.Storage.Enabled() && (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
		return fmt.Errorf("storage.access_key_id and storage.secret_access_key must be set together")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
