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
	HTTP      HTTPConfig
	BulkUser  BulkUserConfig
	Sync      SyncConfig
	Peer      PeerConfig
	LoadTest  LoadTestConfig
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
	Port string
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

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string

	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// BulkUserConfig holds defaults and ceilings for bulk user creation
type BulkUserConfig struct {
	DefaultTemplate  string
	MaxUsersPerBatch int
	DefaultChunkSize int
	MaxWorkers       int
	ConfigStorePath  string // JSON file backing custom templates and endpoint registry
}

// SyncConfig holds differential sync settings
type SyncConfig struct {
	HashStoreBackend string // "memory" or "redis"
	HashKeyPrefix    string
	HashTTL          time.Duration
}

// PeerConfig holds the load-tester peer connection settings
type PeerConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// LoadTestConfig holds load test safety limits and worker defaults
type LoadTestConfig struct {
	MaxConcurrentUsers int
	MaxDurationMinutes int
	MaxSessions        int
	MaxErrorsPerMinute int
	RequestIntervalMin time.Duration
	RequestIntervalMax time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
	ProfilerEnabled   bool    // Enable continuous profiling (Pyroscope)
	ProfilerAddress   string  // Pyroscope server address (e.g., "http://pyroscope:4040")
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ECAPP_ prefix (e.g., ECAPP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("ECAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
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
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),

			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		BulkUser: BulkUserConfig{
			DefaultTemplate:  v.GetString("bulk_user.default_template"),
			MaxUsersPerBatch: v.GetInt("bulk_user.max_users_per_batch"),
			DefaultChunkSize: v.GetInt("bulk_user.default_chunk_size"),
			MaxWorkers:       v.GetInt("bulk_user.max_workers"),
			ConfigStorePath:  v.GetString("bulk_user.config_store_path"),
		},
		Sync: SyncConfig{
			HashStoreBackend: v.GetString("sync.hash_store_backend"),
			HashKeyPrefix:    v.GetString("sync.hash_key_prefix"),
			HashTTL:          v.GetDuration("sync.hash_ttl"),
		},
		Peer: PeerConfig{
			BaseURL:        v.GetString("peer.base_url"),
			RequestTimeout: v.GetDuration("peer.request_timeout"),
			MaxRetries:     v.GetInt("peer.max_retries"),
			RetryBackoff:   v.GetDuration("peer.retry_backoff"),
		},
		LoadTest: LoadTestConfig{
			MaxConcurrentUsers: v.GetInt("load_test.max_concurrent_users"),
			MaxDurationMinutes: v.GetInt("load_test.max_duration_minutes"),
			MaxSessions:        v.GetInt("load_test.max_sessions"),
			MaxErrorsPerMinute: v.GetInt("load_test.max_errors_per_minute"),
			RequestIntervalMin: v.GetDuration("load_test.request_interval_min"),
			RequestIntervalMax: v.GetDuration("load_test.request_interval_max"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			ProfilerEnabled:   v.GetBool("telemetry.profiler_enabled"),
			ProfilerAddress:   v.GetString("telemetry.profiler_address"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ecapp-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
		cfg.Database.DBName = "ecapp"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Content-Encoding", "X-Request-ID"}
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.BulkUser.DefaultTemplate == "" {
		cfg.BulkUser.DefaultTemplate = "default"
	}
	if cfg.BulkUser.MaxUsersPerBatch == 0 {
		cfg.BulkUser.MaxUsersPerBatch = 1000
	}
	if cfg.BulkUser.DefaultChunkSize == 0 {
		cfg.BulkUser.DefaultChunkSize = 100
	}
	if cfg.BulkUser.MaxWorkers == 0 {
		cfg.BulkUser.MaxWorkers = 4
	}
	if cfg.BulkUser.ConfigStorePath == "" {
		cfg.BulkUser.ConfigStorePath = "data/bulk_user_config.json"
	}
	if cfg.Sync.HashStoreBackend == "" {
		cfg.Sync.HashStoreBackend = "memory"
	}
	if cfg.Sync.HashKeyPrefix == "" {
		cfg.Sync.HashKeyPrefix = "usersync:hash:"
	}
	if cfg.Sync.HashTTL == 0 {
		cfg.Sync.HashTTL = 7 * 24 * time.Hour
	}
	if cfg.Peer.RequestTimeout == 0 {
		cfg.Peer.RequestTimeout = 30 * time.Second
	}
	if cfg.Peer.MaxRetries == 0 {
		cfg.Peer.MaxRetries = 3
	}
	if cfg.Peer.RetryBackoff == 0 {
		cfg.Peer.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.LoadTest.MaxConcurrentUsers == 0 {
		cfg.LoadTest.MaxConcurrentUsers = 50
	}
	if cfg.LoadTest.MaxDurationMinutes == 0 {
		cfg.LoadTest.MaxDurationMinutes = 120
	}
	if cfg.LoadTest.MaxSessions == 0 {
		cfg.LoadTest.MaxSessions = 3
	}
	if cfg.LoadTest.MaxErrorsPerMinute == 0 {
		cfg.LoadTest.MaxErrorsPerMinute = 100
	}
	if cfg.LoadTest.RequestIntervalMin == 0 {
		cfg.LoadTest.RequestIntervalMin = time.Second
	}
	if cfg.LoadTest.RequestIntervalMax == 0 {
		cfg.LoadTest.RequestIntervalMax = 5 * time.Second
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ecapp-backend"
	}
	if cfg.Telemetry.ProfilerAddress == "" {
		cfg.Telemetry.ProfilerAddress = "http://localhost:4040"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
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

	// The creation worker pool must never be able to exhaust the connection
	// pool on its own.
	if c.BulkUser.MaxWorkers > c.Database.MaxOpenConns {
		return fmt.Errorf("bulk_user.max_workers (%d) cannot exceed database.max_open_conns (%d)",
			c.BulkUser.MaxWorkers, c.Database.MaxOpenConns)
	}
	if c.BulkUser.MaxUsersPerBatch < 1 || c.BulkUser.MaxUsersPerBatch > 1000 {
		return fmt.Errorf("bulk_user.max_users_per_batch must be between 1 and 1000, got %d", c.BulkUser.MaxUsersPerBatch)
	}
	if c.BulkUser.DefaultChunkSize < 1 || c.BulkUser.DefaultChunkSize > 500 {
		return fmt.Errorf("bulk_user.default_chunk_size must be between 1 and 500, got %d", c.BulkUser.DefaultChunkSize)
	}

	switch c.Sync.HashStoreBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("sync.hash_store_backend must be 'memory' or 'redis', got %q", c.Sync.HashStoreBackend)
	}

	if c.LoadTest.RequestIntervalMax < c.LoadTest.RequestIntervalMin {
		return fmt.Errorf("load_test.request_interval_max cannot be below load_test.request_interval_min")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	// Validate telemetry configuration (all environments)
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

// Addr returns the host:port pair for the Redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
