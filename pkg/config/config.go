package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/iar/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	OAuth2        OAuth2Config        `yaml:"oauth2"`
	Lookup        LookupConfig        `yaml:"lookup"`
	Assets        AssetsConfig        `yaml:"assets"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
}

// RedisConfig holds settings for the shared person profile cache. An empty
// URL selects the in-process cache instead.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// OAuth2Config holds the client credentials the server uses to talk to the
// authorisation server.
type OAuth2Config struct {
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	TokenURL          string        `yaml:"token_url"`
	IntrospectURL     string        `yaml:"introspect_url"`
	IntrospectScopes  []string      `yaml:"introspect_scopes"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxConnectRetries int           `yaml:"max_connect_retries"`
}

// LookupConfig holds directory (lookup proxy) settings
type LookupConfig struct {
	RootURL  string        `yaml:"root_url"`
	Scopes   []string      `yaml:"scopes"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// CacheSize bounds the in-process cache when Redis is not configured
	CacheSize int `yaml:"cache_size"`
}

// AssetsConfig holds settings for the asset API itself
type AssetsConfig struct {
	RequiredScopes []string `yaml:"required_scopes"`
	UsersGroup     string   `yaml:"users_group"`
	PageSize       int      `yaml:"page_size"`
	StatsSchedule  string   `yaml:"stats_schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
	TracingEnabled bool                   `yaml:"tracing_enabled"`
	OTLPEndpoint   string                 `yaml:"otlp_endpoint"`
	OTLPInsecure   bool                   `yaml:"otlp_insecure"`
	SampleRatio    float64                `yaml:"trace_sample_ratio"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL:         "postgres://localhost/iar?sslmode=disable",
			MaxConns:    20,
			MinConns:    2,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			DB: 0,
		},
		OAuth2: OAuth2Config{
			RequestTimeout:    2 * time.Second,
			MaxConnectRetries: 3,
		},
		Lookup: LookupConfig{
			CacheTTL:  30 * time.Minute,
			CacheSize: 10000,
		},
		Assets: AssetsConfig{
			RequiredScopes: []string{"assetregister"},
			UsersGroup:     "uis-iar-users",
			PageSize:       25,
			StatsSchedule:  "*/5 * * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.InfoLevel,
			LogLevelName:   "info",
			MetricsEnabled: true,
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
			SampleRatio:    1,
		},
	}
}

// LoadConfig loads configuration from an optional YAML file named by
// IAR_CONFIG_FILE and then from environment variables, which take precedence.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("IAR_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays a YAML configuration file onto cfg
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)
	return nil
}

// applyEnv overrides cfg with any IAR_* environment variables that are set
func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("IAR_HOST", s.Host)
	s.Port = getEnv("IAR_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("IAR_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("IAR_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("IAR_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("IAR_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	d := &cfg.Database
	d.URL = getEnv("IAR_DATABASE_URL", d.URL)
	d.MaxConns = getEnvInt("IAR_DATABASE_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvInt("IAR_DATABASE_MIN_CONNS", d.MinConns)
	d.Timeout = getEnvDuration("IAR_DATABASE_TIMEOUT", d.Timeout)

	r := &cfg.Redis
	r.URL = getEnv("IAR_REDIS_URL", r.URL)
	r.Password = getEnv("IAR_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("IAR_REDIS_DB", r.DB)
	r.MaxRetries = getEnvInt("IAR_REDIS_MAX_RETRIES", r.MaxRetries)
	r.PoolSize = getEnvInt("IAR_REDIS_POOL_SIZE", r.PoolSize)

	o := &cfg.OAuth2
	o.ClientID = getEnv("IAR_OAUTH2_CLIENT_ID", o.ClientID)
	o.ClientSecret = getEnv("IAR_OAUTH2_CLIENT_SECRET", o.ClientSecret)
	o.TokenURL = getEnv("IAR_OAUTH2_TOKEN_URL", o.TokenURL)
	o.IntrospectURL = getEnv("IAR_OAUTH2_INTROSPECT_URL", o.IntrospectURL)
	o.IntrospectScopes = getEnvList("IAR_OAUTH2_INTROSPECT_SCOPES", o.IntrospectScopes)
	o.RequestTimeout = getEnvDuration("IAR_OAUTH2_REQUEST_TIMEOUT", o.RequestTimeout)
	o.MaxConnectRetries = getEnvInt("IAR_OAUTH2_MAX_CONNECT_RETRIES", o.MaxConnectRetries)

	l := &cfg.Lookup
	l.RootURL = getEnv("IAR_LOOKUP_ROOT", l.RootURL)
	l.Scopes = getEnvList("IAR_LOOKUP_SCOPES", l.Scopes)
	l.CacheTTL = getEnvDuration("IAR_LOOKUP_CACHE_TTL", l.CacheTTL)
	l.CacheSize = getEnvInt("IAR_LOOKUP_CACHE_SIZE", l.CacheSize)

	a := &cfg.Assets
	a.RequiredScopes = getEnvList("IAR_REQUIRED_SCOPES", a.RequiredScopes)
	a.UsersGroup = getEnv("IAR_USERS_LOOKUP_GROUP", a.UsersGroup)
	a.PageSize = getEnvInt("IAR_PAGE_SIZE", a.PageSize)
	a.StatsSchedule = getEnv("IAR_STATS_SCHEDULE", a.StatsSchedule)

	obs := &cfg.Observability
	if level := os.Getenv("IAR_LOG_LEVEL"); level != "" {
		obs.LogLevelName = level
		obs.LogLevel = parseLogLevel(level)
	}
	obs.MetricsEnabled = getEnvBool("IAR_METRICS_ENABLED", obs.MetricsEnabled)
	obs.TracingEnabled = getEnvBool("IAR_TRACING_ENABLED", obs.TracingEnabled)
	obs.OTLPEndpoint = getEnv("IAR_OTLP_ENDPOINT", obs.OTLPEndpoint)
	obs.OTLPInsecure = getEnvBool("IAR_OTLP_INSECURE", obs.OTLPInsecure)
	obs.SampleRatio = getEnvFloat("IAR_TRACE_SAMPLE_RATIO", obs.SampleRatio)
}

// Validate checks if the configuration is valid. The OAuth2 and lookup
// settings have no usable defaults and must always be provided.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	required := []struct {
		name string
		set  bool
	}{
		{"IAR_OAUTH2_TOKEN_URL", c.OAuth2.TokenURL != ""},
		{"IAR_OAUTH2_INTROSPECT_URL", c.OAuth2.IntrospectURL != ""},
		{"IAR_OAUTH2_CLIENT_ID", c.OAuth2.ClientID != ""},
		{"IAR_OAUTH2_CLIENT_SECRET", c.OAuth2.ClientSecret != ""},
		{"IAR_OAUTH2_INTROSPECT_SCOPES", len(c.OAuth2.IntrospectScopes) > 0},
		{"IAR_LOOKUP_ROOT", c.Lookup.RootURL != ""},
	}
	var missing []string
	for _, r := range required {
		if !r.set {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required settings not set: %s", strings.Join(missing, ", "))
	}

	if c.OAuth2.RequestTimeout <= 0 {
		return fmt.Errorf("oauth2 request timeout must be positive")
	}
	if c.OAuth2.MaxConnectRetries < 0 {
		return fmt.Errorf("oauth2 max connect retries must not be negative")
	}
	if c.Lookup.CacheTTL <= 0 {
		return fmt.Errorf("lookup cache TTL must be positive")
	}
	if c.Assets.UsersGroup == "" {
		return fmt.Errorf("IAR users lookup group is required")
	}
	if c.Assets.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.Observability.TracingEnabled && c.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when tracing is enabled")
	}

	return nil
}

// Addr returns the host:port the API server listens on
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma or space separated environment variable as a list
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return defaultValue
	}
	return fields
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
