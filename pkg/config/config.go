package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Bot configuration
	Bot BotConfig

	// Store configuration
	Store StoreConfig

	// Server configuration (health/metrics endpoint)
	Server ServerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// BotConfig holds Telegram Bot API and dispatch configuration
type BotConfig struct {
	Token       string
	APIBaseURL  string
	PollTimeout time.Duration
	// CallTimeout bounds every outbound API call except getUpdates,
	// whose deadline is PollTimeout plus a fixed margin.
	CallTimeout time.Duration
	Workers     int

	// SuperAdmins are seeded into the registry at level 100 before the
	// intake loop starts.
	SuperAdmins []int64

	// ReplyUnknownCommand answers unrecognized slugs instead of silently
	// ignoring them.
	ReplyUnknownCommand bool

	// ApprovalTTL expires pending approval requests. Zero keeps them
	// pending indefinitely.
	ApprovalTTL time.Duration
}

// StoreConfig holds flat-file persistence configuration
type StoreConfig struct {
	DataDir      string
	RulesFile    string
	UsersFile    string
	RequestsFile string

	// WatchRules hot-reloads the rules document when it changes on disk.
	WatchRules bool

	PermissionCacheSize int
	PermissionCacheTTL  time.Duration
}

// ServerConfig holds the health/metrics HTTP server configuration
type ServerConfig struct {
	HealthPort      string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from the environment. An optional YAML
// file named by CHITRAGUPT_CONFIG_FILE is applied on top; only keys set in
// the file override the env-derived values.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Bot:           loadBotConfig(),
		Store:         loadStoreConfig(),
		Server:        loadServerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("CHITRAGUPT_CONFIG_FILE", ""); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to apply config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadBotConfig loads bot configuration from environment
func loadBotConfig() BotConfig {
	return BotConfig{
		Token:               getEnv("CHITRAGUPT_BOT_TOKEN", ""),
		APIBaseURL:          getEnv("CHITRAGUPT_API_BASE_URL", "https://api.telegram.org"),
		PollTimeout:         getEnvDuration("CHITRAGUPT_POLL_TIMEOUT", 30*time.Second),
		CallTimeout:         getEnvDuration("CHITRAGUPT_CALL_TIMEOUT", 10*time.Second),
		Workers:             getEnvInt("CHITRAGUPT_WORKERS", 8),
		SuperAdmins:         ParseIDList(getEnv("CHITRAGUPT_SUPER_ADMINS", "")),
		ReplyUnknownCommand: getEnvBool("CHITRAGUPT_REPLY_UNKNOWN", false),
		ApprovalTTL:         getEnvDuration("CHITRAGUPT_APPROVAL_TTL", 0),
	}
}

// loadStoreConfig loads store configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		DataDir:             getEnv("CHITRAGUPT_DATA_DIR", "data"),
		RulesFile:           getEnv("CHITRAGUPT_RULES_FILE", "rules.json"),
		UsersFile:           getEnv("CHITRAGUPT_USERS_FILE", "users.json"),
		RequestsFile:        getEnv("CHITRAGUPT_REQUESTS_FILE", "requests.json"),
		WatchRules:          getEnvBool("CHITRAGUPT_WATCH_RULES", true),
		PermissionCacheSize: getEnvInt("CHITRAGUPT_PERMISSION_CACHE_SIZE", 1024),
		PermissionCacheTTL:  getEnvDuration("CHITRAGUPT_PERMISSION_CACHE_TTL", 30*time.Second),
	}
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		HealthPort:      getEnv("CHITRAGUPT_HEALTH_PORT", "9090"),
		ShutdownTimeout: getEnvDuration("CHITRAGUPT_SHUTDOWN_TIMEOUT", 30*time.Second),
		MetricsEnabled:  getEnvBool("CHITRAGUPT_METRICS_ENABLED", true),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("CHITRAGUPT_LOG_LEVEL", "info")),
		OTelEnabled:        getEnvBool("CHITRAGUPT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CHITRAGUPT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CHITRAGUPT_OTEL_SERVICE_NAME", "chitragupt"),
		OTelServiceVersion: getEnv("CHITRAGUPT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CHITRAGUPT_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if c.Bot.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}
	if c.Bot.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive")
	}
	if c.Bot.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}

	if c.Store.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Store.RulesFile == "" || c.Store.UsersFile == "" || c.Store.RequestsFile == "" {
		return fmt.Errorf("rules, users, and requests file names are required")
	}

	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ParseIDList parses a comma-separated list of principal ids.
// Invalid tokens are skipped.
func ParseIDList(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if id, err := strconv.ParseInt(token, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
