package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"spsync/database"
	"spsync/logging"
)

// AppConfig holds application-wide system configuration.
// This is infrastructure configuration, not per-organisation sync state.
type AppConfig struct {
	HTTPAddr    string
	HTTPLogPath string
	Database    *database.Config
	Logging     *logging.Config
	Provider    *ProviderConfig
	Posture     *PostureConfig
	Scheduler   *SchedulerConfig
}

// ProviderConfig holds settings for the cloud storage provider API.
type ProviderConfig struct {
	BaseURL             string
	PageSize            int
	RequestsPerSecond   int
	PermissionFetchSize int           // bounded concurrency for per-item permission fetches
	SubscriptionTTL     time.Duration // lifetime requested for change subscriptions
	NotificationURL     string        // public URL the provider posts change notifications to
}

// PostureConfig holds settings for the security-posture platform client.
type PostureConfig struct {
	BaseURL string
	APIKey  string
}

// SchedulerConfig holds settings for the sync orchestrator and task runner.
type SchedulerConfig struct {
	FullSyncInterval  time.Duration
	RenewalInterval   time.Duration
	RenewalWindow     time.Duration // renew subscriptions expiring within this window
	Workers           int
	OrgConcurrency    int64 // max concurrently-running tasks per organisation
	MaxTaskAttempts   int
	SignalWaitTimeout time.Duration // bounded wait for child workflow completion
}

// LoadAppConfigFromEnv loads complete application configuration from environment variables.
func LoadAppConfigFromEnv() *AppConfig {
	return &AppConfig{
		HTTPAddr:    getEnvWithDefault("HTTP_ADDR", ":8080"),
		HTTPLogPath: getEnvWithDefault("HTTP_LOG_PATH", ""),
		Database:    LoadDatabaseConfigFromEnv(),
		Logging:     LoadLoggingConfigFromEnv(),
		Provider:    LoadProviderConfigFromEnv(),
		Posture:     LoadPostureConfigFromEnv(),
		Scheduler:   LoadSchedulerConfigFromEnv(),
	}
}

// LoadDatabaseConfigFromEnv loads database configuration from environment variables.
func LoadDatabaseConfigFromEnv() *database.Config {
	return &database.Config{
		Path:              getEnvWithDefault("DB_PATH", "./spsync.db"),
		MaxOpenConns:      getEnvIntWithDefault("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:      getEnvIntWithDefault("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:   getEnvDurationWithDefault("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime:   getEnvDurationWithDefault("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		BusyTimeoutMs:     getEnvIntWithDefault("DB_BUSY_TIMEOUT_MS", 5000),
		EnableForeignKeys: getEnvBoolWithDefault("DB_ENABLE_FOREIGN_KEYS", true),
		EnableWAL:         getEnvBoolWithDefault("DB_ENABLE_WAL", true),
	}
}

// LoadLoggingConfigFromEnv loads logging configuration from environment variables.
func LoadLoggingConfigFromEnv() *logging.Config {
	return &logging.Config{
		Level:  getEnvWithDefault("LOG_LEVEL", "info"),
		Format: getEnvWithDefault("LOG_FORMAT", "json"),
		Output: getEnvWithDefault("LOG_OUTPUT", "stdout"),
	}
}

// LoadProviderConfigFromEnv loads provider API configuration from environment variables.
func LoadProviderConfigFromEnv() *ProviderConfig {
	return &ProviderConfig{
		BaseURL:             getEnvWithDefault("PROVIDER_BASE_URL", "https://graph.microsoft.com/v1.0"),
		PageSize:            getEnvIntWithDefault("PROVIDER_PAGE_SIZE", 100),
		RequestsPerSecond:   getEnvIntWithDefault("PROVIDER_REQUESTS_PER_SECOND", 20),
		PermissionFetchSize: getEnvIntWithDefault("PROVIDER_PERMISSION_FETCH_SIZE", 10),
		SubscriptionTTL:     getEnvDurationWithDefault("PROVIDER_SUBSCRIPTION_TTL", 30*24*time.Hour),
		NotificationURL:     getEnvWithDefault("PROVIDER_NOTIFICATION_URL", ""),
	}
}

// LoadPostureConfigFromEnv loads posture platform configuration from environment variables.
func LoadPostureConfigFromEnv() *PostureConfig {
	return &PostureConfig{
		BaseURL: getEnvWithDefault("POSTURE_BASE_URL", ""),
		APIKey:  getEnvWithDefault("POSTURE_API_KEY", ""),
	}
}

// LoadSchedulerConfigFromEnv loads scheduler configuration from environment variables.
func LoadSchedulerConfigFromEnv() *SchedulerConfig {
	return &SchedulerConfig{
		FullSyncInterval:  getEnvDurationWithDefault("SYNC_FULL_INTERVAL", 24*time.Hour),
		RenewalInterval:   getEnvDurationWithDefault("SYNC_RENEWAL_INTERVAL", time.Hour),
		RenewalWindow:     getEnvDurationWithDefault("SYNC_RENEWAL_WINDOW", 72*time.Hour),
		Workers:           getEnvIntWithDefault("SYNC_WORKERS", 8),
		OrgConcurrency:    int64(getEnvIntWithDefault("SYNC_ORG_CONCURRENCY", 4)),
		MaxTaskAttempts:   getEnvIntWithDefault("SYNC_MAX_TASK_ATTEMPTS", 5),
		SignalWaitTimeout: getEnvDurationWithDefault("SYNC_SIGNAL_WAIT_TIMEOUT", 24*time.Hour),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(v string, def bool) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// Helper functions for environment variable parsing.
func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return parseBool(value, defaultValue)
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
