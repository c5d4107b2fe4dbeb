// Package config provides configuration management for the community pulse application.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultHiveNodes is the failover list used when HIVE_NODES is not set
var DefaultHiveNodes = []string{
	"https://api.hive.blog",
	"https://api.deathwing.me",
	"https://hive-api.arcange.eu",
	"https://api.openhive.network",
	"https://rpc.mahdiyari.info",
	"https://anyx.io",
}

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Hive      HiveConfig
	Schedule  ScheduleConfig
	Retention RetentionConfig
	Report    ReportConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string
	Host         string
	RateLimitRPS int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the postgres:// connection URL used by migrations
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration.
// The operation archive is disabled when Host is empty.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// Enabled reports whether a ClickHouse host was configured
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	StatsCacheTTL  time.Duration
	RunLockTTL     time.Duration
}

// HiveConfig holds the Hive node and community settings
type HiveConfig struct {
	Nodes           []string
	Community       string
	Timeout         time.Duration
	MaxRetries      int
	RequestInterval time.Duration
	NodeCooldown    time.Duration
	HistoryPageSize int
	HistoryMaxPages int

	// BreakerThreshold consecutive failed calls stop the client for
	// BreakerCooldown; zero disables the breaker
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// ScheduleConfig holds the daily cycle schedule
type ScheduleConfig struct {
	RunAt    string // HH:MM in Timezone
	Timezone string
}

// RetentionConfig holds data retention settings
type RetentionConfig struct {
	Days int
}

// ReportConfig holds daily report settings
type ReportConfig struct {
	LeaderboardSize int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			RateLimitRPS: getEnvAsInt("SERVER_RATE_LIMIT_RPS", 20),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "community_pulse"),
				User:           getEnv("POSTGRES_USER", "pulse"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "community_pulse"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
				StatsCacheTTL:  getEnvAsDuration("REDIS_STATS_CACHE_TTL", 10*time.Minute),
				RunLockTTL:     getEnvAsDuration("REDIS_RUN_LOCK_TTL", 2*time.Hour),
			},
		},
		Hive: HiveConfig{
			Nodes:            getEnvAsList("HIVE_NODES", DefaultHiveNodes),
			Community:        getEnv("HIVE_COMMUNITY", "hive-115276"),
			Timeout:          getEnvAsDuration("HIVE_TIMEOUT", 15*time.Second),
			MaxRetries:       getEnvAsInt("HIVE_MAX_RETRIES", 3),
			RequestInterval:  getEnvAsDuration("HIVE_REQUEST_INTERVAL", 100*time.Millisecond),
			NodeCooldown:     getEnvAsDuration("HIVE_NODE_COOLDOWN", 60*time.Second),
			HistoryPageSize:  getEnvAsInt("HIVE_HISTORY_PAGE_SIZE", 1000),
			HistoryMaxPages:  getEnvAsInt("HIVE_HISTORY_MAX_PAGES", 10),
			BreakerThreshold: getEnvAsInt("HIVE_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  getEnvAsDuration("HIVE_BREAKER_COOLDOWN", 2*time.Minute),
		},
		Schedule: ScheduleConfig{
			RunAt:    getEnv("SCHEDULE_RUN_AT", "21:00"),
			Timezone: getEnv("SCHEDULE_TIMEZONE", "America/Guayaquil"),
		},
		Retention: RetentionConfig{
			Days: getEnvAsInt("RETENTION_DAYS", 90),
		},
		Report: ReportConfig{
			LeaderboardSize: getEnvAsInt("REPORT_LEADERBOARD_SIZE", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks settings that would make the pipeline misbehave silently
func (c *Config) Validate() error {
	if len(c.Hive.Nodes) == 0 {
		return fmt.Errorf("at least one Hive node is required (HIVE_NODES)")
	}
	if c.Hive.Community == "" {
		return fmt.Errorf("HIVE_COMMUNITY cannot be empty")
	}
	if c.Hive.MaxRetries < 1 {
		return fmt.Errorf("HIVE_MAX_RETRIES must be at least 1, got %d", c.Hive.MaxRetries)
	}
	if c.Hive.HistoryPageSize < 1 || c.Hive.HistoryPageSize > 1000 {
		return fmt.Errorf("HIVE_HISTORY_PAGE_SIZE must be between 1 and 1000, got %d", c.Hive.HistoryPageSize)
	}
	if _, _, err := c.Schedule.Clock(); err != nil {
		return err
	}
	if c.Report.LeaderboardSize < 1 {
		return fmt.Errorf("REPORT_LEADERBOARD_SIZE must be positive, got %d", c.Report.LeaderboardSize)
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.Retention.Days)
	}
	return nil
}

// Clock parses RunAt into hour and minute
func (s ScheduleConfig) Clock() (int, int, error) {
	t, err := time.Parse("15:04", s.RunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid SCHEDULE_RUN_AT %q: %w", s.RunAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Location loads the schedule timezone
func (s ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
