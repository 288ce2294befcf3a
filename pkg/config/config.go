package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBConfig holds database configuration
type DBConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the connection string for the configured driver
func (c *DBConfig) GetDSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// RedisConfig holds the real-time notification channel configuration
type RedisConfig struct {
	Enabled       bool
	URL           string
	Stream        string
	StreamMaxLen  int64
	ChannelPrefix string
}

// QueueConfig holds dispatch and maintenance settings
type QueueConfig struct {
	RetentionDays int
	SweepInterval time.Duration
	SweepOnStart  bool
	TimeZone      string
}

// Location resolves the configured time zone used for "served today" statistics.
func (c *QueueConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Config holds all configuration
type Config struct {
	ServiceName string
	DB          DBConfig
	Server      ServerConfig
	JWT         JWTConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Redis       RedisConfig
	Queue       QueueConfig
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		ServiceName: serviceName,
		DB: DBConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "turns"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			Path:            getEnv("DB_PATH", "turns.db"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", metricsPrefix(serviceName)),
		},
		Redis: RedisConfig{
			Enabled:       getEnvAsBool("REDIS_ENABLED", false),
			URL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Stream:        getEnv("REDIS_STREAM", "turns.events"),
			StreamMaxLen:  int64(getEnvAsInt("REDIS_STREAM_MAXLEN", 10000)),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "turns"),
		},
		Queue: QueueConfig{
			RetentionDays: getEnvAsInt("QUEUE_RETENTION_DAYS", 1),
			SweepInterval: getEnvAsDuration("QUEUE_SWEEP_INTERVAL", 1*time.Hour),
			SweepOnStart:  getEnvAsBool("QUEUE_SWEEP_ON_START", true),
			TimeZone:      getEnv("QUEUE_TIMEZONE", "UTC"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.Queue.RetentionDays < 1 {
		return fmt.Errorf("QUEUE_RETENTION_DAYS must be at least 1, got %d", c.Queue.RetentionDays)
	}
	if _, err := c.Queue.Location(); err != nil {
		return err
	}
	return nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_driver", c.DB.Driver),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Bool("redis_enabled", c.Redis.Enabled),
		zap.Int("retention_days", c.Queue.RetentionDays),
		zap.Duration("sweep_interval", c.Queue.SweepInterval),
	}
}

// metric names only allow [a-zA-Z0-9_:]
func metricsPrefix(serviceName string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(serviceName)
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
