package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "change-this-to-a-secure-random-string-in-production"

// Config holds application configuration
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBDriver       string
	DBPath         string
	DBDSN          string
	MigrationsPath string

	// JWT
	JWTSecret      string
	JWTExpiryHours int

	// CORS
	CORSAllowedOrigins []string

	// Rate Limiting
	RateLimitRequests      int
	RateLimitWindowMinutes int

	// Logging
	LogLevel     string
	EnableSQLLog bool

	// Database
	DBQueryTimeout time.Duration

	// Redis (rate limiting, notification pub/sub)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AMQP notification transport
	AMQPURL      string
	AMQPExchange string

	// Notifications
	NotifyTransports []string
	NotifyWorkers    int
	NotifyQueueSize  int

	// Attachments
	UploadDir   string
	UploadMaxMB int

	// Telemetry
	OTLPEndpoint        string
	ServiceName         string
	MetricsFlushSeconds int
}

// overlay holds values from CONFIG_FILE. Environment variables win over it.
var overlay map[string]string

// Load reads configuration from .env, the optional CONFIG_FILE and environment variables
func Load() *Config {
	_ = godotenv.Load()

	overlay = nil
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := loadFile(path)
		if err != nil {
			logger := MustInitLogger(getEnv("ENV", "development"), getEnv("LOG_LEVEL", "info"))
			logger.Fatal(err.Error())
		}
		overlay = values
	}

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Env:                    getEnv("ENV", "development"),
		DBDriver:               getEnv("DB_DRIVER", "sqlite"),
		DBPath:                 getEnv("DB_PATH", "./data/devmarket.db"),
		DBDSN:                  getEnv("DB_DSN", ""),
		MigrationsPath:         getEnv("MIGRATIONS_PATH", "./internal/db/migrations"),
		JWTSecret:              getEnv("JWT_SECRET", defaultJWTSecret),
		JWTExpiryHours:         getEnvAsInt("JWT_EXPIRY_HOURS", 24),
		CORSAllowedOrigins:     getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		RateLimitRequests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindowMinutes: getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 15),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		EnableSQLLog:           getEnv("ENV", "development") == "development" || getEnv("ENABLE_SQL_LOG", "false") == "true",
		DBQueryTimeout:         time.Duration(getEnvAsInt("DB_QUERY_TIMEOUT_SECONDS", 5)) * time.Second,
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvAsInt("REDIS_DB", 0),
		AMQPURL:                getEnv("AMQP_URL", ""),
		AMQPExchange:           getEnv("AMQP_EXCHANGE", "devmarket.events"),
		NotifyTransports:       getEnvAsSlice("NOTIFY_TRANSPORTS", []string{"db"}),
		NotifyWorkers:          getEnvAsInt("NOTIFY_WORKERS", 2),
		NotifyQueueSize:        getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		UploadDir:              getEnv("UPLOAD_DIR", "./data/uploads"),
		UploadMaxMB:            getEnvAsInt("UPLOAD_MAX_MB", 10),
		OTLPEndpoint:           getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:            getEnv("OTEL_SERVICE_NAME", "devmarket"),
		MetricsFlushSeconds:    getEnvAsInt("METRICS_FLUSH_SECONDS", 60),
	}

	// Validate critical configuration
	if cfg.Env == "production" && cfg.JWTSecret == defaultJWTSecret {
		logger := MustInitLogger(cfg.Env, cfg.LogLevel)
		logger.Fatal("JWT_SECRET must be set in production environment")
	}

	return cfg
}

// loadFile reads a flat YAML map of KEY: value pairs using the environment variable names.
func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %s not found", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case []any:
			items := make([]string, len(t))
			for i, item := range t {
				items[i] = fmt.Sprint(item)
			}
			values[k] = strings.Join(items, ",")
		default:
			values[k] = fmt.Sprint(t)
		}
	}
	return values, nil
}

// JWTExpiry returns the JWT expiry duration
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryHours) * time.Hour
}

// UploadMaxBytes returns the attachment size limit
func (c *Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxMB) << 20
}

// MetricsFlushInterval returns the metrics export interval
func (c *Config) MetricsFlushInterval() time.Duration {
	return time.Duration(c.MetricsFlushSeconds) * time.Second
}

// lookup returns the environment value for key, then the config file value
func lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return overlay[key]
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := lookup(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := lookup(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Silently use default - logger not available yet during config load
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads a comma-separated value, dropping blank entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	var result []string
	for _, v := range strings.Split(lookup(key), ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
