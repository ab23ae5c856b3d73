package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

// withOverlay installs file values for the duration of a test.
func withOverlay(t *testing.T, values map[string]string) {
	t.Helper()
	overlay = values
	t.Cleanup(func() { overlay = nil })
}

func TestLookupPrecedence(t *testing.T) {
	withOverlay(t, map[string]string{
		"DM_BOTH":      "from-file",
		"DM_FILE_ONLY": "from-file",
	})
	t.Setenv("DM_BOTH", "from-env")
	t.Setenv("DM_EMPTY_ENV", "")

	tests := []struct {
		key  string
		want string
	}{
		{"DM_BOTH", "from-env"},
		{"DM_FILE_ONLY", "from-file"},
		{"DM_EMPTY_ENV", ""},
		{"DM_NOWHERE", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := lookup(tt.key); got != tt.want {
				t.Errorf("lookup(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestTypedGetters(t *testing.T) {
	withOverlay(t, map[string]string{"DM_WORKERS": "6"})
	t.Setenv("DM_TIMEOUT", "30")
	t.Setenv("DM_BAD_INT", "thirty")
	t.Setenv("DM_ORIGINS", " https://a.example , ,https://b.example,")
	t.Setenv("DM_BLANK_LIST", " , ")

	t.Run("ints", func(t *testing.T) {
		tests := []struct {
			key  string
			def  int
			want int
		}{
			{"DM_TIMEOUT", 5, 30},
			{"DM_WORKERS", 2, 6},
			{"DM_BAD_INT", 5, 5},
			{"DM_UNSET_INT", 7, 7},
		}
		for _, tt := range tests {
			if got := getEnvAsInt(tt.key, tt.def); got != tt.want {
				t.Errorf("getEnvAsInt(%q, %d) = %d, want %d", tt.key, tt.def, got, tt.want)
			}
		}
	})

	t.Run("slices", func(t *testing.T) {
		def := []string{"db"}
		tests := []struct {
			key  string
			want []string
		}{
			{"DM_ORIGINS", []string{"https://a.example", "https://b.example"}},
			{"DM_BLANK_LIST", def},
			{"DM_UNSET_LIST", def},
		}
		for _, tt := range tests {
			if got := getEnvAsSlice(tt.key, def); !slices.Equal(got, tt.want) {
				t.Errorf("getEnvAsSlice(%q) = %v, want %v", tt.key, got, tt.want)
			}
		}
	})

	t.Run("strings", func(t *testing.T) {
		if got := getEnv("DM_WORKERS", "x"); got != "6" {
			t.Errorf("getEnv from file = %q, want %q", got, "6")
		}
		if got := getEnv("DM_UNSET", "fallback"); got != "fallback" {
			t.Errorf("getEnv default = %q, want %q", got, "fallback")
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	cfg := Load()

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Port", cfg.Port, "8080"},
		{"DBDriver", cfg.DBDriver, "sqlite"},
		{"DBPath", cfg.DBPath, "./data/devmarket.db"},
		{"MigrationsPath", cfg.MigrationsPath, "./internal/db/migrations"},
		{"JWTExpiry", cfg.JWTExpiry(), 24 * time.Hour},
		{"RateLimitRequests", cfg.RateLimitRequests, 100},
		{"RateLimitWindowMinutes", cfg.RateLimitWindowMinutes, 15},
		{"LogLevel", cfg.LogLevel, "info"},
		{"EnableSQLLog", cfg.EnableSQLLog, true},
		{"DBQueryTimeout", cfg.DBQueryTimeout, 5 * time.Second},
		{"RedisAddr", cfg.RedisAddr, ""},
		{"AMQPExchange", cfg.AMQPExchange, "devmarket.events"},
		{"NotifyWorkers", cfg.NotifyWorkers, 2},
		{"NotifyQueueSize", cfg.NotifyQueueSize, 256},
		{"UploadDir", cfg.UploadDir, "./data/uploads"},
		{"UploadMaxBytes", cfg.UploadMaxBytes(), int64(10 << 20)},
		{"ServiceName", cfg.ServiceName, "devmarket"},
		{"MetricsFlushInterval", cfg.MetricsFlushInterval(), time.Minute},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if !slices.Equal(cfg.NotifyTransports, []string{"db"}) {
		t.Errorf("NotifyTransports = %v, want [db]", cfg.NotifyTransports)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v, want the two local dev origins", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV", "staging")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://dm:secret@db/devmarket")
	t.Setenv("JWT_SECRET", "staging-secret")
	t.Setenv("JWT_EXPIRY_HOURS", "2")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("NOTIFY_TRANSPORTS", "db,redis,amqp")
	t.Setenv("UPLOAD_MAX_MB", "25")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")
	t.Setenv("METRICS_FLUSH_SECONDS", "15")

	cfg := Load()

	if cfg.DBDriver != "postgres" || cfg.DBDSN != "postgres://dm:secret@db/devmarket" {
		t.Errorf("DB = %q %q, want postgres settings", cfg.DBDriver, cfg.DBDSN)
	}
	if cfg.JWTSecret != "staging-secret" || cfg.JWTExpiry() != 2*time.Hour {
		t.Errorf("JWT = %q %v, want staging-secret 2h", cfg.JWTSecret, cfg.JWTExpiry())
	}
	if cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 3 {
		t.Errorf("Redis = %q db %d, want redis:6379 db 3", cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.AMQPURL == "" {
		t.Error("AMQPURL not loaded")
	}
	if !slices.Equal(cfg.NotifyTransports, []string{"db", "redis", "amqp"}) {
		t.Errorf("NotifyTransports = %v", cfg.NotifyTransports)
	}
	if cfg.UploadMaxBytes() != 25<<20 {
		t.Errorf("UploadMaxBytes = %d, want %d", cfg.UploadMaxBytes(), 25<<20)
	}
	if cfg.OTLPEndpoint != "otel-collector:4317" || cfg.MetricsFlushInterval() != 15*time.Second {
		t.Errorf("telemetry = %q %v", cfg.OTLPEndpoint, cfg.MetricsFlushInterval())
	}
	if cfg.EnableSQLLog {
		t.Error("EnableSQLLog should be off outside development unless ENABLE_SQL_LOG=true")
	}

	t.Setenv("ENABLE_SQL_LOG", "true")
	if !Load().EnableSQLLog {
		t.Error("ENABLE_SQL_LOG=true should enable SQL logging in staging")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devmarket.yaml")
	content := `PORT: 7070
DB_DRIVER: postgres
DB_DSN: postgres://localhost/devmarket
NOTIFY_TRANSPORTS:
  - db
  - redis
NOTIFY_WORKERS: 4
LOG_LEVEL: warn
REDIS_PASSWORD:
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("ENV", "development")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "debug")
	t.Cleanup(func() { overlay = nil })

	cfg := Load()

	if cfg.Port != "7070" {
		t.Errorf("Port = %q, want %q", cfg.Port, "7070")
	}
	if cfg.DBDriver != "postgres" || cfg.DBDSN != "postgres://localhost/devmarket" {
		t.Errorf("DB = %q %q, want postgres from file", cfg.DBDriver, cfg.DBDSN)
	}
	if !slices.Equal(cfg.NotifyTransports, []string{"db", "redis"}) {
		t.Errorf("NotifyTransports = %v, want [db redis]", cfg.NotifyTransports)
	}
	if cfg.NotifyWorkers != 4 {
		t.Errorf("NotifyWorkers = %d, want 4", cfg.NotifyWorkers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want env value %q to win over file", cfg.LogLevel, "debug")
	}
	if cfg.RedisPassword != "" {
		t.Errorf("RedisPassword = %q, want empty for a null YAML value", cfg.RedisPassword)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := loadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("PORT: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	if _, err := loadFile(path); err == nil {
		t.Error("expected error for malformed config file")
	}
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		env      string
		logLevel string
		enabled  zapcore.Level
		disabled zapcore.Level
	}{
		{"development", "debug", zapcore.DebugLevel, zapcore.InvalidLevel},
		{"production", "warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"production", "", zapcore.InfoLevel, zapcore.DebugLevel},
		{"development", "not-a-level", zapcore.InfoLevel, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.logLevel, func(t *testing.T) {
			logger, err := InitLogger(tt.env, tt.logLevel)
			if err != nil {
				t.Fatalf("InitLogger(%q, %q): %v", tt.env, tt.logLevel, err)
			}
			defer logger.Sync()

			core := logger.Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("level %s should be enabled", tt.enabled)
			}
			if tt.disabled != zapcore.InvalidLevel && core.Enabled(tt.disabled) {
				t.Errorf("level %s should be disabled", tt.disabled)
			}
		})
	}
}

func TestMustInitLogger(t *testing.T) {
	if logger := MustInitLogger("development", "info"); logger == nil {
		t.Fatal("Expected non-nil logger from MustInitLogger")
	}
}
