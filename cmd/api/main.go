package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"devmarket/internal/activity"
	"devmarket/internal/api"
	"devmarket/internal/config"
	"devmarket/internal/db"
	"devmarket/internal/filestore"
	"devmarket/internal/lifecycle"
	"devmarket/internal/metrics"
	"devmarket/internal/notify"
	"devmarket/internal/phasedef"
	"devmarket/internal/telemetry"
	"devmarket/internal/version"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger := config.MustInitLogger(cfg.Env, cfg.LogLevel)
	defer logger.Sync() // Flush any buffered log entries

	logger.Info("Starting devmarket API",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Port),
		zap.String("db_driver", cfg.DBDriver),
	)

	// Create background context with cancel for graceful shutdown
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	shutdownTelemetry, err := telemetry.Init(bgCtx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version.Version,
		Endpoint:       cfg.OTLPEndpoint,
		FlushInterval:  cfg.MetricsFlushInterval(),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// Initialize database with auto-migrations
	database, err := db.New(db.Config{
		Driver:         cfg.DBDriver,
		DBPath:         cfg.DBPath,
		DSN:            cfg.DBDSN,
		MigrationsPath: cfg.MigrationsPath,

		RecordStatements: cfg.EnableSQLLog,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	go m.RunFlusher(bgCtx, cfg.MetricsFlushInterval(), logger)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(bgCtx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis is unreachable; continuing without it", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()
	}

	transports := buildTransports(cfg, database, rdb, logger)

	dispatcher := notify.NewDispatcher(transports, notify.Options{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
	}, m, logger)
	dispatcher.Start()

	files, err := filestore.NewLocal(cfg.UploadDir, cfg.UploadMaxBytes())
	if err != nil {
		logger.Fatal("Failed to initialize upload directory", zap.Error(err))
	}

	templates, err := phasedef.LoadTemplates()
	if err != nil {
		logger.Fatal("Failed to load phase templates", zap.Error(err))
	}

	recorder := activity.NewRecorder(database, logger)
	deps := lifecycle.Deps{
		Recorder: recorder,
		Notifier: dispatcher,
		Metrics:  m,
		Logger:   logger,
	}

	var limiter api.Limiter
	if rdb != nil {
		limiter = api.NewRedisLimiter(rdb, cfg.RateLimitRequests, time.Duration(cfg.RateLimitWindowMinutes)*time.Minute)
	}

	server := api.NewServer(database, cfg, logger, api.Services{
		Projects: lifecycle.NewProjectEngine(database, deps),
		Phases:   lifecycle.NewPhaseEngine(database, phasedef.NewSource(database, templates, logger), files, deps),
		Activity: recorder,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		Limiter:  limiter,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for server errors
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive shutdown signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatal("Server error", zap.Error(err))
	case sig := <-shutdown:
		logger.Info("Received shutdown signal, starting graceful shutdown", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Gracefully shutdown server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
			if err := srv.Close(); err != nil {
				logger.Fatal("Failed to close server", zap.Error(err))
			}
		}

		// Drain queued notifications, then close the transports, before the stores close
		if err := dispatcher.Close(ctx); err != nil {
			logger.Warn("Notification dispatcher did not shut down cleanly", zap.Error(err))
		}
		bgCancel()
		shutdownTelemetry(ctx)

		logger.Info("Server stopped gracefully")
	}
}

// buildTransports resolves NOTIFY_TRANSPORTS. Transports whose backend is not
// configured are skipped with a warning. The dispatcher closes what it is given.
func buildTransports(cfg *config.Config, database *db.DB, rdb *redis.Client, logger *zap.Logger) []notify.Transport {
	var transports []notify.Transport
	for _, name := range cfg.NotifyTransports {
		switch name {
		case "db":
			transports = append(transports, notify.NewDBTransport(database))
		case "redis":
			if rdb == nil {
				logger.Warn("Redis notification transport requested without REDIS_ADDR")
				continue
			}
			transports = append(transports, notify.NewRedisTransport(rdb))
		case "amqp":
			if cfg.AMQPURL == "" {
				logger.Warn("AMQP notification transport requested without AMQP_URL")
				continue
			}
			t, err := notify.NewAMQPTransport(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				logger.Error("Failed to connect AMQP transport", zap.Error(err))
				continue
			}
			transports = append(transports, t)
		default:
			logger.Warn("Unknown notification transport", zap.String("transport", name))
		}
	}
	if len(transports) == 0 {
		logger.Warn("No notification transports configured; falling back to db")
		transports = append(transports, notify.NewDBTransport(database))
	}
	return transports
}
