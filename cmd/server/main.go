package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/relaychat/server/internal/bus"
	"github.com/relaychat/server/internal/bus/inprocess"
	"github.com/relaychat/server/internal/bus/redisbus"
	"github.com/relaychat/server/internal/cache"
	"github.com/relaychat/server/internal/config"
	"github.com/relaychat/server/internal/housekeeping"
	"github.com/relaychat/server/internal/httpapi"
	"github.com/relaychat/server/internal/messageservice"
	"github.com/relaychat/server/internal/ratelimit"
	"github.com/relaychat/server/internal/roomregistry"
	"github.com/relaychat/server/internal/router"
	"github.com/relaychat/server/internal/store/postgres"
	"github.com/relaychat/server/internal/userregistry"
	"github.com/relaychat/server/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("Starting chat server",
		zap.String("mode", cfg.Server.Mode),
		zap.Int("port", cfg.Server.Port),
	)

	// Initialize database
	db, err := postgres.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis, if configured. Its absence selects the
	// in-process bus and local-only rate-limit/cache tiers.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unreachable at startup, falling back to in-process bus and local cache", zap.Error(err))
			redisClient = nil
		}
	}

	c := cache.New(redisClient, logger)
	if err := c.Warm(context.Background(), db); err != nil {
		logger.Warn("Initial cache warm failed", zap.Error(err))
	}

	var chatBus bus.Bus
	var busBreakerProvider httpapi.BreakerStatsProvider
	if redisClient != nil {
		rb := redisbus.New(redisClient, logger)
		chatBus = rb
		busBreakerProvider = rb
	} else {
		chatBus = inprocess.New()
	}
	defer chatBus.Close()

	var limiter ratelimit.Limiter = ratelimit.NewLocal()
	if redisClient != nil {
		limiter = ratelimit.NewDistributed(redisClient, logger, ratelimit.NewLocal())
	}

	// Initialize registries and services
	users := userregistry.New(db, c, cfg.Session.Secret, cfg.Session.TTL, cfg.Session.Issuer, logger)
	rooms := roomregistry.New(db, c, chatBus, logger)
	messages := messageservice.New(db, c, chatBus, rooms, logger)
	dispatcher := router.New(limiter, users, rooms, messages, logger)

	// Initialize the connection hub
	hub := ws.New(ws.Config{
		MaxFrameBytes:    cfg.Server.MaxFrameBytes,
		HeartbeatPeriod:  cfg.Server.HeartbeatPeriod,
		HeartbeatTimeout: cfg.Server.HeartbeatTimeout,
		DrainTimeout:     cfg.Server.DrainTimeout,
	}, dispatcher, chatBus, users, rooms, logger)
	hub.Run()

	// Start background purge/cleanup sweeps
	houseKeeper := housekeeping.New(db, housekeeping.DefaultIntervals(), logger)
	houseKeeper.Start()
	defer houseKeeper.Stop()

	// Setup router
	ginRouter := httpapi.NewRouter(cfg.Server.Mode, httpapi.Deps{
		Hub:       hub,
		Store:     db,
		Bus:       busBreakerProvider,
		StartedAt: time.Now(),
		Logger:    logger,
	})

	// Create server
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      ginRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server is running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout: drain the hub's connections first,
	// then stop accepting new HTTP work.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.DrainTimeout+5*time.Second)
	defer cancel()

	hub.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
