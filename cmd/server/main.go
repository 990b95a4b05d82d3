package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XIAA25/queueing-system-home-arcade/internal/clock"
	"github.com/XIAA25/queueing-system-home-arcade/internal/config"
	"github.com/XIAA25/queueing-system-home-arcade/internal/engine"
	"github.com/XIAA25/queueing-system-home-arcade/internal/handler"
	"github.com/XIAA25/queueing-system-home-arcade/internal/kafka"
	"github.com/XIAA25/queueing-system-home-arcade/internal/postgres"
	"github.com/XIAA25/queueing-system-home-arcade/internal/redis"
	"github.com/XIAA25/queueing-system-home-arcade/internal/storage/memory"
	"github.com/XIAA25/queueing-system-home-arcade/internal/websocket"
	"github.com/XIAA25/queueing-system-home-arcade/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the persistence store
	var store engine.Store
	var pgStore *postgres.Store
	switch cfg.Storage.Backend {
	case "memory":
		logger.Info("using in-memory storage")
		store = memory.New()
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		pgStore, err = postgres.NewStore(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := pgStore.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		store = pgStore
	}

	// Initialize the queue engine, rehydrating persisted state
	eng, err := engine.New(ctx, store, clock.NewSystem(), engine.Config{
		TurnTimeout:      cfg.Queue.TurnTimeout,
		CourtesyCooldown: cfg.Queue.CourtesyCooldown,
		Machines:         cfg.Queue.Machines,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize queue engine", "error", err)
		os.Exit(1)
	}
	logger.Info("queue engine initialized", "machines", len(cfg.Queue.Machines))

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize the optional Redis snapshot mirror
	var mirror *redis.Mirror
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		mirror, err = redis.NewMirror(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without mirror", "error", err)
			mirror = nil
		} else {
			defer mirror.Close()
			logger.Info("connected to Redis")
		}
	}

	// Fan out every committed state change to WebSocket clients and the mirror
	eng.SetNotify(func() {
		snap := eng.Snapshot()
		wsHub.BroadcastState(snap)
		if mirror != nil {
			if err := mirror.PublishSnapshot(ctx, snap); err != nil {
				logger.Warn("failed to mirror snapshot to Redis", "error", err)
			}
		}
	})

	// Initialize the optional Kafka session publisher
	var publisher *kafka.SessionPublisher
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka session publisher",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		publisher, err = kafka.NewSessionPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, continuing without Kafka", "error", err)
			publisher = nil
		} else {
			eng.SetSessionSink(publisher)
			logger.Info("Kafka session publisher started")
		}
	}

	// Start the background expiry sweeper
	sweepWorker := worker.NewSweepWorker(eng, &cfg.Sweep, logger)
	if cfg.Sweep.Enabled {
		if err := sweepWorker.Start(ctx); err != nil {
			logger.Error("failed to start sweep worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(eng, wsHub, cfg.Server.AdminToken, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka publisher
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to stop Kafka publisher", "error", err)
		}
	}

	// Stop sweep worker
	if sweepWorker.IsRunning() {
		if err := sweepWorker.Stop(); err != nil {
			logger.Error("failed to stop sweep worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
