package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chess-tournaments/internal/config"
	"github.com/chess-tournaments/internal/domain"
	"github.com/chess-tournaments/internal/events"
	"github.com/chess-tournaments/internal/handler"
	"github.com/chess-tournaments/internal/kafka"
	"github.com/chess-tournaments/internal/memory"
	"github.com/chess-tournaments/internal/postgres"
	"github.com/chess-tournaments/internal/progression"
	"github.com/chess-tournaments/internal/redis"
	"github.com/chess-tournaments/internal/service"
	"github.com/chess-tournaments/internal/websocket"
	"github.com/chess-tournaments/internal/worker"
)

// storage is what the service needs from a repository backend
type storage interface {
	domain.Repository
	domain.NotificationStore
	Ping(ctx context.Context) error
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", cfgErr)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var store storage
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, data will not survive a restart")
		store = memory.NewStore()
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := repo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		store = repo
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Events go out only after the transaction that produced them commits
	fanout := events.NewFanout(logger, events.NewInboxSink(store), wsHub)

	// Initialize Redis rating board; it is optional
	var board *redis.RatingBoard
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		var err error
		board, err = redis.NewRatingBoard(ctx, &cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, leaderboards will be read from storage", "error", err)
			board = nil
		} else {
			defer board.Close()
			logger.Info("connected to Redis")

			// Recover the ranked sets from storage
			if err := worker.RebuildBoards(ctx, store, board, logger); err != nil {
				logger.Warn("failed to rebuild rating boards on startup", "error", err)
			}
			fanout.Add(board)
		}
	}

	// Initialize Kafka event publisher
	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		var err error
		publisher, err = kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, continuing without it", "error", err)
			publisher = nil
		} else {
			fanout.Add(publisher)
			logger.Info("Kafka publisher started", "topic", cfg.Kafka.EventsTopic)
		}
	}

	// Initialize services
	engine := progression.NewEngine(store, fanout, logger)
	tournamentService := service.NewTournamentService(
		store,
		store,
		engine,
		fanout,
		&cfg.Tournament,
		&cfg.Leaderboard,
		logger,
	)
	if board != nil {
		tournamentService.SetRatingBoard(board)
	}

	// Initialize sweep worker
	sweepWorker := worker.NewSweepWorker(tournamentService, &cfg.Sweep, logger)
	if cfg.Sweep.Enabled {
		sweepWorker.RunOnce(ctx)
		if err := sweepWorker.Start(ctx); err != nil {
			logger.Error("failed to start sweep worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for game results
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.ResultsTopic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, tournamentService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(tournamentService, wsHub, logger)
	httpHandler.AddReadinessCheck("storage", store)
	if board != nil {
		httpHandler.AddReadinessCheck("redis", board)
		if cfg.RateLimit.Enabled {
			httpHandler.SetRateLimiter(redis.NewRateLimiter(board.Client(), cfg.RateLimit.Requests, cfg.RateLimit.Window))
			logger.Info("result rate limit enabled",
				"requests", cfg.RateLimit.Requests,
				"window", cfg.RateLimit.Window,
			)
		}
	} else if cfg.RateLimit.Enabled {
		logger.Warn("rate limit needs Redis, results will not be limited")
	}

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
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
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
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting requests before tearing down what they use
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop sweep worker
	if err := sweepWorker.Stop(); err != nil {
		logger.Error("failed to stop sweep worker", "error", err)
	}

	// Flush pending events
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close Kafka publisher", "error", err)
		}
	}

	// Stop WebSocket hub
	wsHub.Stop()

	logger.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
