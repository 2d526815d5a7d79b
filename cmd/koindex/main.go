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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/koindex/koindex/internal/config"
	"github.com/koindex/koindex/internal/engine"
	"github.com/koindex/koindex/internal/handler"
	"github.com/koindex/koindex/internal/service"
	"github.com/koindex/koindex/internal/sink"
	"github.com/koindex/koindex/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sinks. The tape is always on; the rest are enabled by configuration.
	tape := store.NewTradeStore(cfg.TradeTapeSize)
	sinks := sink.Fanout{tape}
	var closers []func()

	if len(cfg.KafkaBrokers) > 0 {
		k := sink.NewKafka(cfg.KafkaBrokers, cfg.KafkaTradeTopic)
		sinks = append(sinks, k)
		closers = append(closers, func() {
			if err := k.Close(); err != nil {
				logger.Error("kafka writer close error", slog.String("error", err.Error()))
			}
		})
		logger.Info("kafka sink enabled", slog.Any("brokers", cfg.KafkaBrokers), slog.String("topic", cfg.KafkaTradeTopic))
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", slog.String("addr", cfg.RedisAddr), slog.String("error", err.Error()))
			os.Exit(1)
		}
		sinks = append(sinks, sink.NewRedis(rdb, cfg.RedisTradeKeep))
		closers = append(closers, func() { _ = rdb.Close() })
		logger.Info("redis sink enabled", slog.String("addr", cfg.RedisAddr))
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to create postgres pool", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to connect to postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pg := sink.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to create trades table", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sinks = append(sinks, pg)
		closers = append(closers, pool.Close)
		logger.Info("postgres sink enabled")
	}

	if cfg.WebhookURL != "" {
		sinks = append(sinks, sink.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout))
		logger.Info("webhook sink enabled", slog.String("url", cfg.WebhookURL))
	}

	// Engine.
	dispatcher := engine.NewDispatcher(sinks, cfg.SinkTimeout, logger)
	sequencer := engine.NewSequencer(logger)
	matcher := engine.NewMatcher(engine.NewBookManager(), sequencer, engine.NewRecorder(nil, nil), dispatcher, logger)

	orderSvc := service.NewOrderService(matcher, tape)
	router := handler.NewRouter(orderSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop accepting requests, drain the pair lanes, then
	// flush pending trades to the sinks before closing their connections.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	sequencer.Close()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("trade delivery did not finish", slog.String("error", err.Error()))
	}
	for _, c := range closers {
		c()
	}
	cancel()

	logger.Info("server stopped")
}
