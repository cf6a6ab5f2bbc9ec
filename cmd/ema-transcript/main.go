package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koscakluka/ema-transcript/core/persistence"
	"github.com/koscakluka/ema-transcript/core/persistence/postgres"
	"github.com/koscakluka/ema-transcript/core/persistence/redis"
	"github.com/koscakluka/ema-transcript/core/persistence/rest"
	"github.com/koscakluka/ema-transcript/internal/config"
	"github.com/koscakluka/ema-transcript/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// Telemetry has to be set up before the logger, which exports through it
	otelProviders, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	telemetry.SetupLogger(cfg)

	if otelProviders.Exporting() {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel export disabled, package logs go to stdout")
	}

	gateway, closeGateway, err := newGateway(ctx, cfg.Store)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up conversation store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeGateway()
	slog.InfoContext(ctx, "conversation store ready", "backend", cfg.Store.Backend)

	srv := newServer(gateway, cfg.Session)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.handler(cfg.OTel.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Session.WriteTimeout+5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	if err := srv.shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "sessions did not finish before shutdown", "error", err)
	}

	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func newGateway(ctx context.Context, cfg config.StoreConfig) (persistence.Gateway, func(), error) {
	switch cfg.Backend {
	case config.StoreBackendPostgres:
		gateway, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := gateway.EnsureSchema(ctx); err != nil {
			gateway.Close()
			return nil, nil, err
		}
		return gateway, gateway.Close, nil

	case config.StoreBackendRedis:
		gateway, err := redis.NewFromURL(ctx, cfg.Redis.URL,
			redis.WithKeyPrefix(cfg.Redis.KeyPrefix),
			redis.WithTTL(cfg.Redis.TTL))
		if err != nil {
			return nil, nil, err
		}
		return gateway, func() { _ = gateway.Close() }, nil

	case config.StoreBackendSupabase:
		return rest.NewGateway(cfg.Supabase.URL, cfg.Supabase.Key, rest.WithTable(cfg.Supabase.Table)), func() {}, nil

	case config.StoreBackendMemory:
		return persistence.NewMemoryGateway(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
