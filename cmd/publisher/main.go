// Package main provides the outbox publisher that relays unpublished order events to the broker.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/broker/transport"
	"github.com/jnst/order-notification-outbox/internal/config"
	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/metrics"
	"github.com/jnst/order-notification-outbox/internal/relay"
	"github.com/jnst/order-notification-outbox/internal/repository"
	"github.com/jnst/order-notification-outbox/internal/server"
	"github.com/jnst/order-notification-outbox/internal/service"
	"github.com/jnst/order-notification-outbox/internal/worker"
)

const (
	publisherName = "order-service-publisher"
	exitCode      = 1
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat).With(slog.String("service", "publisher"))
	slog.SetDefault(loggerInstance)

	if err := run(cfg, loggerInstance); err != nil {
		slog.Error("publisher failed", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := server.SignalContext(logger.NewContext(context.Background(), log))
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.OrderDatabaseURL)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	dial, err := transport.NewDialer(cfg, publisherName)
	if err != nil {
		return err
	}

	m := metrics.New("publisher")
	connector := transport.NewConnector(cfg, dial,
		broker.WithLogger(log.With(slog.String("broker", cfg.Broker))),
		broker.WithAttemptHook(m.ConnectAttempt),
	)

	outboxRelay := relay.New(
		repository.NewOutboxStoreImpl(dbPool),
		service.NewOutboxServiceImpl(m, cfg.Relay.PublishTimeout),
		connector,
		relay.Config{
			BatchSize:          cfg.Relay.BatchSize,
			IdleInterval:       cfg.Relay.IdleInterval,
			StoreRetryInterval: cfg.Relay.StoreRetryInterval,
		},
	)

	runner := worker.New("outbox-relay", outboxRelay.Run)
	runner.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", server.HealthCheck)
	mux.Handle("GET /metrics", m.Handler())

	serveErr := server.Serve(ctx, server.New(cfg.MetricsPort, mux), cfg.ShutdownTimeout)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stopCancel()

	if err := runner.Stop(stopCtx); err != nil {
		return err
	}

	return serveErr
}
