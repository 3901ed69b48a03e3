// Package main provides the HTTP API server that accepts orders and writes them with their outbox events.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/order-notification-outbox/internal/config"
	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/metrics"
	"github.com/jnst/order-notification-outbox/internal/repository"
	"github.com/jnst/order-notification-outbox/internal/server"
	"github.com/jnst/order-notification-outbox/internal/service"
)

const exitCode = 1

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat).With(slog.String("service", "api"))
	slog.SetDefault(loggerInstance)

	ctx, cancel := server.SignalContext(logger.NewContext(context.Background(), loggerInstance))
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.OrderDatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	if err := repository.EnsureOrderSchema(ctx, dbPool); err != nil {
		slog.Warn("failed to ensure order schema, the publisher will retry", slog.String("error", err.Error()))
	}

	orderRepo := repository.NewOrderRepositoryImpl(dbPool)
	outboxRepo := repository.NewOutboxRepositoryImpl(dbPool)
	transactionMgr := repository.NewTransactionManagerImpl(dbPool)
	orderService := service.NewOrderServiceImpl(orderRepo, outboxRepo, transactionMgr)

	mux := http.NewServeMux()
	NewAPIServer(orderService).Routes(mux)
	mux.Handle("GET /metrics", metrics.New("api").Handler())

	if err := server.Serve(ctx, server.New(cfg.Port, mux), cfg.ShutdownTimeout); err != nil {
		slog.Error("failed to start server", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}
