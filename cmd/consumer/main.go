// Package main provides the notification service: the inbox consumer and the notification query API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/order-notification-outbox/internal/broker"
	"github.com/jnst/order-notification-outbox/internal/broker/transport"
	"github.com/jnst/order-notification-outbox/internal/config"
	"github.com/jnst/order-notification-outbox/internal/consumer"
	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/metrics"
	"github.com/jnst/order-notification-outbox/internal/repository"
	"github.com/jnst/order-notification-outbox/internal/server"
	"github.com/jnst/order-notification-outbox/internal/service"
	"github.com/jnst/order-notification-outbox/internal/worker"
)

const (
	mailProcessingDelay = 100 * time.Millisecond
	exitCode            = 1
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat).With(slog.String("service", "consumer"))
	slog.SetDefault(loggerInstance)

	if err := run(cfg, loggerInstance); err != nil {
		slog.Error("consumer failed", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := server.SignalContext(logger.NewContext(context.Background(), log))
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.NotificationDatabaseURL)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if err := ensureSchema(ctx, dbPool, broker.LinearBackoff(cfg.BrokerRetryStep, cfg.BrokerRetryMax)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	dial, err := transport.NewDialer(cfg, cfg.Consumer.Name)
	if err != nil {
		return err
	}

	m := metrics.New("consumer")
	connector := transport.NewConnector(cfg, dial,
		broker.WithLogger(log.With(slog.String("broker", cfg.Broker))),
		broker.WithAttemptHook(m.ConnectAttempt),
	)

	notificationService := service.NewNotificationServiceImpl(
		repository.NewNotificationStoreImpl(dbPool),
		repository.NewNotificationRepositoryImpl(dbPool),
		service.NewLogSender(mailProcessingDelay),
	)

	inbox := consumer.New(connector, consumer.NewMessageHandler(notificationService, m, cfg.Consumer.RetryDelay))

	runner := worker.New("inbox-consumer", inbox.Run)
	runner.Start(ctx)

	mux := http.NewServeMux()
	NewNotificationServer(notificationService).Routes(mux)
	mux.Handle("GET /metrics", m.Handler())

	serveErr := server.Serve(ctx, server.New(cfg.NotificationPort, mux), cfg.ShutdownTimeout)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stopCancel()

	if err := runner.Stop(stopCtx); err != nil {
		return err
	}

	return serveErr
}

// ensureSchema creates the notifications table, retrying until the database
// is reachable or ctx is done.
func ensureSchema(ctx context.Context, conn *pgxpool.Pool, delay broker.DelayFunc) error {
	log := logger.FromContext(ctx)

	for attempt := 1; ; attempt++ {
		err := repository.EnsureNotificationSchema(ctx, conn)
		if err == nil {
			return nil
		}

		wait := delay(attempt)
		log.Warn("notification store not ready, will retry",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
			slog.String("error", err.Error()),
		)

		if err := broker.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
