package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jnst/order-notification-outbox/internal/logger"
	"github.com/jnst/order-notification-outbox/internal/model"
)

// LogSender simulates email delivery by logging and waiting Delay.
type LogSender struct {
	Delay time.Duration
}

// NewLogSender creates a LogSender.
func NewLogSender(delay time.Duration) *LogSender {
	return &LogSender{Delay: delay}
}

// Send logs the notification. It fails only if ctx is done before Delay elapses.
func (s *LogSender) Send(ctx context.Context, notification *model.Notification) error {
	log := logger.FromContext(ctx)
	log.Info("sending order confirmation email",
		slog.String("email", notification.Email),
		slog.String("order_id", notification.OrderID.String()),
	)

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Info("order confirmation email sent", slog.String("email", notification.Email))

	return nil
}
