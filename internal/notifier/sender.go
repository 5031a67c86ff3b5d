package notifier

import (
	"context"
	"log/slog"
	"time"
)

// Confirmation is the order confirmation sent for a completed checkout.
type Confirmation struct {
	CheckoutID      string
	SessionID       string
	UserID          string
	ItemCount       int
	DisplaySubtotal string
	CompletedAt     time.Time
}

// Sender delivers a confirmation. A returned error makes the message eligible for redelivery.
type Sender interface {
	Send(ctx context.Context, c Confirmation) error
}

// LogSender writes confirmations to the log.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, c Confirmation) error {
	s.Logger.InfoContext(ctx, "Order confirmation sent",
		slog.String("checkout_id", c.CheckoutID),
		slog.String("session_id", c.SessionID),
		slog.String("user_id", c.UserID),
		slog.Int("items", c.ItemCount),
		slog.String("subtotal", c.DisplaySubtotal),
		slog.String("completed_at", c.CompletedAt.Format(time.RFC3339)))
	return nil
}
