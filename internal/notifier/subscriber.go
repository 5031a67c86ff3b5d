// Package notifier consumes completed checkouts from JetStream and sends order confirmations.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/currency"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// message is the part of jetstream.Msg the handler needs.
type message interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
	Term() error
}

type Notifier struct {
	sender    Sender
	formatter *currency.Formatter
	tracer    trace.Tracer
	sent      metric.Int64Counter
	failed    metric.Int64Counter
	logger    *slog.Logger
}

func New(sender Sender, formatter *currency.Formatter, logger *slog.Logger) (*Notifier, error) {
	meter := otel.Meter("notifier")
	sent, err := meter.Int64Counter("confirmations_sent", metric.WithDescription("Total number of order confirmations sent"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("confirmations_failed", metric.WithDescription("Total number of checkout events that could not be handled"))
	if err != nil {
		return nil, err
	}
	return &Notifier{
		sender:    sender,
		formatter: formatter,
		tracer:    otel.Tracer("notifier"),
		sent:      sent,
		failed:    failed,
		logger:    logger,
	}, nil
}

// Start creates the durable consumer and runs cfg.Workers fetch loops until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context, js jetstream.JetStream, cfg config.SubscriberConfig) error {
	consumerCfg := jetstream.ConsumerConfig{
		FilterSubject: cfg.Subject,
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if cfg.MaxDeliver > 0 {
		consumerCfg.MaxDeliver = cfg.MaxDeliver
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, consumerCfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", cfg.Consumer, err)
	}
	g, gCtx := errgroup.WithContext(ctx)
	for range cfg.Workers {
		g.Go(func() error {
			return n.runWorker(gCtx, consumer, cfg)
		})
	}
	return g.Wait()
}

func (n *Notifier) runWorker(ctx context.Context, consumer jetstream.Consumer, cfg config.SubscriberConfig) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		batch, err := consumer.Fetch(cfg.Batch, jetstream.FetchMaxWait(cfg.Timeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			n.logger.Error("Failed to fetch messages", "error", err)
			time.Sleep(cfg.Interval)
			continue
		}
		for msg := range batch.Messages() {
			n.handleMessage(ctx, msg)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			n.logger.Warn("Fetch batch ended with error", "error", err)
		}
	}
}

// handleMessage acks delivered confirmations, naks failed deliveries and terminates malformed events.
func (n *Notifier) handleMessage(ctx context.Context, msg message) {
	var event events.CheckoutCompletedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		n.reject(ctx, msg, "Malformed checkout event", err)
		return
	}
	amount, err := decimal.NewFromString(event.Subtotal)
	if err != nil {
		n.reject(ctx, msg, "Checkout event has invalid subtotal", err)
		return
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, event.Carrier)
	ctx, span := n.tracer.Start(ctx, "notifier.SendConfirmation",
		trace.WithAttributes(attribute.String("checkout.id", event.CheckoutID)))
	defer span.End()

	items := 0
	for _, it := range event.Items {
		items += it.Quantity
	}
	confirmation := Confirmation{
		CheckoutID:      event.CheckoutID,
		SessionID:       event.SessionID,
		UserID:          event.UserID,
		ItemCount:       items,
		DisplaySubtotal: n.formatter.FormatPrice(amount, event.Currency),
		CompletedAt:     event.CompletedAt,
	}
	if err := n.sender.Send(ctx, confirmation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		n.failed.Add(ctx, 1)
		n.logger.ErrorContext(ctx, "Failed to send order confirmation", "checkout_id", event.CheckoutID, "error", err)
		if err := msg.Nak(); err != nil {
			n.logger.ErrorContext(ctx, "Failed to nak message", "error", err)
		}
		return
	}
	n.sent.Add(ctx, 1)
	if err := msg.Ack(); err != nil {
		n.logger.ErrorContext(ctx, "Failed to ack message", "error", err)
	}
}

func (n *Notifier) reject(ctx context.Context, msg message, reason string, err error) {
	n.failed.Add(ctx, 1)
	n.logger.ErrorContext(ctx, reason, "subject", msg.Subject(), "error", err)
	if err := msg.Term(); err != nil {
		n.logger.ErrorContext(ctx, "Failed to terminate message", "error", err)
	}
}
