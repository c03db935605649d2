package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotfinder/libs/kafkax"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/metrics"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Deduper remembers processed event ids. Forget drops an id so a redelivery is handled again.
type Deduper interface {
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Consumer struct {
	reader    *kafka.Reader
	logger    *slog.Logger
	dedupe    Deduper
	dedupeTTL time.Duration
	handler   Handler
	metrics   *metrics.Metrics
}

type Config struct {
	Brokers   []string
	GroupID   string
	Topics    []string
	DedupeTTL time.Duration
}

func New(logger *slog.Logger, dedupe Deduper, cfg Config, handler Handler, m *metrics.Metrics) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:    reader,
		logger:    logger,
		dedupe:    dedupe,
		dedupeTTL: cfg.DedupeTTL,
		handler:   handler,
		metrics:   m,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.process(ctx, msg)
	}
}

// process handles one message and returns the outcome label it recorded.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) string {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	outcome := c.handle(ctxSpan, msg, meta, span)
	c.metrics.EventConsumed(msg.Topic, outcome)
	return outcome
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, meta kafkax.EventMeta, span trace.Span) string {
	marked := false
	if c.dedupe != nil && meta.EventID != "" {
		first, err := c.dedupe.MarkProcessed(ctx, meta.EventID, c.dedupeTTL)
		if err != nil {
			// Invalidation is idempotent, so handle the event anyway.
			c.logger.Warn("event dedupe failed", "err", err, "event_id", meta.EventID)
		} else if !first {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return "duplicate"
		} else {
			marked = true
		}
	}

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		if marked {
			if ferr := c.dedupe.Forget(ctx, meta.EventID); ferr != nil {
				c.logger.Warn("event dedupe release failed", "err", ferr, "event_id", meta.EventID)
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return "failed"
	}
	return "processed"
}

// BookingEvent is the payload of booking.appointment.booked / cancelled events.
type BookingEvent struct {
	BookingUID string  `json:"booking_uid"`
	UserID     int64   `json:"user_id"`
	UserIDs    []int64 `json:"user_ids"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
}

func (e BookingEvent) users() []int64 {
	ids := make([]int64, 0, len(e.UserIDs)+1)
	if e.UserID != 0 {
		ids = append(ids, e.UserID)
	}
	for _, id := range e.UserIDs {
		if id != 0 && id != e.UserID {
			ids = append(ids, id)
		}
	}
	return ids
}

type Invalidator interface {
	InvalidateUsers(ctx context.Context, userIDs []int64) (int, error)
}

// InvalidationHandler drops cached slots for every user named in a booking event.
// Malformed payloads are logged and skipped.
func InvalidationHandler(inv Invalidator, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt BookingEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid booking event", "err", err, "topic", msg.Topic)
			return nil
		}
		users := evt.users()
		if len(users) == 0 {
			logger.Error("booking event without users", "topic", msg.Topic, "booking_uid", evt.BookingUID)
			return nil
		}
		n, err := inv.InvalidateUsers(ctx, users)
		if err != nil {
			return err
		}
		logger.Debug("slot cache invalidated", "booking_uid", evt.BookingUID, "users", users, "entries", n)
		return nil
	}
}
