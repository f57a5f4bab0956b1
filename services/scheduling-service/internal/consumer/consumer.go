package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/clinicslots/libs/kafkax"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/metrics"
)

type Handler func(ctx context.Context, msg kafka.Message) error

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Inbox records processed event ids so redelivered events are skipped.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Consumer struct {
	reader  MessageReader
	logger  *slog.Logger
	inbox   Inbox
	metrics *metrics.SchedulingMetrics
	handler Handler
	backoff time.Duration
}

type Config struct {
	Brokers []string
	GroupID string
	Topics  []string
}

func NewKafkaReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

func New(reader MessageReader, inboxRepo Inbox, logger *slog.Logger, m *metrics.SchedulingMetrics, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inboxRepo,
		metrics: m,
		handler: handler,
		backoff: time.Second,
	}
}

// Run reads until ctx is cancelled.
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
			case <-time.After(c.backoff):
			}
			continue
		}
		c.Process(ctx, msg)
	}
}

// Process handles one message and returns the outcome label it recorded.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) string {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	outcome := c.process(ctxSpan, msg, meta, span)
	c.metrics.ObserveConsumed(meta.EventType, outcome)
	return outcome
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message, meta kafkax.EventMeta, span trace.Span) string {
	if meta.EventID == "" {
		c.logger.Warn("event without id ignored", "topic", msg.Topic)
		return "invalid"
	}

	ok, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err)
		span.RecordError(err)
		return "error"
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return "duplicate"
	}

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		if ferr := c.inbox.Forget(ctx, meta.EventID); ferr != nil {
			c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
		}
		return "error"
	}
	return "processed"
}

// Invalidator drops cached schedule state for a clinic.
type Invalidator interface {
	Invalidate(ctx context.Context, clinicID string) error
}

// InvalidateSchedule returns a handler that drops the cached schedule of the
// clinic named by the event.
func InvalidateSchedule(target Invalidator, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		clinicID, err := clinicOf(msg)
		if err != nil {
			return err
		}
		if err := target.Invalidate(ctx, clinicID); err != nil {
			return fmt.Errorf("invalidate %s: %w", clinicID, err)
		}
		logger.Info("schedule cache invalidated", "clinic_id", clinicID, "event_type", msg.Topic)
		return nil
	}
}

func clinicOf(msg kafka.Message) (string, error) {
	if id := kafkax.ExtractEventMeta(msg).ClinicID; id != "" {
		return id, nil
	}
	var body struct {
		ClinicID string `json:"clinic_id"`
	}
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	if body.ClinicID == "" {
		return "", errors.New("event carries no clinic_id")
	}
	return body.ClinicID, nil
}
