package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/ecomarket/internal/domain"
)

var consumerTracer = otel.Tracer("messaging/consumer")

// Handler processes one event. eventType comes from the message header.
type Handler func(ctx context.Context, eventType domain.EventType, payload []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader      messageReader
	topic       string
	groupID     string
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	reader      kafka.ReaderConfig
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

func WithStartOffset(offset int64) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.reader.StartOffset = offset
	}
}

func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.logger = logger
	}
}

// WithRetry sets how many times a failing message is handled before it is
// logged and skipped, and the pause between attempts.
func WithRetry(maxAttempts int, backoff time.Duration) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.maxAttempts = maxAttempts
		cfg.backoff = backoff
	}
}

func NewConsumer(brokers []string, topic, groupID string, opts ...ConsumerOption) *Consumer {
	cfg := consumerConfig{
		reader: kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return newConsumer(kafka.NewReader(cfg.reader), topic, groupID, cfg)
}

func newConsumer(reader messageReader, topic, groupID string, cfg consumerConfig) *Consumer {
	if cfg.maxAttempts < 1 {
		cfg.maxAttempts = 1
	}
	return &Consumer{
		reader:      reader,
		topic:       topic,
		groupID:     groupID,
		logger:      cfg.logger,
		maxAttempts: cfg.maxAttempts,
		backoff:     cfg.backoff,
	}
}

// Consume handles messages until ctx is cancelled or the reader fails.
// Offsets are committed after handling, so a crash replays at most the
// message in flight. Messages that still fail after every retry are skipped.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := c.processMessage(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("dropping message after retries",
				"error", err,
				"topic", c.topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message, handler Handler) error {
	carrier := headerCarrier{msg: &msg}
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)
	eventType := domain.EventType(carrier.Get(HeaderEventType))

	spanCtx, span := consumerTracer.Start(parentCtx, "process "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(c.topic),
			semconv.MessagingKafkaConsumerGroup(c.groupID),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
			attribute.String("ecomarket.event.type", string(eventType)),
		),
	)
	defer span.End()

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = handler(spanCtx, eventType, msg.Value); err == nil {
			return nil
		}

		span.AddEvent("handler failed", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("error", err.Error()),
		))
		c.logger.Warn("event handler failed", "error", err, "attempt", attempt, "type", eventType)

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
