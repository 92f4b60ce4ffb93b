package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
)

// MessageHandler processes one consumed message. A non-nil error is logged
// and the consumer moves on to the next message.
type MessageHandler func(ctx context.Context, msg Message) error

// reader is the subset of *kafkago.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Stats() kafkago.ReaderStats
	Close() error
}

// Consumer reads one topic within the configured group and hands each
// message to its handler. Offsets are committed after the handler returns,
// so delivery is at least once.
type Consumer struct {
	reader   reader
	topic    string
	groupID  string
	handler  MessageHandler
	log      *logger.Logger
	failures int
	maxWait  time.Duration
}

// NewConsumer creates a consumer for topic.
func NewConsumer(cfg Config, topic string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka consumer config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("kafka is disabled")
	}

	dialer, err := cfg.Dialer()
	if err != nil {
		return nil, fmt.Errorf("kafka consumer dialer: %w", err)
	}

	clog := log.WithComponent("kafka.consumer").WithFields(logger.Fields("topic", topic, "group", cfg.GroupID))
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           cfg.GroupID,
		Dialer:            dialer,
		StartOffset:       kafkago.FirstOffset,
		MinBytes:          1,
		MaxBytes:          10e6,
		SessionTimeout:    cfg.Consumer.SessionTimeout,
		HeartbeatInterval: cfg.Consumer.HeartbeatInterval,
		RebalanceTimeout:  cfg.Consumer.RebalanceTimeout,
		ErrorLogger: kafkago.LoggerFunc(func(format string, args ...any) {
			clog.Error("reader: " + fmt.Sprintf(format, args...))
		}),
	})

	clog.Info("Kafka consumer initialized", logger.Fields("brokers", cfg.Brokers))
	return newConsumer(r, topic, cfg.GroupID, handler, clog), nil
}

func newConsumer(r reader, topic, groupID string, handler MessageHandler, log *logger.Logger) *Consumer {
	return &Consumer{reader: r, topic: topic, groupID: groupID, handler: handler, log: log, maxWait: 30 * time.Second}
}

// Consume fetches until ctx is canceled. A failed fetch backs off one
// more second per consecutive failure, up to 30s. Every fetched message is
// committed once its handler returns, whether or not the handler failed.
func (c *Consumer) Consume(ctx context.Context) error {
	c.log.Info("Starting consume loop")
	for ctx.Err() == nil {
		raw, err := c.reader.FetchMessage(ctx)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			if err := c.backoff(ctx, err); err != nil {
				return err
			}
		default:
			c.failures = 0
			c.handle(ctx, raw)
		}
	}
	return ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, raw kafkago.Message) {
	if err := c.handler(ctx, FromKafkaMessage(raw)); err != nil {
		c.log.Error("Message processing failed", logger.Fields(
			logger.FieldError, err.Error(),
			"partition", raw.Partition,
			"offset", raw.Offset,
		))
	}
	if err := c.reader.CommitMessages(ctx, raw); err != nil && ctx.Err() == nil {
		c.log.Warn("Offset commit failed", logger.Fields(
			logger.FieldError, FromKafka(err, c.topic).Error(),
			"offset", raw.Offset,
		))
	}
}

// backoff waits out a fetch failure. Only the first few consecutive
// failures are logged.
func (c *Consumer) backoff(ctx context.Context, err error) error {
	c.failures++
	if c.failures <= 3 {
		c.log.Error("Kafka read error", logger.Fields(
			logger.FieldError, FromKafka(err, c.topic).Error(),
			"retryable", IsRetryableError(err),
			"failures", c.failures,
		))
	}

	t := time.NewTimer(min(time.Duration(c.failures)*time.Second, c.maxWait))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Topic returns the consumer's topic.
func (c *Consumer) Topic() string { return c.topic }

// Stats returns the reader's traffic since the previous call.
func (c *Consumer) Stats() Stats { return readerStats(c.topic, c.reader.Stats()) }

// Close shuts down the reader.
func (c *Consumer) Close() error {
	c.log.Info("Kafka consumer closing")
	return c.reader.Close()
}
