package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ETS-Next-Gen/writing-observer-sub002/logger"
	"github.com/ETS-Next-Gen/writing-observer-sub002/reducer"
)

// writer is the subset of *kafkago.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Stats() kafkago.WriterStats
	Close() error
}

// Producer publishes JSON messages to one topic with bounded retries.
type Producer struct {
	writer  writer
	topic   string
	retries int
	log     *logger.Logger
	mu      sync.RWMutex
	closed  bool
}

// NewProducer creates a producer for topic.
func NewProducer(cfg Config, topic string, log *logger.Logger) (*Producer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka producer config: %w", err)
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka producer topic is required")
	}

	transport, err := cfg.Transport()
	if err != nil {
		return nil, fmt.Errorf("kafka producer transport: %w", err)
	}

	plog := log.WithComponent("kafka.producer")
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        topic,
		Transport:    transport,
		Balancer:     &kafkago.Hash{},
		BatchSize:    cfg.Producer.BatchSize,
		BatchTimeout: cfg.Producer.BatchTimeout,
		RequiredAcks: kafkago.RequiredAcks(cfg.Producer.RequiredAcks),
		Compression:  compression(cfg.Producer.Compression),
		WriteTimeout: cfg.Producer.WriteTimeout,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			plog.Error("writer: "+fmt.Sprintf(msg, args...), logger.Fields("topic", topic))
		}),
	}

	plog.Info("Kafka producer initialized", logger.Fields(
		"topic", topic,
		"brokers", cfg.Brokers,
		"compression", cfg.Producer.Compression,
	))
	return &Producer{writer: w, topic: topic, retries: cfg.Producer.Retries, log: plog}, nil
}

// SendJSON marshals value and writes it under key. Keys hash to a
// partition, so updates for one entity stay ordered.
func (p *Producer) SendJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("producer is closed")
	}

	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		lastErr = p.writer.WriteMessages(ctx, msg)
		if lastErr == nil {
			return nil
		}
		if classify(lastErr) == failurePermanent || attempt == p.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return FromKafka(fmt.Errorf("write after %d attempts: %w", p.retries, lastErr), p.topic)
}

// Topic returns the producer's topic.
func (p *Producer) Topic() string { return p.topic }

// Stats returns the writer's traffic since the previous call.
func (p *Producer) Stats() Stats { return writerStats(p.topic, p.writer.Stats()) }

// Close flushes and shuts down the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Info("Kafka producer closing", logger.Fields("topic", p.topic))
	return p.writer.Close()
}

// Forwarder publishes the updates a hub subscriber receives.
type Forwarder struct {
	producer *Producer
	sub      *reducer.Subscriber
	log      *logger.Logger
}

// NewForwarder creates a forwarder draining sub into producer.
func NewForwarder(producer *Producer, sub *reducer.Subscriber, log *logger.Logger) *Forwarder {
	return &Forwarder{producer: producer, sub: sub, log: log.WithComponent("kafka.forwarder")}
}

// Consume publishes updates until ctx is canceled or the subscription
// closes. Publish failures are logged and the update dropped.
func (f *Forwarder) Consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-f.sub.Updates():
			if !ok {
				return nil
			}
			if err := f.producer.SendJSON(ctx, u.ExternalKey, u); err != nil && ctx.Err() == nil {
				f.log.Error("Update publish failed", logger.Fields("error", err.Error(), "external_key", u.ExternalKey))
			}
		}
	}
}

// Topic returns the topic updates are published to.
func (f *Forwarder) Topic() string { return f.producer.Topic() }

// Stats reports the producer's traffic.
func (f *Forwarder) Stats() Stats { return f.producer.Stats() }

// Close closes the producer.
func (f *Forwarder) Close() error { return f.producer.Close() }
