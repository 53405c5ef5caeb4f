package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"customerWs/internal/modules/events/domain"
)

// ErrNotInitialized is returned by PublishEvent before Initialize succeeds.
var ErrNotInitialized = errors.New("kafka publisher not initialized")

type PublisherConfig struct {
	Brokers      []string
	ClientID     string
	Topics       domain.TopicSet
	MaxAttempts  int
	WriteTimeout time.Duration
}

// MessageWriter is the subset of *kafka.Writer the publisher relies on.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublisherOption func(*KafkaPublisher)

// WithWriterFactory replaces the kafka-go writer and skips the broker dial.
func WithWriterFactory(factory func(PublisherConfig) (MessageWriter, error)) PublisherOption {
	return func(p *KafkaPublisher) {
		p.newWriter = factory
		p.dial = func(context.Context) error { return nil }
	}
}

// KafkaPublisher sends domain events to the durable log. Sends are
// serialized so at most one produce request is in flight, and each message
// is acknowledged by all in-sync replicas before the next one goes out.
// kafka-go has no idempotent producer; one in-flight request keeps retries
// from reordering messages within a partition, while duplicates remain
// possible (at-least-once).
type KafkaPublisher struct {
	cfg       PublisherConfig
	newWriter func(PublisherConfig) (MessageWriter, error)
	dial      func(context.Context) error
	now       func() time.Time

	mu     sync.Mutex
	writer MessageWriter
}

func NewKafkaPublisher(cfg PublisherConfig, opts ...PublisherOption) *KafkaPublisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	p := &KafkaPublisher{cfg: cfg, newWriter: newKafkaWriter, now: time.Now}
	p.dial = p.dialBroker
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize verifies that a broker is reachable and builds the writer.
// Calling it again after success is a no-op.
func (p *KafkaPublisher) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		return nil
	}
	if err := p.dial(ctx); err != nil {
		return err
	}
	w, err := p.newWriter(p.cfg)
	if err != nil {
		return fmt.Errorf("create kafka writer: %w", err)
	}
	p.writer = w
	slog.Info("kafka publisher initialized",
		slog.Any("brokers", p.cfg.Brokers),
		slog.String("clientId", p.cfg.ClientID),
	)
	return nil
}

func (p *KafkaPublisher) dialBroker(ctx context.Context) error {
	if len(p.cfg.Brokers) == 0 {
		return errors.New("kafka publisher: no brokers configured")
	}
	dialer := &kafka.Dialer{ClientID: p.cfg.ClientID, Timeout: p.cfg.WriteTimeout}
	var lastErr error
	for _, addr := range p.cfg.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka publisher: connect: %w", lastErr)
}

func newKafkaWriter(cfg PublisherConfig) (MessageWriter, error) {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    1,
		WriteTimeout: cfg.WriteTimeout,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}, nil
}

// PublishEvent routes the event to its topic and writes it keyed by the
// event's partition key.
func (p *KafkaPublisher) PublishEvent(ctx context.Context, event domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if !event.EventType.Known() {
		slog.Warn("publishing unknown event type", slog.String("eventType", event.EventType.String()))
	}
	topic := p.cfg.Topics.TopicFor(event.EventType)
	msg, err := encodeMessage(topic, event, p.now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return ErrNotInitialized
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType, topic, err)
	}
	slog.Debug("kafka message produced",
		slog.String("topic", topic),
		slog.String("eventType", event.EventType.String()),
		slog.String("key", string(msg.Key)),
	)
	return nil
}

func (p *KafkaPublisher) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer != nil
}

// Close flushes and releases the writer. The publisher reports
// ErrNotInitialized afterwards.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
