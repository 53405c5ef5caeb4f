package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"customerWs/internal/modules/events/domain"
	"customerWs/internal/shared/logging"
)

// MessageReader is the subset of *kafka.Reader the consumer loop uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventDispatcher handles one decoded event consumed from topic.
type EventDispatcher func(ctx context.Context, topic string, event domain.Event) error

const fetchRetryDelay = time.Second

type KafkaConsumer struct {
	topic  string
	reader MessageReader
}

// NewKafkaConsumer joins groupID on topic. New groups start at the log end,
// so only events produced after the service came online are seen.
func NewKafkaConsumer(brokers []string, groupID string, topic string) *KafkaConsumer {
	return NewKafkaConsumerWithReader(topic, kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: kafka.LastOffset,
	}))
}

func NewKafkaConsumerWithReader(topic string, reader MessageReader) *KafkaConsumer {
	return &KafkaConsumer{topic: topic, reader: reader}
}

// Consume runs until ctx is cancelled or the reader is closed. Decode and
// handler failures are logged and the message is committed anyway, so one
// bad message never blocks the partition.
func (c *KafkaConsumer) Consume(ctx context.Context, dispatch EventDispatcher) error {
	logger := logging.Component("kafka-consumer").With(slog.String("topic", c.topic))
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			logger.Warn("kafka read error", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		c.handle(ctx, logger, m, dispatch)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("kafka commit error",
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slog.Any("error", err),
			)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, logger *slog.Logger, m kafka.Message, dispatch EventDispatcher) {
	attrs := []any{
		slog.Int("partition", m.Partition),
		slog.Int64("offset", m.Offset),
	}
	event, err := decodeMessage(m)
	if err != nil {
		logger.Warn("kafka message skipped", append(attrs, slog.Any("error", err))...)
		return
	}
	attrs = append(attrs,
		slog.String("eventType", event.EventType.String()),
		slog.String("serviceName", event.ServiceName),
		slog.String("customerId", event.Metadata.CustomerID),
	)
	logger.Debug("kafka message consumed", attrs...)

	if err := safeDispatch(ctx, dispatch, m.Topic, event); err != nil {
		logger.Error("kafka handler error", append(attrs, slog.Any("error", err))...)
	}
}

func safeDispatch(ctx context.Context, dispatch EventDispatcher, topic string, event domain.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return dispatch(ctx, topic, event)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// StartKafkaConsumers starts one consumer per registered topic. The returned
// channel is closed once every consumer has stopped after ctx is cancelled.
func StartKafkaConsumers(ctx context.Context, registry *HandlerRegistry, brokers []string, groupID string) <-chan struct{} {
	done := make(chan struct{})
	if len(brokers) == 0 {
		// Without brokers kafka.NewReader would fail on first fetch.
		close(done)
		return done
	}
	var wg sync.WaitGroup
	for _, topic := range registry.Topics() {
		topic := topic
		consumer := NewKafkaConsumer(brokers, groupID, topic)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			slog.Info("kafka consumer started", slog.String("topic", topic), slog.String("groupId", groupID))
			_ = consumer.Consume(ctx, registry.Dispatch)
			slog.Info("kafka consumer stopped", slog.String("topic", topic))
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
