package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"customerWs/internal/modules/events/domain"
)

const (
	headerEventType   = "eventType"
	headerServiceName = "serviceName"
	headerTimestamp   = "timestamp"
)

func encodeMessage(topic string, event domain.Event, at time.Time) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", event.EventType, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(event.PartitionKey()),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerServiceName, Value: []byte(event.ServiceName)},
			{Key: headerTimestamp, Value: []byte(event.Metadata.Timestamp)},
		},
		Time: at,
	}, nil
}

// decodeMessage parses a consumed message into a domain event. Envelope
// fields missing from the body are recovered from the message headers.
func decodeMessage(m kafka.Message) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return domain.Event{}, fmt.Errorf("decode message %s/%d@%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	if event.EventType == "" {
		event.EventType = domain.EventType(headerValue(m.Headers, headerEventType))
	}
	if event.ServiceName == "" {
		event.ServiceName = headerValue(m.Headers, headerServiceName)
	}
	if event.Metadata.Timestamp == "" {
		event.Metadata.Timestamp = headerValue(m.Headers, headerTimestamp)
	}
	if event.Metadata.Timestamp == "" && !m.Time.IsZero() {
		event.Metadata.Timestamp = domain.FormatTimestamp(m.Time)
	}
	if err := event.Validate(); err != nil {
		return domain.Event{}, fmt.Errorf("decode message %s/%d@%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	return event, nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return strings.TrimSpace(string(h.Value))
		}
	}
	return ""
}
