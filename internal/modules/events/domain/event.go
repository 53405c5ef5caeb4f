package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventType names a domain event. The set of types this service understands
// is closed; anything else is carried through but flagged at routing time.
type EventType string

const (
	CustomerCreated          EventType = "CUSTOMER_CREATED"
	CustomerUpdated          EventType = "CUSTOMER_UPDATED"
	CustomerVerified         EventType = "CUSTOMER_VERIFIED"
	CustomerAddressAdded     EventType = "CUSTOMER_ADDRESS_ADDED"
	CustomerNotificationSent EventType = "CUSTOMER_NOTIFICATION_SENT"

	// Emitted by other services.
	UserRegistered        EventType = "USER_REGISTERED"
	NotificationRequested EventType = "NOTIFICATION_REQUESTED"
	AnalyticsEventTracked EventType = "ANALYTICS_EVENT_TRACKED"
)

var knownEventTypes = map[EventType]struct{}{
	CustomerCreated:          {},
	CustomerUpdated:          {},
	CustomerVerified:         {},
	CustomerAddressAdded:     {},
	CustomerNotificationSent: {},
	UserRegistered:           {},
	NotificationRequested:    {},
	AnalyticsEventTracked:    {},
}

const DefaultPartitionKey = "default"

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingEventType = errors.New("missing event type")
)

// ParseEventType normalizes raw and reports whether it belongs to the known set.
func ParseEventType(raw string) (EventType, error) {
	t := EventType(strings.ToUpper(strings.TrimSpace(raw)))
	if t == "" {
		return "", ErrMissingEventType
	}
	if !t.Known() {
		return t, fmt.Errorf("%w: %s", ErrUnknownEventType, t)
	}
	return t, nil
}

func (t EventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

func (t EventType) String() string { return string(t) }

// RealtimeName is the websocket event name for t, e.g. customer_updated.
func (t EventType) RealtimeName() string {
	return strings.ToLower(string(t))
}

// Metadata travels with every event. Extra keys are flattened into the JSON
// object next to the well-known fields.
type Metadata struct {
	Timestamp  string
	RequestID  string
	CustomerID string
	Extra      map[string]any
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["timestamp"] = m.Timestamp
	if m.RequestID != "" {
		out["requestId"] = m.RequestID
	}
	if m.CustomerID != "" {
		out["customerId"] = m.CustomerID
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		switch k {
		case "timestamp":
			m.Timestamp = stringify(v)
		case "requestId":
			m.RequestID = stringify(v)
		case "customerId":
			m.CustomerID = stringify(v)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return nil
}

// Event is the immutable envelope written to the durable log.
type Event struct {
	EventType   EventType       `json:"eventType"`
	ServiceName string          `json:"serviceName"`
	Data        json.RawMessage `json:"data"`
	Metadata    Metadata        `json:"metadata"`
}

// NewEvent builds an envelope around data. A missing metadata timestamp is
// filled with now in RFC 3339 (ISO-8601) form.
func NewEvent[T any](eventType EventType, serviceName string, data T, meta Metadata, now time.Time) (Event, error) {
	if strings.TrimSpace(string(eventType)) == "" {
		return Event{}, ErrMissingEventType
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	if meta.Timestamp == "" {
		meta.Timestamp = FormatTimestamp(now)
	}
	return Event{
		EventType:   eventType,
		ServiceName: serviceName,
		Data:        raw,
		Metadata:    meta,
	}, nil
}

// DecodeData unmarshals the event payload into T.
func DecodeData[T any](e Event) (T, error) {
	var out T
	if len(e.Data) == 0 {
		return out, fmt.Errorf("decode %s payload: empty data", e.EventType)
	}
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return out, nil
}

// PartitionKey keeps a customer's events on one partition. It falls back to
// the request id and then to DefaultPartitionKey.
func (e Event) PartitionKey() string {
	if id := strings.TrimSpace(e.Metadata.CustomerID); id != "" {
		return id
	}
	if id := strings.TrimSpace(e.Metadata.RequestID); id != "" {
		return id
	}
	return DefaultPartitionKey
}

// Validate checks the envelope invariants: an event type and a timestamp.
func (e Event) Validate() error {
	if strings.TrimSpace(string(e.EventType)) == "" {
		return ErrMissingEventType
	}
	if strings.TrimSpace(e.Metadata.Timestamp) == "" {
		return fmt.Errorf("event %s: missing metadata timestamp", e.EventType)
	}
	return nil
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
