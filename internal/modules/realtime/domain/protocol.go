package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Client -> server message types.
const (
	TypeSubscribe      = "subscribe"
	TypeUnsubscribe    = "unsubscribe"
	TypeAuthenticate   = "authenticate"
	TypePing           = "ping"
	TypeCustomerUpdate = "customer_update"
)

// Server -> client message types. Published domain events use their own
// event name as type.
const (
	TypeConnectionEstablished   = "connection_established"
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypeAuthenticationSuccess   = "authentication_success"
	TypePong                    = "pong"
	TypeCustomerUpdated         = "customer_updated"
	TypeError                   = "error"
)

var ErrInvalidMessage = errors.New("invalid message format")

// FlexibleID accepts a JSON string or number.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) String() string { return string(id) }

// InboundMessage is the envelope every client frame must match.
type InboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	RequestID FlexibleID      `json:"requestId,omitempty"`
}

// OutboundMessage is written to clients as a JSON text frame.
type OutboundMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

type SubscriptionData struct {
	Topic      string     `json:"topic"`
	CustomerID FlexibleID `json:"customerId,omitempty"`
}

type AuthenticateData struct {
	CustomerID FlexibleID `json:"customerId"`
	Token      string     `json:"token,omitempty"`
}

type CustomerUpdateData struct {
	CustomerID FlexibleID     `json:"customerId"`
	UpdateData map[string]any `json:"updateData"`
}

type ConnectionEstablished struct {
	ConnectionID string `json:"connectionId"`
	Timestamp    string `json:"timestamp"`
}

type SubscriptionConfirmed struct {
	Topic           string `json:"topic"`
	CustomerID      string `json:"customerId,omitempty"`
	SubscriptionKey string `json:"subscriptionKey"`
}

type AuthenticationSuccess struct {
	CustomerID string `json:"customerId"`
}

type Pong struct {
	Timestamp string `json:"timestamp"`
}

type CustomerUpdated struct {
	Customer any `json:"customer"`
}

type ErrorReply struct {
	Error string `json:"error"`
}

// DecodeInbound parses a client frame. The type must be a non-empty string
// and data, when present, a JSON object.
func DecodeInbound(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, ErrInvalidMessage
	}
	msg.Type = strings.TrimSpace(msg.Type)
	if msg.Type == "" {
		return InboundMessage{}, ErrInvalidMessage
	}
	data := bytes.TrimSpace(msg.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		msg.Data = json.RawMessage("{}")
	} else if data[0] != '{' {
		return InboundMessage{}, ErrInvalidMessage
	}
	return msg, nil
}

// DecodeData unmarshals the message data into out.
func (m InboundMessage) DecodeData(out any) error {
	if err := json.Unmarshal(m.Data, out); err != nil {
		return ErrInvalidMessage
	}
	return nil
}

// SubscriptionKey composes "{topic}_{scopeID}", or just topic when the
// scope is empty. Keys are matched exactly.
func SubscriptionKey(topic, scopeID string) string {
	if scopeID == "" {
		return topic
	}
	return topic + "_" + scopeID
}
