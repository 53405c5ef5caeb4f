package domain

import "strings"

// TopicSet holds the durable-log topic names, fixed at startup.
type TopicSet struct {
	Events        string
	Notifications string
	Analytics     string
}

// All returns the topics in consumer subscription order.
func (s TopicSet) All() []string {
	return []string{s.Events, s.Notifications, s.Analytics}
}

// TopicFor maps an event type to its durable-log topic. Rules are evaluated
// in order and the first match wins; unmatched types go to Events.
func (s TopicSet) TopicFor(eventType EventType) string {
	name := string(eventType)
	switch {
	case strings.HasPrefix(name, "CUSTOMER_"):
		return s.Events
	case strings.Contains(name, "NOTIFICATION"):
		return s.Notifications
	case strings.Contains(name, "ANALYTICS"):
		return s.Analytics
	default:
		return s.Events
	}
}
