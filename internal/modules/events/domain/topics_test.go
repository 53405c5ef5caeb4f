package domain

import "testing"

func TestTopicSet_TopicFor(t *testing.T) {
	topics := TopicSet{Events: "events", Notifications: "notifications", Analytics: "analytics"}

	cases := map[EventType]string{
		CustomerCreated:            "events",
		CustomerNotificationSent:   "events",
		"X_NOTIFICATION_Y":         "notifications",
		NotificationRequested:      "notifications",
		AnalyticsEventTracked:      "analytics",
		"NOTIFICATION_ANALYTICS":   "notifications",
		"PAGE_ANALYTICS":           "analytics",
		"FOO":                      "events",
		"":                         "events",
		"customer_created":         "events",
		"CUSTOMERS_NOTIFICATION_X": "notifications",
	}
	for input, expected := range cases {
		if got := topics.TopicFor(input); got != expected {
			t.Fatalf("TopicFor(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestTopicSet_All(t *testing.T) {
	topics := TopicSet{Events: "e", Notifications: "n", Analytics: "a"}
	all := topics.All()
	if len(all) != 3 || all[0] != "e" || all[1] != "n" || all[2] != "a" {
		t.Fatalf("unexpected topics: %#v", all)
	}
}
