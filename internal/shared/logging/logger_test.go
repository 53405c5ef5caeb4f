package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":         slog.LevelInfo,
		"info":     slog.LevelInfo,
		" DEBUG ":  slog.LevelDebug,
		"dbg":      slog.LevelDebug,
		"warning":  slog.LevelWarn,
		"err":      slog.LevelError,
		"trace":    LevelTrace,
		"nonsense": slog.LevelInfo,
	}
	for input, expected := range cases {
		if got := ParseLevel(input); got != expected {
			t.Fatalf("ParseLevel(%q) = %v, expected %v", input, got, expected)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "debug", Format: "json"})
	logger.Debug("hello", slog.String("connectionId", "c-1"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "hello" || record["connectionId"] != "c-1" {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestNew_TextFormatFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn"})
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn record missing: %q", out)
	}
}
