package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"tasktracker/internal/config"

	"github.com/sirupsen/logrus"
)

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithOutput(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newWithOutput: %v", err)
	}
	l.WithField("task_id", 7).Debug("task created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %v (%s)", err, buf.String())
	}
	for key, want := range map[string]any{
		"message": "task created",
		"level":   "debug",
		"service": "tasks",
		"task_id": float64(7),
	} {
		if entry[key] != want {
			t.Fatalf("%s = %v, want %v", key, entry[key], want)
		}
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("ts missing: %s", buf.String())
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithOutput(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("newWithOutput: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if l.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %v", l.GetLevel())
	}
}

func TestRejectsUnknownSettings(t *testing.T) {
	if _, err := newWithOutput(config.LogConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("unknown format accepted")
	}
	if _, err := newWithOutput(config.LogConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("unknown level accepted")
	}
}
