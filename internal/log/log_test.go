package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("")
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}

	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger("chatty"); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestComponentWritesJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLoggerWithOutput(" DEBUG ", &buf)
	if err != nil {
		t.Fatalf("NewLoggerWithOutput returned error: %v", err)
	}

	Component(logger, "quiz.service").WithField("address", "x").Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}

	if entry["component"] != "quiz.service" || entry["msg"] != "hello" || entry["level"] != "debug" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestInitSentryWithoutDSN(t *testing.T) {
	t.Parallel()

	hub, flush, err := InitSentry(logrus.New(), SentrySettings{})
	if err != nil {
		t.Fatalf("InitSentry returned error: %v", err)
	}
	if hub != nil {
		t.Fatalf("expected nil hub without DSN")
	}
	flush()
}

func TestInitSentryRejectsMalformedDSN(t *testing.T) {
	t.Parallel()

	if _, _, err := InitSentry(logrus.New(), SentrySettings{DSN: "not a dsn"}); err == nil {
		t.Fatalf("expected error for malformed DSN")
	}
}

func TestInitSentryWithDSN(t *testing.T) {
	t.Parallel()

	logger := logrus.New()
	hub, flush, err := InitSentry(logger, SentrySettings{
		DSN:         "https://public@sentry.example.com/1",
		Environment: "test",
		Tags:        map[string]string{"db_driver": "sqlite"},
	})
	if err != nil {
		t.Fatalf("InitSentry returned error: %v", err)
	}
	defer flush()

	if hub == nil || hub.Client() == nil {
		t.Fatalf("expected hub bound to a client")
	}
	if len(logger.Hooks[logrus.ErrorLevel]) != 1 {
		t.Fatalf("expected sentry hook on error level, got %d", len(logger.Hooks[logrus.ErrorLevel]))
	}
}
