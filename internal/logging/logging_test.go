package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewJSONWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})

	l.With(String("component", "executor")).Info(context.Background(), "applied",
		Int("queue_depth", 3),
		Duration("elapsed", 2*time.Second),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "applied" || rec["component"] != "executor" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["error"] != "boom" {
		t.Fatalf("error field = %v, want boom", rec["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Info(context.Background(), "hidden")
	l.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestEnsureRequestIDIsStable(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", id, err)
	}
	_, again := EnsureRequestID(ctx)
	if again != id {
		t.Fatalf("EnsureRequestID changed id: %q -> %q", id, again)
	}
}

func TestClientIDRoundTrip(t *testing.T) {
	ctx := ContextWithClientID(context.Background(), "maps")
	if got := ClientIDFromContext(ctx); got != "maps" {
		t.Fatalf("ClientIDFromContext = %q, want maps", got)
	}
	if got := ClientIDFromContext(context.Background()); got != "" {
		t.Fatalf("ClientIDFromContext on empty ctx = %q", got)
	}
}

func TestContextIDsAreAddedToRecords(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf})

	ctx := ContextWithClientID(context.Background(), "maps")
	ctx = ContextWithRequestID(ctx, "req-1")
	l.Info(ctx, "tracking started")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["request_id"] != "req-1" || rec["client_id"] != "maps" {
		t.Fatalf("context ids missing: %v", rec)
	}
}

func TestBoundRequestIDIsNotDuplicated(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})

	ctx, reqLog := WithRequestLogger(context.Background(), base)
	reqLog.Info(ctx, "once")

	if n := strings.Count(buf.String(), `"request_id"`); n != 1 {
		t.Fatalf("request_id appears %d times in %q", n, buf.String())
	}
	if !strings.Contains(buf.String(), RequestIDFromContext(ctx)) {
		t.Fatalf("bound id missing from %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		" WARN ":  "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger from empty context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("expected a noop logger when storing nil")
	}
}
