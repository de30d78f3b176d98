package logbuf

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func writeN(buf *Buffer, n int, lvl slog.Level, base time.Time) {
	for i := 0; i < n; i++ {
		buf.Write(Entry{
			Time:    base.Add(time.Duration(i) * time.Second),
			Level:   lvl.String(),
			Message: "msg",
			Attrs:   map[string]any{"i": i},
			level:   lvl,
		})
	}
}

func TestBufferWriteAndQuery(t *testing.T) {
	buf := New(5)
	writeN(buf, 3, slog.LevelInfo, time.Now())

	entries := buf.Query(Filter{MinLevel: slog.LevelDebug})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if buf.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", buf.Len())
	}
}

func TestBufferQueryEmptyIsNotNil(t *testing.T) {
	if got := New(4).Query(Filter{}); got == nil {
		t.Fatal("expected empty slice, got nil")
	}
}

func TestBufferRingOverwrite(t *testing.T) {
	buf := New(3)
	writeN(buf, 5, slog.LevelInfo, time.Now())

	entries := buf.Query(Filter{MinLevel: slog.LevelDebug})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries (ring size), got %d", len(entries))
	}
	if entries[0].Attrs["i"] != 2 || entries[2].Attrs["i"] != 4 {
		t.Fatalf("expected entries 2..4 oldest first, got %v..%v", entries[0].Attrs["i"], entries[2].Attrs["i"])
	}
}

func TestBufferQuerySince(t *testing.T) {
	buf := New(10)
	now := time.Now()
	writeN(buf, 5, slog.LevelInfo, now)

	entries := buf.Query(Filter{Since: now.Add(3 * time.Second)})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries since +3s, got %d", len(entries))
	}
}

func TestBufferQueryLevel(t *testing.T) {
	buf := New(10)
	now := time.Now()
	writeN(buf, 2, slog.LevelDebug, now)
	writeN(buf, 2, slog.LevelWarn, now)
	writeN(buf, 1, slog.LevelError, now)

	if got := len(buf.Query(Filter{MinLevel: slog.LevelWarn})); got != 3 {
		t.Fatalf("expected 3 warn+ entries, got %d", got)
	}
	if got := len(buf.Query(Filter{MinLevel: slog.LevelError})); got != 1 {
		t.Fatalf("expected 1 error entry, got %d", got)
	}
}

func TestBufferQueryLimitKeepsNewest(t *testing.T) {
	buf := New(10)
	writeN(buf, 8, slog.LevelInfo, time.Now())

	entries := buf.Query(Filter{Limit: 3})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Attrs["i"] != 5 {
		t.Fatalf("expected newest three starting at i=5, got %v", entries[0].Attrs["i"])
	}
}

func TestBufferQueryAttrs(t *testing.T) {
	buf := New(10)
	now := time.Now()
	buf.Write(Entry{Time: now, Message: "turn", Attrs: map[string]any{"session": "s1", "iterations": 2}})
	buf.Write(Entry{Time: now, Message: "turn", Attrs: map[string]any{"session": "s2", "iterations": 2}})
	buf.Write(Entry{Time: now, Message: "ticket", Attrs: map[string]any{"ticket_id": "abc"}})

	if got := buf.Query(Filter{Attrs: map[string]string{"session": "s1"}}); len(got) != 1 {
		t.Fatalf("expected 1 entry for session s1, got %d", len(got))
	}
	// Non-string values match on their printed form.
	if got := buf.Query(Filter{Attrs: map[string]string{"iterations": "2"}}); len(got) != 2 {
		t.Fatalf("expected 2 entries with iterations=2, got %d", len(got))
	}
	if got := buf.Query(Filter{Attrs: map[string]string{"session": "s1", "iterations": "3"}}); len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}

func newTestHandler(buf *Buffer, innerLevel slog.Level) *Handler {
	inner := slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: innerLevel})
	return NewHandler(inner, buf, slog.LevelDebug)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestHandlerCaptures(t *testing.T) {
	buf := New(10)
	logger := slog.New(newTestHandler(buf, slog.LevelInfo))

	logger.Info("ticket created", "ticket_id", "abc", "backend", "sqlite")

	entries := buf.Query(Filter{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "ticket created" || e.Level != "INFO" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Attrs["ticket_id"] != "abc" {
		t.Fatalf("expected ticket_id=abc, got %v", e.Attrs["ticket_id"])
	}
}

func TestHandlerWithAttrsAndGroup(t *testing.T) {
	buf := New(10)
	logger := slog.New(newTestHandler(buf, slog.LevelInfo)).
		With("component", "agent").
		WithGroup("turn")

	logger.Info("done", "iterations", 3)

	e := buf.Query(Filter{})[0]
	if e.Attrs["component"] != "agent" {
		t.Fatalf("expected component=agent, got %v", e.Attrs["component"])
	}
	if e.Attrs["turn.iterations"] != int64(3) {
		t.Fatalf("expected turn.iterations=3, got %v (%T)", e.Attrs["turn.iterations"], e.Attrs["turn.iterations"])
	}
}

func TestHandlerCapturesBelowInnerLevel(t *testing.T) {
	buf := New(10)
	h := newTestHandler(buf, slog.LevelWarn)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("handler must be enabled at the capture level")
	}

	logger := slog.New(h)
	logger.Debug("d")
	logger.Info("i")
	logger.Error("e")

	if got := buf.Len(); got != 3 {
		t.Fatalf("expected all 3 levels captured, got %d", got)
	}
	if got := len(buf.Query(Filter{MinLevel: slog.LevelError})); got != 1 {
		t.Fatalf("expected 1 error entry, got %d", got)
	}
}

func TestHandlerCaptureLevel(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(NewHandler(inner, buf, slog.LevelInfo))

	logger.Debug("dropped")
	logger.Info("kept")

	if got := buf.Len(); got != 1 {
		t.Fatalf("expected 1 captured entry, got %d", got)
	}
}

func TestHandlerErrorAttr(t *testing.T) {
	buf := New(10)
	logger := slog.New(newTestHandler(buf, slog.LevelInfo))

	logger.Error("store failed", "error", errors.New("disk full"))

	if got := buf.Query(Filter{})[0].Attrs["error"]; got != "disk full" {
		t.Fatalf("expected error message string, got %v (%T)", got, got)
	}
}
