package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewEventStampsIDAndTimestamp(t *testing.T) {
	before := time.Now().UTC()
	ev := NewEvent("sign_in")

	if ev.ID == "" {
		t.Fatal("expected an event id")
	}
	if ev.Action != "sign_in" {
		t.Fatalf("unexpected action %q", ev.Action)
	}
	if ev.Timestamp.Before(before.Add(-time.Second)) {
		t.Fatal("timestamp not stamped")
	}
	if ev.ID == NewEvent("sign_in").ID {
		t.Fatal("event ids must be unique")
	}
}

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	d.Emit(context.Background(), NewEvent("sign_in"))

	select {
	case ev := <-sink.Events():
		if ev.Action != "sign_in" {
			t.Fatalf("unexpected action %q", ev.Action)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
	d.Close()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	// Nil dispatcher methods are safe.
	d.Emit(context.Background(), NewEvent("x"))
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports drops")
	}
}

func TestDispatcherDropsUnderBackpressure(t *testing.T) {
	// A sink that blocks until released, so the buffer can fill.
	release := make(chan struct{})
	sink := &blockingSink{release: release}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), NewEvent("flood"))
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}

	close(release)
	d.Close()
}

type blockingSink struct {
	release <-chan struct{}
	once    sync.Once
}

func (s *blockingSink) Emit(_ context.Context, _ Event) {
	s.once.Do(func() { <-s.release })
}

func TestCloseFlushesBufferedEvents(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), NewEvent("burst"))
	}
	d.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 events flushed, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if ev.Action != "burst" {
		t.Fatalf("unexpected action %q", ev.Action)
	}
}

func TestJSONWriterSinkOmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), NewEvent("minimal"))

	line := buf.String()
	for _, field := range []string{"user_id", "session_id", "ip", "error", "metadata"} {
		if strings.Contains(line, field) {
			t.Fatalf("empty field %q serialized: %s", field, line)
		}
	}
}
