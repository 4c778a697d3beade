package audit

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("disabled dispatcher not nil")
	}
	// Nil dispatcher absorbs calls.
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports drops")
	}
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("events delivered: got %d want 10", got)
	}
}

func TestDropIfFull(t *testing.T) {
	gate := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, gate)

	// One event blocks the sink, one fills the buffer, the rest drop.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}

	deadline := time.After(2 * time.Second)
	for d.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("no events dropped with full buffer")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(gate.gate)
	d.Close()
}

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()

	d.Emit(context.Background(), Event{EventType: "logout"})
	if got := sink.count.Load(); got != 0 {
		t.Fatalf("events after close: %d", got)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		EventType: "login_success",
		UserID:    2,
		Username:  "alice",
		Success:   true,
	})
	sink.Emit(context.Background(), Event{EventType: "logout", UserID: 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: %d", len(lines))
	}
	if !strings.Contains(lines[0], `"event_type":"login_success"`) {
		t.Fatalf("first line: %s", lines[0])
	}
	if !strings.Contains(lines[0], `"user_id":2`) {
		t.Fatalf("first line: %s", lines[0])
	}
}

func TestChannelSinkRespectsContext(t *testing.T) {
	sink := NewChannelSink(1)
	sink.Emit(context.Background(), Event{EventType: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Full channel plus done context must not block.
	sink.Emit(ctx, Event{EventType: "b"})

	select {
	case ev := <-sink.Events():
		if ev.EventType != "a" {
			t.Fatalf("event: %+v", ev)
		}
	default:
		t.Fatal("buffered event missing")
	}
}
