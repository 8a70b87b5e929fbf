package logging

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func waitForEvents(t *testing.T, s *captureSink, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := s.snapshot()
		if len(events) >= want {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sink received %d events, want %d", len(s.snapshot()), want)
	return nil
}

func TestRouterDeliversToSinks(t *testing.T) {
	sink := &captureSink{}
	router, err := NewRouter(nil, DefaultConfig(), []NamedSink{{Name: "capture", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	router.Publish(context.Background(), Event{Type: "member_entered", Severity: SeverityInfo, Tick: 7})
	events := waitForEvents(t, sink, 1)
	if events[0].Type != "member_entered" || events[0].Tick != 7 {
		t.Fatalf("delivered event = %+v", events[0])
	}
	if events[0].Time.IsZero() {
		t.Fatalf("router should stamp a timestamp")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !sink.closed {
		t.Fatalf("close should propagate to sinks")
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.MinimumSeverity = SeverityWarn
	router, err := NewRouter(nil, cfg, []NamedSink{{Name: "capture", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	router.Publish(context.Background(), Event{Type: "store_write", Severity: SeverityDebug})
	router.Publish(context.Background(), Event{Type: "chat_line", Severity: SeverityInfo})
	router.Publish(context.Background(), Event{Type: "member_banned", Severity: SeverityWarn})

	events := waitForEvents(t, sink, 1)
	for _, ev := range events {
		if ev.Severity < SeverityWarn {
			t.Fatalf("severity filter leaked %+v", ev)
		}
	}
	if events[0].Type != "member_banned" {
		t.Fatalf("expected the warn event, got %+v", events[0])
	}
}

func TestRouterAppliesAmbientFields(t *testing.T) {
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.Fields = map[string]any{"node": "test-1"}
	router, err := NewRouter(nil, cfg, []NamedSink{{Name: "capture", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	router.Publish(context.Background(), Event{Type: "session_hosted", Severity: SeverityInfo})
	events := waitForEvents(t, sink, 1)
	if events[0].Extra["node"] != "test-1" {
		t.Fatalf("ambient field missing: %+v", events[0].Extra)
	}
}

func TestRouterIgnoresUntypedAndPostCloseEvents(t *testing.T) {
	sink := &captureSink{}
	router, err := NewRouter(nil, DefaultConfig(), []NamedSink{{Name: "capture", Sink: sink}})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	router.Publish(context.Background(), Event{Severity: SeverityError})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	router.Publish(context.Background(), Event{Type: "late", Severity: SeverityError})

	if got := len(sink.snapshot()); got != 0 {
		t.Fatalf("expected no delivered events, got %d", got)
	}
	stats := router.Stats()
	if stats.EventsTotal != 0 {
		t.Fatalf("stats counted discarded events: %+v", stats)
	}
}

func TestPublisherWithFields(t *testing.T) {
	var got Event
	base := PublisherFunc(func(_ context.Context, event Event) { got = event })
	p := WithFields(base, map[string]any{"role": "host"})
	p.Publish(context.Background(), Event{Type: "session_hosted"})
	if got.Extra["role"] != "host" {
		t.Fatalf("WithFields did not attach fields: %+v", got.Extra)
	}

	// Event-level values win over ambient ones.
	p.Publish(context.Background(), Event{Type: "session_hosted", Extra: map[string]any{"role": "client"}})
	if got.Extra["role"] != "client" {
		t.Fatalf("event fields should win: %+v", got.Extra)
	}
}
