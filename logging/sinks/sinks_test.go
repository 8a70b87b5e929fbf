package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"skirmish/lobby/logging"
)

func TestMemorySinkRecordsInOrder(t *testing.T) {
	sink := NewMemorySink()
	sink.Write(logging.Event{Type: "first", Tick: 1})
	sink.Write(logging.Event{Type: "second", Tick: 2})

	events := sink.Events()
	if len(events) != 2 || events[0].Type != "first" || events[1].Type != "second" {
		t.Fatalf("events = %+v", events)
	}

	// The returned slice is a copy.
	events[0].Type = "mutated"
	if sink.Events()[0].Type != "first" {
		t.Fatalf("Events should return a copy")
	}

	sink.Reset()
	if len(sink.Events()) != 0 {
		t.Fatalf("reset should clear recorded events")
	}
}

func TestJSONSinkEmitsDecodableLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSON(&buf, 0)
	err := sink.Write(logging.Event{
		Type:     "member_banned",
		Tick:     12,
		Time:     time.Unix(1700000000, 0).UTC(),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryMembership,
		Actor:    logging.EntityRef{ID: "guest-1", Kind: logging.EntityKindMember},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(buf.Bytes(), &wire); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if wire["type"] != "member_banned" {
		t.Fatalf("type = %v", wire["type"])
	}
	if wire["tick"] != float64(12) {
		t.Fatalf("tick = %v", wire["tick"])
	}
}

func TestConsoleSinkFormatsOneLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, logging.ConsoleConfig{})
	err := sink.Write(logging.Event{
		Type:     "session_hosted",
		Tick:     3,
		Severity: logging.SeverityInfo,
		Actor:    logging.EntityRef{ID: "abc", Kind: logging.EntityKindSession},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"[session_hosted]", "tick=3", "session:abc", "severity=info"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console line missing %q: %q", want, out)
		}
	}
	if got := strings.Count(out, "\n"); got != 1 {
		t.Fatalf("expected one line, got %d newlines", got)
	}
}
