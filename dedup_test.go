package lobby

import (
	"errors"
	"testing"
	"time"

	"skirmish/lobby/logging"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestWriteCacheSuppressesRepeatWithinWindow(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	cache := NewWriteCache(clock)

	writes := 0
	write := func(key, value string) error {
		writes++
		return nil
	}

	if !cache.TryWrite("map", "archipelago", write) {
		t.Fatalf("first write should go through")
	}
	if cache.TryWrite("map", "archipelago", write) {
		t.Fatalf("repeat write inside the window should be suppressed")
	}
	if writes != 1 {
		t.Fatalf("expected 1 store write, got %d", writes)
	}
}

func TestWriteCacheAllowsChangedValueImmediately(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	cache := NewWriteCache(clock)

	writes := 0
	write := func(key, value string) error {
		writes++
		return nil
	}

	cache.TryWrite("map", "archipelago", write)
	if !cache.TryWrite("map", "coastline", write) {
		t.Fatalf("changed value should bypass the window")
	}
	if writes != 2 {
		t.Fatalf("expected 2 store writes, got %d", writes)
	}
}

func TestWriteCacheExpiresAfterWindow(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	cache := NewWriteCache(clock)

	writes := 0
	write := func(key, value string) error {
		writes++
		return nil
	}

	cache.TryWrite("started", "no", write)
	clock.advance(writeDeadline + time.Millisecond)
	if !cache.TryWrite("started", "no", write) {
		t.Fatalf("write after the window should go through")
	}
	if writes != 2 {
		t.Fatalf("expected 2 store writes, got %d", writes)
	}
}

func TestWriteCacheRetriesAfterFailedWrite(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	cache := NewWriteCache(clock)

	fail := errors.New("store unavailable")
	calls := 0
	write := func(key, value string) error {
		calls++
		if calls == 1 {
			return fail
		}
		return nil
	}

	if cache.TryWrite("map", "archipelago", write) {
		t.Fatalf("failed write should report false")
	}
	if !cache.TryWrite("map", "archipelago", write) {
		t.Fatalf("retry after a failed write should not be suppressed")
	}
}

func TestWriteCacheResetDropsEntries(t *testing.T) {
	clock := &manualClock{now: time.Unix(1000, 0)}
	cache := NewWriteCache(clock)

	writes := 0
	write := func(key, value string) error {
		writes++
		return nil
	}

	cache.TryWrite("map", "archipelago", write)
	cache.Reset()
	if !cache.TryWrite("map", "archipelago", write) {
		t.Fatalf("write after reset should go through")
	}
	if writes != 2 {
		t.Fatalf("expected 2 store writes, got %d", writes)
	}
}

func TestSessionWriterGatesOnOwnership(t *testing.T) {
	hub := NewMemoryHub()
	owner := hub.NewPeer("host-1", "Host")
	guest := hub.NewPeer("guest-1", "Guest")

	ownerQueue := newEventQueue(nil)
	owner.Attach(ownerQueue)
	guestQueue := newEventQueue(nil)
	guest.Attach(guestQueue)

	if err := owner.CreateSession(SessionSettings{MemberCap: 4}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	var sessionID SessionID
	ownerQueue.Drain(func(ev Event) {
		if e, ok := ev.(SessionEntered); ok {
			sessionID = e.Session
		}
	})
	if sessionID == "" {
		t.Fatalf("no session entered event")
	}
	if err := guest.JoinSession(sessionID); err != nil {
		t.Fatalf("join session: %v", err)
	}

	clock := &manualClock{now: time.Unix(1000, 0)}

	hostState := &sessionState{ID: sessionID, Owner: "host-1", Local: "host-1", InSession: true, DataReady: true}
	hostWriter := newSessionWriter(hostState, owner, clock, logging.NopPublisher())
	if !hostWriter.SetSessionData(keyLobbyName, "alpha") {
		t.Fatalf("owner write should go through")
	}
	if got := owner.SessionData(sessionID, keyLobbyName); got != "alpha" {
		t.Fatalf("expected session data %q, got %q", "alpha", got)
	}

	guestState := &sessionState{ID: sessionID, Owner: "host-1", Local: "guest-1", InSession: true, DataReady: true}
	guestWriter := newSessionWriter(guestState, guest, clock, logging.NopPublisher())
	if guestWriter.SetSessionData(keyLobbyName, "beta") {
		t.Fatalf("non-owner session write should be rejected")
	}
	if !guestWriter.SetMemberData(memberKeyTeam, "R") {
		t.Fatalf("member write should go through for anyone")
	}
	if got := guest.MemberData(sessionID, "guest-1", memberKeyTeam); got != "R" {
		t.Fatalf("expected member team %q, got %q", "R", got)
	}
}
