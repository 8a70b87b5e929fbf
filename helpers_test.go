package lobby

import (
	"testing"
	"time"
)

// hostedSession is a minimal session fixture: one hosted session on an
// in-memory hub with a working writer for the host.
type hostedSession struct {
	hub    *MemoryHub
	dir    *MemoryDirectory
	queue  *eventQueue
	state  *sessionState
	writer *sessionWriter
	clock  *manualClock
}

func newHostedSession(t *testing.T, hostID MemberID, hostName string) *hostedSession {
	t.Helper()
	hub := NewMemoryHub()
	dir := hub.NewPeer(hostID, hostName)
	queue := newEventQueue(nil)
	dir.Attach(queue)

	if err := dir.CreateSession(SessionSettings{MemberCap: 8}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	var sessionID SessionID
	queue.Drain(func(ev Event) {
		if e, ok := ev.(SessionEntered); ok {
			sessionID = e.Session
		}
	})
	if sessionID == "" {
		t.Fatalf("session creation produced no event")
	}

	state := &sessionState{
		ID:        sessionID,
		Owner:     hostID,
		Local:     hostID,
		InSession: true,
		DataReady: true,
	}
	clock := &manualClock{now: time.Unix(1000, 0)}
	writer := newSessionWriter(state, dir, clock, nil)
	return &hostedSession{hub: hub, dir: dir, queue: queue, state: state, writer: writer, clock: clock}
}

// joinPeer adds a second member to the fixture's session.
func (h *hostedSession) joinPeer(t *testing.T, id MemberID, name string) (*MemoryDirectory, *eventQueue) {
	t.Helper()
	dir := h.hub.NewPeer(id, name)
	queue := newEventQueue(nil)
	dir.Attach(queue)
	if err := dir.JoinSession(h.state.ID); err != nil {
		t.Fatalf("join session: %v", err)
	}
	entered := false
	queue.Drain(func(ev Event) {
		if e, ok := ev.(SessionEntered); ok && e.Err == "" {
			entered = true
		}
	})
	if !entered {
		t.Fatalf("peer %s failed to enter session", id)
	}
	return dir, queue
}
