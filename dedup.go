package lobby

import (
	"context"
	"time"

	"skirmish/lobby/logging"
)

// writeDeadline is the debounce window: repeated writes of an unchanged value
// to the same key are suppressed for this long. The session store rate-limits
// writers, and it does not de-duplicate for us.
const writeDeadline = 5 * time.Second

type writeEntry struct {
	value    string
	deadline time.Time
}

// WriteCache is the per-key debounce gate in front of the session store. A
// write is suppressed only when the value is unchanged and the entry's
// deadline has not passed; a different value always goes through immediately.
type WriteCache struct {
	clock   logging.Clock
	window  time.Duration
	entries map[string]writeEntry
}

func NewWriteCache(clock logging.Clock) *WriteCache {
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	return &WriteCache{
		clock:   clock,
		window:  writeDeadline,
		entries: make(map[string]writeEntry),
	}
}

// TryWrite invokes write unless the (key, value) pair is still inside its
// debounce window. It reports whether the store write was issued.
func (c *WriteCache) TryWrite(key, value string, write func(key, value string) error) bool {
	now := c.clock.Now()
	if entry, ok := c.entries[key]; ok && entry.value == value && now.Before(entry.deadline) {
		return false
	}
	if err := write(key, value); err != nil {
		// Leave the entry untouched so the next tick retries.
		return false
	}
	c.entries[key] = writeEntry{value: value, deadline: now.Add(c.window)}
	return true
}

// Reset drops every cached entry. Called when leaving a session.
func (c *WriteCache) Reset() {
	c.entries = make(map[string]writeEntry)
}

// sessionWriter layers ownership and readiness gating on top of the dedup
// caches: session-level keys are host-authoritative, per-member keys are
// writable by anyone for their own row. Components never call the directory's
// setters directly.
type sessionWriter struct {
	st         *sessionState
	dir        Directory
	sessionSet *WriteCache
	memberSet  *WriteCache
	log        logging.Publisher
}

func newSessionWriter(st *sessionState, dir Directory, clock logging.Clock, log logging.Publisher) *sessionWriter {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &sessionWriter{
		st:         st,
		dir:        dir,
		sessionSet: NewWriteCache(clock),
		memberSet:  NewWriteCache(clock),
		log:        log,
	}
}

// SetSessionData writes a session-level key through the dedup gate. Silently
// a no-op unless the local member owns a ready session.
func (w *sessionWriter) SetSessionData(key, value string) bool {
	if !w.st.InSession || !w.st.DataReady || !w.st.IsOwner() {
		return false
	}
	wrote := w.sessionSet.TryWrite(key, value, func(k, v string) error {
		return w.dir.SetSessionData(w.st.ID, k, v)
	})
	if wrote {
		w.log.Publish(context.Background(), logging.Event{
			Type:     "store_write",
			Severity: logging.SeverityDebug,
			Category: logging.CategoryReplication,
			Actor:    logging.EntityRef{ID: key, Kind: logging.EntityKindKey},
		})
	}
	return wrote
}

// SetMemberData writes the local member's own metadata through the dedup gate.
func (w *sessionWriter) SetMemberData(key, value string) bool {
	if !w.st.InSession || !w.st.DataReady {
		return false
	}
	return w.memberSet.TryWrite(key, value, func(k, v string) error {
		return w.dir.SetMemberData(w.st.ID, k, v)
	})
}

// SetMemberDataNow bypasses the debounce window for one-shot flags such as
// loaded/ready transitions, where a suppressed write could wedge a barrier.
func (w *sessionWriter) SetMemberDataNow(key, value string) {
	if !w.st.InSession {
		return
	}
	_ = w.dir.SetMemberData(w.st.ID, key, value)
	w.memberSet.entries[key] = writeEntry{value: value, deadline: w.memberSet.clock.Now().Add(w.memberSet.window)}
}

// Reset drops both caches. Called when leaving a session.
func (w *sessionWriter) Reset() {
	w.sessionSet.Reset()
	w.memberSet.Reset()
}
