package lobby

import (
	"context"

	"skirmish/lobby/logging"
)

// Event is an asynchronous notification from a collaborator (directory,
// content service, relay). Events are posted from any goroutine and drained
// by the engine at the top of each tick, so handlers never race the tick body.
type Event interface {
	eventName() string
}

// SessionEntered reports the outcome of a create or join attempt.
type SessionEntered struct {
	Session SessionID
	Err     string
}

// SessionDataUpdated reports a refresh of a session's store, including
// sessions observed while browsing.
type SessionDataUpdated struct {
	Session SessionID
	Success bool
}

// MemberEntered reports a peer joining the current session.
type MemberEntered struct {
	Member MemberID
}

// MemberLeft reports a peer leaving, disconnecting, or being evicted.
type MemberLeft struct {
	Member MemberID
}

// SessionListReceived carries the result of RequestSessionList.
type SessionListReceived struct {
	Sessions []SessionID
}

// SessionChatReceived carries one raw message from the lobby chat bus.
type SessionChatReceived struct {
	Sender MemberID
	Data   []byte
}

// DownloadCompleted reports that the content service finished one item.
type DownloadCompleted struct {
	Item ContentID
}

// MatchFrameReceived carries one frame from the in-match relay.
type MatchFrameReceived struct {
	From  MemberID
	Frame Frame
}

func (SessionEntered) eventName() string      { return "session_entered" }
func (SessionDataUpdated) eventName() string  { return "session_data_updated" }
func (MemberEntered) eventName() string       { return "member_entered" }
func (MemberLeft) eventName() string          { return "member_left" }
func (SessionListReceived) eventName() string { return "session_list_received" }
func (SessionChatReceived) eventName() string { return "session_chat_received" }
func (DownloadCompleted) eventName() string   { return "download_completed" }
func (MatchFrameReceived) eventName() string  { return "match_frame_received" }

const eventQueueCapacity = 256

// eventQueue funnels collaborator callbacks into the engine goroutine.
type eventQueue struct {
	ch  chan Event
	log logging.Publisher
}

func newEventQueue(log logging.Publisher) *eventQueue {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &eventQueue{ch: make(chan Event, eventQueueCapacity), log: log}
}

// Post enqueues without blocking; a saturated queue drops the event with a
// diagnostic rather than stalling the caller.
func (q *eventQueue) Post(ev Event) {
	if ev == nil {
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.log.Publish(context.Background(), logging.Event{
			Type:     "event_dropped",
			Severity: logging.SeverityWarn,
			Category: logging.CategorySystem,
			Payload:  map[string]any{"event": ev.eventName()},
		})
	}
}

// Drain delivers every queued event to fn, in arrival order.
func (q *eventQueue) Drain(fn func(Event)) {
	for {
		select {
		case ev := <-q.ch:
			fn(ev)
		default:
			return
		}
	}
}

// Discard empties the queue without handling anything.
func (q *eventQueue) Discard() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}
