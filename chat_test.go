package lobby

import (
	"strings"
	"testing"
)

type chatFixture struct {
	session    *hostedSession
	chat       *Chat
	dispatcher *Dispatcher
	membership *Membership
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	s := newHostedSession(t, "host-1", "Host")
	f := &chatFixture{session: s}
	f.dispatcher = newDispatcher(s.state, nil)
	f.membership = newMembership(s.state, s.dir, nil)
	registerBuiltins(f.dispatcher, builtinDeps{
		st:          s.state,
		dir:         s.dir,
		membership:  f.membership,
		sim:         NewLocalSimulation(),
		setNameTags: func(bool, bool) {},
		forceLeave:  func(string) {},
	})
	f.chat = newChat(s.state, s.dir, f.dispatcher, nil)
	return f
}

// pump feeds queued session chat events back into the chat component, the
// way the engine does on a tick.
func (f *chatFixture) pump() {
	f.session.queue.Drain(func(ev Event) {
		if e, ok := ev.(SessionChatReceived); ok {
			f.chat.HandleSessionChat(e.Sender, e.Data)
		}
	})
}

func TestChatSubmitEchoesThroughSessionBus(t *testing.T) {
	f := newChatFixture(t)
	f.chat.Submit("hello there", false)
	f.pump()

	lines := f.chat.Transcript()
	if len(lines) != 1 {
		t.Fatalf("expected 1 transcript line, got %d", len(lines))
	}
	if lines[0].Name != "Host" || lines[0].Text != "hello there" {
		t.Fatalf("line = %+v", lines[0])
	}
}

func TestChatSlashInputIsDispatchedNotSent(t *testing.T) {
	f := newChatFixture(t)
	f.chat.Submit("/help", false)
	f.pump()

	lines := f.chat.Transcript()
	if len(lines) != 1 {
		t.Fatalf("expected only the command reply, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0].Text, "help") {
		t.Fatalf("reply = %q", lines[0].Text)
	}
}

func TestChatRemoteCommandLineNeverRendered(t *testing.T) {
	f := newChatFixture(t)
	guestDir, _ := f.session.joinPeer(t, "guest-1", "Guest")
	f.session.queue.Discard()

	// Guest chat state mirrors the session from their side.
	guestState := &sessionState{ID: f.session.state.ID, Owner: "host-1", Local: "guest-1", InSession: true, DataReady: true}
	guestDispatcher := newDispatcher(guestState, nil)
	var left int
	registerBuiltins(guestDispatcher, builtinDeps{
		st:          guestState,
		dir:         guestDir,
		membership:  newMembership(guestState, guestDir, nil),
		sim:         NewLocalSimulation(),
		setNameTags: func(bool, bool) {},
		forceLeave:  func(string) { left++ },
	})
	guestChat := newChat(guestState, guestDir, guestDispatcher, nil)

	// The host's broadcast ban arrives on the guest's chat bus.
	frame := Frame{Kind: FrameChat, Sender: "host-1", Text: "/ban guest-1"}
	data, err := encodeFrame(frame)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	guestChat.HandleSessionChat("host-1", data)

	if len(guestChat.Transcript()) != 0 {
		t.Fatalf("command lines must not show up as chat")
	}
	if left != 1 {
		t.Fatalf("remote ban should have forced a leave")
	}
}

func TestChatSanitizesHostilePayloads(t *testing.T) {
	f := newChatFixture(t)

	f.chat.HandleSessionChat("host-1", []byte{0xff, 0xfe, 0x00})
	if len(f.chat.Transcript()) != 0 {
		t.Fatalf("pure garbage should produce no line")
	}

	f.chat.HandleSessionChat("host-1", []byte("plain\x01text\xffhere"))
	lines := f.chat.Transcript()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if strings.ContainsAny(lines[0].Text, "\x01\xff") {
		t.Fatalf("control bytes leaked into transcript: %q", lines[0].Text)
	}
}

func TestChatTeamOnlyFilter(t *testing.T) {
	f := newChatFixture(t)
	f.session.joinPeer(t, "guest-1", "Guest")

	// Local member is on Eagle (default). A Raven team-only frame is hidden.
	f.chat.HandleMatchFrame("guest-1", Frame{
		Kind: FrameChat, Sender: "guest-1", Name: "Guest",
		Text: "enemy spotted", Team: int(TeamRaven), TeamOnly: true,
	})
	if len(f.chat.Transcript()) != 0 {
		t.Fatalf("cross-team whisper should be hidden")
	}

	f.chat.HandleMatchFrame("guest-1", Frame{
		Kind: FrameChat, Sender: "guest-1", Name: "Guest",
		Text: "push mid", Team: int(TeamEagle), TeamOnly: true,
	})
	if len(f.chat.Transcript()) != 1 {
		t.Fatalf("same-team whisper should be shown")
	}
}

func TestChatNoticeAndTranscriptBound(t *testing.T) {
	f := newChatFixture(t)
	f.chat.PushNotice("joined")
	if got := f.chat.Transcript(); len(got) != 1 || got[0].Name != "" {
		t.Fatalf("notice line = %+v", got)
	}

	for i := 0; i < transcriptLimit+50; i++ {
		f.chat.PushNotice("spam")
	}
	if got := len(f.chat.Transcript()); got != transcriptLimit {
		t.Fatalf("transcript length = %d, want %d", got, transcriptLimit)
	}

	f.chat.Reset()
	if len(f.chat.Transcript()) != 0 {
		t.Fatalf("reset should clear the transcript")
	}
}
