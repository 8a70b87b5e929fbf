package lobby

import (
	"context"
	"strings"
	"unicode/utf8"

	"skirmish/lobby/logging"
)

// transcriptLimit bounds the in-memory chat history.
const transcriptLimit = 200

// Chat line colors, hex without the leading hash.
const (
	colorNotice = "c0c0c0"
	colorSystem = "ffd700"
	colorEagle  = "5588ee"
	colorRaven  = "ee5555"
)

// ChatLine is one rendered transcript entry. Name is empty for notices.
type ChatLine struct {
	Name  string
	Text  string
	Color string
}

// Chat owns the transcript and routes outgoing text to whichever bus the
// current phase uses: the directory's chat bus in the lobby, the match relay
// once a match runs. Slash commands never travel as visible chat; they are
// dispatched, and host commands that must replicate are forwarded as raw
// command lines that clients execute instead of display.
type Chat struct {
	st         *sessionState
	dir        Directory
	dispatcher *Dispatcher
	log        logging.Publisher

	// sendFrame delivers a frame to all peers over the match relay. Wired by
	// the engine; nil outside a match.
	sendFrame func(f Frame) error

	transcript []ChatLine
}

func newChat(st *sessionState, dir Directory, dispatcher *Dispatcher, log logging.Publisher) *Chat {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &Chat{st: st, dir: dir, dispatcher: dispatcher, log: log}
}

// Transcript returns the current history, oldest first.
func (c *Chat) Transcript() []ChatLine {
	return c.transcript
}

// PushMessage appends a member message to the transcript.
func (c *Chat) PushMessage(name, text, color string) {
	c.push(ChatLine{Name: name, Text: text, Color: color})
}

// PushNotice appends a system notice.
func (c *Chat) PushNotice(text string) {
	c.push(ChatLine{Text: text, Color: colorNotice})
}

// Submit handles locally typed input. Slash input goes to the dispatcher;
// everything else is sent to the session and echoed locally.
func (c *Chat) Submit(text string, teamOnly bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		res := c.dispatcher.Dispatch(text, c.st.Local, true)
		if res.reply != "" {
			c.push(ChatLine{Text: res.reply, Color: colorSystem})
		}
		if res.broadcast {
			c.forwardRaw(text)
		}
		return
	}
	if !c.st.InSession {
		return
	}
	frame := Frame{
		Kind:     FrameChat,
		Sender:   string(c.st.Local),
		Name:     c.dir.DisplayName(c.st.Local),
		Text:     text,
		Team:     int(c.localTeam()),
		TeamOnly: teamOnly,
	}
	if c.st.InMatch && c.sendFrame != nil {
		if err := c.sendFrame(frame); err != nil {
			c.logDeliveryError(err)
		}
		// The relay does not echo to the sender.
		c.PushMessage(frame.Name, frame.Text, teamColor(TeamID(frame.Team)))
		return
	}
	data, err := encodeFrame(frame)
	if err != nil {
		return
	}
	if err := c.dir.SendChat(c.st.ID, data); err != nil {
		c.logDeliveryError(err)
	}
}

// HandleSessionChat processes one raw message from the lobby chat bus. The
// payload is untrusted: invalid UTF-8 is sanitized and anything undecodable
// is shown as plain text rather than dropped.
func (c *Chat) HandleSessionChat(sender MemberID, data []byte) {
	frame, err := decodeFrame(data)
	if err != nil {
		text := sanitizeText(string(data))
		if text == "" {
			return
		}
		if c.handleCommandLine(sender, text) {
			return
		}
		c.PushMessage(c.dir.DisplayName(sender), text, colorNotice)
		return
	}
	text := sanitizeText(frame.Text)
	if text == "" {
		return
	}
	if c.handleCommandLine(sender, text) {
		return
	}
	c.PushMessage(c.dir.DisplayName(sender), text, teamColor(TeamID(frame.Team)))
}

// HandleMatchFrame processes one chat frame from the relay, applying the
// team-only filter against the local team.
func (c *Chat) HandleMatchFrame(from MemberID, frame Frame) {
	if frame.Kind != FrameChat {
		return
	}
	text := sanitizeText(frame.Text)
	if text == "" {
		return
	}
	if c.handleCommandLine(from, text) {
		return
	}
	if frame.TeamOnly && TeamID(frame.Team) != c.localTeam() {
		return
	}
	name := frame.Name
	if name == "" {
		name = c.dir.DisplayName(from)
	}
	c.PushMessage(name, text, teamColor(TeamID(frame.Team)))
}

// Reset clears the transcript when leaving a session.
func (c *Chat) Reset() {
	c.transcript = nil
}

// handleCommandLine intercepts slash lines arriving over chat. They are
// dispatched as remote commands and never rendered, whoever sent them.
func (c *Chat) handleCommandLine(sender MemberID, text string) bool {
	if !strings.HasPrefix(text, "/") {
		return false
	}
	if sender == c.st.Local {
		// Our own broadcast command coming back around.
		return true
	}
	c.dispatcher.Dispatch(text, sender, false)
	return true
}

// forwardRaw replicates a host command line to every peer on whichever bus
// the phase uses.
func (c *Chat) forwardRaw(text string) {
	frame := Frame{Kind: FrameChat, Sender: string(c.st.Local), Text: text}
	if c.st.InMatch && c.sendFrame != nil {
		if err := c.sendFrame(frame); err != nil {
			c.logDeliveryError(err)
		}
		return
	}
	data, err := encodeFrame(frame)
	if err != nil {
		return
	}
	if err := c.dir.SendChat(c.st.ID, data); err != nil {
		c.logDeliveryError(err)
	}
}

func (c *Chat) push(line ChatLine) {
	c.transcript = append(c.transcript, line)
	if len(c.transcript) > transcriptLimit {
		c.transcript = c.transcript[len(c.transcript)-transcriptLimit:]
	}
	c.log.Publish(context.Background(), logging.Event{
		Type:     "chat_line",
		Severity: logging.SeverityDebug,
		Category: logging.CategoryChat,
		Payload:  map[string]any{"name": line.Name, "text": line.Text},
	})
}

func (c *Chat) localTeam() TeamID {
	raw := c.dir.MemberData(c.st.ID, c.st.Local, memberKeyTeam)
	if raw == "R" {
		return TeamRaven
	}
	return TeamEagle
}

func (c *Chat) logDeliveryError(err error) {
	c.log.Publish(context.Background(), logging.Event{
		Type:     "chat_send_failed",
		Severity: logging.SeverityWarn,
		Category: logging.CategoryChat,
		Payload:  map[string]any{"error": err.Error()},
	})
}

// sanitizeText strips invalid UTF-8 and control characters from untrusted
// chat payloads.
func sanitizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// isCommandFrame reports whether a relay chat frame carries a slash-command
// line. The host never fans those out to the other peers.
func isCommandFrame(f Frame) bool {
	return f.Kind == FrameChat && strings.HasPrefix(strings.TrimSpace(f.Text), "/")
}

func teamColor(team TeamID) string {
	if team == TeamRaven {
		return colorRaven
	}
	return colorEagle
}
