package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"skirmish/lobby/logging"
)

// FrameKind discriminates relay frames.
type FrameKind string

const (
	FrameChat FrameKind = "chat"
	FramePing FrameKind = "ping"
)

// Frame is the wire unit of the match relay. Chat frames double as the
// command transport: a Text starting with "/" is a command line, not chat.
type Frame struct {
	Kind     FrameKind `json:"kind"`
	Sender   string    `json:"sender"`
	Name     string    `json:"name,omitempty"`
	Text     string    `json:"text,omitempty"`
	Team     int       `json:"team,omitempty"`
	TeamOnly bool      `json:"teamOnly,omitempty"`
	SentAt   int64     `json:"sentAt,omitempty"`
}

func encodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Kind == "" {
		return Frame{}, fmt.Errorf("frame missing kind")
	}
	return f, nil
}

const relayWriteTimeout = 5 * time.Second

// relayConn wraps a websocket connection with a write mutex; gorilla permits
// only one concurrent writer per connection.
type relayConn struct {
	member MemberID
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *relayConn) send(f Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(relayWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *relayConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
}

// Relay carries in-match traffic in a star topology: the host runs the
// websocket endpoint, every other member dials it. Incoming frames are posted
// to the event queue, never handled on the read goroutine.
type Relay struct {
	queue *eventQueue
	local MemberID
	host  MemberID
	log   logging.Publisher

	// accept vets an incoming member id before the upgrade; wired by the
	// engine to the ban list.
	accept func(member MemberID) bool

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	conns    map[MemberID]*relayConn
	client   *relayConn
}

func newRelay(queue *eventQueue, log logging.Publisher) *Relay {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &Relay{
		queue: queue,
		log:   log,
		conns: make(map[MemberID]*relayConn),
	}
}

var relayUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Open starts the host-side endpoint on bind and returns the address peers
// should dial.
func (r *Relay) Open(bind string, local MemberID) (string, error) {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return "", fmt.Errorf("relay listen: %w", err)
	}
	router := mux.NewRouter()
	router.HandleFunc("/ws", r.handleUpgrade)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/diagnostics", func(w http.ResponseWriter, _ *http.Request) {
		r.mu.Lock()
		peers := len(r.conns)
		r.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"peers": peers})
	}).Methods(http.MethodGet)

	server := &http.Server{Handler: router}
	r.mu.Lock()
	r.local = local
	r.host = local
	r.server = server
	r.listener = listener
	r.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			r.log.Publish(context.Background(), logging.Event{
				Type:     "relay_serve_failed",
				Severity: logging.SeverityError,
				Category: logging.CategorySystem,
				Payload:  map[string]any{"error": err.Error()},
			})
		}
	}()
	return listener.Addr().String(), nil
}

// Connect dials the host endpoint as a client member.
func (r *Relay) Connect(addr string, local, host MemberID) error {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?member="+string(local), nil)
	if err != nil {
		return fmt.Errorf("relay dial: %w", err)
	}
	c := &relayConn{member: host, conn: conn}
	r.mu.Lock()
	r.local = local
	r.host = host
	r.client = c
	r.mu.Unlock()
	go r.readPump(c)
	return nil
}

func (r *Relay) handleUpgrade(w http.ResponseWriter, req *http.Request) {
	member := MemberID(req.URL.Query().Get("member"))
	if member == "" {
		http.Error(w, "missing member", http.StatusBadRequest)
		return
	}
	if r.accept != nil && !r.accept(member) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := relayUpgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	c := &relayConn{member: member, conn: conn}
	r.mu.Lock()
	if prev, ok := r.conns[member]; ok {
		prev.close()
	}
	r.conns[member] = c
	r.mu.Unlock()
	go r.readPump(c)
}

func (r *Relay) readPump(c *relayConn) {
	defer func() {
		c.conn.Close()
		r.mu.Lock()
		if r.conns[c.member] == c {
			delete(r.conns, c.member)
		}
		if r.client == c {
			r.client = nil
		}
		r.mu.Unlock()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := decodeFrame(data)
		if err != nil {
			r.log.Publish(context.Background(), logging.Event{
				Type:     "relay_bad_frame",
				Severity: logging.SeverityWarn,
				Category: logging.CategorySystem,
				Actor:    logging.EntityRef{ID: string(c.member), Kind: logging.EntityKindMember},
			})
			continue
		}
		r.queue.Post(MatchFrameReceived{From: c.member, Frame: frame})
	}
}

// Broadcast sends a frame to every connected peer. On the host that is every
// client; on a client it is the host, which fans the frame out.
func (r *Relay) Broadcast(f Frame) error {
	r.mu.Lock()
	targets := make([]*relayConn, 0, len(r.conns)+1)
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	if r.client != nil {
		targets = append(targets, r.client)
	}
	r.mu.Unlock()
	var firstErr error
	for _, c := range targets {
		if err := c.send(f); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Forward relays a frame to every peer except its originator. Host only.
func (r *Relay) Forward(f Frame, from MemberID) {
	r.mu.Lock()
	targets := make([]*relayConn, 0, len(r.conns))
	for member, c := range r.conns {
		if member != from {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()
	for _, c := range targets {
		if err := c.send(f); err != nil {
			r.log.Publish(context.Background(), logging.Event{
				Type:     "relay_send_failed",
				Severity: logging.SeverityWarn,
				Category: logging.CategorySystem,
				Actor:    logging.EntityRef{ID: string(c.member), Kind: logging.EntityKindMember},
			})
		}
	}
}

// SendTo delivers a frame to one member. Host only.
func (r *Relay) SendTo(member MemberID, f Frame) error {
	r.mu.Lock()
	c, ok := r.conns[member]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("member %s not connected", member)
	}
	return c.send(f)
}

// CloseMember drops a member's connection, used on eviction.
func (r *Relay) CloseMember(member MemberID) {
	r.mu.Lock()
	c, ok := r.conns[member]
	delete(r.conns, member)
	r.mu.Unlock()
	if ok {
		c.close()
	}
}

// Close tears down listener and every connection.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	server := r.server
	conns := r.conns
	client := r.client
	r.server = nil
	r.listener = nil
	r.conns = make(map[MemberID]*relayConn)
	r.client = nil
	r.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	if client != nil {
		client.close()
	}
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}
