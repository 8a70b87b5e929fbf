package lobby

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	errSessionUnknown = errors.New("unknown session")
	errSessionFull    = errors.New("session is full")
	errNotAttached    = errors.New("directory has no event queue attached")
)

type memorySession struct {
	id         SessionID
	owner      MemberID
	settings   SessionSettings
	data       map[string]string
	members    []MemberID
	memberData map[MemberID]map[string]string
}

func (s *memorySession) hasMember(m MemberID) bool {
	for _, member := range s.members {
		if member == m {
			return true
		}
	}
	return false
}

// MemoryHub is an in-process session directory shared by a set of peers.
// It mirrors the semantics the engine expects from a real matchmaking
// backend: asynchronous create/join results, member notifications, a shared
// string store, and a chat bus that echoes to the sender.
type MemoryHub struct {
	mu       sync.Mutex
	sessions map[SessionID]*memorySession
	peers    map[MemberID]*MemoryDirectory
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		sessions: make(map[SessionID]*memorySession),
		peers:    make(map[MemberID]*MemoryDirectory),
	}
}

// NewPeer registers a member with the hub and returns its directory handle.
func (h *MemoryHub) NewPeer(id MemberID, name string) *MemoryDirectory {
	d := &MemoryDirectory{hub: h, id: id, name: name}
	h.mu.Lock()
	h.peers[id] = d
	h.mu.Unlock()
	return d
}

func (h *MemoryHub) post(member MemberID, ev Event) {
	if peer, ok := h.peers[member]; ok && peer.queue != nil {
		peer.queue.Post(ev)
	}
}

func (h *MemoryHub) postAll(s *memorySession, ev Event) {
	for _, member := range s.members {
		h.post(member, ev)
	}
}

// MemoryDirectory is one peer's view of a MemoryHub.
type MemoryDirectory struct {
	hub   *MemoryHub
	id    MemberID
	name  string
	queue interface{ Post(Event) }
}

// Attach connects the directory to the engine's event queue. Must be called
// before any session operation.
func (d *MemoryDirectory) Attach(queue interface{ Post(Event) }) {
	d.queue = queue
}

func (d *MemoryDirectory) LocalID() MemberID { return d.id }

func (d *MemoryDirectory) DisplayName(member MemberID) string {
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	if peer, ok := d.hub.peers[member]; ok {
		return peer.name
	}
	return string(member)
}

func (d *MemoryDirectory) CreateSession(settings SessionSettings) error {
	if d.queue == nil {
		return errNotAttached
	}
	d.hub.mu.Lock()
	id := SessionID(uuid.NewString())
	s := &memorySession{
		id:         id,
		owner:      d.id,
		settings:   settings,
		data:       make(map[string]string),
		members:    []MemberID{d.id},
		memberData: map[MemberID]map[string]string{d.id: {}},
	}
	d.hub.sessions[id] = s
	d.hub.mu.Unlock()
	d.hub.post(d.id, SessionEntered{Session: id})
	return nil
}

func (d *MemoryDirectory) JoinSession(id SessionID) error {
	if d.queue == nil {
		return errNotAttached
	}
	d.hub.mu.Lock()
	s, ok := d.hub.sessions[id]
	if !ok {
		d.hub.mu.Unlock()
		d.hub.post(d.id, SessionEntered{Session: id, Err: errSessionUnknown.Error()})
		return nil
	}
	if s.settings.MemberCap > 0 && len(s.members) >= s.settings.MemberCap {
		d.hub.mu.Unlock()
		d.hub.post(d.id, SessionEntered{Session: id, Err: errSessionFull.Error()})
		return nil
	}
	others := append([]MemberID(nil), s.members...)
	s.members = append(s.members, d.id)
	s.memberData[d.id] = map[string]string{}
	d.hub.mu.Unlock()

	d.hub.post(d.id, SessionEntered{Session: id})
	for _, member := range others {
		d.hub.post(member, MemberEntered{Member: d.id})
	}
	return nil
}

func (d *MemoryDirectory) LeaveSession(id SessionID) {
	d.hub.mu.Lock()
	s, ok := d.hub.sessions[id]
	if !ok || !s.hasMember(d.id) {
		d.hub.mu.Unlock()
		return
	}
	remaining := make([]MemberID, 0, len(s.members)-1)
	for _, member := range s.members {
		if member != d.id {
			remaining = append(remaining, member)
		}
	}
	s.members = remaining
	delete(s.memberData, d.id)
	closing := d.id == s.owner || len(s.members) == 0
	if closing {
		delete(d.hub.sessions, id)
	}
	d.hub.mu.Unlock()

	for _, member := range remaining {
		d.hub.post(member, MemberLeft{Member: d.id})
	}
}

func (d *MemoryDirectory) RequestSessionList() error {
	if d.queue == nil {
		return errNotAttached
	}
	d.hub.mu.Lock()
	ids := make([]SessionID, 0, len(d.hub.sessions))
	for id := range d.hub.sessions {
		ids = append(ids, id)
	}
	d.hub.mu.Unlock()
	d.hub.post(d.id, SessionListReceived{Sessions: ids})
	return nil
}

func (d *MemoryDirectory) RequestSessionData(id SessionID) error {
	if d.queue == nil {
		return errNotAttached
	}
	d.hub.mu.Lock()
	_, ok := d.hub.sessions[id]
	d.hub.mu.Unlock()
	d.hub.post(d.id, SessionDataUpdated{Session: id, Success: ok})
	return nil
}

func (d *MemoryDirectory) SessionData(id SessionID, key string) string {
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	if s, ok := d.hub.sessions[id]; ok {
		return s.data[key]
	}
	return ""
}

// SetSessionData writes a session key. Owner only, matching how real
// directories scope session metadata.
func (d *MemoryDirectory) SetSessionData(id SessionID, key, value string) error {
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	s, ok := d.hub.sessions[id]
	if !ok {
		return errSessionUnknown
	}
	if s.owner != d.id {
		return errors.New("only the owner can set session data")
	}
	s.data[key] = value
	return nil
}

func (d *MemoryDirectory) MemberData(id SessionID, member MemberID, key string) string {
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	if s, ok := d.hub.sessions[id]; ok {
		if row, ok := s.memberData[member]; ok {
			return row[key]
		}
	}
	return ""
}

// SetMemberData writes the caller's own member row.
func (d *MemoryDirectory) SetMemberData(id SessionID, key, value string) error {
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	s, ok := d.hub.sessions[id]
	if !ok {
		return errSessionUnknown
	}
	row, ok := s.memberData[d.id]
	if !ok {
		return errors.New("not a member of this session")
	}
	row[key] = value
	return nil
}

func (d *MemoryDirectory) Members(id SessionID) []MemberID {
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	if s, ok := d.hub.sessions[id]; ok {
		return append([]MemberID(nil), s.members...)
	}
	return nil
}

func (d *MemoryDirectory) MemberLimit(id SessionID) int {
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	if s, ok := d.hub.sessions[id]; ok {
		return s.settings.MemberCap
	}
	return 0
}

// SendChat delivers a payload to every member of the session, the sender
// included.
func (d *MemoryDirectory) SendChat(id SessionID, data []byte) error {
	d.hub.mu.Lock()
	s, ok := d.hub.sessions[id]
	if !ok || !s.hasMember(d.id) {
		d.hub.mu.Unlock()
		return errSessionUnknown
	}
	members := append([]MemberID(nil), s.members...)
	d.hub.mu.Unlock()
	payload := append([]byte(nil), data...)
	for _, member := range members {
		d.hub.post(member, SessionChatReceived{Sender: d.id, Data: payload})
	}
	return nil
}
