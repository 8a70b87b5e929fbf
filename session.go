package lobby

// Phase distinguishes the lobby (configuration) phase from a running match.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseMatch
)

// sessionState is the single source of truth for "where are we" shared by the
// engine's components. It is owned by the engine goroutine; nothing mutates it
// from outside a tick or an engine operation.
type sessionState struct {
	ID    SessionID
	Owner MemberID
	Local MemberID

	// InSession is set the moment a create/join is requested; DataReady only
	// once the directory confirms entry and the store is usable.
	InSession bool
	DataReady bool

	// InMatch gates the replicator: reconciliation stops while a match runs.
	InMatch bool

	// ReadyToPlay marks a non-host that has observed started=yes and may
	// begin loading the match.
	ReadyToPlay bool
}

func (s *sessionState) IsOwner() bool {
	return s.InSession && s.Local == s.Owner
}

func (s *sessionState) Phase() Phase {
	if s.InMatch {
		return PhaseMatch
	}
	return PhaseLobby
}

func (s *sessionState) reset() {
	s.ID = ""
	s.Owner = ""
	s.InSession = false
	s.DataReady = false
	s.InMatch = false
	s.ReadyToPlay = false
}
