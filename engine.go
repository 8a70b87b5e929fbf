package lobby

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"skirmish/lobby/logging"
)

// SessionSummary is one row of the session browser.
type SessionSummary struct {
	ID       SessionID
	Name     string
	Members  int
	Limit    int
	Started  bool
	BuildID  string
	ModCount int
}

// Dependencies bundles the external collaborators an Engine needs.
type Dependencies struct {
	Directory Directory
	Sim       HostSimulation
	Content   ContentService
	Catalog   ContentCatalog
	Config    Config
	Clock     logging.Clock
	Log       logging.Publisher
}

// Engine ties every piece of the session machinery together and owns the
// tick loop contract: all state lives on the engine goroutine, collaborators
// talk to it only by posting events, and one Tick call drains the queue and
// runs a reconciliation pass. Nothing here takes a lock.
type Engine struct {
	cfg      Config
	st       sessionState
	settings HostSettings

	dir     Directory
	sim     HostSimulation
	queue   *eventQueue
	writer  *sessionWriter
	codec   *codec
	repl    *Replicator
	members *Membership
	barrier *Barrier
	cmds    *Dispatcher
	chat    *Chat
	dl      *Downloader
	relay   *Relay
	log     logging.Publisher

	tick            uint64
	pendingHost     bool
	firstDeployDone bool
	browse          map[SessionID]SessionSummary
}

// NewEngine wires the engine from its dependencies. Directory, Sim, Content
// and Catalog are required.
func NewEngine(deps Dependencies) (*Engine, error) {
	if deps.Directory == nil || deps.Sim == nil {
		return nil, fmt.Errorf("engine needs a directory and a simulation")
	}
	if deps.Content == nil || deps.Catalog == nil {
		return nil, fmt.Errorf("engine needs a content service and catalog")
	}
	log := deps.Log
	if log == nil {
		log = logging.NopPublisher()
	}
	clock := deps.Clock
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}

	e := &Engine{
		cfg:    deps.Config,
		dir:    deps.Directory,
		sim:    deps.Sim,
		log:    log,
		browse: make(map[SessionID]SessionSummary),
	}
	e.st.Local = deps.Directory.LocalID()
	e.settings.BuildID = deps.Config.BuildID

	e.queue = newEventQueue(log)
	e.writer = newSessionWriter(&e.st, deps.Directory, clock, log)
	e.codec = newCodec(deps.Sim, log)
	e.repl = newReplicator(&e.st, deps.Directory, deps.Sim, e.codec, e.writer, &e.settings, log)
	e.members = newMembership(&e.st, deps.Directory, log)
	e.barrier = newBarrier(&e.st, deps.Directory, e.writer, log)
	e.cmds = newDispatcher(&e.st, log)
	e.chat = newChat(&e.st, deps.Directory, e.cmds, log)
	e.dl = newDownloader(&e.st, e.writer, deps.Content, deps.Catalog, log)
	e.relay = newRelay(e.queue, log)

	e.wire()
	return e, nil
}

// wire connects the cross-component callbacks.
func (e *Engine) wire() {
	e.repl.onStartObserved = e.startMatchAsClient
	e.members.announceBan = func(target MemberID) {
		e.chat.forwardRaw("/ban " + string(target))
	}
	e.members.onMemberEvicted = e.relay.CloseMember
	e.relay.accept = func(member MemberID) bool {
		return !e.members.IsBanned(member)
	}
	e.barrier.contentSatisfied = func(member MemberID) bool {
		return e.dir.MemberData(e.st.ID, member, memberKeyLoaded) == flagYes
	}
	e.barrier.onStartAnnounced = e.openRelay
	e.dl.onAllSatisfied = func() {
		e.writer.SetMemberDataNow(memberKeyLoaded, flagYes)
		e.repl.InvalidateLists()
	}
	e.chat.sendFrame = e.relay.Broadcast
	registerBuiltins(e.cmds, builtinDeps{
		st:         &e.st,
		dir:        e.dir,
		membership: e.members,
		sim:        e.sim,
		setNameTags: func(enabled, teamOnly bool) {
			e.settings.NameTags = enabled
			e.settings.NameTagsTeamOnly = teamOnly
			e.sim.SetNameTags(enabled, teamOnly)
		},
		forceLeave: func(reason string) {
			e.chat.PushNotice("You were removed from the session: " + reason)
			e.Leave()
		},
	})
}

// Chat exposes the transcript component.
func (e *Engine) Chat() *Chat { return e.chat }

// Commands exposes the dispatcher for extension registration.
func (e *Engine) Commands() *Dispatcher { return e.cmds }

// Downloads exposes content progress for UI polling.
func (e *Engine) Downloads() *Downloader { return e.dl }

// Status is a read-only snapshot of where the engine is.
type Status struct {
	Session     SessionID
	Owner       MemberID
	Local       MemberID
	InSession   bool
	DataReady   bool
	InMatch     bool
	ReadyToPlay bool
	Phase       Phase
}

// State returns a snapshot of the current session state.
func (e *Engine) State() Status {
	return Status{
		Session:     e.st.ID,
		Owner:       e.st.Owner,
		Local:       e.st.Local,
		InSession:   e.st.InSession,
		DataReady:   e.st.DataReady,
		InMatch:     e.st.InMatch,
		ReadyToPlay: e.st.ReadyToPlay,
		Phase:       e.st.Phase(),
	}
}

// BarrierState reports readiness progress.
func (e *Engine) BarrierState() BarrierState { return e.barrier.State() }

// MarkListsChanged flags local loadout edits for replication.
func (e *Engine) MarkListsChanged() { e.repl.MarkListsChanged() }

// Host creates a new session with the given settings.
func (e *Engine) Host(settings HostSettings) error {
	if e.st.InSession {
		return fmt.Errorf("already in a session")
	}
	settings.BuildID = e.cfg.BuildID
	settings.ModTotalSize = e.dl.TotalSize(settings.Mods)
	e.settings = settings
	e.pendingHost = true
	e.st.InSession = true
	if err := e.dir.CreateSession(SessionSettings{
		FriendsOnly: settings.Hidden,
		MemberCap:   e.cfg.MemberCap,
	}); err != nil {
		e.pendingHost = false
		e.st.reset()
		return err
	}
	return nil
}

// Join enters an existing session. Admission checks run once the directory
// confirms entry and session data is readable.
func (e *Engine) Join(id SessionID) error {
	if e.st.InSession {
		return fmt.Errorf("already in a session")
	}
	e.pendingHost = false
	e.st.InSession = true
	if err := e.dir.JoinSession(id); err != nil {
		e.st.reset()
		return err
	}
	return nil
}

// Leave tears the session down and restores pre-session local state.
func (e *Engine) Leave() {
	if !e.st.InSession {
		return
	}
	id := e.st.ID
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	e.relay.Close(ctx)
	cancel()
	if id != "" {
		e.dir.LeaveSession(id)
	}
	e.dl.Restore()
	e.dl.Reset()
	e.members.Reset()
	e.barrier.Reset()
	e.repl.Reset()
	e.writer.Reset()
	e.chat.Reset()
	e.queue.Discard()
	e.st.reset()
	e.firstDeployDone = false
	e.logEvent("session_left", logging.SeverityInfo, nil)
}

// RefreshSessions asks the directory for the current session list. Results
// land in the browser cache over the following ticks.
func (e *Engine) RefreshSessions() error {
	return e.dir.RequestSessionList()
}

// Sessions returns the cached browser rows.
func (e *Engine) Sessions() []SessionSummary {
	out := make([]SessionSummary, 0, len(e.browse))
	for _, s := range e.browse {
		out = append(out, s)
	}
	return out
}

// RequestStart begins the match start sequence. Host only.
func (e *Engine) RequestStart(force bool) error {
	if err := e.barrier.RequestStart(force); err != nil {
		return err
	}
	e.sim.StartMatch()
	e.barrier.CommitStart()
	return nil
}

// MarkReady flags the local player ready to deploy.
func (e *Engine) MarkReady() { e.barrier.MarkReady() }

// TryDeploy reports whether the local player may spawn, recording the first
// successful deploy so later spawns skip the barrier.
func (e *Engine) TryDeploy() bool {
	if !e.barrier.CanDeploy(e.firstDeployDone) {
		return false
	}
	e.firstDeployDone = true
	return true
}

// EndMatch returns the session to the lobby phase.
func (e *Engine) EndMatch() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	e.relay.Close(ctx)
	cancel()
	e.barrier.OnMatchEnded()
	e.firstDeployDone = false
	e.logEvent("match_ended", logging.SeverityInfo, nil)
}

// Tick drains the event queue and runs one replication pass. Call it at a
// fixed rate from a single goroutine.
func (e *Engine) Tick() {
	e.tick++
	e.queue.Drain(e.handleEvent)
	e.repl.Tick()
}

// Queue returns the event sink collaborators post into.
func (e *Engine) Queue() interface{ Post(Event) } { return e.queue }

func (e *Engine) handleEvent(ev Event) {
	switch ev := ev.(type) {
	case SessionEntered:
		e.onSessionEntered(ev)
	case SessionDataUpdated:
		e.onSessionDataUpdated(ev)
	case MemberEntered:
		if e.members.HandleMemberEntered(ev.Member) {
			e.chat.PushNotice(e.dir.DisplayName(ev.Member) + " joined the session.")
		}
	case MemberLeft:
		e.onMemberLeft(ev)
	case SessionListReceived:
		e.browse = make(map[SessionID]SessionSummary, len(ev.Sessions))
		for _, id := range ev.Sessions {
			e.dir.RequestSessionData(id)
		}
	case SessionChatReceived:
		e.chat.HandleSessionChat(ev.Sender, ev.Data)
	case DownloadCompleted:
		e.dl.OnCompleted(ev.Item)
	case MatchFrameReceived:
		// Command lines go to the dispatcher, never back out as chat.
		if e.st.IsOwner() && !isCommandFrame(ev.Frame) {
			e.relay.Forward(ev.Frame, ev.From)
		}
		e.chat.HandleMatchFrame(ev.From, ev.Frame)
	}
}

func (e *Engine) onSessionEntered(ev SessionEntered) {
	if ev.Err != "" {
		e.chat.PushNotice("Could not enter session: " + ev.Err)
		e.st.reset()
		e.pendingHost = false
		return
	}
	e.st.ID = ev.Session
	if e.pendingHost {
		e.pendingHost = false
		e.bootstrapHost()
		return
	}
	e.bootstrapClient()
}

// bootstrapHost publishes the one-time session identity keys and arms the
// replicator.
func (e *Engine) bootstrapHost() {
	e.st.Owner = e.st.Local
	e.st.DataReady = true
	e.writer.SetSessionData(keyOwner, string(e.st.Local))
	e.writer.SetSessionData(keyBuildID, e.settings.BuildID)
	e.writer.SetSessionData(keyMods, FormatContentList(e.settings.Mods))
	size := "Vanilla"
	if len(e.settings.Mods) > 0 {
		size = strconv.FormatUint(e.settings.ModTotalSize, 10)
	}
	e.writer.SetSessionData(keyModTotalSize, size)
	e.writer.SetSessionData(keyStarted, flagNo)
	// The host has every required item by definition.
	e.writer.SetMemberDataNow(memberKeyLoaded, flagYes)
	e.writer.SetMemberDataNow(memberKeyModsDownloaded, strconv.Itoa(len(e.settings.Mods)))
	e.writer.SetMemberDataNow(memberKeyReady, flagNo)
	e.repl.MarkListsChanged()
	e.chat.PushNotice("Session created. Waiting for players.")
	e.logEvent("session_hosted", logging.SeverityInfo, nil)
}

// bootstrapClient runs the admission gates: version match, hot-join policy,
// then content reconciliation.
func (e *Engine) bootstrapClient() {
	id := e.st.ID
	e.st.Owner = MemberID(e.dir.SessionData(id, keyOwner))

	remoteBuild := e.dir.SessionData(id, keyBuildID)
	if remoteBuild != e.cfg.BuildID && !e.cfg.AllowVersionMismatch {
		e.chat.PushNotice(fmt.Sprintf("Session runs build %s, you run %s. Leaving.", remoteBuild, e.cfg.BuildID))
		e.Leave()
		return
	}
	if e.dir.SessionData(id, keyStarted) == flagYes &&
		e.dir.SessionData(id, keyHotjoin) != "true" {
		e.chat.PushNotice("The match has already started and hot join is off. Leaving.")
		e.Leave()
		return
	}

	e.st.DataReady = true
	e.writer.SetMemberDataNow(memberKeyLoaded, flagNo)
	e.writer.SetMemberDataNow(memberKeyReady, flagNo)
	required := ParseContentList(e.dir.SessionData(id, keyMods))
	e.dl.Begin(required)
	if announcement := e.dir.SessionData(id, keyAnnouncement); announcement != "" {
		e.chat.PushNotice(announcement)
	}
	e.chat.PushNotice("Joined session.")
	e.logEvent("session_joined", logging.SeverityInfo, nil)
}

func (e *Engine) onSessionDataUpdated(ev SessionDataUpdated) {
	if !ev.Success || ev.Session == e.st.ID {
		return
	}
	if e.dir.SessionData(ev.Session, keyHidden) == "true" {
		delete(e.browse, ev.Session)
		return
	}
	modCount := len(ParseContentList(e.dir.SessionData(ev.Session, keyMods)))
	e.browse[ev.Session] = SessionSummary{
		ID:       ev.Session,
		Name:     e.dir.SessionData(ev.Session, keyLobbyName),
		Members:  len(e.dir.Members(ev.Session)),
		Limit:    e.dir.MemberLimit(ev.Session),
		Started:  e.dir.SessionData(ev.Session, keyStarted) == flagYes,
		BuildID:  e.dir.SessionData(ev.Session, keyBuildID),
		ModCount: modCount,
	}
}

func (e *Engine) onMemberLeft(ev MemberLeft) {
	name := e.dir.DisplayName(ev.Member)
	if e.members.HandleMemberLeft(ev.Member) {
		e.chat.PushNotice("The host closed the session.")
		e.Leave()
		return
	}
	e.relay.CloseMember(ev.Member)
	e.chat.PushNotice(name + " left the session.")
}

// openRelay starts the host endpoint and advertises its address.
func (e *Engine) openRelay() {
	addr, err := e.relay.Open(e.cfg.RelayBind, e.st.Local)
	if err != nil {
		e.logEvent("relay_open_failed", logging.SeverityError, map[string]any{"error": err.Error()})
		return
	}
	e.writer.SetSessionData(keyRelayAddr, addr)
}

// startMatchAsClient reacts to the host's start announcement.
func (e *Engine) startMatchAsClient() {
	addr := e.dir.SessionData(e.st.ID, keyRelayAddr)
	if addr != "" {
		if err := e.relay.Connect(addr, e.st.Local, e.st.Owner); err != nil {
			e.logEvent("relay_connect_failed", logging.SeverityError, map[string]any{"error": err.Error()})
		}
	}
	e.sim.StartMatch()
	e.barrier.CommitStart()
	e.chat.PushNotice("Match starting.")
}

func (e *Engine) logEvent(typ logging.EventType, sev logging.Severity, payload map[string]any) {
	e.log.Publish(context.Background(), logging.Event{
		Type:     typ,
		Tick:     e.tick,
		Severity: sev,
		Category: logging.CategorySystem,
		Actor:    logging.EntityRef{ID: string(e.st.ID), Kind: logging.EntityKindSession},
		Payload:  payload,
	})
}
