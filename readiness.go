package lobby

import (
	"context"
	"errors"
	"fmt"

	"skirmish/lobby/logging"
)

// Flag values for the yes/no member and session keys.
const (
	flagYes = "yes"
	flagNo  = "no"
)

// BarrierState describes where the session is on the road to a match.
type BarrierState int

const (
	BarrierNotReady BarrierState = iota
	BarrierWaitingForLoad
	BarrierReadyToStart
	BarrierStarted
)

var errNotOwner = errors.New("only the session owner can start the match")

// Barrier coordinates the transition from lobby to match. The loaded member
// key means the member has all required content; the host refuses a start
// while anyone's reads no. After the announcement every client loads the
// match scene and flags itself ready, and the first deploy waits until every
// loaded member is ready. Members still downloading are deliberately outside
// the first-deploy barrier so one slow client cannot hold the match hostage
// forever, and hot-joiners after the first deploy skip the barrier entirely.
type Barrier struct {
	st     *sessionState
	dir    Directory
	writer *sessionWriter
	log    logging.Publisher

	// contentSatisfied reports whether a member has every required content
	// item, consulted before the start announcement.
	contentSatisfied func(member MemberID) bool
	// onStartAnnounced fires once per announcement so the engine can open
	// the match relay before clients try to connect.
	onStartAnnounced func()

	intention bool
	committed bool
}

func newBarrier(st *sessionState, dir Directory, writer *sessionWriter, log logging.Publisher) *Barrier {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &Barrier{st: st, dir: dir, writer: writer, log: log}
}

// RequestStart announces the match start. Unless force is set, it refuses
// while any member is still missing required content; the refusal arms the
// intention flag, so the next request overrides the check exactly once. The
// committed flag makes the announcement one-shot: repeating the request while
// a start is in flight does nothing.
func (b *Barrier) RequestStart(force bool) error {
	if !b.st.IsOwner() {
		return errNotOwner
	}
	if b.committed {
		return nil
	}
	if !force && !b.intention && b.contentSatisfied != nil {
		for _, member := range b.dir.Members(b.st.ID) {
			if !b.contentSatisfied(member) {
				b.intention = true
				return fmt.Errorf("member %s is still downloading content", b.dir.DisplayName(member))
			}
		}
	}
	b.intention = false
	b.committed = true
	b.writer.SetSessionData(keyStarted, flagYes)
	if b.onStartAnnounced != nil {
		b.onStartAnnounced()
	}
	b.log.Publish(context.Background(), logging.Event{
		Type:     "match_start_announced",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryReplication,
	})
	return nil
}

// CommitStart records that the local match scene is up. The loaded member
// key is not touched here: it tracks content, and the download orchestrator
// owns it.
func (b *Barrier) CommitStart() {
	b.st.InMatch = true
}

// MarkReady flags the local member ready to deploy.
func (b *Barrier) MarkReady() {
	b.writer.SetMemberDataNow(memberKeyReady, flagYes)
}

// CanDeploy reports whether the local player may spawn. Before the first
// deploy, every member that has finished loading must also be ready; members
// still loading are ignored. After the first deploy there is no barrier.
func (b *Barrier) CanDeploy(firstDeployDone bool) bool {
	if !b.st.InSession || !b.st.InMatch {
		return false
	}
	if firstDeployDone {
		return true
	}
	for _, member := range b.dir.Members(b.st.ID) {
		if b.dir.MemberData(b.st.ID, member, memberKeyLoaded) != flagYes {
			continue
		}
		if b.dir.MemberData(b.st.ID, member, memberKeyReady) != flagYes {
			return false
		}
	}
	return true
}

// State summarizes the barrier for UI polling: NotReady outside a live
// session, WaitingForLoad while any member is missing content, ReadyToStart
// once everyone has it, Started after the announcement.
func (b *Barrier) State() BarrierState {
	switch {
	case b.st.InMatch || b.committed:
		return BarrierStarted
	case !b.st.InSession || !b.st.DataReady:
		return BarrierNotReady
	case b.allMembersLoaded():
		return BarrierReadyToStart
	default:
		return BarrierWaitingForLoad
	}
}

func (b *Barrier) allMembersLoaded() bool {
	if b.contentSatisfied == nil {
		return true
	}
	for _, member := range b.dir.Members(b.st.ID) {
		if !b.contentSatisfied(member) {
			return false
		}
	}
	return true
}

// OnMatchEnded rolls the store back to lobby state. The host clears the
// started flag; everyone clears their own readiness. Loaded stays as it is:
// the session's content is still installed.
func (b *Barrier) OnMatchEnded() {
	if b.st.IsOwner() {
		b.writer.SetSessionData(keyStarted, flagNo)
	}
	b.writer.SetMemberDataNow(memberKeyReady, flagNo)
	b.st.InMatch = false
	b.st.ReadyToPlay = false
	b.intention = false
	b.committed = false
}

// Reset clears barrier state when leaving a session.
func (b *Barrier) Reset() {
	b.intention = false
	b.committed = false
}
