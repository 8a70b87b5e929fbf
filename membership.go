package lobby

import (
	"context"
	"errors"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"skirmish/lobby/logging"
)

var (
	errNoSuchMember = errors.New("no such member in session")
	errBanOwner     = errors.New("cannot ban the session owner")
)

// Membership tracks who is in the session and enforces the host's ban list.
// Bans live only as long as the host's session: the directory has no eviction
// primitive, so a ban is a broadcast instruction that every client enforces
// against itself, re-asserted whenever a banned member reappears.
type Membership struct {
	st     *sessionState
	dir    Directory
	banned mapset.Set[MemberID]
	log    logging.Publisher

	// announceBan broadcasts the ban instruction to the session. Wired by
	// the engine to the chat relay so Membership does not depend on Chat.
	announceBan func(target MemberID)
	// onMemberEvicted lets the engine drop relay connections for the target.
	onMemberEvicted func(target MemberID)
}

func newMembership(st *sessionState, dir Directory, log logging.Publisher) *Membership {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &Membership{
		st:     st,
		dir:    dir,
		banned: mapset.NewSet[MemberID](),
		log:    log,
	}
}

// HandleMemberEntered processes a join. If the host has previously banned the
// member, the ban is re-asserted before anything else sees them. Reports
// whether the member was admitted.
func (m *Membership) HandleMemberEntered(member MemberID) bool {
	if m.st.IsOwner() && m.banned.Contains(member) {
		if m.announceBan != nil {
			m.announceBan(member)
		}
		m.logEvent("member_rebanned", member, logging.SeverityInfo)
		return false
	}
	m.logEvent("member_entered", member, logging.SeverityInfo)
	return true
}

// HandleMemberLeft processes a departure. Reports whether the departed member
// was the session owner, which means the session is over for everyone.
func (m *Membership) HandleMemberLeft(member MemberID) (ownerLeft bool) {
	m.logEvent("member_left", member, logging.SeverityInfo)
	return m.st.InSession && member == m.st.Owner && member != m.st.Local
}

// Ban adds the target to the ban list and broadcasts the eviction. Host only;
// the owner cannot ban themselves.
func (m *Membership) Ban(target MemberID) error {
	if target == m.st.Owner {
		return errBanOwner
	}
	if !m.isPresent(target) && !m.banned.Contains(target) {
		return errNoSuchMember
	}
	m.banned.Add(target)
	if m.announceBan != nil {
		m.announceBan(target)
	}
	if m.onMemberEvicted != nil {
		m.onMemberEvicted(target)
	}
	m.logEvent("member_banned", target, logging.SeverityWarn)
	return nil
}

// Unban removes the target from the ban list.
func (m *Membership) Unban(target MemberID) error {
	if !m.banned.Contains(target) {
		return errNoSuchMember
	}
	m.banned.Remove(target)
	m.logEvent("member_unbanned", target, logging.SeverityInfo)
	return nil
}

func (m *Membership) IsBanned(member MemberID) bool {
	return m.banned.Contains(member)
}

// ResolveTarget turns a command argument into a member ID. Exact ID match
// wins; otherwise display names are compared with spaces folded to
// underscores, the way names are typed in commands.
func (m *Membership) ResolveTarget(arg string) (MemberID, bool) {
	if arg == "" {
		return "", false
	}
	members := m.dir.Members(m.st.ID)
	for _, member := range members {
		if string(member) == arg {
			return member, true
		}
	}
	want := strings.ToLower(arg)
	for _, member := range members {
		name := strings.ReplaceAll(m.dir.DisplayName(member), " ", "_")
		if strings.ToLower(name) == want {
			return member, true
		}
	}
	return "", false
}

// Reset clears the ban list when the session ends.
func (m *Membership) Reset() {
	m.banned.Clear()
}

func (m *Membership) isPresent(target MemberID) bool {
	for _, member := range m.dir.Members(m.st.ID) {
		if member == target {
			return true
		}
	}
	return false
}

func (m *Membership) logEvent(typ logging.EventType, member MemberID, sev logging.Severity) {
	m.log.Publish(context.Background(), logging.Event{
		Type:     typ,
		Severity: sev,
		Category: logging.CategoryMembership,
		Actor:    logging.EntityRef{ID: string(member), Kind: logging.EntityKindMember},
	})
}
