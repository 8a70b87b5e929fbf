package lobby

import (
	"errors"
	"testing"
)

func TestMembershipBanAndUnban(t *testing.T) {
	s := newHostedSession(t, "host-1", "Host")
	s.joinPeer(t, "guest-1", "Guest")

	m := newMembership(s.state, s.dir, nil)
	var announced []MemberID
	m.announceBan = func(target MemberID) { announced = append(announced, target) }
	var evicted []MemberID
	m.onMemberEvicted = func(target MemberID) { evicted = append(evicted, target) }

	if err := m.Ban("guest-1"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if !m.IsBanned("guest-1") {
		t.Fatalf("guest-1 should be banned")
	}
	if len(announced) != 1 || announced[0] != "guest-1" {
		t.Fatalf("ban not announced: %v", announced)
	}
	if len(evicted) != 1 || evicted[0] != "guest-1" {
		t.Fatalf("ban not evicted: %v", evicted)
	}

	if err := m.Unban("guest-1"); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if m.IsBanned("guest-1") {
		t.Fatalf("guest-1 should no longer be banned")
	}
}

func TestMembershipRefusesToBanOwner(t *testing.T) {
	s := newHostedSession(t, "host-1", "Host")
	m := newMembership(s.state, s.dir, nil)
	if err := m.Ban("host-1"); !errors.Is(err, errBanOwner) {
		t.Fatalf("banning the owner returned %v, want errBanOwner", err)
	}
}

func TestMembershipBanUnknownMember(t *testing.T) {
	s := newHostedSession(t, "host-1", "Host")
	m := newMembership(s.state, s.dir, nil)
	if err := m.Ban("nobody"); !errors.Is(err, errNoSuchMember) {
		t.Fatalf("banning a stranger returned %v, want errNoSuchMember", err)
	}
}

func TestMembershipReassertsBanOnRejoin(t *testing.T) {
	s := newHostedSession(t, "host-1", "Host")
	s.joinPeer(t, "guest-1", "Guest")

	m := newMembership(s.state, s.dir, nil)
	var announced []MemberID
	m.announceBan = func(target MemberID) { announced = append(announced, target) }

	if err := m.Ban("guest-1"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if admitted := m.HandleMemberEntered("guest-1"); admitted {
		t.Fatalf("banned member must not be admitted")
	}
	if len(announced) != 2 {
		t.Fatalf("rejoin should re-announce the ban, got %d announcements", len(announced))
	}
	if admitted := m.HandleMemberEntered("guest-2"); !admitted {
		t.Fatalf("unbanned member should be admitted")
	}
}

func TestMembershipOwnerLeftDetection(t *testing.T) {
	s := newHostedSession(t, "host-1", "Host")
	s.joinPeer(t, "guest-1", "Guest")

	guestState := &sessionState{ID: s.state.ID, Owner: "host-1", Local: "guest-1", InSession: true, DataReady: true}
	m := newMembership(guestState, s.dir, nil)
	if !m.HandleMemberLeft("host-1") {
		t.Fatalf("owner leaving should be detected")
	}
	if m.HandleMemberLeft("guest-2") {
		t.Fatalf("another member leaving should not close the session")
	}
}

func TestMembershipResolveTarget(t *testing.T) {
	s := newHostedSession(t, "host-1", "Host")
	s.joinPeer(t, "guest-1", "Big Boss")

	m := newMembership(s.state, s.dir, nil)

	if got, ok := m.ResolveTarget("guest-1"); !ok || got != "guest-1" {
		t.Fatalf("resolve by id: got %q ok=%v", got, ok)
	}
	if got, ok := m.ResolveTarget("Big_Boss"); !ok || got != "guest-1" {
		t.Fatalf("resolve by underscored name: got %q ok=%v", got, ok)
	}
	if got, ok := m.ResolveTarget("big_boss"); !ok || got != "guest-1" {
		t.Fatalf("resolve should be case-insensitive: got %q ok=%v", got, ok)
	}
	if _, ok := m.ResolveTarget("nobody"); ok {
		t.Fatalf("unknown name should not resolve")
	}
	if _, ok := m.ResolveTarget(""); ok {
		t.Fatalf("empty target should not resolve")
	}
}

func TestMembershipResetClearsBans(t *testing.T) {
	s := newHostedSession(t, "host-1", "Host")
	s.joinPeer(t, "guest-1", "Guest")

	m := newMembership(s.state, s.dir, nil)
	if err := m.Ban("guest-1"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	m.Reset()
	if m.IsBanned("guest-1") {
		t.Fatalf("reset should clear the ban list")
	}
}
