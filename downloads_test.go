package lobby

import (
	"testing"
)

func newDownloaderFixture(t *testing.T) (*hostedSession, *Downloader, *LocalContent) {
	t.Helper()
	s := newHostedSession(t, "host-1", "Host")
	content := NewLocalContent()
	dl := newDownloader(s.state, s.writer, content, content, nil)
	return s, dl, content
}

func TestDownloaderSignalsWhenSatisfied(t *testing.T) {
	_, dl, content := newDownloaderFixture(t)
	content.AddAvailable(7, "pack", 10)
	fired := 0
	dl.onAllSatisfied = func() { fired++ }

	dl.Begin([]ContentID{7})
	if fired != 0 {
		t.Fatalf("signal must wait for the download, fired %d times", fired)
	}
	dl.OnCompleted(7)
	if fired != 1 {
		t.Fatalf("signal should fire once the queue drains, fired %d times", fired)
	}

	// Nothing required: the signal fires straight from Begin.
	dl.Reset()
	dl.Begin(nil)
	if fired != 2 {
		t.Fatalf("empty requirement should signal immediately, fired %d times", fired)
	}
}

func TestDownloaderSkipsAlreadyInstalled(t *testing.T) {
	_, dl, content := newDownloaderFixture(t)
	content.AddInstalledItem(11, "maps-pack", 100, true)
	content.AddAvailable(22, "weapons-pack", 200)

	dl.Begin([]ContentID{11, 22})
	if dl.AllSatisfied() {
		t.Fatalf("item 22 is missing, downloads cannot be satisfied yet")
	}
	id, _, _, ok := dl.HeadProgress()
	if !ok || id != 22 {
		t.Fatalf("head should be 22, got %d (ok=%v)", id, ok)
	}
}

func TestDownloaderProcessesInDeclaredOrder(t *testing.T) {
	_, dl, content := newDownloaderFixture(t)
	content.AddAvailable(30, "a", 10)
	content.AddAvailable(10, "b", 10)
	content.AddAvailable(20, "c", 10)

	dl.Begin([]ContentID{30, 10, 20})
	for _, want := range []ContentID{30, 10, 20} {
		id, _, _, ok := dl.HeadProgress()
		if !ok || id != want {
			t.Fatalf("head = %d, want %d", id, want)
		}
		dl.OnCompleted(id)
	}
	if !dl.AllSatisfied() {
		t.Fatalf("all items completed but downloader not satisfied")
	}
}

func TestDownloaderIgnoresUnknownCompletion(t *testing.T) {
	_, dl, content := newDownloaderFixture(t)
	content.AddAvailable(10, "a", 10)

	dl.Begin([]ContentID{10})
	dl.OnCompleted(999)
	if dl.AllSatisfied() {
		t.Fatalf("stray completion must not satisfy the queue")
	}
	dl.OnCompleted(10)
	if !dl.AllSatisfied() {
		t.Fatalf("real completion should satisfy the queue")
	}
}

func TestDownloaderPublishesProgressCount(t *testing.T) {
	s, dl, content := newDownloaderFixture(t)
	content.AddAvailable(10, "a", 10)
	content.AddAvailable(20, "b", 10)

	dl.Begin([]ContentID{10, 20})
	dl.OnCompleted(10)
	if got := s.dir.MemberData(s.state.ID, "host-1", memberKeyModsDownloaded); got != "1" {
		t.Fatalf("modsDownloaded = %q, want %q", got, "1")
	}
	dl.OnCompleted(20)
	if got := s.dir.MemberData(s.state.ID, "host-1", memberKeyModsDownloaded); got != "2" {
		t.Fatalf("modsDownloaded = %q, want %q", got, "2")
	}
}

func TestDownloaderActivatesSessionCatalogAndRestores(t *testing.T) {
	_, dl, content := newDownloaderFixture(t)
	// Locally installed: 11 enabled, 22 disabled. The session wants 22 only.
	content.AddInstalledItem(11, "maps-pack", 100, true)
	content.AddInstalledItem(22, "weapons-pack", 200, false)

	dl.Begin([]ContentID{22})
	if !dl.AllSatisfied() {
		t.Fatalf("everything installed, downloads should be satisfied")
	}

	mods := map[ContentID]bool{}
	for _, m := range content.Mods() {
		mods[m.ID] = m.Enabled
	}
	if mods[11] || !mods[22] {
		t.Fatalf("session catalog wrong: 11=%v 22=%v, want false/true", mods[11], mods[22])
	}
	if content.Reloads() != 1 {
		t.Fatalf("expected 1 catalog reload, got %d", content.Reloads())
	}

	dl.Restore()
	mods = map[ContentID]bool{}
	for _, m := range content.Mods() {
		mods[m.ID] = m.Enabled
	}
	if !mods[11] || mods[22] {
		t.Fatalf("restore wrong: 11=%v 22=%v, want true/false", mods[11], mods[22])
	}
	if content.Reloads() != 2 {
		t.Fatalf("expected 2 catalog reloads, got %d", content.Reloads())
	}
}

func TestDownloaderTotalSize(t *testing.T) {
	_, dl, content := newDownloaderFixture(t)
	content.AddAvailable(10, "a", 100)
	content.AddAvailable(20, "b", 250)

	if got := dl.TotalSize([]ContentID{10, 20}); got != 350 {
		t.Fatalf("TotalSize = %d, want 350", got)
	}
}

func TestParseContentListDropsGarbage(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"10,20,30", 3},
		{"10, 20 ,abc,0,-5", 2},
	}
	for _, tc := range cases {
		if got := ParseContentList(tc.raw); len(got) != tc.want {
			t.Fatalf("ParseContentList(%q) = %v, want %d ids", tc.raw, got, tc.want)
		}
	}
}
