package lobby

import (
	"context"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"skirmish/lobby/logging"
)

// ContentID identifies one downloadable content item in the workshop-style
// content service.
type ContentID uint64

// ContentService is the external downloader. StartDownload is asynchronous;
// completion arrives as a DownloadCompleted event.
type ContentService interface {
	StartDownload(id ContentID) error
	Installed(id ContentID) bool
	ItemSize(id ContentID) uint64
	Progress(id ContentID) (downloaded, total uint64)
}

// ContentMod is one locally known content item and its activation flag.
type ContentMod struct {
	ID      ContentID
	Name    string
	Enabled bool
}

// ContentCatalog manages the locally installed content set. Reload applies
// the current enable flags to the running simulation.
type ContentCatalog interface {
	Mods() []*ContentMod
	AddInstalled(id ContentID)
	Reload()
}

// Downloader drives missing session content to completion, one item at a
// time in the host's declared order, and swaps the local catalog to exactly
// the session's content set once everything is present.
type Downloader struct {
	st      *sessionState
	writer  *sessionWriter
	svc     ContentService
	catalog ContentCatalog
	log     logging.Publisher

	// onAllSatisfied fires whenever the queue drains, after the catalog swap.
	// The engine marks the member loaded and replays cached lists from it.
	onAllSatisfied func()

	required []ContentID
	pending  []ContentID
	queued   mapset.Set[ContentID]
	done     mapset.Set[ContentID]

	// snapshot holds pre-session enable flags so leaving restores the
	// player's own content selection.
	snapshot  map[ContentID]bool
	activated bool
}

func newDownloader(st *sessionState, writer *sessionWriter, svc ContentService, catalog ContentCatalog, log logging.Publisher) *Downloader {
	if log == nil {
		log = logging.NopPublisher()
	}
	return &Downloader{
		st:      st,
		writer:  writer,
		svc:     svc,
		catalog: catalog,
		log:     log,
		queued:  mapset.NewSet[ContentID](),
		done:    mapset.NewSet[ContentID](),
	}
}

// ParseContentList decodes the comma-separated ID list replicated under the
// session's content key. Malformed entries are dropped.
func ParseContentList(raw string) []ContentID {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]ContentID, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, ContentID(id))
	}
	return ids
}

// FormatContentList is the inverse of ParseContentList.
func FormatContentList(ids []ContentID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

// Begin records the session's required content and queues whatever is not
// installed locally, preserving the host's declared order. Items already
// present count as done immediately.
func (d *Downloader) Begin(required []ContentID) {
	d.required = append(d.required[:0], required...)
	d.pending = d.pending[:0]
	d.queued.Clear()
	d.done.Clear()
	for _, id := range required {
		if d.svc.Installed(id) {
			d.done.Add(id)
			continue
		}
		if d.queued.Add(id) {
			d.pending = append(d.pending, id)
		}
	}
	d.publishProgress()
	if len(d.pending) == 0 {
		d.finish()
		d.notifySatisfied()
		return
	}
	d.startHead()
}

// OnCompleted handles one finished download, advancing the queue head. Items
// the session never asked for are ignored.
func (d *Downloader) OnCompleted(id ContentID) {
	if !d.queued.Contains(id) {
		return
	}
	d.queued.Remove(id)
	d.done.Add(id)
	d.catalog.AddInstalled(id)
	for i, p := range d.pending {
		if p == id {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
	d.log.Publish(context.Background(), logging.Event{
		Type:     "content_downloaded",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryContent,
		Actor:    logging.EntityRef{ID: strconv.FormatUint(uint64(id), 10), Kind: logging.EntityKindContent},
	})
	d.publishProgress()
	if len(d.pending) == 0 {
		d.finish()
		d.notifySatisfied()
		return
	}
	d.startHead()
}

// AllSatisfied reports whether every required item is installed.
func (d *Downloader) AllSatisfied() bool {
	return len(d.pending) == 0
}

// HeadProgress exposes the active download's byte counts for UI polling.
func (d *Downloader) HeadProgress() (id ContentID, downloaded, total uint64, ok bool) {
	if len(d.pending) == 0 {
		return 0, 0, 0, false
	}
	id = d.pending[0]
	downloaded, total = d.svc.Progress(id)
	return id, downloaded, total, true
}

// TotalSize sums the declared sizes of the given items, for the session's
// advertised content-size key.
func (d *Downloader) TotalSize(ids []ContentID) uint64 {
	var total uint64
	for _, id := range ids {
		total += d.svc.ItemSize(id)
	}
	return total
}

// Restore reverts the catalog to the pre-session enable flags. Safe to call
// when nothing was activated.
func (d *Downloader) Restore() {
	if !d.activated {
		d.snapshot = nil
		return
	}
	for _, m := range d.catalog.Mods() {
		if enabled, known := d.snapshot[m.ID]; known {
			m.Enabled = enabled
		}
	}
	d.catalog.Reload()
	d.snapshot = nil
	d.activated = false
}

// Reset clears all download state without touching the catalog snapshot;
// call Restore separately when leaving a session.
func (d *Downloader) Reset() {
	d.required = d.required[:0]
	d.pending = d.pending[:0]
	d.queued.Clear()
	d.done.Clear()
}

func (d *Downloader) startHead() {
	head := d.pending[0]
	if err := d.svc.StartDownload(head); err != nil {
		d.log.Publish(context.Background(), logging.Event{
			Type:     "content_download_failed",
			Severity: logging.SeverityError,
			Category: logging.CategoryContent,
			Actor:    logging.EntityRef{ID: strconv.FormatUint(uint64(head), 10), Kind: logging.EntityKindContent},
			Payload:  map[string]any{"error": err.Error()},
		})
	}
}

// finish swaps the catalog to exactly the session's content set. The
// player's own flags are snapshotted first so Restore can undo the swap.
func (d *Downloader) finish() {
	if len(d.required) == 0 {
		return
	}
	requiredSet := mapset.NewSet[ContentID](d.required...)
	if d.snapshot == nil {
		d.snapshot = make(map[ContentID]bool)
	}
	for _, m := range d.catalog.Mods() {
		if _, known := d.snapshot[m.ID]; !known {
			d.snapshot[m.ID] = m.Enabled
		}
		m.Enabled = requiredSet.Contains(m.ID)
	}
	d.catalog.Reload()
	d.activated = true
	d.log.Publish(context.Background(), logging.Event{
		Type:     "content_activated",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryContent,
		Payload:  map[string]any{"count": len(d.required)},
	})
}

func (d *Downloader) notifySatisfied() {
	if d.onAllSatisfied != nil {
		d.onAllSatisfied()
	}
}

func (d *Downloader) publishProgress() {
	d.writer.SetMemberDataNow(memberKeyModsDownloaded, strconv.Itoa(d.done.Cardinality()))
}
