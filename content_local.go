package lobby

import (
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// contentItem is a download the LocalContent store knows how to serve.
type contentItem struct {
	id   ContentID
	name string
	size uint64
}

// LocalContent is an in-process ContentService and ContentCatalog. Downloads
// complete when Finish is called, which lets the daemon simulate instant
// installs and the tests control completion order.
type LocalContent struct {
	mu        sync.Mutex
	available map[ContentID]contentItem
	installed mapset.Set[ContentID]
	active    map[ContentID]uint64
	mods      []*ContentMod
	reloads   int

	// queue is the engine event sink; completions are posted here.
	queue interface{ Post(Event) }

	// AutoFinish completes each download immediately on the next Finish-less
	// StartDownload, used by the daemon.
	AutoFinish bool
}

func NewLocalContent() *LocalContent {
	return &LocalContent{
		available: make(map[ContentID]contentItem),
		installed: mapset.NewSet[ContentID](),
		active:    make(map[ContentID]uint64),
	}
}

// Attach connects the store to the engine's event queue.
func (c *LocalContent) Attach(queue interface{ Post(Event) }) {
	c.queue = queue
}

// AddAvailable registers a downloadable item.
func (c *LocalContent) AddAvailable(id ContentID, name string, size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available[id] = contentItem{id: id, name: name, size: size}
}

// AddInstalledItem registers an item as already present locally.
func (c *LocalContent) AddInstalledItem(id ContentID, name string, size uint64, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available[id] = contentItem{id: id, name: name, size: size}
	c.installed.Add(id)
	c.mods = append(c.mods, &ContentMod{ID: id, Name: name, Enabled: enabled})
}

// ContentService.

func (c *LocalContent) StartDownload(id ContentID) error {
	c.mu.Lock()
	if _, ok := c.available[id]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("content %d not available", id)
	}
	c.active[id] = 0
	auto := c.AutoFinish
	c.mu.Unlock()
	if auto {
		c.Finish(id)
	}
	return nil
}

func (c *LocalContent) Installed(id ContentID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installed.Contains(id)
}

func (c *LocalContent) ItemSize(id ContentID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available[id].size
}

func (c *LocalContent) Progress(id ContentID) (downloaded, total uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[id], c.available[id].size
}

// Finish marks an active download complete and posts the completion event.
func (c *LocalContent) Finish(id ContentID) {
	c.mu.Lock()
	if _, ok := c.available[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.active, id)
	c.installed.Add(id)
	c.mu.Unlock()
	if c.queue != nil {
		c.queue.Post(DownloadCompleted{Item: id})
	}
}

// ContentCatalog.

func (c *LocalContent) Mods() []*ContentMod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mods
}

func (c *LocalContent) AddInstalled(id ContentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.mods {
		if m.ID == id {
			return
		}
	}
	name := c.available[id].name
	if name == "" {
		name = fmt.Sprintf("content-%d", id)
	}
	c.mods = append(c.mods, &ContentMod{ID: id, Name: name})
}

func (c *LocalContent) Reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloads++
}

// Reloads counts catalog reloads, for tests.
func (c *LocalContent) Reloads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloads
}
