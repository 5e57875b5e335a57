package cache

import (
	"sync"

	"sitewatch/internal/models"
)

// DefaultRecentChecksLimit caps the per-entry check history.
const DefaultRecentChecksLimit = 50

// Entry is the display state for one website: its last full pull snapshot
// with whatever push increments have been merged on top.
type Entry struct {
	Website      models.Website
	Metrics      models.Metrics
	RecentChecks []models.CheckRecord
}

// Cache is a keyed in-memory store of website entries. The pull path writes
// whole entries; the push path merges patches into existing ones. Entries
// live only while some view observes them.
type Cache struct {
	mu       sync.RWMutex
	limit    int
	entries  map[int]*Entry
	watchers map[int][]chan struct{}
}

// New creates a cache capping each entry's recent checks at limit
// (DefaultRecentChecksLimit when limit is not positive).
func New(limit int) *Cache {
	if limit <= 0 {
		limit = DefaultRecentChecksLimit
	}
	return &Cache{
		limit:    limit,
		entries:  make(map[int]*Entry),
		watchers: make(map[int][]chan struct{}),
	}
}

// ReplaceDetail writes the full pull snapshot for a website, creating the
// entry if needed. Pull is authoritative for whole-object consistency.
func (c *Cache) ReplaceDetail(detail models.WebsiteDetail) {
	checks := make([]models.CheckRecord, len(detail.RecentChecks))
	copy(checks, detail.RecentChecks)
	if len(checks) > c.limit {
		checks = checks[:c.limit]
	}

	id := detail.Website.ID
	c.mu.Lock()
	c.entries[id] = &Entry{
		Website:      detail.Website,
		Metrics:      detail.Metrics,
		RecentChecks: checks,
	}
	c.mu.Unlock()
	c.notify(id)
}

// ApplyUpdate merges a push frame into the entry it targets. Frames for
// websites the cache does not hold are discarded: push never creates
// entries, it only patches ones the pull path loaded. Reports whether the
// frame was merged.
func (c *Cache) ApplyUpdate(update models.StatusUpdate) bool {
	id, ok := update.Website.WebsiteID()
	if !ok {
		return false
	}

	c.mu.Lock()
	entry, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return false
	}

	update.Website.ApplyTo(&entry.Website)
	entry.Metrics = update.Metrics

	checks := make([]models.CheckRecord, 0, len(entry.RecentChecks)+1)
	checks = append(checks, update.NewCheck)
	checks = append(checks, entry.RecentChecks...)
	if len(checks) > c.limit {
		checks = checks[:c.limit]
	}
	entry.RecentChecks = checks
	c.mu.Unlock()

	c.notify(id)
	return true
}

// Get returns a copy of the entry for id, safe for the caller to read
// without holding any lock.
func (c *Cache) Get(id int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return Entry{}, false
	}

	copied := *entry
	copied.RecentChecks = make([]models.CheckRecord, len(entry.RecentChecks))
	copy(copied.RecentChecks, entry.RecentChecks)
	if entry.Website.LastResponseTime != nil {
		v := *entry.Website.LastResponseTime
		copied.Website.LastResponseTime = &v
	}
	if entry.Website.LastChecked != nil {
		v := *entry.Website.LastChecked
		copied.Website.LastChecked = &v
	}
	return copied, true
}

// Watch returns a channel that receives a signal whenever the entry for id
// changes. Signals are coalesced; a slow consumer sees at least one.
func (c *Cache) Watch(id int) <-chan struct{} {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.watchers[id] = append(c.watchers[id], ch)
	c.mu.Unlock()
	return ch
}

// Release evicts the entry for id and closes its watch channels. Called when
// the observing view goes away.
func (c *Cache) Release(id int) {
	c.mu.Lock()
	delete(c.entries, id)
	watchers := c.watchers[id]
	delete(c.watchers, id)
	c.mu.Unlock()

	for _, ch := range watchers {
		close(ch)
	}
}

func (c *Cache) notify(id int) {
	c.mu.RLock()
	watchers := c.watchers[id]
	c.mu.RUnlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
