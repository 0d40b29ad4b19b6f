package fs

import (
	"sync"
	"time"
)

// indexEntry records what was last read from one inbox file.
type indexEntry struct {
	LastModified time.Time
	Size         int64
	Operations   int
}

// cache remembers which inbox files were already read so unchanged files are
// not parsed twice.
type cache struct {
	mu      sync.RWMutex
	entries map[string]indexEntry // key is the file name inside the inbox
}

func newCache() *cache {
	return &cache{entries: make(map[string]indexEntry)}
}

// Fresh reports whether name was read at the given modification time and size.
func (c *cache) Fresh(name string, mtime time.Time, size int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	return ok && entry.LastModified.Equal(mtime) && entry.Size == size
}

// Set updates an entry in the cache.
func (c *cache) Set(name string, entry indexEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = entry
}

// Prune removes entries that are not in the keep set.
func (c *cache) Prune(keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name := range c.entries {
		if !keep[name] {
			delete(c.entries, name)
		}
	}
}

// Delete removes a single entry from the cache.
func (c *cache) Delete(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// Len returns the number of entries in the cache.
func (c *cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
