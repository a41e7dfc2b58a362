package media

import (
	"sync"
	"time"
)

type durationEntry struct {
	modTime  time.Time
	duration time.Duration
}

// DurationCache caches probed durations keyed by path. An entry is only
// returned while the file's modification time is unchanged.
type DurationCache struct {
	cache map[string]durationEntry
	mu    sync.RWMutex
}

// NewDurationCache creates a new duration cache.
func NewDurationCache() *DurationCache {
	return &DurationCache{
		cache: make(map[string]durationEntry),
	}
}

// Get retrieves a cached duration.
func (c *DurationCache) Get(path string, modTime time.Time) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.cache[path]
	if !ok || !e.modTime.Equal(modTime) {
		return 0, false
	}
	return e.duration, true
}

// Set stores a duration in the cache.
func (c *DurationCache) Set(path string, modTime time.Time, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[path] = durationEntry{modTime: modTime, duration: d}
}

// Remove removes a specific path from the cache.
func (c *DurationCache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, path)
}

// Size returns the number of cached entries.
func (c *DurationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
