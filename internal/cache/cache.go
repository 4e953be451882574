// Package cache provides a time-bounded response cache keyed by prompt text.
// A repeated prompt inside the freshness window is answered from the cache
// instead of re-querying the model.
package cache

import (
	"sync"
	"time"
)

// Defaults matching the response cache the chat front-end was tuned with.
const (
	DefaultMaxEntries = 100
	DefaultTTL        = 300 * time.Second
)

type entry struct {
	answer     string
	insertedAt time.Time
}

// ResponseCache maps prompt text to a previously produced answer. Entries
// expire after the TTL; inserting beyond capacity evicts the oldest-inserted
// entry first. Safe for concurrent use by multiple sessions.
type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	order      []string // insertion order, oldest first
	maxEntries int
	ttl        time.Duration

	now func() time.Time // overridden in tests
}

// New creates a ResponseCache with the given limits. Non-positive arguments
// fall back to the defaults.
func New(maxEntries int, ttl time.Duration) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{
		entries:    make(map[string]entry),
		order:      make([]string, 0, maxEntries),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Lookup returns the cached answer for prompt if present and fresh.
// Expired entries are treated as absent and removed lazily.
func (c *ResponseCache) Lookup(prompt string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[prompt]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.removeLocked(prompt)
		return "", false
	}
	return e.answer, true
}

// Insert stores or overwrites the answer for prompt with the current
// timestamp, evicting the oldest-inserted entry when over capacity.
func (c *ResponseCache) Insert(prompt, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[prompt]; ok {
		// Re-insert moves the entry to the back of the eviction order.
		c.removeLocked(prompt)
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order[0]
		c.removeLocked(oldest)
	}

	c.entries[prompt] = entry{answer: answer, insertedAt: c.now()}
	c.order = append(c.order, prompt)
}

// Len returns the number of entries, counting stale ones not yet swept.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResponseCache) removeLocked(prompt string) {
	delete(c.entries, prompt)
	for i, p := range c.order {
		if p == prompt {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
