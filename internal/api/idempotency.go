package api

import (
	"sync"

	"stockgame/internal/game"
)

// idempotencyCache remembers the result of recent orders by key so a
// replayed request does not trade twice. A key is reserved before the order
// runs, so concurrent requests with the same key wait for the first one
// instead of trading again. The oldest key is evicted first.
type idempotencyCache struct {
	mu      sync.Mutex
	limit   int
	order   []string
	entries map[string]*idemEntry
}

// idemEntry is one reserved key. done is closed once the owning request
// finishes; ok reports whether res holds a filled order.
type idemEntry struct {
	done chan struct{}
	res  game.OrderResult
	ok   bool
}

func newIdempotencyCache(limit int) *idempotencyCache {
	return &idempotencyCache{limit: limit, entries: make(map[string]*idemEntry)}
}

// reserve returns the entry for key. owner is true when the caller created
// it and must call finish; otherwise the caller waits on entry.done.
func (c *idempotencyCache) reserve(key string) (entry *idemEntry, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e, false
	}
	e := &idemEntry{done: make(chan struct{})}
	c.entries[key] = e
	c.order = append(c.order, key)
	if len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return e, true
}

// finish records the outcome of a reserved order. A failed order releases
// the key so a later retry runs again.
func (c *idempotencyCache) finish(key string, e *idemEntry, res game.OrderResult, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.res, e.ok = res, ok
	if !ok && c.entries[key] == e {
		delete(c.entries, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
	}
	close(e.done)
}
