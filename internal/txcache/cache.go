// Package txcache holds recently seen transaction notifications: a bounded
// insertion-ordered cache and a self-expiring signature dedup window.
package txcache

import (
	"container/list"
	"sync"

	"solana-copy-bot/internal/domain"
)

// DefaultCapacity is the default number of cached notifications.
const DefaultCapacity = 1000

// Cache is a bounded map of notifications keyed by signature. When full,
// the oldest inserted entry is evicted. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // *domain.TxNotification, oldest at front
	index    map[string]*list.Element
}

// New creates a cache holding at most capacity entries.
// A non-positive capacity uses DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Put inserts tx and returns the signatures evicted to make room.
// Re-putting a cached signature replaces the value and keeps its position.
func (c *Cache) Put(tx *domain.TxNotification) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(tx)
}

func (c *Cache) put(tx *domain.TxNotification) []string {
	if el, ok := c.index[tx.Signature]; ok {
		el.Value = tx
		return nil
	}

	c.index[tx.Signature] = c.order.PushBack(tx)

	var evicted []string
	for c.order.Len() > c.capacity {
		front := c.order.Front()
		old := c.order.Remove(front).(*domain.TxNotification)
		delete(c.index, old.Signature)
		evicted = append(evicted, old.Signature)
	}
	return evicted
}

// Get returns the cached notification for signature.
func (c *Cache) Get(signature string) (*domain.TxNotification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[signature]
	if !ok {
		return nil, false
	}
	return el.Value.(*domain.TxNotification), true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Values returns the cached notifications, oldest first.
func (c *Cache) Values() []*domain.TxNotification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*domain.TxNotification, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*domain.TxNotification))
	}
	return out
}

// Restore inserts txs in order without touching entries already cached.
// Returns the number of entries added.
func (c *Cache) Restore(txs []*domain.TxNotification) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, tx := range txs {
		if tx == nil || tx.Signature == "" {
			continue
		}
		if _, ok := c.index[tx.Signature]; ok {
			continue
		}
		c.put(tx)
		added++
	}
	return added
}
