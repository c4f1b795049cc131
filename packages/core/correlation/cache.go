// Package correlation links lifecycle events for the same test, case,
// collection or assembly, enriching later events with the metadata carried
// by the earlier starting event.
package correlation

import (
	"sync"
	"sync/atomic"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// Cache maps a correlation key to the latest starting event for it.
// Keys are independent: operations on one key never block another.
type Cache struct {
	entries sync.Map
	size    atomic.Int64
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Set stores ev under key, replacing any earlier entry
func (c *Cache) Set(key events.Key, ev events.Event) {
	if _, loaded := c.entries.Swap(key, ev); !loaded {
		c.size.Add(1)
	}
}

// Get returns the entry for key
func (c *Cache) Get(key events.Key) (events.Event, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(events.Event), true
}

// Remove drops the entry for key; removing an unknown key is a no-op
func (c *Cache) Remove(key events.Key) {
	if _, loaded := c.entries.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

// Len returns the number of live entries
func (c *Cache) Len() int {
	return int(c.size.Load())
}
