package cache

import (
	"sync"

	"github.com/Devmainman/kurosadmin/internal/resource"
)

// Subscription observes one key. While at least one subscription is open the
// key is refetched as soon as it is invalidated and is never evicted.
type Subscription struct {
	cache *Cache
	key   resource.Key
	ch    chan Entry
	once  sync.Once
}

// Subscribe starts observing key. The current state is delivered at once and
// a fetch is started if the entry needs one.
func (c *Cache) Subscribe(key resource.Key) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := &Subscription{cache: c, key: key, ch: make(chan Entry, 1)}
	e := c.lookup(key)
	e.observers[sub] = struct{}{}
	sub.offer(e.snapshot())
	c.ensureFetch(e)
	return sub
}

// Key returns the observed key.
func (s *Subscription) Key() resource.Key {
	return s.key
}

// Updates delivers the latest state of the key. Intermediate states may be
// skipped when the receiver is slow; the newest one is always delivered. The
// channel is closed by Close.
func (s *Subscription) Updates() <-chan Entry {
	return s.ch
}

// Close stops observing the key. The entry becomes eligible for eviction once
// the retention window has passed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.cache
		c.mu.Lock()
		if e, ok := c.entries[s.key]; ok {
			delete(e.observers, s)
			e.lastAccess = c.now()
		}
		close(s.ch)
		c.mu.Unlock()
	})
}

// offer replaces any undelivered state with snap. Caller holds the cache lock,
// which makes it the only sender.
func (s *Subscription) offer(snap Entry) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

// broadcast sends the entry's state to its observers. Caller holds c.mu.
func (c *Cache) broadcast(e *entry) {
	if len(e.observers) == 0 {
		return
	}
	snap := e.snapshot()
	for sub := range e.observers {
		sub.offer(snap)
	}
}
