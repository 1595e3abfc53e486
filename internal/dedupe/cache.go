// ABOUTME: Bounded TTL set of chat event keys already handled.
// ABOUTME: Lets the bot answer an event once even when the homeserver redelivers it.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type seenEvent struct {
	key  string
	when time.Time
}

// Cache remembers up to maxSize event keys for ttl. Expired keys are
// dropped lazily as new keys arrive, so no background goroutine is needed.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // *seenEvent, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache holding at most maxSize keys for ttl each.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Key builds the cache key for an event in a room.
func Key(room, eventID string) string {
	return room + "\x00" + eventID
}

// Seen reports whether key was marked and has not expired.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	_, ok := c.index[key]
	return ok
}

// CheckAndMark reports whether key was already seen, marking it if not.
// The check and the mark happen under one lock.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	if _, ok := c.index[key]; ok {
		return true
	}

	if c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&seenEvent{key: key, when: c.now()})
	return false
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked()
	return c.order.Len()
}

// expireLocked drops expired keys from the front. Must be called with mu held.
func (c *Cache) expireLocked() {
	cutoff := c.now().Add(-c.ttl)
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		ev, _ := front.Value.(*seenEvent)
		if ev.when.After(cutoff) {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	ev, _ := elem.Value.(*seenEvent)
	c.order.Remove(elem)
	delete(c.index, ev.key)
}
