// ABOUTME: Bounded TTL set of recently seen idempotency keys
// ABOUTME: Lets the HTTP API refuse a retried send instead of appending it twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type seenKey struct {
	key  string
	at   time.Time
	elem *list.Element
}

// Cache is a concurrency-safe set of keys that forgets entries after ttl and
// evicts the oldest entry once maxSize keys are held.
type Cache struct {
	mu      sync.Mutex
	keys    map[string]*seenKey
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// New creates a cache and starts its sweeper. Call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	return newCache(ttl, maxSize, time.Now)
}

func newCache(ttl time.Duration, maxSize int, now func() time.Time) *Cache {
	c := &Cache{
		keys:    make(map[string]*seenKey),
		order:   list.New(),
		ttl:     ttl,
		maxSize: max(maxSize, 1),
		now:     now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Seen reports whether key was marked within the ttl and, if not, marks it.
// The check and the mark happen under one lock.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if k, ok := c.keys[key]; ok {
		if now.Sub(k.at) < c.ttl {
			return true
		}
		c.order.Remove(k.elem)
		delete(c.keys, key)
	}

	if len(c.keys) >= c.maxSize {
		c.evictOldestLocked()
	}
	k := &seenKey{key: key, at: now}
	k.elem = c.order.PushBack(k)
	c.keys[key] = k
	return false
}

// Forget drops key so a later Seen returns false. Used when the request the
// key guarded was refused and may be retried.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.keys[key]; ok {
		c.order.Remove(k.elem)
		delete(c.keys, key)
	}
}

// Len returns the number of keys currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	k := front.Value.(*seenKey)
	c.order.Remove(front)
	delete(c.keys, k.key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired keys. Insertion order is also expiry order, so it stops
// at the first live key.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		k := e.Value.(*seenKey)
		if now.Sub(k.at) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.keys, k.key)
		e = next
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}
