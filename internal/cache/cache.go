// ABOUTME: Stale-markable read cache with subscription-based invalidation fan-out
// ABOUTME: Invalidation marks keys stale so the next read goes back to the loader

package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon-client/internal/metrics"
)

const (
	// subscriberBufferSize is the channel buffer for each invalidation
	// subscriber. Slow subscribers drop notifications rather than block.
	subscriberBufferSize = 64
)

// entry is one cached value. stale means the value must be refetched
// before the next use; the data is kept so callers can render stale
// content while revalidating if they choose to.
type entry struct {
	value any
	stale bool
}

// Cache is the shared read model the realtime layer patches. All methods
// are safe for concurrent use.
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	subscribers map[string]chan []string
	logger      *slog.Logger
}

// New creates an empty cache. Pass nil logger for default.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries:     make(map[string]*entry),
		subscribers: make(map[string]chan []string),
		logger:      logger.With("component", "cache"),
	}
}

// Get returns the fresh value under key. ok is false when the key is
// missing or has been invalidated, signalling the caller to refetch.
func (c *Cache) Get(key string) (value any, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	if !exists || e.stale {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key and clears any stale mark.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value}
}

// Invalidate marks the given keys stale, forcing their next read through
// the loader, and notifies subscribers. Missing keys are recorded as
// stale placeholders so a later Set clears them consistently.
func (c *Cache) Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if e, exists := c.entries[key]; exists {
			e.stale = true
		} else {
			c.entries[key] = &entry{stale: true}
		}
		metrics.CacheInvalidations.WithLabelValues(key).Inc()
	}

	// Sends stay under the lock so Unsubscribe cannot close a channel
	// mid-publish. They are non-blocking, so the lock is never held on
	// a full subscriber.
	for _, ch := range c.subscribers {
		select {
		case ch <- keys:
		default:
			// Subscriber channel full — drop the notification
			c.logger.Debug("dropped invalidation for slow subscriber", "keys", keys)
		}
	}
}

// UpsertList applies an entity snapshot to the list stored under key,
// creating the list if needed. The list's ordering contract is preserved:
// existing ids are replaced in place, new ids inserted at pos.
func (c *Cache) UpsertList(key string, e Entity, pos Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[key]
	if ok {
		if l, isList := existing.value.(*List); isList {
			l.Upsert(e, pos)
			metrics.CacheUpserts.Inc()
			return
		}
	}

	l := &List{}
	l.Upsert(e, pos)
	c.entries[key] = &entry{value: l}
	metrics.CacheUpserts.Inc()
}

// GetList returns the list under key, or nil when absent. The list is
// returned even when marked stale: a patched list is still renderable
// while a refetch is pending.
func (c *Cache) GetList(key string) *List {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	if !exists {
		return nil
	}
	l, ok := e.value.(*List)
	if !ok {
		return nil
	}
	return l
}

// Subscribe registers for invalidation notifications. Returns a channel
// receiving the invalidated key sets and a subscription ID. The
// subscription is cleaned up when ctx is cancelled.
func (c *Cache) Subscribe(ctx context.Context) (<-chan []string, string) {
	subID := uuid.New().String()
	ch := make(chan []string, subscriberBufferSize)

	c.mu.Lock()
	c.subscribers[subID] = ch
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel. Safe to
// call for an unknown or already removed ID.
func (c *Cache) Unsubscribe(subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, exists := c.subscribers[subID]
	if !exists {
		return
	}
	delete(c.subscribers, subID)
	close(ch)
}
