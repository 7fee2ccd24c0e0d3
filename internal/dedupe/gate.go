// ABOUTME: Time-windowed, bounded at-most-once admission gate for event IDs
// ABOUTME: Write-through persisted to a session snapshot; in-memory state stays authoritative

package dedupe

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/beaconhq/beacon-client/internal/metrics"
	"github.com/beaconhq/beacon-client/internal/snapshot"
)

const (
	// DefaultTTL is the window within which a previously admitted
	// identifier is rejected as a duplicate.
	DefaultTTL = 60 * time.Second

	// DefaultMaxSize bounds the number of tracked identifiers.
	DefaultMaxSize = 100

	// DefaultSweepProbability is the chance that an accepting Admit call
	// also sweeps expired entries.
	DefaultSweepProbability = 0.1

	// DefaultSnapshotKey is the storage key for the persisted snapshot.
	DefaultSnapshotKey = "dedupe.seen"
)

// gateEntry stores the admission timestamp and list element for a tracked id.
type gateEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Config controls Gate construction. Zero values take the defaults above.
// Now and Roll exist so tests can pin time and the sweep dice.
type Config struct {
	Store            snapshot.Store
	TTL              time.Duration
	MaxSize          int
	SweepProbability float64
	SnapshotKey      string
	Logger           *slog.Logger
	Now              func() time.Time
	Roll             func() float64
}

// Gate admits each event identifier at most once per TTL window. It is an
// explicitly constructed, injected instance rather than process-global
// state, so each session owns exactly one gate with a defined lifecycle.
// A doubly-linked list maintains insertion order for O(1) eviction.
type Gate struct {
	mu      sync.Mutex
	seen    map[string]*gateEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	sweepP  float64
	store   snapshot.Store
	key     string
	logger  *slog.Logger
	now     func() time.Time
	roll    func() float64
}

// New creates a gate backed by the given snapshot store. A previously
// persisted snapshot is restored, dropping entries already past TTL.
func New(cfg Config) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.SweepProbability <= 0 {
		cfg.SweepProbability = DefaultSweepProbability
	}
	if cfg.SnapshotKey == "" {
		cfg.SnapshotKey = DefaultSnapshotKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Roll == nil {
		cfg.Roll = rand.Float64
	}
	if cfg.Store == nil {
		cfg.Store = snapshot.NewMemoryStore()
	}

	g := &Gate{
		seen:    make(map[string]*gateEntry),
		order:   list.New(),
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		sweepP:  cfg.SweepProbability,
		store:   cfg.Store,
		key:     cfg.SnapshotKey,
		logger:  cfg.Logger.With("component", "dedupe"),
		now:     cfg.Now,
		roll:    cfg.Roll,
	}
	g.restore()
	return g
}

// Admit reports whether eventID is new and should be processed. A true
// return records the id; false means a duplicate inside the TTL window
// and leaves the gate unchanged. An empty id always admits without
// recording: an unidentifiable event must be processed.
func (g *Gate) Admit(eventID string) bool {
	if eventID == "" {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if entry, ok := g.seen[eventID]; ok && now.Sub(entry.timestamp) < g.ttl {
		return false
	}

	g.markLocked(eventID, now)

	if g.roll() < g.sweepP {
		g.sweepLocked(now)
	}

	g.persistLocked()
	return true
}

// Size returns the number of tracked identifiers.
func (g *Gate) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// markLocked records eventID at now, evicting the oldest-inserted entry
// if the gate is at capacity. Must be called with mu held.
func (g *Gate) markLocked(eventID string, now time.Time) {
	if entry, exists := g.seen[eventID]; exists {
		entry.timestamp = now
		g.order.MoveToBack(entry.element)
		return
	}

	if len(g.seen) >= g.maxSize {
		g.evictOldestLocked()
	}

	elem := g.order.PushBack(eventID)
	g.seen[eventID] = &gateEntry{timestamp: now, element: elem}
}

// evictOldestLocked removes the oldest-inserted entry. Approximate FIFO:
// insertion order stands in for recency, which is not tracked.
func (g *Gate) evictOldestLocked() {
	front := g.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.seen, key)
	metrics.DedupeEvictions.Inc()
}

// sweepLocked removes every entry older than TTL. Must be called with mu held.
func (g *Gate) sweepLocked(now time.Time) {
	for key, entry := range g.seen {
		if now.Sub(entry.timestamp) >= g.ttl {
			g.order.Remove(entry.element)
			delete(g.seen, key)
		}
	}
}

// persistLocked mirrors the full store to durable session storage.
// Persistence failures are logged and swallowed: the in-memory state
// remains authoritative for the life of this process.
func (g *Gate) persistLocked() {
	wire := make(map[string]int64, len(g.seen))
	for key, entry := range g.seen {
		wire[key] = entry.timestamp.UnixMilli()
	}

	data, err := json.Marshal(wire)
	if err != nil {
		g.logger.Debug("marshaling dedupe snapshot failed", "error", err)
		return
	}
	if err := g.store.Write(g.key, data); err != nil {
		g.logger.Debug("persisting dedupe snapshot failed", "error", err)
	}
}

// restore loads the persisted snapshot, skipping entries already past
// TTL. Entries are reinserted in timestamp order so eviction order is
// preserved across a restart. Any failure starts the gate empty.
func (g *Gate) restore() {
	data, err := g.store.Read(g.key)
	if err != nil {
		return
	}

	var wire map[string]int64
	if err := json.Unmarshal(data, &wire); err != nil {
		g.logger.Debug("decoding dedupe snapshot failed", "error", err)
		return
	}

	type seenID struct {
		id string
		at time.Time
	}
	now := g.now()
	restored := make([]seenID, 0, len(wire))
	for id, ms := range wire {
		at := time.UnixMilli(ms)
		if now.Sub(at) >= g.ttl {
			continue
		}
		restored = append(restored, seenID{id: id, at: at})
	}
	sort.Slice(restored, func(i, j int) bool { return restored[i].at.Before(restored[j].at) })

	for _, s := range restored {
		if len(g.seen) >= g.maxSize {
			break
		}
		elem := g.order.PushBack(s.id)
		g.seen[s.id] = &gateEntry{timestamp: s.at, element: elem}
	}
}
