// ABOUTME: Hover-triggered cache warmer with a per-key rate limiter
// ABOUTME: Loader failures are swallowed; the cache simply stays cold

package prefetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/beaconhq/beacon-client/internal/cache"
	"github.com/beaconhq/beacon-client/internal/metrics"
)

// DefaultInterval is the minimum spacing between loads of the same key.
const DefaultInterval = 2 * time.Second

// Loader fetches the value for a cache key.
type Loader func(ctx context.Context, key string) (any, error)

// Prefetcher warms cache keys ahead of navigation. Each key gets its own
// limiter so hovering one element does not starve another.
type Prefetcher struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cache    *cache.Cache
	loader   Loader
	interval time.Duration
	logger   *slog.Logger
}

// New creates a prefetcher over the given cache and loader. interval <= 0
// takes DefaultInterval.
func New(c *cache.Cache, loader Loader, interval time.Duration, logger *slog.Logger) *Prefetcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prefetcher{
		limiters: make(map[string]*rate.Limiter),
		cache:    c,
		loader:   loader,
		interval: interval,
		logger:   logger.With("component", "prefetch"),
	}
}

// Touch records a hover over key and reports whether a load was
// triggered. Fresh cache entries and rate-limited duplicates are no-ops.
// Loader failures leave the cache untouched.
func (p *Prefetcher) Touch(ctx context.Context, key string) bool {
	if _, ok := p.cache.Get(key); ok {
		return false
	}

	if !p.limiter(key).Allow() {
		return false
	}

	value, err := p.loader(ctx, key)
	if err != nil {
		p.logger.Debug("prefetch load failed", "key", key, "error", err)
		return false
	}

	p.cache.Set(key, value)
	metrics.PrefetchLoads.Inc()
	return true
}

func (p *Prefetcher) limiter(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[key] = l
	}
	return l
}
