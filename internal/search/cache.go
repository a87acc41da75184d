package search

import (
	"context"
	"sync"
	"time"

	"substream/subtitleservice/internal/domain"
	"substream/subtitleservice/internal/metrics"
)

const (
	defaultProviderCacheTTL = 30 * time.Minute
	defaultNegativeCacheTTL = 5 * time.Minute
	defaultResolvedCacheTTL = 5 * time.Minute
	cacheJanitorInterval    = time.Minute
)

type providerCacheEntry struct {
	items     []domain.Candidate
	expiresAt time.Time
}

type negativeCacheEntry struct {
	expiresAt time.Time
}

type resolvedCacheEntry struct {
	resolved  *domain.ResolvedSubtitle
	expiresAt time.Time
}

// CacheService owns the three TTL caches of the engine: per-(provider,query)
// positive results, known-empty aggregate queries, and resolved content.
// All access goes through the lock; a read past expiry is a miss.
type CacheService struct {
	mu       sync.Mutex
	provider map[string]providerCacheEntry
	negative map[string]negativeCacheEntry
	resolved map[string]resolvedCacheEntry

	providerTTL time.Duration
	negativeTTL time.Duration
	resolvedTTL time.Duration

	redis *RedisContentCache

	done      chan struct{}
	closeOnce sync.Once
	started   bool
}

type CacheOption func(*CacheService)

// WithRedisContentCache adds a Redis backend for resolved content so
// restarts (and sibling instances) share recent downloads.
func WithRedisContentCache(backend *RedisContentCache) CacheOption {
	return func(c *CacheService) {
		c.redis = backend
	}
}

func NewCacheService(providerTTL, negativeTTL, resolvedTTL time.Duration, opts ...CacheOption) *CacheService {
	if providerTTL <= 0 {
		providerTTL = defaultProviderCacheTTL
	}
	if negativeTTL <= 0 {
		negativeTTL = defaultNegativeCacheTTL
	}
	if resolvedTTL <= 0 {
		resolvedTTL = defaultResolvedCacheTTL
	}
	service := &CacheService{
		provider:    make(map[string]providerCacheEntry),
		negative:    make(map[string]negativeCacheEntry),
		resolved:    make(map[string]resolvedCacheEntry),
		providerTTL: providerTTL,
		negativeTTL: negativeTTL,
		resolvedTTL: resolvedTTL,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// Open starts the background janitor that evicts expired entries. Safe to
// skip in tests; expiry is also enforced on every read.
func (c *CacheService) Open() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.runJanitor()
}

func (c *CacheService) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *CacheService) runJanitor() {
	ticker := time.NewTicker(cacheJanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.purgeExpired(time.Now())
		}
	}
}

func (c *CacheService) purgeExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.provider {
		if now.After(entry.expiresAt) {
			delete(c.provider, key)
		}
	}
	for key, entry := range c.negative {
		if now.After(entry.expiresAt) {
			delete(c.negative, key)
		}
	}
	for key, entry := range c.resolved {
		if now.After(entry.expiresAt) {
			delete(c.resolved, key)
		}
	}
}

// ---------------------------------------------------------------------------
// Provider results (positive cache)
// ---------------------------------------------------------------------------

func (c *CacheService) ProviderResults(key string, now time.Time) ([]domain.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.provider[key]
	if !ok || now.After(entry.expiresAt) {
		if ok {
			delete(c.provider, key)
		}
		metrics.CacheMissesTotal.WithLabelValues("provider").Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.WithLabelValues("provider").Inc()
	return append([]domain.Candidate(nil), entry.items...), true
}

// StoreProviderResults ignores empty lists: a positive result is never
// silently overwritten by a later empty one.
func (c *CacheService) StoreProviderResults(key string, items []domain.Candidate, now time.Time) {
	if len(items) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider[key] = providerCacheEntry{
		items:     append([]domain.Candidate(nil), items...),
		expiresAt: now.Add(c.providerTTL),
	}
}

// ---------------------------------------------------------------------------
// Negative (known-empty) aggregate results
// ---------------------------------------------------------------------------

func (c *CacheService) IsNegative(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.negative[key]
	if !ok || now.After(entry.expiresAt) {
		if ok {
			delete(c.negative, key)
		}
		metrics.CacheMissesTotal.WithLabelValues("negative").Inc()
		return false
	}
	metrics.CacheHitsTotal.WithLabelValues("negative").Inc()
	return true
}

func (c *CacheService) StoreNegative(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[key] = negativeCacheEntry{expiresAt: now.Add(c.negativeTTL)}
}

// ---------------------------------------------------------------------------
// Resolved content
// ---------------------------------------------------------------------------

func (c *CacheService) Resolved(ctx context.Context, token string, now time.Time) (*domain.ResolvedSubtitle, bool) {
	c.mu.Lock()
	entry, ok := c.resolved[token]
	if ok && !now.After(entry.expiresAt) {
		c.mu.Unlock()
		metrics.CacheHitsTotal.WithLabelValues("resolved").Inc()
		return entry.resolved, true
	}
	if ok {
		delete(c.resolved, token)
	}
	c.mu.Unlock()

	if c.redis != nil {
		resolved, found, err := c.redis.Get(ctx, token)
		if err == nil && found {
			metrics.CacheHitsTotal.WithLabelValues("resolved").Inc()
			// Keep a local copy so repeated waiters skip Redis.
			c.storeResolvedLocal(token, resolved, now)
			return resolved, true
		}
	}
	metrics.CacheMissesTotal.WithLabelValues("resolved").Inc()
	return nil, false
}

func (c *CacheService) StoreResolved(ctx context.Context, token string, resolved *domain.ResolvedSubtitle, now time.Time) {
	if resolved == nil {
		return
	}
	c.storeResolvedLocal(token, resolved, now)
	if c.redis != nil {
		_ = c.redis.Set(ctx, token, resolved, c.resolvedTTL)
	}
}

func (c *CacheService) storeResolvedLocal(token string, resolved *domain.ResolvedSubtitle, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved[token] = resolvedCacheEntry{
		resolved:  resolved,
		expiresAt: now.Add(c.resolvedTTL),
	}
}
