package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mohamed-oubenma/smarTube/internal/transcript"
	"github.com/mohamed-oubenma/smarTube/pkg/log"
)

const (
	// DefaultTTL matches the extension's 6-hour transcript freshness window.
	DefaultTTL = 6 * time.Hour
	// DefaultCapacity bounds each tier to the 20 most recently used entries.
	DefaultCapacity = 20
)

// TranscriptCache is the two-tier transcript cache: a mutex-guarded memory
// map backed by a persisted Store. Concurrent fetches for the same key are
// collapsed onto a single upstream request via singleflight.
type TranscriptCache struct {
	store    Store
	fetch    FetchFunc
	ttl      time.Duration
	capacity int
	now      func() time.Time

	mu     sync.Mutex
	memory map[string]*Entry

	flight singleflight.Group
}

type Option func(*TranscriptCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *TranscriptCache) {
		c.ttl = ttl
	}
}

func WithCapacity(capacity int) Option {
	return func(c *TranscriptCache) {
		c.capacity = capacity
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TranscriptCache) {
		c.now = now
	}
}

// New creates a TranscriptCache. A nil store disables the persisted tier;
// the memory tier then carries the process lifetime on its own.
func New(store Store, fetch FetchFunc, opts ...Option) *TranscriptCache {
	c := &TranscriptCache{
		store:    store,
		fetch:    fetch,
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
		memory:   make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFetch returns the cached transcript for a video URL, fetching it
// upstream on a miss. forceRefresh skips the read path but still joins an
// in-flight fetch for the same key. Fetch failures propagate to every
// waiting caller and leave no cache entry behind.
func (c *TranscriptCache) GetOrFetch(ctx context.Context, videoURL string, forceRefresh bool) (*transcript.Data, error) {
	cacheKey := Key(videoURL)

	if !forceRefresh {
		if data, ok := c.lookup(ctx, cacheKey); ok {
			return data, nil
		}
	}

	result, err, shared := c.flight.Do(cacheKey, func() (any, error) {
		log.Info("[TranscriptCache] cache_miss: %s", cacheKey)
		data, err := c.fetch(ctx, videoURL)
		if err != nil {
			return nil, err
		}
		if !data.HasText() {
			return nil, fmt.Errorf("received empty or invalid transcript from provider")
		}
		c.put(ctx, cacheKey, videoURL, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Info("[TranscriptCache] in_flight_reuse: %s", cacheKey)
	}
	return result.(*transcript.Data), nil
}

// Peek reports the cached transcript without fetching, for read-only callers.
func (c *TranscriptCache) Peek(ctx context.Context, videoURL string) (*transcript.Data, bool) {
	return c.lookup(ctx, Key(videoURL))
}

// lookup reads through both tiers: memory first, then the persisted store
// with promotion into memory and a best-effort recency write-back.
func (c *TranscriptCache) lookup(ctx context.Context, cacheKey string) (*transcript.Data, bool) {
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.memory[cacheKey]; ok {
		if entry.fresh(now, c.ttl) {
			entry.LastAccessedAt = now
			c.mu.Unlock()
			log.Debug("[TranscriptCache] cache_hit(memory): %s", cacheKey)
			return entry.TranscriptData, true
		}
		delete(c.memory, cacheKey)
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil, false
	}

	stored, ok, err := c.store.GetEntry(ctx, cacheKey)
	if err != nil {
		log.Warn("[TranscriptCache] failed to read persisted entry %s: %v", cacheKey, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !stored.fresh(now, c.ttl) {
		if err := c.store.DeleteEntry(ctx, cacheKey); err != nil {
			log.Warn("[TranscriptCache] failed to evict stale entry %s: %v", cacheKey, err)
		}
		return nil, false
	}

	stored.LastAccessedAt = now
	c.mu.Lock()
	c.memory[cacheKey] = &stored
	c.pruneMemoryLocked()
	c.mu.Unlock()

	// Best-effort touch so LRU ordering survives a restart.
	if err := c.store.PutEntry(ctx, cacheKey, stored); err != nil {
		log.Warn("[TranscriptCache] failed to touch persisted entry %s: %v", cacheKey, err)
	}
	log.Debug("[TranscriptCache] cache_hit(persisted): %s", cacheKey)
	return stored.TranscriptData, true
}

// put writes a fresh entry to both tiers, memory first.
func (c *TranscriptCache) put(ctx context.Context, cacheKey, videoURL string, data *transcript.Data) {
	now := c.now()
	entry := Entry{
		TranscriptData: data,
		VideoID:        ExtractVideoID(videoURL),
		SourceURL:      videoURL,
		CachedAt:       now,
		LastAccessedAt: now,
	}

	c.mu.Lock()
	c.memory[cacheKey] = &entry
	c.pruneMemoryLocked()
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.PutEntry(ctx, cacheKey, entry); err != nil {
		log.Warn("[TranscriptCache] failed to persist entry %s: %v", cacheKey, err)
		return
	}
	if _, err := c.store.PruneEntries(ctx, now.Add(-c.ttl), c.capacity); err != nil {
		log.Warn("[TranscriptCache] failed to prune persisted tier: %v", err)
	}
}

// pruneMemoryLocked drops the least recently accessed entries once the
// memory tier exceeds capacity. Caller holds c.mu.
func (c *TranscriptCache) pruneMemoryLocked() {
	if len(c.memory) <= c.capacity {
		return
	}

	type keyed struct {
		key   string
		entry *Entry
	}
	entries := make([]keyed, 0, len(c.memory))
	for key, entry := range c.memory {
		entries = append(entries, keyed{key, entry})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].entry.lastAccess().After(entries[j].entry.lastAccess())
	})
	for _, item := range entries[c.capacity:] {
		delete(c.memory, item.key)
	}
}

// Sweep enforces TTL and capacity on both tiers. Wired to the background
// cron schedule; also safe to call directly.
func (c *TranscriptCache) Sweep(ctx context.Context) error {
	now := c.now()

	c.mu.Lock()
	for key, entry := range c.memory {
		if !entry.fresh(now, c.ttl) {
			delete(c.memory, key)
		}
	}
	c.pruneMemoryLocked()
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	removed, err := c.store.PruneEntries(ctx, now.Add(-c.ttl), c.capacity)
	if err != nil {
		return fmt.Errorf("prune persisted transcript cache: %w", err)
	}
	if removed > 0 {
		log.Info("[TranscriptCache] sweep removed %d persisted entries", removed)
	}
	return nil
}
