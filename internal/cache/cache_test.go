package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamed-oubenma/smarTube/internal/transcript"
)

type memCacheStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	getErr  error
	putErr  error
}

func newMemCacheStore() *memCacheStore {
	return &memCacheStore{entries: make(map[string]Entry)}
}

func (s *memCacheStore) GetEntry(_ context.Context, cacheKey string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return Entry{}, false, s.getErr
	}
	entry, ok := s.entries[cacheKey]
	return entry, ok, nil
}

func (s *memCacheStore) PutEntry(_ context.Context, cacheKey string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.entries[cacheKey] = entry
	return nil
}

func (s *memCacheStore) DeleteEntry(_ context.Context, cacheKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, cacheKey)
	return nil
}

func (s *memCacheStore) PruneEntries(_ context.Context, cutoff time.Time, capacity int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.entries {
		if !entry.CachedAt.After(cutoff) {
			delete(s.entries, key)
			removed++
		}
	}
	if len(s.entries) > capacity {
		type keyed struct {
			key   string
			entry Entry
		}
		all := make([]keyed, 0, len(s.entries))
		for key, entry := range s.entries {
			all = append(all, keyed{key, entry})
		}
		sort.Slice(all, func(i, j int) bool {
			return all[i].entry.lastAccess().After(all[j].entry.lastAccess())
		})
		for _, item := range all[capacity:] {
			delete(s.entries, item.key)
			removed++
		}
	}
	return removed, nil
}

func (s *memCacheStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func staticFetch(text string) FetchFunc {
	return func(context.Context, string) (*transcript.Data, error) {
		return &transcript.Data{PlainText: text, TimestampedText: text}, nil
	}
}

func TestGetOrFetch_MissThenHit(t *testing.T) {
	t.Parallel()

	store := newMemCacheStore()
	var calls atomic.Int32
	fetch := func(context.Context, string) (*transcript.Data, error) {
		calls.Add(1)
		return &transcript.Data{PlainText: "hello"}, nil
	}
	c := New(store, fetch)
	ctx := context.Background()

	data, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	require.NoError(t, err)
	assert.Equal(t, "hello", data.PlainText)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, store.len(), "entry persisted")

	// Second call is served from memory.
	_, err = c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Equivalent URL, same video id, same entry.
	_, err = c.GetOrFetch(ctx, "https://youtu.be/abc", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrFetch_TTLExpiry(t *testing.T) {
	t.Parallel()

	store := newMemCacheStore()
	clock := newFakeClock()
	var calls atomic.Int32
	fetch := func(context.Context, string) (*transcript.Data, error) {
		calls.Add(1)
		return &transcript.Data{PlainText: fmt.Sprintf("take-%d", calls.Load())}, nil
	}
	c := New(store, fetch, WithClock(clock.Now))
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	require.NoError(t, err)

	// Aged 7 hours against a 6 hour TTL: treated as absent and purged.
	clock.Advance(7 * time.Hour)
	_, ok := c.Peek(ctx, "https://youtube.com/watch?v=abc")
	assert.False(t, ok)
	assert.Equal(t, 0, store.len(), "stale persisted entry evicted on read")

	data, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	require.NoError(t, err)
	assert.Equal(t, "take-2", data.PlainText)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrFetch_CapacityPruning(t *testing.T) {
	t.Parallel()

	store := newMemCacheStore()
	clock := newFakeClock()
	c := New(store, staticFetch("x"), WithClock(clock.Now), WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"v1", "v2", "v3"} {
		_, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v="+id, false)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	c.mu.Lock()
	memSize := len(c.memory)
	_, hasOldest := c.memory[Key("https://youtube.com/watch?v=v1")]
	_, hasNewest := c.memory[Key("https://youtube.com/watch?v=v3")]
	c.mu.Unlock()

	assert.Equal(t, 2, memSize)
	assert.False(t, hasOldest, "least recently accessed entry dropped")
	assert.True(t, hasNewest)
	assert.LessOrEqual(t, store.len(), 2, "persisted tier pruned to capacity")
}

func TestGetOrFetch_DeduplicatesConcurrentFetches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context, string) (*transcript.Data, error) {
		calls.Add(1)
		<-release
		return &transcript.Data{PlainText: "shared"}, nil
	}
	c := New(nil, fetch)
	ctx := context.Background()

	const workers = 10
	results := make([]*transcript.Data, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "exactly one upstream fetch")
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i].PlainText)
	}
}

func TestGetOrFetch_FailurePropagatesAndLeavesNoEntry(t *testing.T) {
	t.Parallel()

	store := newMemCacheStore()
	var calls atomic.Int32
	fetchErr := errors.New("provider down")
	fetch := func(context.Context, string) (*transcript.Data, error) {
		calls.Add(1)
		return nil, fetchErr
	}
	c := New(store, fetch)
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, 0, store.len(), "no partial entry written")

	// The in-flight slot is cleared on failure, so the next call retries.
	_, err = c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrFetch_EmptyTranscriptIsAnError(t *testing.T) {
	t.Parallel()

	c := New(nil, staticFetch(""))
	_, err := c.GetOrFetch(context.Background(), "https://youtube.com/watch?v=abc", false)
	assert.Error(t, err)
}

func TestGetOrFetch_ForceRefresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fetch := func(context.Context, string) (*transcript.Data, error) {
		calls.Add(1)
		return &transcript.Data{PlainText: fmt.Sprintf("take-%d", calls.Load())}, nil
	}
	c := New(nil, fetch)
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	require.NoError(t, err)

	data, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", true)
	require.NoError(t, err)
	assert.Equal(t, "take-2", data.PlainText)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrFetch_PromotesFromPersistedTier(t *testing.T) {
	t.Parallel()

	store := newMemCacheStore()
	clock := newFakeClock()
	key := Key("https://youtube.com/watch?v=abc")
	store.entries[key] = Entry{
		TranscriptData: &transcript.Data{PlainText: "persisted"},
		VideoID:        "abc",
		SourceURL:      "https://youtube.com/watch?v=abc",
		CachedAt:       clock.Now().Add(-time.Hour),
		LastAccessedAt: clock.Now().Add(-time.Hour),
	}

	fetch := func(context.Context, string) (*transcript.Data, error) {
		t.Error("fetch must not run on a persisted-tier hit")
		return nil, nil
	}
	c := New(store, fetch, WithClock(clock.Now))

	data, err := c.GetOrFetch(context.Background(), "https://youtube.com/watch?v=abc", false)
	require.NoError(t, err)
	assert.Equal(t, "persisted", data.PlainText)

	c.mu.Lock()
	_, inMemory := c.memory[key]
	c.mu.Unlock()
	assert.True(t, inMemory, "promoted into the memory tier")

	touched := store.entries[key]
	assert.Equal(t, clock.Now(), touched.LastAccessedAt, "recency written back")
}

func TestGetOrFetch_PersistedTierFailuresAreNonFatal(t *testing.T) {
	t.Parallel()

	store := newMemCacheStore()
	store.getErr = errors.New("storage unavailable")
	store.putErr = errors.New("storage unavailable")
	var calls atomic.Int32
	fetch := func(context.Context, string) (*transcript.Data, error) {
		calls.Add(1)
		return &transcript.Data{PlainText: "memory only"}, nil
	}
	c := New(store, fetch)
	ctx := context.Background()

	data, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	require.NoError(t, err)
	assert.Equal(t, "memory only", data.PlainText)

	// Memory tier stays authoritative despite the broken store.
	_, err = c.GetOrFetch(ctx, "https://youtube.com/watch?v=abc", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSweep(t *testing.T) {
	t.Parallel()

	store := newMemCacheStore()
	clock := newFakeClock()
	c := New(store, staticFetch("x"), WithClock(clock.Now))
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "https://youtube.com/watch?v=old", false)
	require.NoError(t, err)
	clock.Advance(7 * time.Hour)
	_, err = c.GetOrFetch(ctx, "https://youtube.com/watch?v=new", false)
	require.NoError(t, err)

	require.NoError(t, c.Sweep(ctx))

	c.mu.Lock()
	_, hasOld := c.memory[Key("https://youtube.com/watch?v=old")]
	_, hasNew := c.memory[Key("https://youtube.com/watch?v=new")]
	c.mu.Unlock()
	assert.False(t, hasOld)
	assert.True(t, hasNew)
	assert.Equal(t, 1, store.len())
}
