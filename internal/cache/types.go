package cache

import (
	"context"
	"time"

	"github.com/mohamed-oubenma/smarTube/internal/transcript"
)

// Entry is one cached transcript plus the bookkeeping the TTL and LRU
// policies need. LastAccessedAt is bumped on every read hit.
type Entry struct {
	TranscriptData *transcript.Data `json:"transcript_data"`
	VideoID        string           `json:"video_id,omitempty"`
	SourceURL      string           `json:"source_url"`
	CachedAt       time.Time        `json:"cached_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
}

// lastAccess is the recency value used for LRU ordering, falling back to the
// creation time for entries persisted before a touch.
func (e Entry) lastAccess() time.Time {
	if !e.LastAccessedAt.IsZero() {
		return e.LastAccessedAt
	}
	return e.CachedAt
}

// fresh reports whether the entry is usable: young enough and carrying text.
func (e Entry) fresh(now time.Time, ttl time.Duration) bool {
	if !e.TranscriptData.HasText() {
		return false
	}
	if e.CachedAt.IsZero() {
		return false
	}
	return now.Sub(e.CachedAt) < ttl
}

// Store is the persisted cache tier. All calls are best-effort from the
// cache's point of view: failures are logged and the memory tier stays
// authoritative.
type Store interface {
	GetEntry(ctx context.Context, cacheKey string) (Entry, bool, error)
	PutEntry(ctx context.Context, cacheKey string, entry Entry) error
	DeleteEntry(ctx context.Context, cacheKey string) error
	// PruneEntries drops entries cached at or before cutoff and, beyond
	// that, everything above capacity by recency. Returns rows removed.
	PruneEntries(ctx context.Context, cutoff time.Time, capacity int) (int64, error)
}

// FetchFunc acquires a transcript upstream on a cache miss.
type FetchFunc func(ctx context.Context, videoURL string) (*transcript.Data, error)
