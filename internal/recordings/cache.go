package recordings

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/vokivo/backend/internal/models"
)

// DefaultCacheSize bounds the recording cache when no size is configured.
const DefaultCacheSize = 512

type cacheEntry struct {
	info models.RecordingInfo
	err  error
}

// CachedLookup wraps a Lookup with a bounded LRU cache keyed by call SID.
// Entries are write-once: failures are cached too, so a call with no
// recording is not re-fetched on every render.
type CachedLookup struct {
	inner  Lookup
	cache  *lru.Cache[string, cacheEntry]
	logger zerolog.Logger

	mu sync.Mutex
}

func NewCachedLookup(inner Lookup, size int, logger zerolog.Logger) (*CachedLookup, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &CachedLookup{inner: inner, cache: cache, logger: logger}, nil
}

func (c *CachedLookup) FetchRecording(ctx context.Context, callSID string) (models.RecordingInfo, error) {
	if entry, ok := c.cache.Get(callSID); ok {
		return entry.info, entry.err
	}

	// Serialize misses so concurrent requests for the same SID hit the proxy
	// once.
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.cache.Get(callSID); ok {
		return entry.info, entry.err
	}

	info, err := c.inner.FetchRecording(ctx, callSID)
	if err != nil && ctx.Err() != nil {
		// Caller went away; don't poison the cache with a cancellation.
		return models.RecordingInfo{}, err
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("call_sid", callSID).Msg("caching negative recording lookup")
	}
	c.cache.Add(callSID, cacheEntry{info: info, err: err})
	return info, err
}

// Len reports the number of cached SIDs.
func (c *CachedLookup) Len() int {
	return c.cache.Len()
}
