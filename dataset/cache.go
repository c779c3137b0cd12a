package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedSource keeps the last loaded frame for ttl. Only the table is cached;
// samples are still drawn per request.
type CachedSource struct {
	src   Source
	cache *expirable.LRU[string, *Frame]
	mu    sync.Mutex
}

func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		src:   src,
		cache: expirable.NewLRU[string, *Frame](1, nil, ttl),
	}
}

func (c *CachedSource) Name() string { return c.src.Name() }

func (c *CachedSource) Close() error { return CloseSource(c.src) }

func (c *CachedSource) Load(ctx context.Context) (*Frame, error) {
	key := c.src.Name()
	if frame, ok := c.cache.Get(key); ok {
		return frame, nil
	}

	// one download per expiry, concurrent callers wait for it
	c.mu.Lock()
	defer c.mu.Unlock()
	if frame, ok := c.cache.Get(key); ok {
		return frame, nil
	}

	frame, err := c.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, frame)
	return frame, nil
}

// Purge drops the cached frame.
func (c *CachedSource) Purge() {
	c.cache.Purge()
}
