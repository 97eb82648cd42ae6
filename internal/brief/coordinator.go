package brief

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Generator produces brief content for one user.
type Generator interface {
	Generate(ctx context.Context, userID, contactAddress string) (string, error)
}

type cacheEntry struct {
	content   string
	createdAt time.Time
}

// Coordinator wraps the generation pipeline with a short-TTL result
// cache and in-flight coalescing. The cache only exists to absorb
// bursts of duplicate requests for the same user; it is process-local
// and never persisted.
type Coordinator struct {
	generator Generator
	ttl       time.Duration
	log       *zap.Logger

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewCoordinator(generator Generator, ttl time.Duration, log *zap.Logger) *Coordinator {
	return &Coordinator{
		generator: generator,
		ttl:       ttl,
		log:       log,
		cache:     make(map[string]cacheEntry),
	}
}

// Produce returns the brief for the user, serving from cache when a
// non-expired entry exists and coalescing concurrent generation for
// the same key. A caller that joined an in-flight attempt which
// failed starts one fresh attempt instead of propagating the stale
// failure.
func (c *Coordinator) Produce(ctx context.Context, userID, contactAddress string) (string, error) {
	key := userID + "|" + contactAddress
	if content, ok := c.cached(key); ok {
		return content, nil
	}

	retried := false
	for {
		// executed tells this caller whether it ran the closure itself.
		// singleflight's shared flag cannot distinguish leader from
		// joiner: it is true for both once anyone joins.
		executed := false
		v, err, _ := c.group.Do(key, func() (any, error) {
			executed = true
			// another caller may have filled the cache while we waited
			if content, ok := c.cached(key); ok {
				return content, nil
			}
			content, err := c.generator.Generate(ctx, userID, contactAddress)
			if err != nil {
				return nil, err
			}
			c.store(key, content)
			return content, nil
		})
		if err == nil {
			return v.(string), nil
		}
		if !executed && !retried {
			// the attempt we joined failed; try once as leader. A
			// caller that ran the attempt itself propagates its error.
			retried = true
			c.group.Forget(key)
			continue
		}
		return "", err
	}
}

func (c *Coordinator) cached(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok || time.Since(e.createdAt) > c.ttl {
		return "", false
	}
	return e.content, true
}

// store caches fresh content and opportunistically evicts whatever
// has expired.
func (c *Coordinator) store(key, content string) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.cache {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.cache, k)
		}
	}
	c.cache[key] = cacheEntry{content: content, createdAt: now}
}
