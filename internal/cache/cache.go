// Package cache keeps computed session scores so history and report views do
// not rescore every stored session on each request.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/terra-clan/gmfm-scoring/internal/scoring"
)

// ScoreCache stores score results by session ID. Backend failures are logged
// and treated as misses; they never fail the caller.
type ScoreCache interface {
	Get(ctx context.Context, sessionID string) (*scoring.ScoreResult, bool)
	Set(ctx context.Context, sessionID string, result *scoring.ScoreResult)
	Invalidate(ctx context.Context, sessionID string)
}

// Observer is notified of hits and misses (see metrics.Collector)
type Observer interface {
	CacheHit()
	CacheMiss()
}

type nopObserver struct{}

func (nopObserver) CacheHit()  {}
func (nopObserver) CacheMiss() {}

// Loader wraps a ScoreCache and coalesces concurrent misses for the same
// session into a single computation.
type Loader struct {
	cache    ScoreCache
	observer Observer
	group    singleflight.Group

	// gens is bumped by Prime and Invalidate so that a computation started
	// before either of them never overwrites the newer state.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewLoader creates a loader. A nil cache disables caching, a nil observer records nothing.
func NewLoader(c ScoreCache, obs Observer) *Loader {
	if c == nil {
		c = NopCache{}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Loader{cache: c, observer: obs, gens: make(map[string]uint64)}
}

// GetOrCompute returns the cached result or runs compute once for all
// concurrent callers asking for the same session.
func (l *Loader) GetOrCompute(ctx context.Context, sessionID string, compute func() (*scoring.ScoreResult, error)) (*scoring.ScoreResult, error) {
	gen := l.generation(sessionID)
	if r, ok := l.cache.Get(ctx, sessionID); ok {
		l.observer.CacheHit()
		return r, nil
	}
	l.observer.CacheMiss()

	v, err, _ := l.group.Do(sessionID, func() (any, error) {
		r, err := compute()
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.gens[sessionID] == gen {
			l.cache.Set(ctx, sessionID, r)
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*scoring.ScoreResult), nil
}

// Prime stores a freshly computed result, replacing any cached one
func (l *Loader) Prime(ctx context.Context, sessionID string, r *scoring.ScoreResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gens[sessionID]++
	l.group.Forget(sessionID)
	l.cache.Set(ctx, sessionID, r)
}

// Invalidate drops the cached result of a session
func (l *Loader) Invalidate(ctx context.Context, sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gens[sessionID]++
	l.group.Forget(sessionID)
	l.cache.Invalidate(ctx, sessionID)
}

func (l *Loader) generation(sessionID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gens[sessionID]
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*scoring.ScoreResult, bool) { return nil, false }
func (NopCache) Set(context.Context, string, *scoring.ScoreResult)        {}
func (NopCache) Invalidate(context.Context, string)                       {}

// MemoryCache is an in-process cache with expiry, used when Redis is not configured.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	result    scoring.ScoreResult
	expiresAt time.Time
}

// NewMemoryCache creates a memory cache. ttl <= 0 keeps entries until invalidated.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, sessionID string) (*scoring.ScoreResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sessionID]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, sessionID)
		return nil, false
	}
	return cloneResult(&e.result), true
}

func (c *MemoryCache) Set(_ context.Context, sessionID string, result *scoring.ScoreResult) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{result: *cloneResult(result)}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[sessionID] = e
}

func (c *MemoryCache) Invalidate(_ context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// cloneResult copies the result so callers cannot mutate cached state
func cloneResult(r *scoring.ScoreResult) *scoring.ScoreResult {
	out := *r
	out.Domains = append([]scoring.DomainScore(nil), r.Domains...)
	return &out
}
