package release

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fleetver/fleetver/internal/log"
)

// DefaultTTL is how long a snapshot stays fresh without refetching.
const DefaultTTL = 30 * time.Minute

// Cache holds the most recent release snapshot for one repository and
// decides when a refresh is required. At most one snapshot is live at a
// time; it is replaced wholesale on a successful fetch.
//
// Refreshes are single-flight: concurrent readers hitting a stale
// window share one upstream request instead of each issuing their own.
// The shared fetch runs detached from any single caller's context, so
// a caller that cancels stops waiting without aborting the fetch the
// others are still waiting on. A failed refresh never discards a
// previous snapshot; stale data keeps serving reads until a fetch
// succeeds. Only Invalidate clears the cache outright, after which a
// failed fetch leaves it empty and reads fail with *FetchError.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  log.Logger

	group singleflight.Group

	mu   sync.RWMutex
	snap *Snapshot
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock injects the time source. Tests use this to step through
// TTL windows deterministically.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithCacheLogger sets the cache's logger.
func WithCacheLogger(l log.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// NewCache creates a cache over the given fetcher. A zero ttl takes
// DefaultTTL.
func NewCache(fetcher Fetcher, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		logger:  log.NewNoop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current snapshot, refreshing first when the TTL
// has elapsed or the cache is empty. When the refresh fails but an
// earlier snapshot exists, that snapshot is served and the failure is
// logged; with an empty cache the *FetchError propagates.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := c.current(); snap != nil && c.fresh(snap) {
		return snap, nil
	}

	snap, err := c.flight(ctx, "ttl", func(ctx context.Context) (*Snapshot, error) {
		// Recheck under the flight: a waiter that queued behind a
		// completed refresh must not trigger another one.
		if snap := c.current(); snap != nil && c.fresh(snap) {
			return snap, nil
		}
		return c.fetch(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if snap := c.current(); snap != nil {
			c.logger.Warn("serving stale release snapshot after refresh failure",
				"error", err, "age", c.now().Sub(snap.FetchedAt))
			return snap, nil
		}
		return nil, err
	}
	return snap, nil
}

// Refresh fetches a new snapshot regardless of remaining TTL.
// Concurrent forced refreshes share one upstream request. Unlike
// Snapshot, a failure here always propagates: callers forcing a
// refresh have decided staleness is unacceptable.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.flight(ctx, "force", c.fetch)
}

// flight runs fn once per key across concurrent callers. The fetch
// itself runs on a context stripped of the initiating caller's
// cancellation (the fetcher applies its own timeout), so one caller
// hanging up cannot fail the request everyone else shares. A canceled
// caller returns its context error and stops waiting; the flight
// completes for the rest.
func (c *Cache) flight(ctx context.Context, key string, fn func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate clears the snapshot and its timestamp, forcing the next
// read to refetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
	c.logger.Info("release snapshot invalidated")
}

func (c *Cache) current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Cache) fresh(s *Snapshot) bool {
	return c.now().Sub(s.FetchedAt) < c.ttl
}

func (c *Cache) fetch(ctx context.Context) (*Snapshot, error) {
	releases, err := c.fetcher.FetchReleases(ctx)
	if err != nil {
		return nil, &FetchError{Op: "releases", Err: err}
	}

	snap := &Snapshot{Releases: releases, FetchedAt: c.now()}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.logger.Debug("refreshed release snapshot", "releases", len(releases))
	return snap, nil
}
