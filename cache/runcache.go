// Package cache implements the two-tier Run Cache: a short-TTL tier for
// live (not yet stopped) runs, whose descriptors and event counts can
// still change, and a long-TTL tier for complete runs, which are
// immutable once cached.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Entry is whatever a RunCache caches per run uid; callers parametrize the
// cache with their own run-object type.
type Entry = interface{}

// Config bounds the cache's two tiers by entry count and TTL.
type Config struct {
	LiveSize int
	LiveTTL  time.Duration

	CompleteSize int
	CompleteTTL  time.Duration
}

// DefaultConfig matches the reference engine's tuning: live runs are
// revalidated every couple of seconds since they're still being written
// to, complete runs are cached for a full minute since nothing about them
// can change.
func DefaultConfig() Config {
	return Config{
		LiveSize:     256,
		LiveTTL:      2 * time.Second,
		CompleteSize: 4096,
		CompleteTTL:  60 * time.Second,
	}
}

// RunCache holds run objects keyed by RunStart.uid, split across a live
// and a complete tier. A run moves from live to complete exactly once,
// the moment its RunStop is observed, via Promote.
type RunCache[T any] struct {
	live     *lru.LRU[string, T]
	complete *lru.LRU[string, T]
}

// New constructs a RunCache with the given tier bounds.
func New[T any](cfg Config) *RunCache[T] {
	return &RunCache[T]{
		live:     lru.NewLRU[string, T](cfg.LiveSize, nil, cfg.LiveTTL),
		complete: lru.NewLRU[string, T](cfg.CompleteSize, nil, cfg.CompleteTTL),
	}
}

// GetLive returns a cached live-tier entry for uid, if present and
// unexpired.
func (c *RunCache[T]) GetLive(uid string) (T, bool) {
	return c.live.Get(uid)
}

// GetComplete returns a cached complete-tier entry for uid, if present and
// unexpired.
func (c *RunCache[T]) GetComplete(uid string) (T, bool) {
	return c.complete.Get(uid)
}

// Get checks the complete tier first (it never needs revalidation), then
// the live tier.
func (c *RunCache[T]) Get(uid string) (T, bool) {
	if v, ok := c.complete.Get(uid); ok {
		return v, true
	}
	return c.live.Get(uid)
}

// PutLive caches v for uid in the live tier.
func (c *RunCache[T]) PutLive(uid string, v T) {
	c.live.Add(uid, v)
}

// Promote moves uid from the live tier to the complete tier, called the
// moment a run's RunStop is observed. The live entry is evicted so a
// subsequent write to a resurrected uid (which should never happen, but
// defensively) cannot shadow the now-authoritative complete entry.
func (c *RunCache[T]) Promote(uid string, v T) {
	c.live.Remove(uid)
	c.complete.Add(uid, v)
}

// Invalidate evicts uid from both tiers.
func (c *RunCache[T]) Invalidate(uid string) {
	c.live.Remove(uid)
	c.complete.Remove(uid)
}
