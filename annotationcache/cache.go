// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package annotationcache deduplicates reference extraction by answer content.
package annotationcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/logger"
	"github.com/mattermost/reference-annotator/metrics"
)

// ComputeFunc produces the entries for a key on a miss.
type ComputeFunc func(ctx context.Context) ([]annotations.ReferenceEntry, error)

// Observer receives cache lookup outcomes.
type Observer interface {
	IncrementCacheLookup(result string)
}

// Stats are cumulative counters since the cache was created.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Shared   int64 `json:"shared"`
	Computes int64 `json:"computes"`
	Failures int64 `json:"failures"`
}

// Cache returns stored results by content key and runs at most one computation per key
// at a time. Successful results are written to every tier; failures are never stored.
type Cache struct {
	tiers    []Store
	group    singleflight.Group
	log      logger.Logger
	observer Observer
	now      func() time.Time

	hits     atomic.Int64
	misses   atomic.Int64
	shared   atomic.Int64
	computes atomic.Int64
	failures atomic.Int64
}

type Option func(*Cache)

// WithPersistentStore adds a second tier consulted after memory. Hits found there are
// promoted to memory.
func WithPersistentStore(store Store) Option {
	return func(c *Cache) {
		if store != nil {
			c.tiers = append(c.tiers, store)
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Cache) {
		c.observer = observer
	}
}

// New creates a cache with memory as its first tier.
func New(memory Store, opts ...Option) *Cache {
	c := &Cache{
		tiers: []Store{memory},
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the stored result for key, joins a computation already running
// for key, or runs compute. Every caller joined to one computation receives the same
// result pointer or the same error. compute runs on a context detached from ctx, so a
// caller giving up does not abort the work for the others or the store write.
func (c *Cache) GetOrCompute(ctx context.Context, key annotations.ContentKey, compute ComputeFunc) (*annotations.Result, error) {
	if result, ok := c.lookup(ctx, key); ok {
		c.record(metrics.CacheResultHit, &c.hits)
		return result, nil
	}

	detached := context.WithoutCancel(ctx)
	var leader bool
	ch := c.group.DoChan(string(key), func() (any, error) {
		leader = true

		// A computation that finished between the lookup above and joining the group
		// has already stored its result.
		if result, ok := c.lookup(detached, key); ok {
			return result, nil
		}

		return c.compute(detached, key, compute)
	})

	select {
	case res := <-ch:
		if leader {
			c.record(metrics.CacheResultMiss, &c.misses)
		} else {
			c.record(metrics.CacheResultShared, &c.shared)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*annotations.Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns a stored result without computing.
func (c *Cache) Get(ctx context.Context, key annotations.ContentKey) (*annotations.Result, bool) {
	return c.lookup(ctx, key)
}

// Invalidate removes key from every tier.
func (c *Cache) Invalidate(ctx context.Context, key annotations.ContentKey) error {
	for _, tier := range c.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Shared:   c.shared.Load(),
		Computes: c.computes.Load(),
		Failures: c.failures.Load(),
	}
}

func (c *Cache) compute(ctx context.Context, key annotations.ContentKey, compute ComputeFunc) (result *annotations.Result, err error) {
	c.computes.Add(1)
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("annotation compute panicked: %v", r)
		}
		if err != nil {
			c.failures.Add(1)
		}
	}()

	entries, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []annotations.ReferenceEntry{}
	}

	result = &annotations.Result{
		Key:        key,
		Entries:    entries,
		ComputedAt: c.now().UTC(),
	}

	for _, tier := range c.tiers {
		if storeErr := tier.Set(ctx, result); storeErr != nil {
			c.log.Warn("Failed to store annotations", "content_key", key, "error", storeErr)
		}
	}

	return result, nil
}

// lookup walks the tiers in order. Store errors are logged and treated as misses.
func (c *Cache) lookup(ctx context.Context, key annotations.ContentKey) (*annotations.Result, bool) {
	for i, tier := range c.tiers {
		result, ok, err := tier.Get(ctx, key)
		if err != nil {
			c.log.Warn("Failed to read annotations", "content_key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}

		for _, upper := range c.tiers[:i] {
			if err := upper.Set(ctx, result); err != nil {
				c.log.Warn("Failed to promote annotations", "content_key", key, "error", err)
			}
		}
		return result, true
	}
	return nil, false
}

func (c *Cache) record(result string, counter *atomic.Int64) {
	counter.Add(1)
	if c.observer != nil {
		c.observer.IncrementCacheLookup(result)
	}
}
