// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package annotationcache

import (
	"context"
	"sync"
	"time"

	"github.com/mattermost/reference-annotator/annotations"
)

const maxCleanupInterval = time.Hour

// MemoryStore is an in-process Store with optional expiry and size bound.
// Callers must call Close() when done to stop the background cleanup goroutine.
type MemoryStore struct {
	items      map[annotations.ContentKey]*cacheItem
	ttl        time.Duration
	maxEntries int
	mu         sync.RWMutex
	cleanup    chan struct{}
	closeOnce  sync.Once
	now        func() time.Time
}

// cacheItem represents a cached result with its storage and expiration times
type cacheItem struct {
	result    *annotations.Result
	storedAt  time.Time
	expiresAt time.Time
}

func (i *cacheItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// NewMemoryStore creates a store. A zero ttl keeps entries until evicted; a zero
// maxEntries leaves the store unbounded.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	store := &MemoryStore{
		items:      make(map[annotations.ContentKey]*cacheItem),
		ttl:        ttl,
		maxEntries: maxEntries,
		cleanup:    make(chan struct{}),
		now:        time.Now,
	}

	if ttl > 0 {
		go store.startCleanup(min(ttl, maxCleanupInterval))
	}

	return store
}

// Get retrieves a result by key. Expired entries are reported as misses.
func (s *MemoryStore) Get(_ context.Context, key annotations.ContentKey) (*annotations.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[key]
	if !exists || item.expired(s.now()) {
		// Don't delete here to avoid write lock during read
		return nil, false, nil
	}

	return item.result, true, nil
}

// Set stores a result, evicting the oldest entry when the store is full.
func (s *MemoryStore) Set(_ context.Context, result *annotations.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	item := &cacheItem{
		result:   result,
		storedAt: now,
	}
	if s.ttl > 0 {
		item.expiresAt = now.Add(s.ttl)
	}

	if _, exists := s.items[result.Key]; !exists && s.maxEntries > 0 {
		for len(s.items) >= s.maxEntries {
			s.evictOldestLocked(now)
		}
	}

	s.items[result.Key] = item
	return nil
}

// Delete removes a specific key from the store
func (s *MemoryStore) Delete(_ context.Context, key annotations.ContentKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Len returns the current number of items, including expired ones not yet cleaned up.
func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items), nil
}

// Close stops the background cleanup goroutine.
// Safe to call multiple times - only the first call has effect.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() {
		close(s.cleanup)
	})
}

// evictOldestLocked drops an expired entry if there is one, otherwise the oldest.
// Callers hold mu.
func (s *MemoryStore) evictOldestLocked(now time.Time) {
	var oldestKey annotations.ContentKey
	var oldest *cacheItem
	for key, item := range s.items {
		if item.expired(now) {
			delete(s.items, key)
			return
		}
		if oldest == nil || item.storedAt.Before(oldest.storedAt) {
			oldestKey, oldest = key, item
		}
	}
	if oldest != nil {
		delete(s.items, oldestKey)
	}
}

// startCleanup runs the background cleanup goroutine
func (s *MemoryStore) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpiredItems()
		case <-s.cleanup:
			return
		}
	}
}

// removeExpiredItems removes all expired items from the store
func (s *MemoryStore) removeExpiredItems() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, item := range s.items {
		if item.expired(now) {
			delete(s.items, key)
		}
	}
}
