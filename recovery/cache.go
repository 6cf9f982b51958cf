// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package recovery

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// RecordCache caches recovered records with LRU eviction and TTL
// expiration. Cache keys are computed from the base prompt plus the system
// text, so results are invalidated when either changes.
//
// Thread Safety: This type is safe for concurrent use.
type RecordCache struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	lru     *list.List
	ttl     time.Duration
	maxSize int

	// Metrics
	hits   atomic.Int64
	misses atomic.Int64
}

// recordEntry stores one cached record.
type recordEntry struct {
	key       string
	record    Record
	expiresAt time.Time
}

// NewRecordCache creates a cache with TTL and max size.
//
// Inputs:
//
//	ttl - How long cached records are valid. Must be > 0.
//	maxSize - Maximum number of entries before LRU eviction. Must be > 0.
//
// Thread Safety: The returned cache is safe for concurrent use.
func NewRecordCache(ttl time.Duration, maxSize int) *RecordCache {
	return &RecordCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get retrieves a cached record if valid (not expired).
//
// Outputs:
//
//	Record - A deep copy of the cached record, or nil.
//	bool - True if a valid cached record was found.
//
// Thread Safety: This method is safe for concurrent use.
func (c *RecordCache) Get(prompt, system string) (Record, bool) {
	key := c.computeKey(prompt, system)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		c.misses.Add(1)
		return nil, false
	}

	entry := elem.Value.(*recordEntry)
	if time.Now().After(entry.expiresAt) {
		// Expired - remove lazily
		c.removeElement(elem)
		c.misses.Add(1)
		return nil, false
	}

	c.lru.MoveToFront(elem)
	c.hits.Add(1)

	// Deep copy to prevent mutation of the cached entry
	return entry.record.Clone(), true
}

// Set stores a record, evicting LRU entries if at capacity. Degraded
// records are never cached: a later call should get a fresh chance at a
// clean response.
//
// Thread Safety: This method is safe for concurrent use.
func (c *RecordCache) Set(prompt, system string, rec Record) {
	if rec == nil || rec.Degraded() {
		return
	}

	key := c.computeKey(prompt, system)

	c.mu.Lock()
	defer c.mu.Unlock()

	recCopy := rec.Clone()

	if elem, exists := c.entries[key]; exists {
		entry := elem.Value.(*recordEntry)
		entry.record = recCopy
		entry.expiresAt = time.Now().Add(c.ttl)
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= c.maxSize {
		c.evictOldest()
	}

	entry := &recordEntry{
		key:       key,
		record:    recCopy,
		expiresAt: time.Now().Add(c.ttl),
	}
	elem := c.lru.PushFront(entry)
	c.entries[key] = elem
}

// Clear removes all entries from the cache.
//
// Thread Safety: This method is safe for concurrent use.
func (c *RecordCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru = list.New()
}

// Size returns the current number of entries in the cache.
//
// Thread Safety: This method is safe for concurrent use.
func (c *RecordCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

// HitRate returns the cache hit rate (0.0-1.0).
//
// Thread Safety: This method is safe for concurrent use.
func (c *RecordCache) HitRate() float64 {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// computeKey creates a cache key from the prompt and system text.
func (c *RecordCache) computeKey(prompt, system string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte("|"))
	h.Write([]byte(system))
	return hex.EncodeToString(h.Sum(nil))
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (c *RecordCache) evictOldest() {
	elem := c.lru.Back()
	if elem != nil {
		c.removeElement(elem)
	}
}

// removeElement removes an element from both map and list.
// Must be called with lock held.
func (c *RecordCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*recordEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
}
