package modelcache

import (
	"fmt"
	"sync"
)

// CacheRecord pairs a cached model with its in-use lock count. A record
// with a positive lock count is actively in use and must never be
// evicted; the residency of the wrapped model is mutated only through
// the wrapper's own operations, never through the record.
type CacheRecord struct {
	key         string
	cachedModel CachedModel

	mu    sync.Mutex
	locks int
}

// NewCacheRecord creates a record for key owning m.
func NewCacheRecord(key string, m CachedModel) *CacheRecord {
	return &CacheRecord{key: key, cachedModel: m}
}

// Key returns the record's cache key.
func (r *CacheRecord) Key() string { return r.key }

// CachedModel returns the wrapped model.
func (r *CacheRecord) CachedModel() CachedModel { return r.cachedModel }

// Lock marks the model as in use. Locks nest: every Lock must be paired
// with exactly one Unlock.
func (r *CacheRecord) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks++
}

// Unlock releases one lock. Unlocking below zero is a caller bug, not a
// recoverable condition, and panics.
func (r *CacheRecord) Unlock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks--
	if r.locks < 0 {
		panic(fmt.Sprintf("modelcache: unlock of record %q below zero locks", r.key))
	}
}

// IsLocked reports whether the model is actively in use.
func (r *CacheRecord) IsLocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks > 0
}
