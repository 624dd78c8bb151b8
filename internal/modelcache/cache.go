package modelcache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/heyross/InvokeAI/internal/tensor"
	"github.com/heyross/InvokeAI/pkg/types"
)

// CacheConfig encapsulates all tunables for Cache construction.
type CacheConfig struct {
	Backend       tensor.Backend
	ComputeDevice tensor.Device
	// VRAMBudgetBytes bounds total device residency across records
	// (0 = unlimited).
	VRAMBudgetBytes int64
	// VRAMMarginBytes is kept free below the budget.
	VRAMMarginBytes int64
	Logger          zerolog.Logger
}

// Cache is the model cache manager: it owns the collection of cache
// records and relieves device memory pressure by unloading unlocked
// records, least recently used first. Wrapper load/unload calls are
// serialized by the cache's own mutex; a record's lock count is the one
// contract exposed to concurrent callers.
type Cache struct {
	mu            sync.Mutex
	backend       tensor.Backend
	computeDevice tensor.Device
	budgetBytes   int64
	marginBytes   int64
	records       map[string]*CacheRecord
	lastUsed      map[string]time.Time
	evictions     uint64
	log           zerolog.Logger
}

// NewCache constructs a Cache from cfg.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		backend:       cfg.Backend,
		computeDevice: cfg.ComputeDevice,
		budgetBytes:   cfg.VRAMBudgetBytes,
		marginBytes:   cfg.VRAMMarginBytes,
		records:       make(map[string]*CacheRecord),
		lastUsed:      make(map[string]time.Time),
		log:           cfg.Logger,
	}
}

// ComputeDevice returns the device this cache loads onto.
func (c *Cache) ComputeDevice() tensor.Device { return c.computeDevice }

// Put adds a model to the cache under key.
func (c *Cache) Put(key string, m CachedModel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.records[key]; dup {
		return ErrDuplicateKey(key)
	}
	c.records[key] = NewCacheRecord(key, m)
	c.lastUsed[key] = time.Now()
	cacheModelsGauge.Inc()
	c.log.Info().Str("key", key).Int64("total_bytes", m.TotalBytes()).Msg("model cached")
	return nil
}

// Get fetches the record for key and marks it recently used.
func (c *Cache) Get(key string) (*CacheRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key]
	if !ok {
		return nil, ErrModelNotFound(key)
	}
	c.lastUsed[key] = time.Now()
	return rec, nil
}

// Exists reports whether key is cached.
func (c *Cache) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[key]
	return ok
}

// Drop evicts the record for key, reclaiming any device memory it
// holds. Dropping a locked record is refused.
func (c *Cache) Drop(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key]
	if !ok {
		return ErrModelNotFound(key)
	}
	if rec.IsLocked() {
		return ErrModelLocked(key)
	}
	freed := rec.CachedModel().FullUnloadFromVRAM()
	delete(c.records, key)
	delete(c.lastUsed, key)
	cacheModelsGauge.Dec()
	c.log.Info().Str("key", key).Int64("freed_bytes", freed).Msg("model dropped")
	return nil
}

// UsedVRAMBytes sums device residency across all records.
func (c *Cache) UsedVRAMBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedVRAMBytesLocked()
}

func (c *Cache) usedVRAMBytesLocked() int64 {
	var used int64
	for _, rec := range c.records {
		used += rec.CachedModel().CurVRAMBytes()
	}
	return used
}

// LoadModel brings the model for key onto the compute device, freeing
// room first if a budget is configured. targetBytes bounds how much of
// the model to load; targetBytes >= the model's total loads it fully.
// Returns the bytes loaded by this call.
func (c *Cache) LoadModel(key string, targetBytes int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key]
	if !ok {
		return 0, ErrModelNotFound(key)
	}
	m := rec.CachedModel()
	if targetBytes > m.TotalBytes() {
		targetBytes = m.TotalBytes()
	}
	need := targetBytes - m.CurVRAMBytes()
	if need > 0 {
		c.makeRoomLocked(need, key)
	}

	var loaded int64
	if pm, ok := m.(*CachedModelWithPartialLoad); ok {
		loaded = pm.PartialLoadToVRAM(targetBytes)
	} else {
		loaded = m.FullLoadToVRAM()
	}
	c.lastUsed[key] = time.Now()
	cacheVRAMBytesGauge.Set(float64(c.usedVRAMBytesLocked()))
	c.log.Info().Str("key", key).
		Int64("loaded_bytes", loaded).
		Int64("cur_vram_bytes", m.CurVRAMBytes()).
		Msg("model load")
	return loaded, nil
}

// UnloadModel frees at least targetFreeBytes from the model for key
// (everything, for a full-load wrapper). Returns the bytes freed.
func (c *Cache) UnloadModel(key string, targetFreeBytes int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key]
	if !ok {
		return 0, ErrModelNotFound(key)
	}
	freed := c.unloadRecordLocked(rec, targetFreeBytes)
	cacheVRAMBytesGauge.Set(float64(c.usedVRAMBytesLocked()))
	return freed, nil
}

// MakeRoom frees device memory until requiredBytes fit under the budget
// (with the configured margin), unloading unlocked records least
// recently used first. Returns the bytes freed. With no budget
// configured this is a no-op.
func (c *Cache) MakeRoom(requiredBytes int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	freed := c.makeRoomLocked(requiredBytes, "")
	cacheVRAMBytesGauge.Set(float64(c.usedVRAMBytesLocked()))
	return freed
}

func (c *Cache) makeRoomLocked(requiredBytes int64, exceptKey string) int64 {
	if c.budgetBytes <= 0 {
		return 0
	}
	var freed int64
	for {
		used := c.usedVRAMBytesLocked()
		if used+requiredBytes+c.marginBytes <= c.budgetBytes {
			return freed
		}
		rec := c.pickEvictionVictimLocked(exceptKey)
		if rec == nil {
			// Everything left is locked; the caller's load may still
			// proceed and exceed the budget.
			c.log.Warn().
				Int64("required_bytes", requiredBytes).
				Int64("used_bytes", used).
				Msg("cannot free device memory: all records locked")
			return freed
		}
		overBy := used + requiredBytes + c.marginBytes - c.budgetBytes
		got := c.unloadRecordLocked(rec, overBy)
		c.evictions++
		cacheEvictionsTotal.Inc()
		freed += got
		if got == 0 {
			// Victim had nothing resident; avoid spinning on it.
			return freed
		}
	}
}

// pickEvictionVictimLocked returns the least recently used unlocked
// record that still holds device memory, or nil.
func (c *Cache) pickEvictionVictimLocked(exceptKey string) *CacheRecord {
	var victim *CacheRecord
	var victimUsed time.Time
	for key, rec := range c.records {
		if key == exceptKey || rec.IsLocked() {
			continue
		}
		if rec.CachedModel().CurVRAMBytes() == 0 {
			continue
		}
		if victim == nil || c.lastUsed[key].Before(victimUsed) {
			victim = rec
			victimUsed = c.lastUsed[key]
		}
	}
	return victim
}

func (c *Cache) unloadRecordLocked(rec *CacheRecord, targetFreeBytes int64) int64 {
	m := rec.CachedModel()
	var freed int64
	if pm, ok := m.(*CachedModelWithPartialLoad); ok && targetFreeBytes < m.CurVRAMBytes() {
		freed = pm.PartialUnloadFromVRAM(targetFreeBytes)
	} else {
		freed = m.FullUnloadFromVRAM()
	}
	if freed > 0 {
		c.log.Info().Str("key", rec.Key()).Int64("freed_bytes", freed).Msg("model unload")
	}
	return freed
}

// Status builds the response for GET /v1/cache/status.
func (c *Cache) Status() types.CacheStatusResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp := types.CacheStatusResponse{
		Device:          c.computeDevice.String(),
		VRAMBudgetBytes: c.budgetBytes,
		VRAMMarginBytes: c.marginBytes,
		UsedVRAMBytes:   c.usedVRAMBytesLocked(),
		EvictionsTotal:  c.evictions,
		Records:         make([]types.CacheRecordStatus, 0, len(c.records)),
	}
	for key, rec := range c.records {
		resp.Records = append(resp.Records, types.CacheRecordStatus{
			Key:          key,
			TotalBytes:   rec.CachedModel().TotalBytes(),
			CurVRAMBytes: rec.CachedModel().CurVRAMBytes(),
			Locked:       rec.IsLocked(),
			LastUsed:     c.lastUsed[key].Unix(),
		})
	}
	return resp
}
