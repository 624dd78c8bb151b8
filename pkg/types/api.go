package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: workflow not found
	Error string `json:"error" example:"workflow not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ModelsResponse wraps the model-config listing returned by GET /v1/models.
type ModelsResponse struct {
	// Model configs keyed by their store key.
	Models map[string]ModelConfig `json:"models"`
}

// ScanModelsRequest asks the server to discover weight files in a
// directory and register configs for them.
type ScanModelsRequest struct {
	// Directory to scan.
	// example: ~/invokeai/models
	Dir string `json:"dir" example:"~/invokeai/models"`
}

// ScanModelsResponse lists the model keys registered by a scan.
type ScanModelsResponse struct {
	// Keys newly added to the store.
	Added []string `json:"added"`
}

// CacheLoadRequest asks the cache to bring a model onto the compute
// device. A nil TargetBytes loads the whole model.
type CacheLoadRequest struct {
	// Bytes of the model to make device resident.
	// example: 2400
	TargetBytes *int64 `json:"target_bytes,omitempty" example:"2400"`
}

// CacheLoadResponse reports the outcome of a load request.
type CacheLoadResponse struct {
	// Bytes moved onto the device by this call.
	// example: 2400
	LoadedBytes int64 `json:"loaded_bytes" example:"2400"`
}

// CacheUnloadRequest asks the cache to free device memory held by a
// model. A nil TargetFreeBytes unloads everything.
type CacheUnloadRequest struct {
	// Bytes to free from the device.
	// example: 1200
	TargetFreeBytes *int64 `json:"target_free_bytes,omitempty" example:"1200"`
}

// CacheUnloadResponse reports the outcome of an unload request.
type CacheUnloadResponse struct {
	// Bytes freed from the device by this call.
	// example: 1200
	FreedBytes int64 `json:"freed_bytes" example:"1200"`
}

// CacheRecordStatus summarizes one cached model for /v1/cache/status.
type CacheRecordStatus struct {
	// Cache key of the model.
	// example: sd-1/main/pokemon
	Key string `json:"key" example:"sd-1/main/pokemon"`
	// Total footprint of the model's weights in bytes.
	// example: 4000
	TotalBytes int64 `json:"total_bytes" example:"4000"`
	// Bytes currently resident in device memory.
	// example: 2400
	CurVRAMBytes int64 `json:"cur_vram_bytes" example:"2400"`
	// True while the model is actively in use and pinned against
	// eviction.
	Locked bool `json:"locked"`
	// Last time the record was fetched from the cache (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
}

// CacheStatusResponse is returned by GET /v1/cache/status.
type CacheStatusResponse struct {
	// Per-record residency state.
	Records []CacheRecordStatus `json:"records"`
	// Compute device the cache loads onto.
	// example: cuda:0
	Device string `json:"device" example:"cuda:0"`
	// Configured device memory budget in bytes (0 = unlimited).
	// example: 8589934592
	VRAMBudgetBytes int64 `json:"vram_budget_bytes" example:"8589934592"`
	// Reserved device memory margin in bytes.
	// example: 268435456
	VRAMMarginBytes int64 `json:"vram_margin_bytes" example:"268435456"`
	// Bytes currently resident across all records.
	// example: 2400
	UsedVRAMBytes int64 `json:"used_vram_bytes" example:"2400"`
	// Total evictions performed to relieve memory pressure.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
}
