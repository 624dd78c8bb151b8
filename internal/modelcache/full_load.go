package modelcache

import (
	"fmt"

	"github.com/heyross/InvokeAI/internal/tensor"
)

// CachedModelOnlyFullLoad wraps a model that moves between host and
// device memory only as a whole object. The wrapped model is opaque: if
// it does not expose the DeviceMover capability, load and unload are
// soft no-ops returning 0.
type CachedModelOnlyFullLoad struct {
	model         any
	backend       tensor.Backend
	computeDevice tensor.Device
	totalBytes    int64
	isInVRAM      bool
}

// NewCachedModelOnlyFullLoad wraps model, which must start fully host
// resident. totalBytes is the precomputed footprint of all its weights.
func NewCachedModelOnlyFullLoad(model any, backend tensor.Backend, computeDevice tensor.Device, totalBytes int64) *CachedModelOnlyFullLoad {
	return &CachedModelOnlyFullLoad{
		model:         model,
		backend:       backend,
		computeDevice: computeDevice,
		totalBytes:    totalBytes,
	}
}

// Model returns the wrapped model.
func (c *CachedModelOnlyFullLoad) Model() any { return c.model }

func (c *CachedModelOnlyFullLoad) TotalBytes() int64 { return c.totalBytes }

// IsInVRAM reports whether the model currently resides on the compute
// device.
func (c *CachedModelOnlyFullLoad) IsInVRAM() bool { return c.isInVRAM }

func (c *CachedModelOnlyFullLoad) CurVRAMBytes() int64 {
	if c.isInVRAM {
		return c.totalBytes
	}
	return 0
}

// FullLoadToVRAM moves the whole model to the compute device and
// returns the bytes moved. Already-resident models and models without a
// relocation capability return 0.
func (c *CachedModelOnlyFullLoad) FullLoadToVRAM() int64 {
	if c.isInVRAM {
		return 0
	}
	mover, ok := c.model.(DeviceMover)
	if !ok {
		return 0
	}
	if err := mover.To(c.computeDevice, c.backend); err != nil {
		panic(fmt.Sprintf("modelcache: full load to %s: %v", c.computeDevice, err))
	}
	c.isInVRAM = true
	return c.totalBytes
}

// FullUnloadFromVRAM moves the whole model back to host memory and
// returns the bytes moved, or 0 if it was not resident.
func (c *CachedModelOnlyFullLoad) FullUnloadFromVRAM() int64 {
	if !c.isInVRAM {
		return 0
	}
	mover, ok := c.model.(DeviceMover)
	if !ok {
		return 0
	}
	if err := mover.To(tensor.CPU, c.backend); err != nil {
		panic(fmt.Sprintf("modelcache: full unload from %s: %v", c.computeDevice, err))
	}
	c.isInVRAM = false
	return c.totalBytes
}

var _ CachedModel = (*CachedModelOnlyFullLoad)(nil)
