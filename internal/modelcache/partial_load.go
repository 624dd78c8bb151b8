package modelcache

import (
	"github.com/heyross/InvokeAI/internal/model"
	"github.com/heyross/InvokeAI/internal/model/autocast"
	"github.com/heyross/InvokeAI/internal/tensor"
)

// CachedModelWithPartialLoad wraps a composite model whose weights can
// be migrated between host and device memory leaf by leaf. Patchable
// leaves are rewritten to their device-aware form on first touch, which
// lets a single leaf keep some weights on the device and the rest on
// the host; non-patchable leaves move as atomic units.
type CachedModelWithPartialLoad struct {
	model         *model.Module
	backend       tensor.Backend
	computeDevice tensor.Device
	totalBytes    int64
	// Host-resident snapshot of every weight, captured at construction
	// and never moved. Serves consistent device-independent reads while
	// the live model is partially resident.
	cpuStateDict map[string]*tensor.Tensor
}

// NewCachedModelWithPartialLoad wraps m, which must start fully host
// resident.
func NewCachedModelWithPartialLoad(m *model.Module, backend tensor.Backend, computeDevice tensor.Device) *CachedModelWithPartialLoad {
	c := &CachedModelWithPartialLoad{
		model:         m,
		backend:       backend,
		computeDevice: computeDevice,
		cpuStateDict:  make(map[string]*tensor.Tensor),
	}
	for _, nt := range m.NamedTensors() {
		c.totalBytes += tensor.CalcTensorSize(nt.Tensor)
		c.cpuStateDict[nt.Path] = nt.Tensor.Clone()
	}
	return c
}

// Model returns the wrapped model tree.
func (c *CachedModelWithPartialLoad) Model() *model.Module { return c.model }

func (c *CachedModelWithPartialLoad) TotalBytes() int64 { return c.totalBytes }

// CurVRAMBytes sums the footprint of every tensor currently on the
// compute device. It is recomputed from live tensor state on every call
// so it cannot drift from reality.
func (c *CachedModelWithPartialLoad) CurVRAMBytes() int64 {
	var n int64
	for _, nt := range c.model.NamedTensors() {
		if nt.Tensor.Device() == c.computeDevice {
			n += tensor.CalcTensorSize(nt.Tensor)
		}
	}
	return n
}

// GetCPUStateDict returns a host-resident copy of every named weight,
// regardless of the live model's current residency.
func (c *CachedModelWithPartialLoad) GetCPUStateDict() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor, len(c.cpuStateDict))
	for k, v := range c.cpuStateDict {
		out[k] = v
	}
	return out
}

// PartialLoadToVRAM migrates host-resident weights to the compute device
// until residency would reach targetBytes or nothing is left to move.
// Returns the bytes moved by this call.
func (c *CachedModelWithPartialLoad) PartialLoadToVRAM(targetBytes int64) int64 {
	cur := c.CurVRAMBytes()
	var loaded int64

leaves:
	for _, lf := range c.model.Leaves() {
		if cur+loaded >= targetBytes {
			break
		}
		layer := lf.Module.Layer()
		if autocast.IsPatchable(layer) || autocast.IsPatched(layer) {
			// Sub-weights migrate individually; the leaf must be in its
			// device-aware form before the first one moves.
			for _, p := range layer.NamedParams() {
				if cur+loaded >= targetBytes {
					break leaves
				}
				if p.Tensor.Device() == c.computeDevice {
					continue
				}
				if !autocast.IsPatched(lf.Module.Layer()) {
					autocast.PatchLeaf(lf.Module)
				}
				mustMove(c.backend, p.Tensor, c.computeDevice, lf.Path+"."+p.Name)
				loaded += tensor.CalcTensorSize(p.Tensor)
			}
			continue
		}
		// Non-patchable leaves move as a whole, even when that
		// overshoots the target.
		for _, p := range layer.NamedParams() {
			if p.Tensor.Device() == c.computeDevice {
				continue
			}
			mustMove(c.backend, p.Tensor, c.computeDevice, lf.Path+"."+p.Name)
			loaded += tensor.CalcTensorSize(p.Tensor)
		}
	}

	if loaded > 0 && c.CurVRAMBytes() == c.totalBytes {
		c.unpatchAll()
	}
	return loaded
}

// FullLoadToVRAM migrates every remaining host-resident weight and
// restores patched leaves to their original form.
func (c *CachedModelWithPartialLoad) FullLoadToVRAM() int64 {
	loaded := c.PartialLoadToVRAM(c.totalBytes)
	// Covers the no-op case where everything was already resident but
	// leaves were left patched by an earlier partial unload cycle.
	if c.CurVRAMBytes() == c.totalBytes {
		c.unpatchAll()
	}
	return loaded
}

// PartialUnloadFromVRAM migrates device-resident weights back to host
// memory until at least targetFreeBytes have been freed or no resident
// weight remains. It may overshoot when a leaf moves atomically.
func (c *CachedModelWithPartialLoad) PartialUnloadFromVRAM(targetFreeBytes int64) int64 {
	var freed int64

leaves:
	for _, lf := range c.model.Leaves() {
		if freed >= targetFreeBytes {
			break
		}
		layer := lf.Module.Layer()
		if autocast.IsPatchable(layer) || autocast.IsPatched(layer) {
			for _, p := range layer.NamedParams() {
				if freed >= targetFreeBytes {
					break leaves
				}
				if p.Tensor.Device().IsCPU() {
					continue
				}
				// Splitting the leaf's residency requires its
				// device-aware form.
				if !autocast.IsPatched(lf.Module.Layer()) {
					autocast.PatchLeaf(lf.Module)
				}
				mustMove(c.backend, p.Tensor, tensor.CPU, lf.Path+"."+p.Name)
				freed += tensor.CalcTensorSize(p.Tensor)
			}
			continue
		}
		for _, p := range layer.NamedParams() {
			if p.Tensor.Device().IsCPU() {
				continue
			}
			mustMove(c.backend, p.Tensor, tensor.CPU, lf.Path+"."+p.Name)
			freed += tensor.CalcTensorSize(p.Tensor)
		}
	}
	return freed
}

// FullUnloadFromVRAM frees all device-resident bytes and returns the
// exact number freed.
func (c *CachedModelWithPartialLoad) FullUnloadFromVRAM() int64 {
	return c.PartialUnloadFromVRAM(c.CurVRAMBytes())
}

func (c *CachedModelWithPartialLoad) unpatchAll() {
	for _, lf := range c.model.Leaves() {
		autocast.UnpatchLeaf(lf.Module)
	}
}

var _ CachedModel = (*CachedModelWithPartialLoad)(nil)
