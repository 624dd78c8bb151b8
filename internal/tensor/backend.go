package tensor

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDeviceOutOfMemory = errors.New("device out of memory")
	ErrUnknownDevice     = errors.New("unknown device")
)

// Backend is the injected capability that owns device memory. It performs
// value-preserving tensor moves and tracks per-device allocation, so the
// residency cache can be exercised without real accelerator hardware.
type Backend interface {
	// MoveTensor relocates t to dev. Moving a tensor to the device it
	// already resides on is a no-op. The tensor's value is unchanged.
	MoveTensor(t *Tensor, dev Device) error

	// AllocatedBytes reports how many bytes the backend currently has
	// allocated on dev.
	AllocatedBytes(dev Device) int64
}

// SimBackend simulates a set of compute devices in host memory. Moves are
// byte-for-byte value preserving; per-device allocation is tracked so
// budget decisions behave as they would against a real allocator. An
// optional capacity per device makes over-allocation fail the way a real
// device OOM would.
type SimBackend struct {
	mu        sync.Mutex
	allocated map[Device]int64
	capacity  map[Device]int64
}

// NewSimBackend creates a simulated backend with unbounded devices.
func NewSimBackend() *SimBackend {
	return &SimBackend{
		allocated: make(map[Device]int64),
		capacity:  make(map[Device]int64),
	}
}

// SetCapacity bounds dev at capBytes. Zero or negative removes the bound.
func (b *SimBackend) SetCapacity(dev Device, capBytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if capBytes <= 0 {
		delete(b.capacity, dev)
		return
	}
	b.capacity[dev] = capBytes
}

func (b *SimBackend) MoveTensor(t *Tensor, dev Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.device == dev {
		return nil
	}
	size := CalcTensorSize(t)
	if !dev.IsCPU() {
		if capBytes, ok := b.capacity[dev]; ok && b.allocated[dev]+size > capBytes {
			return fmt.Errorf("%w: %s needs %d bytes, %d of %d in use",
				ErrDeviceOutOfMemory, dev, size, b.allocated[dev], capBytes)
		}
		b.allocated[dev] += size
	}
	if !t.device.IsCPU() {
		b.allocated[t.device] -= size
	}
	t.device = dev
	return nil
}

func (b *SimBackend) AllocatedBytes(dev Device) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocated[dev]
}

var _ Backend = (*SimBackend)(nil)
