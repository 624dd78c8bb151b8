// Package modelcache manages how much of each cached model currently
// resides in compute-device memory versus host memory. Models are held
// behind one of two wrappers: a whole-object full-load wrapper for
// opaque models, and a partial-load wrapper that migrates individual
// leaf weights and keeps byte-exact residency accounting.
//
// The package has no recoverable-error channel of its own: unsupported
// relocation is a silent no-op, contract violations and device move
// failures panic. Callers wanting bounded latency bound the byte targets
// they request per call.
package modelcache

import (
	"fmt"

	"github.com/heyross/InvokeAI/internal/tensor"
)

// CachedModel is the surface the cache manager needs from either
// wrapper variant.
type CachedModel interface {
	// TotalBytes is the immutable footprint of every weight in the
	// model.
	TotalBytes() int64
	// CurVRAMBytes is the exact number of bytes currently resident on
	// the compute device.
	CurVRAMBytes() int64
	FullLoadToVRAM() int64
	FullUnloadFromVRAM() int64
}

// DeviceMover is the relocation capability a wrapped model may expose.
// Models without it simply never occupy device memory.
type DeviceMover interface {
	To(dev tensor.Device, backend tensor.Backend) error
}

// mustMove performs a device move that has no recovery path: a failure
// mid-migration would leave residency accounting inconsistent.
func mustMove(backend tensor.Backend, t *tensor.Tensor, dev tensor.Device, what string) {
	if err := backend.MoveTensor(t, dev); err != nil {
		panic(fmt.Sprintf("modelcache: moving %s to %s: %v", what, dev, err))
	}
}
