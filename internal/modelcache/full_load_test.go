package modelcache

import (
	"testing"

	"github.com/heyross/InvokeAI/internal/tensor"
)

func TestFullLoadWrapperRoundTrip(t *testing.T) {
	m := newDummyModel(t)
	b := tensor.NewSimBackend()
	c := NewCachedModelOnlyFullLoad(m, b, testDevice, 1280)

	if c.TotalBytes() != 1280 {
		t.Fatalf("TotalBytes = %d, want 1280", c.TotalBytes())
	}
	if c.IsInVRAM() || c.CurVRAMBytes() != 0 {
		t.Fatalf("wrapper must start host resident")
	}

	if got := c.FullLoadToVRAM(); got != 1280 {
		t.Fatalf("load moved %d, want 1280", got)
	}
	if !c.IsInVRAM() || c.CurVRAMBytes() != 1280 {
		t.Fatalf("IsInVRAM=%v CurVRAMBytes=%d after load", c.IsInVRAM(), c.CurVRAMBytes())
	}
	for _, nt := range m.NamedTensors() {
		if nt.Tensor.Device() != testDevice {
			t.Fatalf("%s on %s after full load", nt.Path, nt.Tensor.Device())
		}
	}
	// Idempotent.
	if got := c.FullLoadToVRAM(); got != 0 {
		t.Fatalf("second load moved %d, want 0", got)
	}

	if got := c.FullUnloadFromVRAM(); got != 1280 {
		t.Fatalf("unload moved %d, want 1280", got)
	}
	if c.IsInVRAM() {
		t.Fatalf("still marked resident after unload")
	}
	if got := c.FullUnloadFromVRAM(); got != 0 {
		t.Fatalf("second unload moved %d, want 0", got)
	}
	if got := b.AllocatedBytes(testDevice); got != 0 {
		t.Fatalf("backend reports %d device bytes after unload", got)
	}
}

// opaqueModel has no relocation capability.
type opaqueModel struct{}

func TestFullLoadWrapperWithoutMoveCapability(t *testing.T) {
	b := tensor.NewSimBackend()
	c := NewCachedModelOnlyFullLoad(opaqueModel{}, b, testDevice, 512)

	// Not an error: a soft no-op returning 0.
	if got := c.FullLoadToVRAM(); got != 0 {
		t.Fatalf("load of immovable model moved %d, want 0", got)
	}
	if c.IsInVRAM() {
		t.Fatalf("immovable model must not be marked resident")
	}
	if got := c.FullUnloadFromVRAM(); got != 0 {
		t.Fatalf("unload of immovable model moved %d, want 0", got)
	}
}
