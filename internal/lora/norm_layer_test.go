package lora

import (
	"testing"

	"github.com/heyross/InvokeAI/internal/tensor"
)

func TestNewNormLayer(t *testing.T) {
	w := tensor.New(tensor.F32, 320)
	b := tensor.New(tensor.F32, 320)

	l, err := NewNormLayer("norm1", map[string]*tensor.Tensor{"w_norm": w, "b_norm": b})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if l.GetWeight(tensor.New(tensor.F32, 320)) != w {
		t.Fatalf("GetWeight must return the replacement weight")
	}
	if got, want := l.CalcSize(), int64(2*320*4); got != want {
		t.Fatalf("CalcSize = %d, want %d", got, want)
	}
}

func TestNormLayerWithoutBias(t *testing.T) {
	w := tensor.New(tensor.F32, 64)
	l, err := NewNormLayer("norm1", map[string]*tensor.Tensor{"w_norm": w})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if l.Bias != nil {
		t.Fatalf("unexpected bias")
	}
	if got := l.CalcSize(); got != 64*4 {
		t.Fatalf("CalcSize = %d, want %d", got, 64*4)
	}
}

func TestNormLayerKeyValidation(t *testing.T) {
	if _, err := NewNormLayer("norm1", map[string]*tensor.Tensor{}); err == nil {
		t.Fatalf("missing w_norm not rejected")
	}
	values := map[string]*tensor.Tensor{
		"w_norm":   tensor.New(tensor.F32, 8),
		"mid_lora": tensor.New(tensor.F32, 8),
	}
	if _, err := NewNormLayer("norm1", values); err == nil {
		t.Fatalf("unexpected key not rejected")
	}
}

func TestNormLayerTo(t *testing.T) {
	b := tensor.NewSimBackend()
	dev := tensor.Device("cuda:0")
	l, err := NewNormLayer("norm1", map[string]*tensor.Tensor{
		"w_norm": tensor.New(tensor.F32, 16),
		"b_norm": tensor.New(tensor.F32, 16),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := l.To(dev, b); err != nil {
		t.Fatalf("to: %v", err)
	}
	if l.Weight.Device() != dev || l.Bias.Device() != dev {
		t.Fatalf("tensors not moved: weight=%s bias=%s", l.Weight.Device(), l.Bias.Device())
	}
	if got := b.AllocatedBytes(dev); got != 128 {
		t.Fatalf("allocated = %d, want 128", got)
	}
}
