// Package tensor models the weight data managed by the model cache: typed
// n-dimensional values that live either in host memory or on a compute
// device, moved between the two by an injected Backend.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Device identifies where a tensor's bytes currently reside.
// "cpu" is host memory; anything else ("cuda:0", "mps", ...) is a
// compute device.
type Device string

const CPU Device = "cpu"

// IsCPU reports whether the device is host memory.
func (d Device) IsCPU() bool { return d == CPU }

func (d Device) String() string { return string(d) }

// Tensor is a typed value with a shape and a current residency. The byte
// payload is always addressable from the host; residency is an accounting
// property maintained by the Backend that owns device memory.
type Tensor struct {
	dtype  DType
	shape  []int64
	device Device
	data   []byte
}

// New constructs a host-resident tensor with a zeroed payload.
func New(dtype DType, shape ...int64) *Tensor {
	t := &Tensor{dtype: dtype, shape: append([]int64(nil), shape...), device: CPU}
	t.data = make([]byte, CalcTensorSize(t))
	return t
}

func (t *Tensor) DType() DType   { return t.dtype }
func (t *Tensor) Device() Device { return t.device }

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int64 { return append([]int64(nil), t.shape...) }

// NumElements returns the product of the tensor's dimensions. A scalar
// (rank 0) has one element; any zero dimension yields zero.
func (t *Tensor) NumElements() int64 {
	n := int64(1)
	for _, d := range t.shape {
		n *= d
	}
	return n
}

// Data exposes the tensor's raw bytes. Mutating the slice mutates the
// tensor value, wherever it currently resides.
func (t *Tensor) Data() []byte { return t.data }

// Clone returns a host-resident deep copy of the tensor, regardless of
// where the original resides.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{dtype: t.dtype, shape: append([]int64(nil), t.shape...), device: CPU}
	c.data = append([]byte(nil), t.data...)
	return c
}

// Equal reports whether two tensors hold the same dtype, shape and bytes.
// Residency is not compared.
func (t *Tensor) Equal(o *Tensor) bool {
	if t.dtype != o.dtype || len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	return string(t.data) == string(o.data)
}

// Float32s decodes an F32 tensor into a fresh slice.
func (t *Tensor) Float32s() []float32 {
	if t.dtype != F32 {
		panic(fmt.Sprintf("tensor: Float32s on %s tensor", t.dtype))
	}
	out := make([]float32, t.NumElements())
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.data[i*4:]))
	}
	return out
}

// SetFloat32s encodes vals into an F32 tensor. len(vals) must equal
// NumElements.
func (t *Tensor) SetFloat32s(vals []float32) {
	if t.dtype != F32 {
		panic(fmt.Sprintf("tensor: SetFloat32s on %s tensor", t.dtype))
	}
	if int64(len(vals)) != t.NumElements() {
		panic(fmt.Sprintf("tensor: SetFloat32s got %d values, want %d", len(vals), t.NumElements()))
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(t.data[i*4:], math.Float32bits(v))
	}
}

func (t *Tensor) String() string {
	dims := make([]string, len(t.shape))
	for i, d := range t.shape {
		dims[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("Tensor(%s, [%s], %s)", t.dtype, strings.Join(dims, ","), t.device)
}

// CalcTensorSize returns the byte footprint of a tensor: element count
// times element width. It reads only shape and dtype metadata, never the
// payload, so it is safe to call on a tensor resident on any device.
func CalcTensorSize(t *Tensor) int64 {
	return t.NumElements() * t.dtype.BytesPerElement()
}
