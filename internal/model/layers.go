package model

import (
	"github.com/heyross/InvokeAI/internal/tensor"
)

// Param is a named parameter tensor of a layer.
type Param struct {
	Name   string
	Tensor *tensor.Tensor
}

// Layer is the smallest independently addressable unit of a model,
// holding zero or more named weight tensors.
type Layer interface {
	Kind() string
	// NamedParams returns the layer's parameters in declared order
	// (weight before bias). The order is stable across calls.
	NamedParams() []Param
}

// ForwardLayer is a Layer with a host-math forward pass, used to verify
// that residency changes never alter computed values.
type ForwardLayer interface {
	Layer
	Forward(x []float32) []float32
}

type layerOptions struct {
	skipInit bool
	noBias   bool
}

// Option configures layer construction.
type Option func(*layerOptions)

// WithoutInit skips deterministic weight initialization. Used on
// checkpoint-restore paths where every value is overwritten anyway and
// the fill work would be wasted.
func WithoutInit() Option { return func(o *layerOptions) { o.skipInit = true } }

// WithoutBias constructs the layer with no bias parameter.
func WithoutBias() Option { return func(o *layerOptions) { o.noBias = true } }

func applyOptions(opts []Option) layerOptions {
	var o layerOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// fillDeterministic writes a reproducible pseudo-random pattern so two
// identically shaped layers start with identical values.
func fillDeterministic(t *tensor.Tensor, seed uint64) {
	vals := make([]float32, t.NumElements())
	state := seed*6364136223846793005 + 1442695040888963407
	for i := range vals {
		state = state*6364136223846793005 + 1442695040888963407
		vals[i] = float32(int64(state>>33)%2000-1000) / 1000.0
	}
	t.SetFloat32s(vals)
}

// Linear is a fully connected layer: y = Wx + b.
type Linear struct {
	weight *tensor.Tensor // [out, in]
	bias   *tensor.Tensor // [out], may be nil
}

// NewLinear creates a Linear layer with inFeatures inputs and
// outFeatures outputs.
func NewLinear(inFeatures, outFeatures int64, opts ...Option) *Linear {
	o := applyOptions(opts)
	l := &Linear{weight: tensor.New(tensor.F32, outFeatures, inFeatures)}
	if !o.noBias {
		l.bias = tensor.New(tensor.F32, outFeatures)
	}
	if !o.skipInit {
		fillDeterministic(l.weight, uint64(inFeatures)<<16|uint64(outFeatures))
		if l.bias != nil {
			fillDeterministic(l.bias, uint64(outFeatures))
		}
	}
	return l
}

func (l *Linear) Kind() string { return "linear" }

func (l *Linear) Weight() *tensor.Tensor { return l.weight }
func (l *Linear) Bias() *tensor.Tensor   { return l.bias }

func (l *Linear) NamedParams() []Param {
	ps := []Param{{Name: "weight", Tensor: l.weight}}
	if l.bias != nil {
		ps = append(ps, Param{Name: "bias", Tensor: l.bias})
	}
	return ps
}

func (l *Linear) Forward(x []float32) []float32 {
	shape := l.weight.Shape()
	out, in := shape[0], shape[1]
	w := l.weight.Float32s()
	y := make([]float32, out)
	for i := int64(0); i < out; i++ {
		var acc float32
		for j := int64(0); j < in && j < int64(len(x)); j++ {
			acc += w[i*in+j] * x[j]
		}
		y[i] = acc
	}
	if l.bias != nil {
		b := l.bias.Float32s()
		for i := range y {
			y[i] += b[i]
		}
	}
	return y
}

// LayerNorm normalizes its input and applies an elementwise affine
// transform.
type LayerNorm struct {
	weight *tensor.Tensor // [dim]
	bias   *tensor.Tensor // [dim], may be nil
	eps    float32
}

func NewLayerNorm(dim int64, opts ...Option) *LayerNorm {
	o := applyOptions(opts)
	ln := &LayerNorm{weight: tensor.New(tensor.F32, dim), eps: 1e-5}
	if !o.noBias {
		ln.bias = tensor.New(tensor.F32, dim)
	}
	if !o.skipInit {
		ones := make([]float32, dim)
		for i := range ones {
			ones[i] = 1
		}
		ln.weight.SetFloat32s(ones)
	}
	return ln
}

func (l *LayerNorm) Kind() string { return "layer_norm" }

func (l *LayerNorm) Weight() *tensor.Tensor { return l.weight }
func (l *LayerNorm) Bias() *tensor.Tensor   { return l.bias }

func (l *LayerNorm) NamedParams() []Param {
	ps := []Param{{Name: "weight", Tensor: l.weight}}
	if l.bias != nil {
		ps = append(ps, Param{Name: "bias", Tensor: l.bias})
	}
	return ps
}

func (l *LayerNorm) Forward(x []float32) []float32 {
	var mean float32
	for _, v := range x {
		mean += v
	}
	mean /= float32(len(x))
	var variance float32
	for _, v := range x {
		variance += (v - mean) * (v - mean)
	}
	variance /= float32(len(x))
	inv := 1 / sqrt32(variance+l.eps)

	w := l.weight.Float32s()
	y := make([]float32, len(x))
	for i, v := range x {
		y[i] = (v - mean) * inv
		if i < len(w) {
			y[i] *= w[i]
		}
	}
	if l.bias != nil {
		b := l.bias.Float32s()
		for i := range y {
			if i < len(b) {
				y[i] += b[i]
			}
		}
	}
	return y
}

func sqrt32(v float32) float32 {
	if v <= 0 {
		return 0
	}
	// Newton iterations are plenty at float32 precision.
	guess := v
	for i := 0; i < 24; i++ {
		guess = 0.5 * (guess + v/guess)
	}
	return guess
}

// Embedding is a lookup table of row vectors. It has no forward pass in
// the sequential chain; it exists as a patchable leaf kind.
type Embedding struct {
	weight *tensor.Tensor // [numEmbeddings, dim]
}

func NewEmbedding(numEmbeddings, dim int64, opts ...Option) *Embedding {
	o := applyOptions(opts)
	e := &Embedding{weight: tensor.New(tensor.F32, numEmbeddings, dim)}
	if !o.skipInit {
		fillDeterministic(e.weight, uint64(numEmbeddings)<<16|uint64(dim))
	}
	return e
}

func (e *Embedding) Kind() string { return "embedding" }

func (e *Embedding) Weight() *tensor.Tensor { return e.weight }

func (e *Embedding) NamedParams() []Param {
	return []Param{{Name: "weight", Tensor: e.weight}}
}

// Buffer is an opaque leaf holding a single non-trainable tensor. Its
// computation cannot be intercepted, so it always moves as an atomic
// unit.
type Buffer struct {
	value *tensor.Tensor
}

func NewBuffer(t *tensor.Tensor) *Buffer { return &Buffer{value: t} }

func (b *Buffer) Kind() string { return "buffer" }

func (b *Buffer) Value() *tensor.Tensor { return b.value }

func (b *Buffer) NamedParams() []Param {
	return []Param{{Name: "value", Tensor: b.value}}
}
