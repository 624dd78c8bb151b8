// Package model provides the composite model tree managed by the
// residency cache: a tree of named modules whose leaves hold weight
// tensors. Leaves are addressed by stable dotted paths so they can be
// rewritten in place without dangling references.
package model

import (
	"fmt"

	"github.com/heyross/InvokeAI/internal/tensor"
)

// Module is a node in a composite model. Interior nodes hold named
// children in insertion order; leaf nodes hold a Layer.
type Module struct {
	names    []string
	children map[string]*Module
	layer    Layer
}

// NewModule creates an empty interior node.
func NewModule() *Module {
	return &Module{children: make(map[string]*Module)}
}

// NewLeaf creates a leaf node holding l.
func NewLeaf(l Layer) *Module {
	return &Module{layer: l}
}

// Add attaches a child module under name. Adding to a leaf or reusing a
// name is a construction bug and panics.
func (m *Module) Add(name string, child *Module) *Module {
	if m.layer != nil {
		panic("model: cannot add children to a leaf module")
	}
	if _, dup := m.children[name]; dup {
		panic(fmt.Sprintf("model: duplicate child %q", name))
	}
	m.names = append(m.names, name)
	m.children[name] = child
	return m
}

// Layer returns the leaf's layer, or nil for interior nodes.
func (m *Module) Layer() Layer { return m.layer }

// SetLayer rewrites a leaf's layer in place. Used by the autocast
// machinery to swap a layer for its device-aware form and back.
func (m *Module) SetLayer(l Layer) {
	if m.layer == nil {
		panic("model: SetLayer on a non-leaf module")
	}
	m.layer = l
}

// Leaf pairs a leaf module with its dotted path from the root.
type Leaf struct {
	Path   string
	Module *Module
}

// Leaves returns all leaf modules in depth-first insertion order. The
// order is stable across calls and across leaf rewrites.
func (m *Module) Leaves() []Leaf {
	var out []Leaf
	m.walk("", func(path string, mod *Module) {
		out = append(out, Leaf{Path: path, Module: mod})
	})
	return out
}

func (m *Module) walk(prefix string, visit func(path string, leaf *Module)) {
	if m.layer != nil {
		visit(prefix, m)
		return
	}
	for _, name := range m.names {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		m.children[name].walk(path, visit)
	}
}

// NamedTensor pairs a parameter tensor with its dotted path
// ("leaf.path.param").
type NamedTensor struct {
	Path   string
	Tensor *tensor.Tensor
}

// NamedTensors returns every parameter in the tree in stable order:
// leaves depth-first, parameters in each layer's declared order.
func (m *Module) NamedTensors() []NamedTensor {
	var out []NamedTensor
	for _, lf := range m.Leaves() {
		for _, p := range lf.Module.Layer().NamedParams() {
			out = append(out, NamedTensor{Path: lf.Path + "." + p.Name, Tensor: p.Tensor})
		}
	}
	return out
}

// StateDict returns the tree's parameters keyed by dotted path. The
// tensors are the live ones, not copies.
func (m *Module) StateDict() map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	for _, nt := range m.NamedTensors() {
		sd[nt.Path] = nt.Tensor
	}
	return sd
}

// To moves every parameter in the tree to dev. This is the whole-object
// relocation capability used by the full-load cache wrapper.
func (m *Module) To(dev tensor.Device, backend tensor.Backend) error {
	for _, nt := range m.NamedTensors() {
		if err := backend.MoveTensor(nt.Tensor, dev); err != nil {
			return fmt.Errorf("move %s: %w", nt.Path, err)
		}
	}
	return nil
}

// Forward runs x through every leaf that has a forward pass, in leaf
// order. Leaves without computation (buffers, embeddings) are skipped.
func (m *Module) Forward(x []float32) []float32 {
	for _, lf := range m.Leaves() {
		if fl, ok := lf.Module.Layer().(ForwardLayer); ok {
			x = fl.Forward(x)
		}
	}
	return x
}
