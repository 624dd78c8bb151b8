// Package autocast implements the device-aware rewrite of patchable
// leaf layers. A patched leaf tolerates split residency: individual
// parameters may sit on the compute device while the rest remain on the
// host, with the forward pass fetching each from wherever it lives.
//
// Patching is an explicit tagged rewrite of the leaf's layer, not a
// dynamic type replacement: the wrapped original is retained and
// restored by UnpatchLeaf once the leaf is fully device-resident again.
package autocast

import (
	"github.com/heyross/InvokeAI/internal/model"
)

// patched is implemented by all device-aware layer forms.
type patched interface {
	model.Layer
	Original() model.Layer
}

// Linear is the device-aware form of model.Linear.
type Linear struct {
	orig *model.Linear
}

func (c *Linear) Kind() string               { return c.orig.Kind() }
func (c *Linear) NamedParams() []model.Param { return c.orig.NamedParams() }
func (c *Linear) Original() model.Layer      { return c.orig }

// Forward computes with each parameter read from its current residency.
// The weight may already be on the device while the bias is still host
// resident; both contribute their unchanged values.
func (c *Linear) Forward(x []float32) []float32 { return c.orig.Forward(x) }

// LayerNorm is the device-aware form of model.LayerNorm.
type LayerNorm struct {
	orig *model.LayerNorm
}

func (c *LayerNorm) Kind() string               { return c.orig.Kind() }
func (c *LayerNorm) NamedParams() []model.Param { return c.orig.NamedParams() }
func (c *LayerNorm) Original() model.Layer      { return c.orig }

func (c *LayerNorm) Forward(x []float32) []float32 { return c.orig.Forward(x) }

// Embedding is the device-aware form of model.Embedding.
type Embedding struct {
	orig *model.Embedding
}

func (c *Embedding) Kind() string               { return c.orig.Kind() }
func (c *Embedding) NamedParams() []model.Param { return c.orig.NamedParams() }
func (c *Embedding) Original() model.Layer      { return c.orig }

// IsPatchable reports whether l has a device-aware form. Unknown layer
// kinds must move atomically.
func IsPatchable(l model.Layer) bool {
	switch l.(type) {
	case *model.Linear, *model.LayerNorm, *model.Embedding:
		return true
	}
	return false
}

// IsPatched reports whether l is already in its device-aware form.
func IsPatched(l model.Layer) bool {
	_, ok := l.(patched)
	return ok
}

// PatchLeaf rewrites leaf's layer to its device-aware form in place.
// Returns true if a rewrite happened; already-patched and non-patchable
// leaves are left alone.
func PatchLeaf(leaf *model.Module) bool {
	switch l := leaf.Layer().(type) {
	case *model.Linear:
		leaf.SetLayer(&Linear{orig: l})
	case *model.LayerNorm:
		leaf.SetLayer(&LayerNorm{orig: l})
	case *model.Embedding:
		leaf.SetLayer(&Embedding{orig: l})
	default:
		return false
	}
	return true
}

// UnpatchLeaf restores leaf's original layer form. Returns true if the
// leaf was patched.
func UnpatchLeaf(leaf *model.Module) bool {
	p, ok := leaf.Layer().(patched)
	if !ok {
		return false
	}
	leaf.SetLayer(p.Original())
	return true
}
