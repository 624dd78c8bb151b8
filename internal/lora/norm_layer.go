// Package lora holds weight-delta layers applied on top of a base
// model's weights. Each layer knows its own byte footprint so the
// residency cache can account for patched models exactly.
package lora

import (
	"fmt"

	"github.com/heyross/InvokeAI/internal/tensor"
)

// LayerBase carries what every weight-delta layer shares: the key of
// the base-model layer it targets and an optional bias delta.
type LayerBase struct {
	LayerKey string
	Bias     *tensor.Tensor
}

// CalcSize returns the byte footprint of the base fields.
func (l *LayerBase) CalcSize() int64 {
	if l.Bias == nil {
		return 0
	}
	return tensor.CalcTensorSize(l.Bias)
}

// To moves the base fields to dev.
func (l *LayerBase) To(dev tensor.Device, backend tensor.Backend) error {
	if l.Bias == nil {
		return nil
	}
	return backend.MoveTensor(l.Bias, dev)
}

// checkKeys rejects value maps holding keys the layer does not consume.
func checkKeys(layerKey string, values map[string]*tensor.Tensor, known ...string) error {
	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}
	for k := range values {
		if !allowed[k] {
			return fmt.Errorf("lora: layer %q has unexpected key %q", layerKey, k)
		}
	}
	return nil
}

// NormLayer replaces a normalization layer's weight outright (unscaled,
// no low-rank decomposition).
type NormLayer struct {
	LayerBase
	Weight *tensor.Tensor
}

// NewNormLayer builds a NormLayer from checkpoint values. "w_norm" is
// required; "b_norm" is optional.
func NewNormLayer(layerKey string, values map[string]*tensor.Tensor) (*NormLayer, error) {
	if err := checkKeys(layerKey, values, "w_norm", "b_norm"); err != nil {
		return nil, err
	}
	w, ok := values["w_norm"]
	if !ok {
		return nil, fmt.Errorf("lora: layer %q is missing w_norm", layerKey)
	}
	return &NormLayer{
		LayerBase: LayerBase{LayerKey: layerKey, Bias: values["b_norm"]},
		Weight:    w,
	}, nil
}

// GetWeight returns the weight to use in place of origWeight.
func (l *NormLayer) GetWeight(origWeight *tensor.Tensor) *tensor.Tensor {
	return l.Weight
}

// CalcSize returns the byte footprint of the whole layer.
func (l *NormLayer) CalcSize() int64 {
	return l.LayerBase.CalcSize() + tensor.CalcTensorSize(l.Weight)
}

// To moves all of the layer's tensors to dev.
func (l *NormLayer) To(dev tensor.Device, backend tensor.Backend) error {
	if err := l.LayerBase.To(dev, backend); err != nil {
		return err
	}
	return backend.MoveTensor(l.Weight, dev)
}
