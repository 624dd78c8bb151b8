// Package conditioning assembles the conditioning data handed to a
// diffusion sampling run: text embeddings for the conditioned and
// unconditioned branches plus guidance parameters. Embedding tensors
// follow the residency rules of the rest of the system: they are moved
// between host and device through an injected backend and their values
// never change in transit.
package conditioning

import (
	"fmt"

	"github.com/heyross/InvokeAI/internal/tensor"
)

// BasicConditioningInfo is SD 1/2 text conditioning.
type BasicConditioningInfo struct {
	Embeds *tensor.Tensor
}

// To moves the embeddings to dev.
func (c *BasicConditioningInfo) To(dev tensor.Device, backend tensor.Backend) error {
	return backend.MoveTensor(c.Embeds, dev)
}

// SDXLConditioningInfo is SDXL text conditioning, which carries pooled
// embeddings and time ids alongside the token embeddings.
type SDXLConditioningInfo struct {
	BasicConditioningInfo
	PooledEmbeds *tensor.Tensor
	AddTimeIDs   *tensor.Tensor
}

func (c *SDXLConditioningInfo) To(dev tensor.Device, backend tensor.Backend) error {
	if err := backend.MoveTensor(c.PooledEmbeds, dev); err != nil {
		return err
	}
	if err := backend.MoveTensor(c.AddTimeIDs, dev); err != nil {
		return err
	}
	return c.BasicConditioningInfo.To(dev, backend)
}

// Range marks the slice [Start, End) that one prompt's embedding
// occupies in a concatenated embedding tensor.
type Range struct {
	Start int
	End   int
}

// TextConditioningRegions pairs spatial region masks with the embedding
// ranges they apply to. The mask tensor has shape
// (1, num_regions, h, w); ranges[i] locates region i's embedding in the
// concatenated text tensor.
type TextConditioningRegions struct {
	Masks  *tensor.Tensor
	Ranges []Range
}

// NewTextConditioningRegions validates that masks and ranges agree.
func NewTextConditioningRegions(masks *tensor.Tensor, ranges []Range) (*TextConditioningRegions, error) {
	shape := masks.Shape()
	if len(shape) != 4 || shape[0] != 1 {
		return nil, fmt.Errorf("conditioning: region masks must have shape (1, regions, h, w), got %v", shape)
	}
	if int(shape[1]) != len(ranges) {
		return nil, fmt.Errorf("conditioning: %d region masks for %d embedding ranges", shape[1], len(ranges))
	}
	for i, r := range ranges {
		if r.Start < 0 || r.End <= r.Start {
			return nil, fmt.Errorf("conditioning: region %d has invalid range [%d, %d)", i, r.Start, r.End)
		}
	}
	return &TextConditioningRegions{Masks: masks, Ranges: ranges}, nil
}

// Data is the assembled conditioning for one sampling run.
type Data struct {
	UncondEmbeddings []*BasicConditioningInfo
	CondEmbeddings   []*BasicConditioningInfo
	// GuidanceScale is classifier-free guidance weight; guidance is
	// active above 1.
	GuidanceScale float64
	// GuidanceRescaleMultiplier is suggested at 0.7 for ztsnr-trained
	// models, 0 otherwise.
	GuidanceRescaleMultiplier float64
}

// Validate checks the assembled data is usable: both branches present
// and embedding shapes consistent within each branch.
func (d *Data) Validate() error {
	if len(d.CondEmbeddings) == 0 || len(d.UncondEmbeddings) == 0 {
		return fmt.Errorf("conditioning: both conditioned and unconditioned embeddings are required")
	}
	if err := sameShapes(d.CondEmbeddings); err != nil {
		return fmt.Errorf("conditioning: conditioned branch: %w", err)
	}
	if err := sameShapes(d.UncondEmbeddings); err != nil {
		return fmt.Errorf("conditioning: unconditioned branch: %w", err)
	}
	return nil
}

func sameShapes(infos []*BasicConditioningInfo) error {
	first := infos[0].Embeds.Shape()
	for _, info := range infos[1:] {
		shape := info.Embeds.Shape()
		if len(shape) != len(first) {
			return fmt.Errorf("embedding rank mismatch: %v vs %v", first, shape)
		}
		for i := range shape {
			if shape[i] != first[i] {
				return fmt.Errorf("embedding shape mismatch: %v vs %v", first, shape)
			}
		}
	}
	return nil
}

// To moves every embedding in both branches to dev.
func (d *Data) To(dev tensor.Device, backend tensor.Backend) error {
	for _, info := range d.UncondEmbeddings {
		if err := info.To(dev, backend); err != nil {
			return err
		}
	}
	for _, info := range d.CondEmbeddings {
		if err := info.To(dev, backend); err != nil {
			return err
		}
	}
	return nil
}
