package base

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// OutConv is the 1x1 projection producing per-pixel class logits.
type OutConv struct {
	Conv ts.ModuleT
}

// NewOutConv creates an OutConv mapping cIn channels to cOut class logits.
func NewOutConv(p *nn.Path, cIn, cOut int64, depthwise bool) *OutConv {
	return &OutConv{
		Conv: NewConv(p.Sub("conv"), cIn, cOut, 1, 0, depthwise),
	}
}

// ForwardT implements ts.ModuleT for OutConv.
func (o *OutConv) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return o.Conv.ForwardT(x, train)
}
