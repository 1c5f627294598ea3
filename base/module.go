package base

import (
	"errors"
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

var (
	// ErrInvalidConfig is returned when a module is built with invalid parameters.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrShapeMismatch is returned when tensor shapes do not line up at runtime.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// CheckChannels returns ErrInvalidConfig if any channel count is not positive.
func CheckChannels(cIn, cOut int64) error {
	if cIn <= 0 || cOut <= 0 {
		return fmt.Errorf("%w: channels must be positive. Got cIn=%v, cOut=%v", ErrInvalidConfig, cIn, cOut)
	}
	return nil
}

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	config := nn.DefaultConv2DConfig()
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}

	return nn.NewConv2D(p, cIn, cOut, ksize, config)
}

// DepthwiseSeparableConv is a per-channel spatial convolution followed
// by a 1x1 cross-channel convolution.
type DepthwiseSeparableConv struct {
	Depthwise *nn.Conv2D
	Pointwise *nn.Conv2D
}

// NewDepthwiseSeparableConv creates a DepthwiseSeparableConv. Spatial size is
// kept when padding = (ksize-1)/2.
func NewDepthwiseSeparableConv(p *nn.Path, cIn, cOut, ksize, padding int64) *DepthwiseSeparableConv {
	dwConfig := nn.DefaultConv2DConfig()
	dwConfig.Bias = false
	dwConfig.Padding = []int64{padding, padding}
	dwConfig.Groups = cIn
	depthwise := nn.NewConv2D(p.Sub("depthwise"), cIn, cIn, ksize, dwConfig)

	pwConfig := nn.DefaultConv2DConfig()
	pointwise := nn.NewConv2D(p.Sub("pointwise"), cIn, cOut, 1, pwConfig)

	return &DepthwiseSeparableConv{
		Depthwise: depthwise,
		Pointwise: pointwise,
	}
}

// ForwardT implements ts.ModuleT for DepthwiseSeparableConv.
func (c *DepthwiseSeparableConv) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	dw := c.Depthwise.ForwardT(x, train)
	pw := c.Pointwise.ForwardT(dw, train)
	dw.MustDrop()

	return pw
}

// NewConv creates the convolution used throughout the network. The kind of
// convolution is picked once here and never revisited at forward time.
func NewConv(p *nn.Path, cIn, cOut, ksize, padding int64, depthwise bool) ts.ModuleT {
	if depthwise {
		return NewDepthwiseSeparableConv(p, cIn, cOut, ksize, padding)
	}

	return Conv2d(p, cIn, cOut, ksize, padding, 1)
}

// DoubleConv creates a SequentialT of (conv => BN => ReLU) * 2.
// H and W are preserved.
//
// Sub-paths follow the layout `double_conv.{0,1,3,4}` so that converted
// checkpoints of the same network load as they are.
func DoubleConv(p *nn.Path, cIn, cOut int64, depthwise bool) *nn.SequentialT {
	dc := p.Sub("double_conv")
	bnConfig := nn.DefaultBatchNormConfig()

	seq := nn.SeqT()
	seq.Add(NewConv(dc.Sub("0"), cIn, cOut, 3, 1, depthwise))
	seq.Add(nn.BatchNorm2D(dc.Sub("1"), cOut, bnConfig))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))
	seq.Add(NewConv(dc.Sub("3"), cOut, cOut, 3, 1, depthwise))
	seq.Add(nn.BatchNorm2D(dc.Sub("4"), cOut, bnConfig))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}
