package encoder

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attnunet/base"
)

// InConv is the first stage of the network: a DoubleConv under a name of its own.
type InConv struct {
	Conv *nn.SequentialT
}

// NewInConv creates a new InConv layer.
func NewInConv(p *nn.Path, cIn, cOut int64, depthwise bool) *InConv {
	return &InConv{
		Conv: base.DoubleConv(p.Sub("conv"), cIn, cOut, depthwise),
	}
}

// ForwardT implements ts.ModuleT interface.
func (l *InConv) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return l.Conv.ForwardT(x, train)
}

// DownLayer is a SequentialT module composed of maxpool and 2x conv.
type DownLayer struct {
	MaxpoolConv *nn.SequentialT
}

// NewDownLayer creates a new DownLayer ModuleT layer.
func NewDownLayer(p *nn.Path, cIn, cOut int64, depthwise bool) *DownLayer {
	mp := p.Sub("maxpool_conv")

	down := nn.SeqT()
	down.AddFn(nn.NewFunc(func(x *ts.Tensor) *ts.Tensor {
		// [B C H W] => [B C H/2 W/2]
		// ksize = 2; stride=2; padding=0; dilation=1; ceil=false
		return x.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
	}))
	// index 0 is the parameterless maxpool.
	down.Add(base.DoubleConv(mp.Sub("1"), cIn, cOut, depthwise))

	return &DownLayer{down}
}

// ForwardT implements ts.ModuleT interface.
func (l *DownLayer) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return l.MaxpoolConv.ForwardT(x, train)
}

// Channel counts of the attention encoder.
const (
	DownChannel  int64 = 512
	DownChannel2 int64 = DownChannel * 2
)

// AttentionEncoder is the contracting path of AttentionUNet.
//
// Down2 is built so the parameter layout matches trained checkpoints, but
// ForwardAll never runs it.
type AttentionEncoder struct {
	Inc   ts.ModuleT
	Down1 ts.ModuleT
	Down2 ts.ModuleT
}

// NewAttentionEncoder creates an AttentionEncoder taking cIn input channels.
func NewAttentionEncoder(p *nn.Path, cIn int64, depthwise bool) (*AttentionEncoder, error) {
	if err := base.CheckChannels(cIn, DownChannel); err != nil {
		return nil, err
	}

	return &AttentionEncoder{
		Inc:   NewInConv(p.Sub("inc"), cIn, DownChannel, depthwise),
		Down1: NewDownLayer(p.Sub("down1"), DownChannel, DownChannel2, depthwise),
		Down2: NewDownLayer(p.Sub("down2"), DownChannel2, DownChannel2, depthwise),
	}, nil
}

// ForwardAll implements Encoder interface for AttentionEncoder.
// It returns [x1, x2]:
//  x1: [B 512  H   W  ]
//  x2: [B 1024 H/2 W/2]
func (e *AttentionEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	x1 := e.Inc.ForwardT(x, train)
	x2 := e.Down1.ForwardT(x1, train)

	return []*ts.Tensor{x1, x2}
}
