package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attnunet/base"
	"github.com/sugarme/attnunet/encoder"
)

// Re-exported so callers of this package need not import base.
var (
	ErrInvalidConfig = base.ErrInvalidConfig
	ErrShapeMismatch = base.ErrShapeMismatch
)

// Config holds construction options of AttentionUNet.
type Config struct {
	// Depthwise selects depthwise-separable convolutions instead of standard ones.
	Depthwise bool
	// Bilinear selects bilinear upsampling (align corners) instead of a
	// learned transposed convolution.
	Bilinear bool
}

// DefaultConfig returns depthwise, bilinear configuration.
func DefaultConfig() *Config {
	return &Config{
		Depthwise: true,
		Bilinear:  true,
	}
}

// AttentionUNet maps a multi-channel attention map to per-pixel class logits.
//
// Input:  [B inChannels H W]
// Output: [B H W outChannels] (logits, no softmax)
type AttentionUNet struct {
	Encoder *encoder.AttentionEncoder
	Decoder *AttentionDecoder

	inChannels  int64
	outChannels int64
}

// NewAttentionUNet creates AttentionUNet. A nil config means DefaultConfig().
// Nothing is registered in the VarStore when it returns an error.
func NewAttentionUNet(p *nn.Path, inChannels, outChannels int64, cfg *Config) (*AttentionUNet, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := base.CheckChannels(inChannels, outChannels); err != nil {
		return nil, err
	}

	enc, err := encoder.NewAttentionEncoder(p, inChannels, cfg.Depthwise)
	if err != nil {
		return nil, err
	}
	dec, err := NewAttentionDecoder(p, outChannels, cfg.Depthwise, cfg.Bilinear)
	if err != nil {
		return nil, err
	}

	return &AttentionUNet{
		Encoder:     enc,
		Decoder:     dec,
		inChannels:  inChannels,
		outChannels: outChannels,
	}, nil
}

// MustNewAttentionUNet is like NewAttentionUNet but panics on error.
func MustNewAttentionUNet(p *nn.Path, inChannels, outChannels int64, cfg *Config) *AttentionUNet {
	m, err := NewAttentionUNet(p, inChannels, outChannels, cfg)
	if err != nil {
		panic(err)
	}

	return m
}

// InChannels returns the number of input attention channels.
func (m *AttentionUNet) InChannels() int64 { return m.inChannels }

// OutChannels returns the number of classes.
func (m *AttentionUNet) OutChannels() int64 { return m.outChannels }

// Forward validates x and forwards it through the network.
func (m *AttentionUNet) Forward(x *ts.Tensor, train bool) (*ts.Tensor, error) {
	size := x.MustSize()
	if len(size) != 4 {
		return nil, fmt.Errorf("%w: expected input of shape [B C H W]. Got %v", ErrShapeMismatch, size)
	}
	if size[1] != m.inChannels {
		return nil, fmt.Errorf("%w: expected %v input channels. Got %v", ErrShapeMismatch, m.inChannels, size[1])
	}
	// down1 pools by 2, so each spatial side needs at least 2 pixels.
	if size[2] < 2 || size[3] < 2 {
		return nil, fmt.Errorf("%w: expected H and W of at least 2. Got %v", ErrShapeMismatch, size)
	}
	// Batch norm in train mode needs more than one value per channel after pooling.
	if train && size[0]*(size[2]/2)*(size[3]/2) < 2 {
		return nil, fmt.Errorf("%w: training needs more than one pooled value per channel. Got %v", ErrShapeMismatch, size)
	}

	features := m.Encoder.ForwardAll(x, train) // x1 [B 512 H W], x2 [B 1024 H/2 W/2]
	logit, err := m.Decoder.Forward(features, train)
	for _, f := range features {
		f.MustDrop()
	}
	if err != nil {
		return nil, err
	}

	// [B C H W] => [B H W C]
	out := logit.MustPermute([]int64{0, 2, 3, 1}, true).MustContiguous(true)

	return out, nil
}

// ForwardT implements ts.ModuleT for AttentionUNet.
func (m *AttentionUNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	out, err := m.Forward(x, train)
	if err != nil {
		panic(err)
	}

	return out
}
