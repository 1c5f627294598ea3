package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attnunet/base"
	"github.com/sugarme/attnunet/encoder"
)

// Channel counts of the expanding path.
const (
	UpChannel1 int64 = encoder.DownChannel2 * 2 // 2048
	UpChannel2 int64 = encoder.DownChannel * 2  // 1024
)

// PadSizes returns the `constant_pad_nd` amounts that bring a tensor short of
// diffY rows and diffX columns to the target size:
// [left, right, top, bottom]. The leading side gets floor(diff/2), so an odd
// deficit puts the extra row/column on the trailing side. Negative amounts crop.
func PadSizes(diffY, diffX int64) []int64 {
	left := floorHalf(diffX)
	top := floorHalf(diffY)
	return []int64{left, diffX - left, top, diffY - top}
}

func floorHalf(n int64) int64 {
	q := n / 2
	if n < 0 && n%2 != 0 {
		q--
	}
	return q
}

// FitTo pads or crops the last two dims of x to [height, width] in a single
// `constant_pad_nd` call.
func FitTo(x *ts.Tensor, height, width int64) *ts.Tensor {
	size := x.MustSize()
	n := len(size)
	pad := PadSizes(height-size[n-2], width-size[n-1])

	return x.MustConstantPadNd(pad, false)
}

// UpLayer upsamples x1, fits it to the skip tensor x2, concatenates
// [x2, x1] along channels and forwards through a double conv.
type UpLayer struct {
	// Up is nil in bilinear mode.
	Up   *nn.ConvTranspose2D
	Conv *nn.SequentialT

	cIn int64
}

// NewUpLayer creates new UpLayer. cIn is the channel count after
// concatenation.
func NewUpLayer(p *nn.Path, cIn, cOut int64, depthwise, bilinear bool) (*UpLayer, error) {
	if err := base.CheckChannels(cIn, cOut); err != nil {
		return nil, err
	}

	var up *nn.ConvTranspose2D
	if !bilinear {
		if cIn < 2 {
			return nil, fmt.Errorf("%w: transposed upsampling needs cIn >= 2. Got %v", base.ErrInvalidConfig, cIn)
		}
		config := &nn.ConvTranspose2DConfig{
			Stride:        []int64{2, 2},
			Padding:       []int64{0, 0},
			OutputPadding: []int64{0, 0},
			Dilation:      []int64{1, 1},
			Groups:        1,
			Bias:          true,
			WsInit:        nn.NewKaimingUniformInit(),
			BsInit:        nn.NewConstInit(0),
		}
		up = nn.NewConvTranspose2D(p.Sub("up"), cIn/2, cIn/2, []int64{2, 2}, config)
	}

	return &UpLayer{
		Up:   up,
		Conv: base.DoubleConv(p.Sub("conv"), cIn, cOut, depthwise),
		cIn:  cIn,
	}, nil
}

// upsampling doubles H and W of x: [B C H W] => [B C 2H 2W]
func (l *UpLayer) upsampling(x *ts.Tensor) *ts.Tensor {
	if l.Up != nil {
		return l.Up.Forward(x)
	}

	size := x.MustSize()
	outSize := []int64{size[2] * 2, size[3] * 2}
	// align_corners=true
	return x.MustUpsampleBilinear2d(outSize, true, nil, nil, false)
}

// Forward upsamples x1, fits it to x2 and forwards through double conv.
// x1, x2 should be in shape [Batch CHW]. It returns base.ErrShapeMismatch
// if the two inputs cannot be concatenated into cIn channels.
func (l *UpLayer) Forward(x1, x2 *ts.Tensor, train bool) (*ts.Tensor, error) {
	x1Size := x1.MustSize()
	x2Size := x2.MustSize()
	if len(x1Size) != 4 || len(x2Size) != 4 {
		return nil, fmt.Errorf("%w: expected 4D inputs. Got x1 %v, x2 %v", base.ErrShapeMismatch, x1Size, x2Size)
	}
	if x1Size[0] != x2Size[0] {
		return nil, fmt.Errorf("%w: batch sizes differ. Got x1 %v, x2 %v", base.ErrShapeMismatch, x1Size, x2Size)
	}
	if x1Size[1]+x2Size[1] != l.cIn {
		return nil, fmt.Errorf("%w: expected %v channels after concatenation. Got %v + %v", base.ErrShapeMismatch, l.cIn, x2Size[1], x1Size[1])
	}
	if l.Up != nil && x1Size[1] != l.cIn/2 {
		return nil, fmt.Errorf("%w: transposed upsampling expects %v channels. Got %v", base.ErrShapeMismatch, l.cIn/2, x1Size[1])
	}

	xUp := l.upsampling(x1)
	xFit := FitTo(xUp, x2Size[2], x2Size[3])
	xUp.MustDrop()

	x, err := ts.Cat([]ts.Tensor{*x2, *xFit}, 1)
	xFit.MustDrop()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", base.ErrShapeMismatch, err)
	}

	out := l.Conv.ForwardT(x, train)
	x.MustDrop()

	return out, nil
}

// ForwardSkip is like Forward but panics on error.
func (l *UpLayer) ForwardSkip(x1, x2 *ts.Tensor, train bool) *ts.Tensor {
	out, err := l.Forward(x1, x2, train)
	if err != nil {
		panic(err)
	}

	return out
}

// AttentionDecoder is the expanding path of AttentionUNet.
type AttentionDecoder struct {
	Up1  *UpLayer
	Up2  *UpLayer
	OutC *base.OutConv
}

// NewAttentionDecoder creates AttentionDecoder producing cOut class logits.
func NewAttentionDecoder(p *nn.Path, cOut int64, depthwise, bilinear bool) (*AttentionDecoder, error) {
	if err := base.CheckChannels(UpChannel2/4, cOut); err != nil {
		return nil, err
	}

	up1, err := NewUpLayer(p.Sub("up1"), UpChannel1, UpChannel1/4, depthwise, bilinear)
	if err != nil {
		return nil, err
	}
	up2, err := NewUpLayer(p.Sub("up2"), UpChannel2, UpChannel2/4, depthwise, bilinear)
	if err != nil {
		return nil, err
	}
	outc := base.NewOutConv(p.Sub("outc"), UpChannel2/4, cOut, depthwise)

	return &AttentionDecoder{
		Up1:  up1,
		Up2:  up2,
		OutC: outc,
	}, nil
}

// Forward forwards through encoder features [x1, x2].
//
// up1 takes x2 as both of its inputs: x2 upsampled to H is cropped back
// to H/2 before concatenation.
func (d *AttentionDecoder) Forward(features []*ts.Tensor, train bool) (*ts.Tensor, error) {
	if len(features) != 2 {
		return nil, fmt.Errorf("%w: expected features of 2 tensors. Got %v", base.ErrShapeMismatch, len(features))
	}
	x1, x2 := features[0], features[1]

	z1, err := d.Up1.Forward(x2, x2, train) // [B 512 H/2 W/2]
	if err != nil {
		return nil, err
	}
	z2, err := d.Up2.Forward(z1, x1, train) // [B 256 H W]
	z1.MustDrop()
	if err != nil {
		return nil, err
	}
	logit := d.OutC.ForwardT(z2, train) // [B cOut H W]
	z2.MustDrop()

	return logit, nil
}

// ForwardFeatures is like Forward but panics on error.
func (d *AttentionDecoder) ForwardFeatures(features []*ts.Tensor, train bool) *ts.Tensor {
	logit, err := d.Forward(features, train)
	if err != nil {
		panic(err)
	}

	return logit
}
