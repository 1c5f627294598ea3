package unet_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attnunet/unet"
)

func TestPadSizes(t *testing.T) {
	tests := []struct {
		diffY, diffX int64
		want         []int64
	}{
		{0, 0, []int64{0, 0, 0, 0}},
		{1, 1, []int64{0, 1, 0, 1}},
		{4, 2, []int64{1, 1, 2, 2}},
		{3, 5, []int64{2, 3, 1, 2}},
		{-8, -8, []int64{-4, -4, -4, -4}},
		{-3, -1, []int64{-1, 0, -2, -1}},
		{-15, 2, []int64{1, 1, -8, -7}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, unet.PadSizes(tt.diffY, tt.diffX), "diffY=%v diffX=%v", tt.diffY, tt.diffX)
	}
}

func TestFitToOddPadGoesTrailing(t *testing.T) {
	x := ts.MustOnes([]int64{1, 1, 15, 15}, gotch.Float, gotch.CPU)
	y := unet.FitTo(x, 16, 16)
	require.Equal(t, []int64{1, 1, 16, 16}, y.MustSize())

	vals := y.Float64Values()
	for r := 0; r < 16; r++ {
		for c := 0; c < 16; c++ {
			want := 1.0
			if r == 15 || c == 15 {
				want = 0.0
			}
			assert.Equal(t, want, vals[r*16+c], "row %v col %v", r, c)
		}
	}

	x.MustDrop()
	y.MustDrop()
}

func TestFitToCrops(t *testing.T) {
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i)
	}
	x := ts.MustOfSlice(data).MustView([]int64{1, 1, 4, 4}, true)

	// diffY = -3: top -2, bottom -1 => row 2
	// diffX = -1: left -1, right 0 => cols 1..3
	y := unet.FitTo(x, 1, 3)
	require.Equal(t, []int64{1, 1, 1, 3}, y.MustSize())
	assert.Equal(t, []float64{9, 10, 11}, y.Float64Values())

	x.MustDrop()
	y.MustDrop()
}

func TestUpLayerMatchesSkipSize(t *testing.T) {
	tests := []struct {
		name string
		x1   []int64
		x2   []int64
	}{
		{"exact", []int64{2, 4, 8, 8}, []int64{2, 4, 16, 16}},
		{"even pad", []int64{2, 4, 7, 7}, []int64{2, 4, 16, 16}},
		{"odd pad", []int64{2, 4, 7, 7}, []int64{2, 4, 15, 17}},
		{"crop", []int64{2, 4, 8, 8}, []int64{2, 4, 8, 8}},
		{"odd crop", []int64{2, 4, 5, 5}, []int64{2, 4, 7, 9}},
		{"mixed", []int64{2, 4, 6, 3}, []int64{2, 4, 9, 8}},
	}

	for _, bilinear := range []bool{true, false} {
		vs := nn.NewVarStore(gotch.CPU)
		up, err := unet.NewUpLayer(vs.Root(), 8, 5, true, bilinear)
		require.NoError(t, err)

		for _, tt := range tests {
			x1 := ts.MustRandn(tt.x1, gotch.Float, gotch.CPU)
			x2 := ts.MustRandn(tt.x2, gotch.Float, gotch.CPU)

			out, err := up.Forward(x1, x2, false)
			require.NoError(t, err, tt.name)
			assert.Equal(t, []int64{tt.x2[0], 5, tt.x2[2], tt.x2[3]}, out.MustSize(), "%v bilinear=%v", tt.name, bilinear)

			x1.MustDrop()
			x2.MustDrop()
			out.MustDrop()
		}
	}
}

// centreKernel returns a [1, cIn, 3, 3] kernel that passes channel ch through
// unchanged.
func centreKernel(cIn, ch int64) *ts.Tensor {
	data := make([]float32, cIn*9)
	data[ch*9+4] = 1
	return ts.MustOfSlice(data).MustView([]int64{1, cIn, 3, 3}, true)
}

func TestUpLayerConcatOrder(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	up, err := unet.NewUpLayer(vs.Root(), 2, 1, false, true)
	require.NoError(t, err)

	// Only channel 0 of the concatenation reaches the output.
	values := map[string]*ts.Tensor{
		"conv.double_conv.0.weight":       centreKernel(2, 0),
		"conv.double_conv.0.bias":         ts.MustZeros([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.3.weight":       centreKernel(1, 0),
		"conv.double_conv.3.bias":         ts.MustZeros([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.1.weight":       ts.MustOnes([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.1.bias":         ts.MustZeros([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.1.running_mean": ts.MustZeros([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.1.running_var":  ts.MustOnes([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.4.weight":       ts.MustOnes([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.4.bias":         ts.MustZeros([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.4.running_mean": ts.MustZeros([]int64{1}, gotch.Float, gotch.CPU),
		"conv.double_conv.4.running_var":  ts.MustOnes([]int64{1}, gotch.Float, gotch.CPU),
	}
	vars := vs.Variables()
	ts.NoGrad(func() {
		for name, val := range values {
			v, ok := vars[name]
			require.True(t, ok, "missing %v", name)
			v.Copy_(val)
			val.MustDrop()
		}
	})

	skip := make([]float32, 16)
	for i := range skip {
		skip[i] = float32(i + 1)
	}
	x2 := ts.MustOfSlice(skip).MustView([]int64{1, 1, 4, 4}, true)
	defer x2.MustDrop()

	want := x2.Float64Values()
	for _, x1 := range []*ts.Tensor{
		ts.MustRandn([]int64{1, 1, 2, 2}, gotch.Float, gotch.CPU),
		ts.MustOfSlice([]float32{100, -100, 50, 7}).MustView([]int64{1, 1, 2, 2}, true),
	} {
		out, err := up.Forward(x1, x2, false)
		require.NoError(t, err)
		require.Equal(t, []int64{1, 1, 4, 4}, out.MustSize())
		assert.InDeltaSlice(t, want, out.Float64Values(), 1e-3)

		x1.MustDrop()
		out.MustDrop()
	}
}

func TestUpLayerTransposedWeights(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	_, err := unet.NewUpLayer(vs.Root(), 8, 4, false, false)
	require.NoError(t, err)

	vars := vs.Variables()
	w, ok := vars["up.weight"]
	require.True(t, ok)
	assert.Equal(t, []int64{4, 4, 2, 2}, w.MustSize())
	b, ok := vars["up.bias"]
	require.True(t, ok)
	assert.Equal(t, []int64{4}, b.MustSize())
}

func TestUpLayerShapeMismatch(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	up, err := unet.NewUpLayer(vs.Root(), 8, 4, false, true)
	require.NoError(t, err)

	tests := []struct {
		name string
		x1   []int64
		x2   []int64
	}{
		{"batch", []int64{1, 4, 4, 4}, []int64{2, 4, 8, 8}},
		{"channels", []int64{1, 3, 4, 4}, []int64{1, 4, 8, 8}},
		{"rank", []int64{4, 4, 4}, []int64{1, 4, 8, 8}},
	}

	for _, tt := range tests {
		x1 := ts.MustRandn(tt.x1, gotch.Float, gotch.CPU)
		x2 := ts.MustRandn(tt.x2, gotch.Float, gotch.CPU)

		_, err := up.Forward(x1, x2, false)
		assert.True(t, errors.Is(err, unet.ErrShapeMismatch), "%v: %v", tt.name, err)
		assert.Panics(t, func() { up.ForwardSkip(x1, x2, false) }, tt.name)

		x1.MustDrop()
		x2.MustDrop()
	}
}

func TestNewUpLayerInvalidConfig(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)

	_, err := unet.NewUpLayer(vs.Root(), 0, 4, true, true)
	assert.True(t, errors.Is(err, unet.ErrInvalidConfig))

	_, err = unet.NewUpLayer(vs.Root(), 1, 4, true, false)
	assert.True(t, errors.Is(err, unet.ErrInvalidConfig))

	assert.Empty(t, vs.Variables())
}
