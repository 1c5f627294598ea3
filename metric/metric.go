package metric

import (
	"fmt"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// Predict returns the argmax class of every pixel of logits in shape
// [B H W C]. The result is laid out as B*H*W in row-major order.
func Predict(logits *ts.Tensor) ([]int64, error) {
	size := logits.MustSize()
	if len(size) < 2 {
		return nil, fmt.Errorf("Expected logits of shape [... C]. Got %v", size)
	}
	c := int(size[len(size)-1])
	if c == 0 {
		return nil, fmt.Errorf("Expected at least one class. Got %v", size)
	}

	vals := logits.Float64Values()
	n := len(vals) / c
	classes := make([]int64, n)
	for i := 0; i < n; i++ {
		row := vals[i*c : (i+1)*c]
		best := 0
		for j := 1; j < c; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		classes[i] = int64(best)
	}

	return classes, nil
}

// CrossEntropy returns mean per-pixel cross entropy loss of logits [B H W C]
// against class indices target [B H W] (int64).
func CrossEntropy(logits, target *ts.Tensor) *ts.Tensor {
	size := logits.MustSize()
	c := size[len(size)-1]
	l := logits.MustReshape([]int64{-1, c}, false)
	t := target.MustReshape([]int64{-1}, false)

	// NOTE: reduction: none = 0; mean = 1; sum = 2. ignoreIndex = -100
	logSm := l.MustLogSoftmax(-1, gotch.Float, true)
	loss := logSm.MustNllLoss(t, ts.NewTensor(), 1, -100, true)
	t.MustDrop()

	return loss
}

// PixelAccuracy returns the fraction of pixels whose argmax class equals target.
func PixelAccuracy(logits, target *ts.Tensor) (float64, error) {
	pred, err := Predict(logits)
	if err != nil {
		return 0, err
	}
	tvals := target.Int64Values()
	if len(tvals) != len(pred) {
		return 0, fmt.Errorf("Expected %v target values. Got %v", len(pred), len(tvals))
	}
	if len(pred) == 0 {
		return 0, nil
	}

	var correct int
	for i, p := range pred {
		if p == tvals[i] {
			correct++
		}
	}

	return float64(correct) / float64(len(pred)), nil
}

// ConfusionMatrix counts pixels: cm[target][pred].
func ConfusionMatrix(pred, target []int64, nclasses int) ([][]int64, error) {
	if len(pred) != len(target) {
		return nil, fmt.Errorf("Expected pred and target of same length. Got %v and %v", len(pred), len(target))
	}
	if nclasses <= 0 {
		return nil, fmt.Errorf("Invalid number of classes: %v", nclasses)
	}

	cm := make([][]int64, nclasses)
	for i := range cm {
		cm[i] = make([]int64, nclasses)
	}
	for i := range pred {
		p, t := pred[i], target[i]
		if p < 0 || int(p) >= nclasses || t < 0 || int(t) >= nclasses {
			return nil, fmt.Errorf("Class out of range at %v: pred=%v, target=%v", i, p, t)
		}
		cm[t][p]++
	}

	return cm, nil
}

// IoU returns intersection over union of every class.
// A class absent from both prediction and target scores 1.
func IoU(cm [][]int64) []float64 {
	ious := make([]float64, len(cm))
	for c := range cm {
		tp, fp, fn := counts(cm, c)
		union := tp + fp + fn
		if union == 0 {
			ious[c] = 1
			continue
		}
		ious[c] = float64(tp) / float64(union)
	}

	return ious
}

// MeanIoU returns the mean of IoU over classes.
func MeanIoU(cm [][]int64) float64 {
	ious := IoU(cm)
	if len(ious) == 0 {
		return 0
	}
	var sum float64
	for _, v := range ious {
		sum += v
	}

	return sum / float64(len(ious))
}

// Dice returns the dice coefficient (2TP / (2TP + FP + FN)) of every class.
func Dice(cm [][]int64) []float64 {
	dices := make([]float64, len(cm))
	for c := range cm {
		tp, fp, fn := counts(cm, c)
		denom := 2*tp + fp + fn
		if denom == 0 {
			dices[c] = 1
			continue
		}
		dices[c] = float64(2*tp) / float64(denom)
	}

	return dices
}

func counts(cm [][]int64, c int) (tp, fp, fn int64) {
	tp = cm[c][c]
	for i := range cm {
		if i == c {
			continue
		}
		fp += cm[i][c]
		fn += cm[c][i]
	}

	return tp, fp, fn
}
