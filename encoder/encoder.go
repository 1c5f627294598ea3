package encoder

import (
	ts "github.com/sugarme/gotch/tensor"
)

// Encoder is the contracting path of a segmentation model. ForwardAll returns
// the skip features, shallowest first; the caller drops them.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
}

var _ Encoder = (*AttentionEncoder)(nil)
