// Package encoding renders real and predicted image sequences side by side, for the
// animated outputs in encoding/gif and encoding/mjpeg.
package encoding

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// FrameEncoder is anything that can take a stream of frames. Flush is called once, after the last frame.
type FrameEncoder interface {
	Encode(f Frame) error
	Flush() error
}

// Frame is one step of a real and a predicted sequence, both (H, W) row major.
type Frame struct {
	Real, Predicted []float32
	H, W            int

	// Lo and Hi are the values mapped to black and white.
	Lo, Hi float32

	Step, Steps int
	Caption     string
}

func (f Frame) String() string {
	if f.Caption == "" {
		return fmt.Sprintf("step %d/%d", f.Step+1, f.Steps)
	}
	return fmt.Sprintf("%s, step %d/%d", f.Caption, f.Step+1, f.Steps)
}

// Frames splits two (T, H, W) sequences into frames. The gray scale is shared by all frames,
// spanning the smallest and largest finite value of both sequences.
func Frames(real, predicted *tensor.Dense, caption string) ([]Frame, error) {
	rs, ps := real.Shape(), predicted.Shape()
	if rs.Dims() != 3 || !rs.Eq(ps) {
		return nil, errors.Errorf("expected two (T, H, W) sequences of equal shape, got %v and %v", rs, ps)
	}
	r, err := float32s(real)
	if err != nil {
		return nil, err
	}
	p, err := float32s(predicted)
	if err != nil {
		return nil, err
	}

	lo, hi := bounds(r)
	plo, phi := bounds(p)
	lo, hi = math32.Min(lo, plo), math32.Max(hi, phi)
	if lo > hi {
		// nothing finite
		lo, hi = 0, 1
	}

	t, h, w := rs[0], rs[1], rs[2]
	n := h * w
	retVal := make([]Frame, t)
	for i := range retVal {
		retVal[i] = Frame{
			Real:      r[i*n : (i+1)*n],
			Predicted: p[i*n : (i+1)*n],
			H:         h,
			W:         w,
			Lo:        lo,
			Hi:        hi,
			Step:      i,
			Steps:     t,
			Caption:   caption,
		}
	}
	return retVal, nil
}

// EncodeAll encodes the frames in order and flushes the encoder.
func EncodeAll(enc FrameEncoder, frames []Frame) error {
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return errors.WithMessagef(err, "encoding %v", f)
		}
	}
	return enc.Flush()
}

func float32s(a *tensor.Dense) ([]float32, error) {
	switch data := a.Data().(type) {
	case []float32:
		return data, nil
	case []float64:
		retVal := make([]float32, len(data))
		for i, v := range data {
			retVal[i] = float32(v)
		}
		return retVal, nil
	}
	return nil, errors.Errorf("unsupported dtype %v", a.Dtype())
}

func bounds(a []float32) (lo, hi float32) {
	lo, hi = math32.Inf(1), math32.Inf(-1)
	for _, v := range a {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			continue
		}
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}
	return lo, hi
}

// gray maps v to a gray level. Non finite values are black.
func gray(v, lo, hi float32) uint8 {
	if math32.IsNaN(v) || math32.IsInf(v, 0) {
		return 0
	}
	if hi == lo {
		return 128
	}
	g := math32.Floor(255*(v-lo)/(hi-lo) + 0.5)
	return uint8(math32.Max(0, math32.Min(255, g)))
}
