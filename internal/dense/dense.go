// Package dense holds the small amount of *tensor.Dense plumbing shared by the feature
// pipeline and the datasets: row and column slicing, dtype casts and float64 views.
package dense

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Float64s returns the backing data of a as float64s. Float64 tensors are returned as is (not copied).
func Float64s(a *tensor.Dense) ([]float64, error) {
	switch data := a.Data().(type) {
	case []float64:
		return data, nil
	case []float32:
		retVal := make([]float64, len(data))
		for i, v := range data {
			retVal[i] = float64(v)
		}
		return retVal, nil
	default:
		return nil, errors.Errorf("unsupported dtype %v", a.Dtype())
	}
}

// New creates a tensor of dtype dt from float64 data. The data is copied.
func New(data []float64, dt tensor.Dtype, shape ...int) (*tensor.Dense, error) {
	switch dt {
	case tensor.Float64:
		backing := make([]float64, len(data))
		copy(backing, data)
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)), nil
	case tensor.Float32:
		backing := make([]float32, len(data))
		for i, v := range data {
			backing[i] = float32(v)
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)), nil
	default:
		return nil, errors.Errorf("unsupported dtype %v", dt)
	}
}

// Cast returns a copy of a converted to dt.
func Cast(a *tensor.Dense, dt tensor.Dtype) (*tensor.Dense, error) {
	data, err := Float64s(a)
	if err != nil {
		return nil, err
	}
	return New(data, dt, a.Shape().Clone()...)
}

// RowSize is the number of elements per entry of the leading axis.
func RowSize(a *tensor.Dense) int {
	shp := a.Shape()
	if len(shp) == 0 {
		return 0
	}
	size := 1
	for _, d := range shp[1:] {
		size *= d
	}
	return size
}

// Slicer slices tensors into contiguous copies. Once an error occurs every subsequent call is a no-op.
type Slicer struct {
	v   tensor.View
	err error
}

type rs struct {
	start, end, step int
}

func (s rs) Start() int { return s.start }
func (s rs) End() int   { return s.end }
func (s rs) Step() int  { return s.step }

// sli creates a ranged slice. It takes an optional step param.
func sli(start, end int, opts ...int) rs {
	step := 1
	if len(opts) > 0 {
		step = opts[0]
	}
	return rs{start: start, end: end, step: step}
}

// slice materializes a.Slice(slices...) into a tensor of shape want. Slicing drops axes of size 1,
// so the result is reshaped to want.
func (s *Slicer) slice(a *tensor.Dense, want tensor.Shape, slices ...tensor.Slice) *tensor.Dense {
	if s.v, s.err = a.Slice(slices...); s.err != nil {
		s.err = errors.Wrapf(s.err, "Slicer failed")
		return nil
	}
	retVal, ok := s.v.Materialize().(*tensor.Dense)
	if !ok {
		s.err = errors.Errorf("Slicer failed: unexpected view %T", s.v)
		return nil
	}
	if !retVal.Shape().Eq(want) {
		if s.err = retVal.Reshape(want...); s.err != nil {
			s.err = errors.Wrapf(s.err, "Slicer failed")
			return nil
		}
	}
	return retVal
}

// Rows copies rows [start, end) of a into a new tensor of the same dtype.
func (s *Slicer) Rows(a *tensor.Dense, start, end int) *tensor.Dense {
	if s.err != nil {
		return nil
	}
	shp := a.Shape()
	if len(shp) == 0 || start < 0 || end <= start || end > shp[0] {
		s.err = errors.Errorf("rows [%d, %d) out of bounds for shape %v", start, end, shp)
		return nil
	}
	want := shp.Clone()
	want[0] = end - start
	return s.slice(a, want, sli(start, end))
}

// Cols copies columns [start, end) of the matrix a.
func (s *Slicer) Cols(a *tensor.Dense, start, end int) *tensor.Dense {
	if s.err != nil {
		return nil
	}
	shp := a.Shape()
	if len(shp) != 2 || start < 0 || end <= start || end > shp[1] {
		s.err = errors.Errorf("cols [%d, %d) out of bounds for shape %v", start, end, shp)
		return nil
	}
	return s.slice(a, tensor.Shape{shp[0], end - start}, nil, sli(start, end))
}

// Err returns the first error encountered.
func (s *Slicer) Err() error { return s.err }
