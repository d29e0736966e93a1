package dense

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestSlicerRows(t *testing.T) {
	a := tensor.New(tensor.WithShape(4, 2, 2), tensor.WithBacking(tensor.Range(tensor.Float64, 0, 16)))

	var s Slicer
	b := s.Rows(a, 1, 3)
	require.NoError(t, s.Err())
	assert.Equal(t, tensor.Shape{2, 2, 2}, b.Shape())
	assert.Equal(t, []float64{4, 5, 6, 7, 8, 9, 10, 11}, b.Data())

	// copies, not views
	b.Data().([]float64)[0] = -1
	assert.Equal(t, float64(4), a.Data().([]float64)[4])

	assert.Nil(t, s.Rows(a, 3, 5))
	assert.Error(t, s.Err())
	assert.Nil(t, s.Rows(a, 0, 1), "slicer must stay failed")
}

func TestSlicerCols(t *testing.T) {
	a := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{1, 2, 3, 4, 5, 6}))
	var s Slicer
	b := s.Cols(a, 1, 3)
	require.NoError(t, s.Err())
	assert.Equal(t, tensor.Shape{2, 2}, b.Shape())
	assert.Equal(t, []float32{2, 3, 5, 6}, b.Data())

	c := s.Cols(a, 2, 3)
	require.NoError(t, s.Err())
	assert.Equal(t, tensor.Shape{2, 1}, c.Shape())
	assert.Equal(t, []float32{3, 6}, c.Data())

	assert.Nil(t, s.Cols(a, 2, 2))
	assert.Error(t, s.Err())
}

func TestSlicerKeepsUnitAxes(t *testing.T) {
	a := tensor.New(tensor.WithShape(3, 4), tensor.WithBacking(tensor.Range(tensor.Float64, 0, 12)))
	var s Slicer
	last := s.Rows(a, 2, 3)
	require.NoError(t, s.Err())
	assert.Equal(t, tensor.Shape{1, 4}, last.Shape())
	assert.Equal(t, []float64{8, 9, 10, 11}, last.Data())

	last.Data().([]float64)[0] = -1
	assert.Equal(t, float64(8), a.Data().([]float64)[8])
}

func TestCast(t *testing.T) {
	a := tensor.New(tensor.WithShape(3), tensor.WithBacking([]float64{0.5, 1.25, -2}))
	b, err := Cast(a, tensor.Float32)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, b.Dtype())
	assert.Equal(t, []float32{0.5, 1.25, -2}, b.Data())

	c, err := Float64s(b)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.25, -2}, c)
}
