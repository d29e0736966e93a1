package feature

import (
	"math/rand"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// convTransform correlates every frame with a fixed kernel. The correlation runs on a gorgonia graph,
// which only supports convolutions on BCHW input, so the frames are laid out as (T, 1, H, W).
type convTransform struct {
	h, w    int
	kernel  []float64
	size    [2]int
	stride  int
	padding int
}

func newConvTransform(in [2]int, s ConvSpec, r *rand.Rand) convTransform {
	return convTransform{
		h:       in[0],
		w:       in[1],
		kernel:  kernel(s.KernelType, s.Size, r),
		size:    s.Size,
		stride:  s.Stride,
		padding: s.Padding,
	}
}

func (tr convTransform) apply(frames []float64, t int) ([]float64, error) {
	g := G.NewGraph()

	backing := make([]float64, t*tr.h*tr.w)
	copy(backing, frames)
	input := tensor.New(tensor.WithShape(t, 1, tr.h, tr.w), tensor.WithBacking(backing))

	filterBacking := make([]float64, len(tr.kernel))
	copy(filterBacking, tr.kernel)
	filter := tensor.New(tensor.WithShape(1, 1, tr.size[0], tr.size[1]), tensor.WithBacking(filterBacking))

	var m maebe
	x := G.NewTensor(g, tensor.Float64, 4, G.WithShape(t, 1, tr.h, tr.w), G.WithValue(input), G.WithName("Frames"))
	k := G.NewTensor(g, tensor.Float64, 4, G.WithShape(1, 1, tr.size[0], tr.size[1]), G.WithValue(filter), G.WithName("Kernel"))
	out := m.conv(x, k, tr.size, tr.padding, tr.stride)
	if m.err != nil {
		return nil, m.err
	}

	var outVal G.Value
	G.Read(out, &outVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, errors.WithStack(err)
	}

	data, ok := outVal.Data().([]float64)
	if !ok {
		return nil, errors.Errorf("conv: unexpected output data %T", outVal.Data())
	}
	retVal := make([]float64, len(data))
	copy(retVal, data)
	return retVal, nil
}

type maebe struct {
	err error
}

func (m *maebe) conv(input, filter *G.Node, size [2]int, padding, stride int) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = nnops.Conv2d(input, filter, tensor.Shape{size[0], size[1]}, []int{padding, padding}, []int{stride, stride}, []int{1, 1}); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}
