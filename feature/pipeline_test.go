package feature

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

func randomImages(t, h, w int, seed int64) *tensor.Dense {
	r := rand.New(rand.NewSource(seed))
	backing := make([]float64, t*h*w)
	for i := range backing {
		backing[i] = r.Float64()
	}
	return tensor.New(tensor.WithShape(t, h, w), tensor.WithBacking(backing))
}

func TestParseSpecs(t *testing.T) {
	specs, err := ParseSpecs([]byte(`[
		{"type": "pixels", "size": [20, 20], "input_scale": 4.0},
		{"type": "conv", "size": [5, 5], "kernel_type": "gauss", "input_scale": 9.0, "comment": "ignored"},
		{"type": "dct", "size": [10, 10]},
		{"type": "random_weights", "size": [1000], "weight_scale": 0.125}
	]`))
	require.NoError(t, err)

	want := Specs{
		PixelSpec{Size: [2]int{20, 20}, InputScale: 4},
		ConvSpec{Size: [2]int{5, 5}, KernelType: GaussKernel, Stride: 1, InputScale: 9},
		DCTSpec{Size: [2]int{10, 10}, InputScale: 1},
		RandomWeightsSpec{Size: 1000, WeightScale: 0.125},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Errorf("ParseSpecs mismatch (-want +got):\n%s", diff)
	}

	p, err := specs.MarshalJSON()
	require.NoError(t, err)
	again, err := ParseSpecs(p)
	require.NoError(t, err)
	assert.Equal(t, specs, again)
}

func TestParseSpecsErrors(t *testing.T) {
	cases := []struct {
		name    string
		json    string
		unknown bool
	}{
		{"unknown type", `[{"type": "wavelet", "size": [2, 2]}]`, true},
		{"missing type", `[{"size": [2, 2]}]`, true},
		{"missing size", `[{"type": "pixels"}]`, false},
		{"bad size", `[{"type": "dct", "size": [2]}]`, false},
		{"missing kernel", `[{"type": "conv", "size": [2, 2]}]`, false},
		{"unknown kernel", `[{"type": "conv", "size": [2, 2], "kernel_type": "sobel"}]`, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseSpecs([]byte(c.json))
			require.Error(t, err)
			assert.Equal(t, c.unknown, errors.Is(err, ErrUnknownSpec), "%v", err)
		})
	}
}

func TestNewPipelineValidation(t *testing.T) {
	in := [2]int{8, 8}
	bad := []Specs{
		{DCTSpec{Size: [2]int{9, 2}, InputScale: 1}},
		{ConvSpec{Size: [2]int{10, 10}, KernelType: MeanKernel, Stride: 1, InputScale: 1}},
		{ConvSpec{Size: [2]int{3, 3}, KernelType: MeanKernel, Stride: 0, InputScale: 1}},
		{PixelSpec{Size: [2]int{0, 4}, InputScale: 1}},
		{RandomWeightsSpec{Size: 0, WeightScale: 1}},
		{PixelSpec{Size: [2]int{4, 4}}},
		{},
	}
	for i, specs := range bad {
		if _, err := NewPipeline(specs, in); err == nil {
			t.Errorf("case %d: expected an error for %v", i, specs)
		}
	}
}

func TestConvShape(t *testing.T) {
	cases := []struct {
		spec ConvSpec
		in   [2]int
		want []int
	}{
		{ConvSpec{Size: [2]int{3, 3}, Stride: 1}, [2]int{8, 8}, []int{6, 6}},
		{ConvSpec{Size: [2]int{3, 3}, Stride: 1, Padding: 1}, [2]int{8, 8}, []int{8, 8}},
		{ConvSpec{Size: [2]int{3, 2}, Stride: 2}, [2]int{9, 8}, []int{4, 4}},
		{ConvSpec{Size: [2]int{5, 5}, Stride: 2, Padding: 2}, [2]int{30, 30}, []int{15, 15}},
	}
	for _, c := range cases {
		got, err := c.spec.Shape(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%+v on %v", c.spec, c.in)
	}
}

func TestToFeaturesConcatenation(t *testing.T) {
	specs := Specs{
		PixelSpec{Size: [2]int{2, 2}, InputScale: 1},
		DCTSpec{Size: [2]int{3, 3}, InputScale: 1},
		ConvSpec{Size: [2]int{3, 3}, KernelType: RandomKernel, Stride: 1, InputScale: 1},
		RandomWeightsSpec{Size: 7, WeightScale: 0.5},
	}
	p, err := NewPipeline(specs, [2]int{6, 6})
	require.NoError(t, err)
	assert.Equal(t, 4+9+16+7, p.Width())

	images := randomImages(5, 6, 6, 1)
	features, err := p.ToFeatures(images)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, p.Width()}, features.Shape())

	// every block equals the single spec pipeline output
	data := features.Data().([]float64)
	for i, spec := range specs {
		single, err := NewPipeline(Specs{spec}, [2]int{6, 6}, WithSeed(1337+int64(i)))
		require.NoError(t, err)
		block, err := single.ToFeatures(images)
		require.NoError(t, err)
		blockData := block.Data().([]float64)

		start, end := p.Block(i)
		w := end - start
		for row := 0; row < 5; row++ {
			assert.Equal(t, blockData[row*w:(row+1)*w], data[row*p.Width()+start:row*p.Width()+end], "spec %d row %d", i, row)
		}
	}
}

func TestToFeaturesIdempotent(t *testing.T) {
	specs := Specs{
		ConvSpec{Size: [2]int{3, 3}, KernelType: RandomKernel, Stride: 1, InputScale: 1},
		RandomWeightsSpec{Size: 10, WeightScale: 1},
		DCTSpec{Size: [2]int{4, 4}, InputScale: 2},
	}
	p, err := NewPipeline(specs, [2]int{8, 8})
	require.NoError(t, err)

	images := randomImages(4, 8, 8, 2)
	a, err := p.ToFeatures(images)
	require.NoError(t, err)
	b, err := p.ToFeatures(images)
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())
}

func TestPixelRoundTrip(t *testing.T) {
	for _, dt := range []tensor.Dtype{tensor.Float64, tensor.Float32} {
		for _, size := range [][2]int{{4, 4}, {8, 8}, {3, 5}} {
			p, err := NewPipeline(Specs{PixelSpec{Size: size, InputScale: 1}}, [2]int{8, 8}, WithDtype(dt))
			require.NoError(t, err)

			images, err := p.Cast(randomImages(3, 8, 8, 3))
			require.NoError(t, err)

			features, err := p.ToFeatures(images)
			require.NoError(t, err)
			reconstructed, err := p.ToImages(features)
			require.NoError(t, err)

			want, err := Resample(images, size[0], size[1])
			require.NoError(t, err)
			assert.Equal(t, want.Shape(), reconstructed.Shape())
			assert.Equal(t, want.Data(), reconstructed.Data(), "dtype %v size %v", dt, size)
		}
	}
}

func TestToImagesUsesPixelBlock(t *testing.T) {
	specs := Specs{
		RandomWeightsSpec{Size: 3, WeightScale: 1},
		PixelSpec{Size: [2]int{4, 4}, InputScale: 2},
		PixelSpec{Size: [2]int{2, 2}, InputScale: 1},
	}
	p, err := NewPipeline(specs, [2]int{4, 4})
	require.NoError(t, err)

	images := randomImages(2, 4, 4, 4)
	features, err := p.ToFeatures(images)
	require.NoError(t, err)
	reconstructed, err := p.ToImages(features)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4, 4}, reconstructed.Shape())
	assert.Equal(t, images.Data(), reconstructed.Data())
}

func TestToImagesErrors(t *testing.T) {
	in := [2]int{6, 6}
	images := randomImages(2, 6, 6, 5)

	dct, err := NewPipeline(Specs{DCTSpec{Size: [2]int{3, 3}, InputScale: 1}}, in)
	require.NoError(t, err)
	features, err := dct.ToFeatures(images)
	require.NoError(t, err)
	_, err = dct.ToImages(features)
	assert.True(t, errors.Is(err, ErrUnsupported), "%v", err)
	assert.False(t, errors.Is(err, ErrNotInvertible))

	conv, err := NewPipeline(Specs{ConvSpec{Size: [2]int{3, 3}, KernelType: MeanKernel, Stride: 1, InputScale: 1}}, in)
	require.NoError(t, err)
	features, err = conv.ToFeatures(images)
	require.NoError(t, err)
	_, err = conv.ToImages(features)
	assert.True(t, errors.Is(err, ErrNotInvertible), "%v", err)
	assert.False(t, errors.Is(err, ErrUnsupported))
	assert.Contains(t, err.Error(), "conv")
}

func TestDCTConstantFrame(t *testing.T) {
	const c = 3.0
	backing := make([]float64, 2*4*6)
	for i := range backing {
		backing[i] = c
	}
	images := tensor.New(tensor.WithShape(2, 4, 6), tensor.WithBacking(backing))
	p, err := NewPipeline(Specs{DCTSpec{Size: [2]int{3, 3}, InputScale: 1}}, [2]int{4, 6})
	require.NoError(t, err)
	features, err := p.ToFeatures(images)
	require.NoError(t, err)

	data := features.Data().([]float64)
	for row := 0; row < 2; row++ {
		coeffs := data[row*9 : (row+1)*9]
		assert.InDelta(t, c*math.Sqrt(24), coeffs[0], 1e-9)
		for _, v := range coeffs[1:] {
			assert.InDelta(t, 0, v, 1e-9)
		}
	}
}

func TestDCTBasisOrthonormal(t *testing.T) {
	const n = 7
	full := dctBasis(n, n)
	var prod mat.Dense
	prod.Mul(full, full.T())
	assert.True(t, mat.EqualApprox(&prod, eye(n), 1e-12), "C·Cᵀ = I\n%v", mat.Formatted(&prod))

	// truncation keeps the leading rows of the full basis
	assert.True(t, mat.Equal(dctBasis(3, n), full.Slice(0, 3, 0, n)))

	// an untruncated transform preserves the energy of a frame
	images := randomImages(1, 5, n, 3)
	p, err := NewPipeline(Specs{DCTSpec{Size: [2]int{5, n}, InputScale: 1}}, [2]int{5, n})
	require.NoError(t, err)
	features, err := p.ToFeatures(images)
	require.NoError(t, err)
	in := images.Data().([]float64)
	out := features.Data().([]float64)
	assert.InDelta(t, floats.Dot(in, in), floats.Dot(out, out), 1e-9)
}

func eye(n int) *mat.Dense {
	retVal := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		retVal.Set(i, i, 1)
	}
	return retVal
}

func TestConvMeanKernel(t *testing.T) {
	images := tensor.New(tensor.WithShape(1, 3, 3), tensor.WithBacking([]float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}))
	p, err := NewPipeline(Specs{ConvSpec{Size: [2]int{2, 2}, KernelType: MeanKernel, Stride: 1, InputScale: 1}}, [2]int{3, 3})
	require.NoError(t, err)
	features, err := p.ToFeatures(images)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4}, features.Shape())

	want := []float64{3, 4, 6, 7}
	got := features.Data().([]float64)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9)
	}
}

func TestGaussKernelNormalised(t *testing.T) {
	k := kernel(GaussKernel, [2]int{5, 5}, nil)
	var sum float64
	for _, v := range k {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-12)
	assert.Equal(t, k[0], k[24], "gauss kernel should be symmetric")
	assert.True(t, k[12] > k[0])
}

func TestResampleIdentity(t *testing.T) {
	images := randomImages(2, 5, 7, 6)
	same, err := Resample(images, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, images.Data(), same.Data())

	down, err := Resample(images, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1, 1}, down.Shape())
}

func TestCastWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p, err := NewPipeline(Specs{PixelSpec{Size: [2]int{2, 2}, InputScale: 1}}, [2]int{2, 2},
		WithDtype(tensor.Float32), WithLogger(zap.New(core).Sugar()))
	require.NoError(t, err)

	images := tensor.New(tensor.WithShape(1, 2, 2), tensor.WithBacking([]float64{1, 2, 3, 4}))
	features, err := p.ToFeatures(images)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, features.Dtype())
	assert.Equal(t, []float32{1, 2, 3, 4}, features.Data())
	assert.Equal(t, 1, logs.FilterMessage("images dtype converted").Len())

	_, err = p.ToFeatures(tensor.New(tensor.WithShape(1, 2, 2), tensor.WithBacking([]float32{1, 2, 3, 4})))
	require.NoError(t, err)
	assert.Equal(t, 1, logs.Len(), "matching dtypes must not warn")
}

func TestToFeaturesShapeMismatch(t *testing.T) {
	p, err := NewPipeline(Specs{PixelSpec{Size: [2]int{2, 2}, InputScale: 1}}, [2]int{4, 4})
	require.NoError(t, err)
	_, err = p.ToFeatures(randomImages(2, 5, 4, 7))
	assert.Error(t, err)
}

func TestToDot(t *testing.T) {
	p, err := NewPipeline(Specs{
		PixelSpec{Size: [2]int{2, 2}, InputScale: 1},
		RandomWeightsSpec{Size: 3, WeightScale: 1},
	}, [2]int{4, 4})
	require.NoError(t, err)
	dot, err := p.ToDot()
	require.NoError(t, err)
	t.Logf("%s", dot)
	assert.Contains(t, dot, "spec0")
	assert.Contains(t, dot, "spec1")
	assert.Contains(t, dot, "features")
}
