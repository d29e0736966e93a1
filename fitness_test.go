package torsk

import (
	"context"
	"math"
	"testing"

	"github.com/gorgonia/torsk/dataset"
	"github.com/gorgonia/torsk/feature"
	"github.com/gorgonia/torsk/hpopt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"
)

var testSpace = hpopt.Space{
	{Name: "spectral_radius", Kind: hpopt.Real, Low: 0.5, High: 2.0},
	{Name: "in_weight_init", Kind: hpopt.Real, Low: 0, High: 2},
	{Name: "in_bias_init", Kind: hpopt.Real, Low: 0, High: 2},
}

func smallParams() Params {
	p := DefaultParams()
	p.InputShape = [2]int{8, 8}
	p.FeatureSpecs = feature.Specs{feature.PixelSpec{Size: [2]int{6, 6}, InputScale: 1}}
	p.HiddenSize = 40
	p.Density = 0.2
	p.TrainLength = 40
	p.PredLength = 5
	p.TransientLength = 5
	return p
}

func circleDataset(t *testing.T, p Params) *dataset.ImageDataset {
	images := dataset.GaussBlobSequence(dataset.CircleCenters(80, 0.1, 1, 0.3), p.Sigma, p.InputShape[0], p.InputShape[1])
	conf, err := p.DatasetConfig()
	require.NoError(t, err)
	ds, err := dataset.NewImageDataset(images, conf)
	require.NoError(t, err)
	return ds
}

func circleLoader(t *testing.T, p Params) *dataset.Loader {
	l, err := dataset.NewLoader(circleDataset(t, p), p.Seed)
	require.NoError(t, err)
	return l
}

// constModel forecasts a constant.
type constModel struct {
	value  float64
	fitErr error
	beta   float64
	byBeta bool
}

func (m *constModel) Fit(inputs, labels *tensor.Dense, beta float64) error {
	m.beta = beta
	return m.fitErr
}

func (m *constModel) Predict(initial *tensor.Dense, steps int) (*tensor.Dense, error) {
	v := m.value
	if m.byBeta {
		v = m.beta
	}
	f := initial.Shape().TotalSize()
	backing := make([]float64, steps*f)
	for i := range backing {
		backing[i] = v
	}
	return tensor.New(tensor.WithShape(steps, f), tensor.WithBacking(backing)), nil
}

// zeroSource always hands out the same all zero episode.
type zeroSource struct{ features int }

func (s zeroSource) Next() (dataset.Episode, error) {
	return dataset.Episode{
		Inputs:     tensor.New(tensor.WithShape(10, s.features), tensor.Of(tensor.Float64)),
		Labels:     tensor.New(tensor.WithShape(10, s.features), tensor.Of(tensor.Float64)),
		PredLabels: tensor.New(tensor.WithShape(3, s.features), tensor.Of(tensor.Float64)),
	}, nil
}

func observed(level zapcore.Level) (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core).Sugar(), logs
}

func TestLogBetas(t *testing.T) {
	betas := LogBetas(-5, 2, 8)
	require.Len(t, betas, 8)
	for i, b := range betas {
		assert.InEpsilon(t, math.Pow(10, float64(i-5)), b, 1e-9)
	}
	assert.Equal(t, []float64{1e-3}, LogBetas(-3, 1, 1))
	assert.Nil(t, LogBetas(-3, 1, 0))
}

func TestNewFitnessValidation(t *testing.T) {
	src := zeroSource{4}
	betas := LogBetas(-5, 2, 4)

	_, err := NewFitness(hpopt.Space{{Name: "radius", Kind: hpopt.Real, Low: 0, High: 1}}, src, smallParams(), betas)
	assert.True(t, errors.Is(err, ErrUnknownParam), "%v", err)

	_, err = NewFitness(hpopt.Space{{Name: "dtype", Kind: hpopt.Real, Low: 0, High: 1}}, src, smallParams(), betas)
	assert.Error(t, err)

	_, err = NewFitness(testSpace, src, smallParams(), nil)
	assert.Error(t, err)
	_, err = NewFitness(testSpace, src, smallParams(), []float64{1, 0.1})
	assert.Error(t, err)

	_, err = NewFitness(testSpace, src, smallParams(), betas)
	assert.NoError(t, err)
}

func TestSweepTakesMinimum(t *testing.T) {
	builder := func(p Params, features int) (Model, error) { return &constModel{byBeta: true}, nil }
	betas := []float64{0.1, 0.5, 2}
	f, err := NewFitness(testSpace, zeroSource{4}, smallParams(), betas, WithModelBuilder(builder))
	require.NoError(t, err)

	x := []float64{1, 1, 1}
	errs, err := f.Sweep(x)
	require.NoError(t, err)
	require.Len(t, errs, 3)
	for i, beta := range betas {
		assert.InDelta(t, beta*beta, errs[i], 1e-12)
	}
	assert.InDelta(t, 0.01, f.Loss(x), 1e-12)
}

func TestSentinelLoss(t *testing.T) {
	x := []float64{1, 1, 1}
	for name, builder := range map[string]ModelBuilder{
		"build fails": func(p Params, features int) (Model, error) { return nil, errors.New("no model") },
		"fit fails":   func(p Params, features int) (Model, error) { return &constModel{fitErr: errors.New("singular")}, nil },
		"nan":         func(p Params, features int) (Model, error) { return &constModel{value: math.NaN()}, nil },
		"inf":         func(p Params, features int) (Model, error) { return &constModel{value: math.Inf(1)}, nil },
	} {
		logger, logs := observed(zapcore.WarnLevel)
		f, err := NewFitness(testSpace, zeroSource{4}, smallParams(), LogBetas(-5, 2, 3), WithModelBuilder(builder), WithLogger(logger))
		require.NoError(t, err)

		loss := f.Loss(x)
		assert.Equal(t, float64(SentinelLoss), loss, name)
		assert.False(t, math.IsNaN(loss) || math.IsInf(loss, 0))
		assert.NotZero(t, logs.FilterMessage("using sentinel loss").Len(), name)
	}
}

func TestSentinelOnlyForFailingBetas(t *testing.T) {
	builder := func(p Params, features int) (Model, error) { return &failingBetaModel{}, nil }
	f, err := NewFitness(testSpace, zeroSource{2}, smallParams(), []float64{0, 1}, WithModelBuilder(builder), WithLogger(zap.NewNop().Sugar()))
	require.NoError(t, err)
	errs, err := f.Sweep([]float64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{SentinelLoss, 0}, errs)
	assert.Equal(t, 0.0, f.Loss([]float64{1, 1, 1}))
}

// failingBetaModel cannot be fitted without regularization and predicts zeros otherwise.
type failingBetaModel struct{ constModel }

func (m *failingBetaModel) Fit(inputs, labels *tensor.Dense, beta float64) error {
	if beta == 0 {
		return errors.New("singular")
	}
	return nil
}

func TestInvalidPointIsSentinel(t *testing.T) {
	logger, logs := observed(zapcore.WarnLevel)
	space := hpopt.Space{{Name: "transient_length", Kind: hpopt.Integer, Low: 0, High: 100}}
	f, err := NewFitness(space, zeroSource{4}, smallParams(), []float64{1}, WithLogger(logger))
	require.NoError(t, err)
	// a transient as long as the training window is invalid
	assert.Equal(t, float64(SentinelLoss), f.Loss([]float64{40}))
	assert.Equal(t, 1, logs.Len())
}

func TestFitnessESN(t *testing.T) {
	p := smallParams()
	betas := LogBetas(-5, 2, 5)
	x := []float64{0.9, 0.5, 0.2}

	loss := func() float64 {
		f, err := NewFitness(testSpace, circleLoader(t, p), p, betas, WithLogger(zap.NewNop().Sugar()))
		require.NoError(t, err)
		applied, err := f.Params(x)
		require.NoError(t, err)
		assert.Equal(t, 0.9, applied.SpectralRadius)
		assert.Equal(t, 0.2, applied.InBiasInit)
		return f.Loss(x)
	}
	a, b := loss(), loss()
	t.Logf("loss %v", a)
	assert.Less(t, a, float64(SentinelLoss))
	assert.Equal(t, a, b, "fixed seeds give identical losses")
}

func TestSweepBetasAreIndependent(t *testing.T) {
	p := smallParams()
	betas := LogBetas(-6, -2, 3)
	x := []float64{0.9, 0.5, 0.2}
	nop := WithLogger(zap.NewNop().Sugar())

	f, err := NewFitness(testSpace, circleLoader(t, p), p, betas, nop)
	require.NoError(t, err)
	sweep, err := f.Sweep(x)
	require.NoError(t, err)
	require.Len(t, sweep, len(betas))

	for i, beta := range betas {
		single, err := NewFitness(testSpace, circleLoader(t, p), p, []float64{beta}, nop)
		require.NoError(t, err)
		alone, err := single.Sweep(x)
		require.NoError(t, err)
		t.Logf("beta %v: in sweep %v, alone %v", beta, sweep[i], alone[0])
		assert.InEpsilon(t, alone[0], sweep[i], 1e-9, "beta %v", beta)
	}
}

func TestTrainPredict(t *testing.T) {
	p := smallParams()
	ds := circleDataset(t, p)
	model, err := NewESN(p, ds.Pipeline().Width())
	require.NoError(t, err)

	outputs, predLabels, err := TrainPredict(model, ds, 3, 1e-4)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 36}, outputs.Shape())
	assert.Equal(t, predLabels.Shape(), outputs.Shape())

	images, err := ds.ToImages(outputs)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 6, 6}, images.Shape())

	_, _, err = TrainPredict(model, ds, ds.Len(), 1e-4)
	assert.True(t, errors.Is(err, dataset.ErrIndexOutOfRange))
}

func TestSearchWithFitness(t *testing.T) {
	p := smallParams()
	f, err := NewFitness(testSpace, circleLoader(t, p), p, LogBetas(-5, 2, 3), WithLogger(zap.NewNop().Sugar()))
	require.NoError(t, err)

	conf := hpopt.DefaultConfig()
	conf.Calls = 4
	conf.InitialPoints = 3
	conf.Candidates = 100
	conf.X0 = [][]float64{{1, 1, 1}}
	conf.Logger = zap.NewNop().Sugar()
	res, err := hpopt.Minimize(context.Background(), f.Loss, testSpace, conf)
	require.NoError(t, err)
	assert.Len(t, res.FuncVals, 4)
	for _, v := range res.FuncVals {
		assert.True(t, v > 0 && v <= SentinelLoss)
	}
}
