package torsk

import (
	"math"
	"sort"

	"github.com/gorgonia/torsk/dataset"
	"github.com/gorgonia/torsk/hpopt"
	"github.com/gorgonia/torsk/internal/dense"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// SentinelLoss replaces the loss of points that fail or produce a non finite error.
// It is the loss the search records for failed evaluations.
const SentinelLoss = hpopt.FailedLoss

// EpisodeSource hands out the episodes a Fitness evaluates on. *dataset.Loader is one.
type EpisodeSource interface {
	Next() (dataset.Episode, error)
}

// LogBetas returns n penalties spaced evenly in log space from 10^start to 10^stop.
func LogBetas(start, stop float64, n int) []float64 {
	switch {
	case n < 1:
		return nil
	case n == 1:
		return []float64{math.Pow(10, start)}
	}
	return floats.LogSpan(make([]float64, n), math.Pow(10, start), math.Pow(10, stop))
}

// Fitness evaluates points of a search space.
type Fitness struct {
	space  hpopt.Space
	src    EpisodeSource
	params Params
	betas  []float64

	build  ModelBuilder
	logger *zap.SugaredLogger
}

// FitnessOpt configures a Fitness.
type FitnessOpt func(*Fitness)

// WithModelBuilder replaces the default echo state network builder.
func WithModelBuilder(b ModelBuilder) FitnessOpt { return func(f *Fitness) { f.build = b } }

// WithLogger sets the logger sentinel substitutions are reported to.
func WithLogger(l *zap.SugaredLogger) FitnessOpt { return func(f *Fitness) { f.logger = l } }

// NewFitness creates a fitness function. Every dimension of space must name a numeric parameter
// of Params; betas must be non negative and ascending.
func NewFitness(space hpopt.Space, src EpisodeSource, params Params, betas []float64, opts ...FitnessOpt) (*Fitness, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	probe := params
	for _, d := range space {
		if err := probe.SetFloat(d.Name, d.Low); err != nil {
			return nil, errors.WithMessagef(err, "dimension %v", d.Name)
		}
	}
	if len(betas) == 0 {
		return nil, errors.New("empty regularization sweep")
	}
	if !sort.Float64sAreSorted(betas) || betas[0] < 0 {
		return nil, errors.Errorf("regularization sweep %v must be non negative and ascending", betas)
	}

	f := &Fitness{
		space:  space,
		src:    src,
		params: params,
		betas:  append([]float64(nil), betas...),
		build:  NewESN,
		logger: zap.S(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Betas returns the regularization sweep.
func (f *Fitness) Betas() []float64 { return f.betas }

// Params returns the base params with the point x applied.
func (f *Fitness) Params(x []float64) (Params, error) {
	if len(x) != len(f.space) {
		return Params{}, errors.Errorf("point has %d values, space has %d dimensions", len(x), len(f.space))
	}
	p := f.params
	for i, d := range f.space {
		if err := p.SetFloat(d.Name, x[i]); err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

// Sweep evaluates x on the next episode for every beta and returns the mean squared forecast
// error per beta. Betas whose fit or forecast fails, or whose error is not finite, get SentinelLoss.
func (f *Fitness) Sweep(x []float64) ([]float64, error) {
	p, err := f.Params(x)
	if err != nil {
		return nil, err
	}
	ep, err := f.src.Next()
	if err != nil {
		return nil, errors.WithMessage(err, "drawing episode")
	}
	model, err := f.build(p, ep.Inputs.Shape()[1])
	if err != nil {
		return nil, errors.WithMessage(err, "building model")
	}
	initial, err := lastRow(ep.Labels)
	if err != nil {
		return nil, err
	}
	want, err := dense.Float64s(ep.PredLabels)
	if err != nil {
		return nil, err
	}
	steps := ep.PredLabels.Shape()[0]

	retVal := make([]float64, len(f.betas))
	for i, beta := range f.betas {
		mse, err := f.evaluate(model, ep, initial, want, steps, beta)
		switch {
		case err != nil:
			f.logger.Warnw("using sentinel loss", "x", x, "beta", beta, "err", err)
			mse = SentinelLoss
		case math.IsNaN(mse) || math.IsInf(mse, 0):
			f.logger.Warnw("using sentinel loss", "x", x, "beta", beta, "mse", mse)
			mse = SentinelLoss
		}
		retVal[i] = mse
	}
	return retVal, nil
}

func (f *Fitness) evaluate(model Model, ep dataset.Episode, initial *tensor.Dense, want []float64, steps int, beta float64) (float64, error) {
	if err := model.Fit(ep.Inputs, ep.Labels, beta); err != nil {
		return 0, err
	}
	out, err := model.Predict(initial, steps)
	if err != nil {
		return 0, err
	}
	got, err := dense.Float64s(out)
	if err != nil {
		return 0, err
	}
	if len(got) != len(want) {
		return 0, errors.Errorf("forecast has %d values, expected %d", len(got), len(want))
	}
	d := floats.Distance(got, want, 2)
	return d * d / float64(len(want)), nil
}

// Loss is the smallest error of the sweep at x. It never fails: errors become SentinelLoss.
func (f *Fitness) Loss(x []float64) float64 {
	errs, err := f.Sweep(x)
	if err != nil {
		f.logger.Warnw("using sentinel loss", "x", x, "err", err)
		return SentinelLoss
	}
	loss := floats.Min(errs)
	f.logger.Debugw("fitness", "x", x, "loss", loss, "beta", f.betas[floats.MinIdx(errs)])
	return loss
}
