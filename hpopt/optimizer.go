package hpopt

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Objective is the function being minimized. Non finite losses are recorded as FailedLoss.
type Objective func(x []float64) float64

// FailedLoss is recorded for evaluations whose loss is not finite. It is large but finite so the
// surrogate can still be fitted.
const FailedLoss = 1e10

// hedgeEta is the temperature of the gp_hedge softmax.
const hedgeEta = 1.0

// Optimizer proposes points to evaluate (Ask) and learns from their losses (Tell).
// Search happens in the unit cube; points handed out and taken in are in the units of the space.
type Optimizer struct {
	space Space
	conf  Config
	r     *rand.Rand

	pending    [][]float64 // X0 not yet asked
	randomLeft int

	xs [][]float64
	us [][]float64
	ys []float64

	gains     [len(hedgeOrder)]float64
	proposals [][]float64

	created time.Time
}

// NewOptimizer creates an optimizer over space.
func NewOptimizer(space Space, conf Config) (*Optimizer, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid search config %+v", conf)
	}
	pending := make([][]float64, 0, len(conf.X0))
	for i, x := range conf.X0 {
		if err := space.Contains(x); err != nil {
			return nil, errors.WithMessagef(err, "x0[%d]", i)
		}
		pending = append(pending, append([]float64(nil), x...))
	}
	return &Optimizer{
		space:      space,
		conf:       conf,
		r:          rand.New(rand.NewSource(conf.Seed)),
		pending:    pending,
		randomLeft: conf.InitialPoints,
		created:    time.Now(),
	}, nil
}

// Ask returns the next point to evaluate.
func (o *Optimizer) Ask() []float64 {
	if len(o.pending) > 0 {
		x := o.pending[0]
		o.pending = o.pending[1:]
		return x
	}
	if o.randomLeft > 0 || len(o.ys) == 0 {
		if o.randomLeft > 0 {
			o.randomLeft--
		}
		return o.space.fromUnit(o.randomUnit())
	}

	g, err := fitGP(o.us, o.ys)
	if err != nil {
		o.conf.logger().Warnw("surrogate fit failed, sampling at random", "err", err)
		return o.space.fromUnit(o.randomUnit())
	}
	return o.space.fromUnit(o.propose(g))
}

func (o *Optimizer) randomUnit() []float64 {
	u := make([]float64, len(o.space))
	for i := range u {
		u[i] = o.r.Float64()
	}
	return u
}

// candidates are mostly uniform in the unit cube, with a fifth of them perturbing the best point so far.
func (o *Optimizer) candidates() [][]float64 {
	n := o.conf.Candidates
	local := n / 5
	center := o.us[floats.MinIdx(o.ys)]
	retVal := make([][]float64, 0, n)
	for i := 0; i < local; i++ {
		u := make([]float64, len(center))
		for j, c := range center {
			u[j] = clip01(c + 0.05*o.r.NormFloat64())
		}
		retVal = append(retVal, u)
	}
	for len(retVal) < n {
		retVal = append(retVal, o.randomUnit())
	}
	return retVal
}

func (o *Optimizer) propose(g *gp) []float64 {
	hedge := o.conf.Acq == GPHedge
	if hedge && o.proposals != nil {
		for i, p := range o.proposals {
			o.gains[i] -= g.normalizedMean(p)
		}
	}

	cands := o.candidates()
	mus := make([]float64, len(cands))
	sigmas := make([]float64, len(cands))
	for i, c := range cands {
		mus[i], sigmas[i] = g.predict(c)
	}
	best := floats.Min(o.ys)

	argmax := func(acq acquisition) []float64 {
		bestIdx, bestScore := 0, math.Inf(-1)
		for i := range cands {
			if s := acq(mus[i], sigmas[i], best); s > bestScore {
				bestIdx, bestScore = i, s
			}
		}
		return cands[bestIdx]
	}

	if !hedge {
		return argmax(acquisitionFor(o.conf.Acq, o.conf))
	}

	o.proposals = o.proposals[:0]
	for _, name := range hedgeOrder {
		o.proposals = append(o.proposals, argmax(acquisitionFor(name, o.conf)))
	}
	return o.proposals[o.hedgeChoice()]
}

// hedgeChoice draws an acquisition with probability proportional to exp(η·gain).
func (o *Optimizer) hedgeChoice() int {
	probs := make([]float64, len(o.gains))
	maxGain := floats.Max(o.gains[:])
	for i, gain := range o.gains {
		probs[i] = math.Exp(hedgeEta * (gain - maxGain))
	}
	floats.Scale(1/floats.Sum(probs), probs)
	floats.CumSum(probs, probs)
	u := o.r.Float64()
	for i, p := range probs {
		if u <= p {
			return i
		}
	}
	return len(probs) - 1
}

// Tell records the loss y observed at x.
func (o *Optimizer) Tell(x []float64, y float64) error {
	if err := o.space.Contains(x); err != nil {
		return err
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return errors.Errorf("non finite loss %v at %v", y, x)
	}
	x = append([]float64(nil), x...)
	o.xs = append(o.xs, x)
	o.us = append(o.us, o.space.toUnit(x))
	o.ys = append(o.ys, y)
	return nil
}

// Result returns a snapshot of the search so far.
func (o *Optimizer) Result() *Result {
	res := &Result{
		Space:    append(Space(nil), o.space...),
		Xs:       make([][]float64, len(o.xs)),
		FuncVals: append([]float64(nil), o.ys...),
		Fun:      math.Inf(1),
		Acq:      o.conf.Acq,
		Seed:     o.conf.Seed,
		Created:  o.created,
	}
	for i, x := range o.xs {
		res.Xs[i] = append([]float64(nil), x...)
	}
	if len(o.ys) > 0 {
		best := floats.MinIdx(o.ys)
		res.X = append([]float64(nil), o.xs[best]...)
		res.Fun = o.ys[best]
	}
	return res
}

// Minimize evaluates f exactly conf.Calls times: first the points of conf.X0, then conf.InitialPoints
// random points, then points proposed by the surrogate. The context is checked between evaluations;
// when it is done the partial result is returned along with the context's error.
func Minimize(ctx context.Context, f Objective, space Space, conf Config) (*Result, error) {
	opt, err := NewOptimizer(space, conf)
	if err != nil {
		return nil, err
	}
	return run(ctx, f, opt, conf, 0)
}

// Resume continues the search recorded in res until conf.Calls evaluations are done in total.
// The recorded evaluations are replayed through the optimizer instead of being evaluated again,
// so with the seed and config of the interrupted search the remaining points are the ones it
// would have evaluated.
func Resume(ctx context.Context, f Objective, space Space, res *Result, conf Config) (*Result, error) {
	if len(res.Xs) != len(res.FuncVals) {
		return nil, errors.Errorf("corrupt result: %d points, %d losses", len(res.Xs), len(res.FuncVals))
	}
	if !space.Equal(res.Space) {
		return nil, errors.Errorf("result was recorded over %v, resuming over %v", res.Space, space)
	}
	opt, err := NewOptimizer(space, conf)
	if err != nil {
		return nil, err
	}
	if !res.Created.IsZero() {
		opt.created = res.Created
	}
	logger := conf.logger()
	if res.Seed != conf.Seed || res.Acq != conf.Acq {
		logger.Warnw("resuming with a different seed or acquisition", "seed", conf.Seed, "recorded_seed", res.Seed, "acq", conf.Acq, "recorded_acq", res.Acq)
	}

	diverged := false
	for i, x := range res.Xs {
		if asked := opt.Ask(); !diverged && !floats.Equal(asked, x) {
			logger.Warnw("recorded history diverges from the config, replaying it as recorded", "call", i+1)
			diverged = true
		}
		if err := opt.Tell(x, res.FuncVals[i]); err != nil {
			return nil, errors.WithMessagef(err, "replaying call %d", i+1)
		}
	}
	logger.Infow("resuming search", "recorded", len(res.Xs), "calls", conf.Calls)
	return run(ctx, f, opt, conf, len(res.Xs))
}

func run(ctx context.Context, f Objective, opt *Optimizer, conf Config, done int) (*Result, error) {
	logger := conf.logger()
	for i := done; i < conf.Calls; i++ {
		if err := ctx.Err(); err != nil {
			return opt.Result(), errors.WithStack(err)
		}
		x := opt.Ask()
		y := f(x)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			logger.Warnw("recording failed evaluation", "call", i+1, "x", x, "loss", y, "recorded", FailedLoss)
			y = FailedLoss
		}
		if err := opt.Tell(x, y); err != nil {
			return opt.Result(), err
		}

		res := opt.Result()
		logger.Infow("evaluation done", "call", i+1, "of", conf.Calls, "x", x, "loss", y, "best", res.Fun)
		for _, cb := range conf.Callbacks {
			if err := cb(res); err != nil {
				return res, errors.WithMessage(err, "callback stopped the search")
			}
		}
	}
	return opt.Result(), nil
}
