package hpopt

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// gp is a zero mean Gaussian process over the unit cube with a Matern 5/2 kernel.
// Observations are standardized before fitting; predictions are in the original units.
type gp struct {
	x           [][]float64
	lengthScale float64
	noise       float64

	yMean, yStd float64

	chol  mat.Cholesky
	alpha *mat.VecDense // K⁻¹ y
}

// jitters are the noise levels tried, in order, until the kernel matrix factorizes.
var jitters = [...]float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2}

// lengthScales is the grid searched for the kernel length scale.
var lengthScales = func() []float64 {
	retVal := make([]float64, 24)
	return floats.LogSpan(retVal, 0.02, 5)
}()

func matern52(a, b []float64, l float64) float64 {
	r := floats.Distance(a, b, 2) / l
	s := math.Sqrt(5) * r
	return (1 + s + s*s/3) * math.Exp(-s)
}

// fitGP fits a GP to the observations, choosing the length scale that maximizes the log marginal likelihood.
func fitGP(x [][]float64, y []float64) (*gp, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.Errorf("cannot fit %d points to %d observations", len(x), len(y))
	}
	mean, std := stat.MeanStdDev(y, nil)
	if len(y) < 2 || std == 0 || math.IsNaN(std) {
		std = 1
	}
	ys := make([]float64, len(y))
	for i, v := range y {
		ys[i] = (v - mean) / std
	}
	yv := mat.NewVecDense(len(ys), ys)

	var best *gp
	bestLML := math.Inf(-1)
	for _, l := range lengthScales {
		g := &gp{x: x, lengthScale: l, yMean: mean, yStd: std}
		if err := g.factorize(yv); err != nil {
			continue
		}
		if lml := g.logMarginalLikelihood(yv); lml > bestLML {
			best, bestLML = g, lml
		}
	}
	if best == nil {
		return nil, errors.New("kernel matrix is not positive definite for any length scale")
	}
	return best, nil
}

// factorize builds and factorizes the kernel matrix, raising the jitter until it is positive definite.
func (g *gp) factorize(y *mat.VecDense) error {
	n := len(g.x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.SetSym(i, j, matern52(g.x[i], g.x[j], g.lengthScale))
		}
	}
	for _, noise := range jitters {
		kn := mat.NewSymDense(n, nil)
		kn.CopySym(k)
		for i := 0; i < n; i++ {
			kn.SetSym(i, i, kn.At(i, i)+noise)
		}
		if ok := g.chol.Factorize(kn); !ok {
			continue
		}
		g.noise = noise
		g.alpha = new(mat.VecDense)
		if err := g.chol.SolveVecTo(g.alpha, y); err != nil {
			if _, ok := err.(mat.Condition); !ok {
				return err
			}
		}
		return nil
	}
	return errors.Errorf("kernel matrix with length scale %v is singular", g.lengthScale)
}

func (g *gp) logMarginalLikelihood(y *mat.VecDense) float64 {
	n := float64(y.Len())
	return -0.5*mat.Dot(y, g.alpha) - 0.5*g.chol.LogDet() - 0.5*n*math.Log(2*math.Pi)
}

// predict returns the posterior mean and standard deviation at the unit cube point u.
func (g *gp) predict(u []float64) (mu, sigma float64) {
	n := len(g.x)
	ks := mat.NewVecDense(n, nil)
	for i, xi := range g.x {
		ks.SetVec(i, matern52(u, xi, g.lengthScale))
	}
	mu = mat.Dot(ks, g.alpha)

	var w mat.VecDense
	variance := 1.0
	if err := g.chol.SolveVecTo(&w, ks); err == nil {
		variance -= mat.Dot(ks, &w)
	} else if _, ok := err.(mat.Condition); ok {
		variance -= mat.Dot(ks, &w)
	}
	if variance < 1e-12 {
		variance = 1e-12
	}
	return mu*g.yStd + g.yMean, math.Sqrt(variance) * g.yStd
}

// normalizedMean is the posterior mean in standardized units.
func (g *gp) normalizedMean(u []float64) float64 {
	mu, _ := g.predict(u)
	return (mu - g.yMean) / g.yStd
}
