// Package esn is a plain echo state network: a fixed random reservoir driven by the inputs
// and a linear readout fitted by ridge (Tikhonov) regression.
package esn

import (
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/gorgonia/torsk/internal/dense"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// ErrSingular is returned when the regularized normal equations of the readout cannot be solved.
var ErrSingular = errors.New("readout system is singular")

// ESN is an echo state network. The reservoir is updated as
//
//	x(t+1) = tanh(Win·u(t) + b + W·x(t))
//
// and the readout is y(t) = Wout·[1; u(t); x(t+1)].
type ESN struct {
	Config

	wIn  *mat.Dense    // (hidden × input)
	bIn  *mat.VecDense // (hidden)
	w    *mat.Dense    // (hidden × hidden)
	wOut *mat.Dense    // (output × 1+input+hidden)

	state *mat.VecDense

	// harvested states of the last Fit, reused when refitting on the same data
	harvestedFrom [2]*tensor.Dense
	z, y          *mat.Dense
	trained       *mat.VecDense // reservoir state at the end of the inputs
}

// New creates an ESN with a random reservoir scaled to the configured spectral radius.
func New(conf Config) (*ESN, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid ESN config %+v", conf)
	}
	r := rand.New(rand.NewSource(conf.Seed))
	n := conf.HiddenSize

	wIn := mat.NewDense(n, conf.InputSize, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < conf.InputSize; j++ {
			wIn.Set(i, j, uniform(r, conf.InWeightInit))
		}
	}
	bIn := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		bIn.SetVec(i, uniform(r, conf.InBiasInit))
	}

	w := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if r.Float64() < conf.Density {
				w.Set(i, j, uniform(r, 1))
			}
		}
	}
	rho, err := spectralRadius(w)
	if err != nil {
		return nil, err
	}
	if rho > 0 {
		w.Scale(conf.SpectralRadius/rho, w)
	}

	return &ESN{
		Config: conf,
		wIn:    wIn,
		bIn:    bIn,
		w:      w,
		state:  mat.NewVecDense(n, nil),
	}, nil
}

func uniform(r *rand.Rand, scale float64) float64 { return (2*r.Float64() - 1) * scale }

func spectralRadius(w mat.Matrix) (float64, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(w, mat.EigenNone); !ok {
		return 0, errors.New("eigen decomposition of the reservoir failed")
	}
	var rho float64
	for _, v := range eig.Values(nil) {
		if a := cmplx.Abs(v); a > rho {
			rho = a
		}
	}
	return rho, nil
}

// Reset zeroes the reservoir state.
func (e *ESN) Reset() { e.state.Zero() }

// step advances the reservoir with input u.
func (e *ESN) step(u mat.Vector) {
	var next mat.VecDense
	next.MulVec(e.wIn, u)
	next.AddVec(&next, e.bIn)
	var rec mat.VecDense
	rec.MulVec(e.w, e.state)
	next.AddVec(&next, &rec)
	for i := 0; i < next.Len(); i++ {
		next.SetVec(i, math.Tanh(next.AtVec(i)))
	}
	e.state.CopyVec(&next)
}

// extended is [1; u; x].
func (e *ESN) extended(u mat.Vector, dst []float64) {
	dst[0] = 1
	for i := 0; i < u.Len(); i++ {
		dst[1+i] = u.AtVec(i)
	}
	off := 1 + u.Len()
	for i := 0; i < e.state.Len(); i++ {
		dst[off+i] = e.state.AtVec(i)
	}
}

func asMatrix(a *tensor.Dense, cols int) (*mat.Dense, error) {
	shp := a.Shape()
	if shp.Dims() != 2 || shp[1] != cols {
		return nil, errors.Errorf("expected a (T, %d) matrix, got shape %v", cols, shp)
	}
	data, err := dense.Float64s(a)
	if err != nil {
		return nil, err
	}
	// Float64s may return the backing data of a; copy so a is never written through.
	backing := make([]float64, len(data))
	copy(backing, data)
	return mat.NewDense(shp[0], shp[1], backing), nil
}

func (e *ESN) harvest(inputs, labels *tensor.Dense) error {
	if e.harvestedFrom[0] == inputs && e.harvestedFrom[1] == labels && e.z != nil {
		return nil
	}
	u, err := asMatrix(inputs, e.InputSize)
	if err != nil {
		return errors.WithMessage(err, "inputs")
	}
	y, err := asMatrix(labels, e.OutputSize)
	if err != nil {
		return errors.WithMessage(err, "labels")
	}
	t, _ := u.Dims()
	if ty, _ := y.Dims(); ty != t {
		return errors.Errorf("%d inputs but %d labels", t, ty)
	}
	if e.TransientLength >= t {
		return errors.Errorf("transient length %d leaves no states of %d to fit", e.TransientLength, t)
	}

	d := 1 + e.InputSize + e.HiddenSize
	n := t - e.TransientLength
	z := mat.NewDense(n, d, nil)
	e.Reset()
	for i := 0; i < t; i++ {
		row := u.RowView(i)
		e.step(row)
		if i >= e.TransientLength {
			e.extended(row, z.RawRowView(i-e.TransientLength))
		}
	}
	e.z = z
	e.trained = mat.VecDenseCopyOf(e.state)
	e.y = mat.DenseCopyOf(y.Slice(e.TransientLength, t, 0, e.OutputSize))
	e.harvestedFrom = [2]*tensor.Dense{inputs, labels}
	return nil
}

// Fit drives the reservoir with inputs and fits the readout to labels with ridge penalty beta.
// The reservoir is left in its state at the end of the inputs, so Predict continues from there
// no matter what ran before, including a Predict after an earlier Fit on the same data.
func (e *ESN) Fit(inputs, labels *tensor.Dense, beta float64) error {
	if beta < 0 {
		return errors.Errorf("negative regularization %v", beta)
	}
	if err := e.harvest(inputs, labels); err != nil {
		return err
	}
	e.state.CopyVec(e.trained)

	// (ZᵀZ + βI) Woutᵀ = ZᵀY
	_, d := e.z.Dims()
	var zz mat.SymDense
	zz.SymOuterK(1, e.z.T())
	a := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := zz.At(i, j)
			if i == j {
				v += beta
			}
			a.SetSym(i, j, v)
		}
	}
	var zy mat.Dense
	zy.Mul(e.z.T(), e.y)

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return errors.Wrapf(ErrSingular, "beta %v", beta)
	}
	var wOutT mat.Dense
	if err := chol.SolveTo(&wOutT, &zy); err != nil {
		return errors.Wrapf(ErrSingular, "beta %v: %v", beta, err)
	}
	e.wOut = mat.DenseCopyOf(wOutT.T())
	return nil
}

// Predict runs the network in closed loop for steps, starting from the input initial (one step of features).
// The output of each step is the input of the next.
func (e *ESN) Predict(initial *tensor.Dense, steps int) (*tensor.Dense, error) {
	if e.wOut == nil {
		return nil, errors.New("predict called before fit")
	}
	if e.OutputSize != e.InputSize {
		return nil, errors.Errorf("closed loop prediction needs output size %d == input size %d", e.OutputSize, e.InputSize)
	}
	if initial.Shape().TotalSize() != e.InputSize {
		return nil, errors.Errorf("expected %d initial features, got shape %v", e.InputSize, initial.Shape())
	}
	init, err := dense.Float64s(initial)
	if err != nil {
		return nil, err
	}
	u := mat.NewVecDense(e.InputSize, append([]float64(nil), init...))

	_, d := e.wOut.Dims()
	ext := mat.NewVecDense(d, nil)
	retVal := make([]float64, steps*e.OutputSize)
	for s := 0; s < steps; s++ {
		e.step(u)
		e.extended(u, ext.RawVector().Data)
		out := mat.NewVecDense(e.OutputSize, retVal[s*e.OutputSize:(s+1)*e.OutputSize])
		out.MulVec(e.wOut, ext)
		u.CopyVec(out)
	}
	return dense.New(retVal, initial.Dtype(), steps, e.OutputSize)
}
