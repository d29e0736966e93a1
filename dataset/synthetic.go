package dataset

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Point is a (y, x) position in frame coordinates scaled to [-1, 1].
type Point [2]float64

// CircleCenters samples the trajectory (cos(ωy·t), sin(ωx·t)) at t = 0, dt, 2dt, ...
func CircleCenters(n int, dt, omegaY, omegaX float64) []Point {
	retVal := make([]Point, n)
	for i := range retVal {
		t := float64(i) * dt
		retVal[i] = Point{math.Cos(omegaY * t), math.Sin(omegaX * t)}
	}
	return retVal
}

// GaussBlobSequence renders one (h, w) frame per center: a gaussian blob of width sigma
// (in the same [-1, 1] units as the centers) on a zero background.
func GaussBlobSequence(centers []Point, sigma float64, h, w int) *tensor.Dense {
	ys := gridCoords(h)
	xs := gridCoords(w)
	backing := make([]float64, len(centers)*h*w)
	for i, c := range centers {
		frame := backing[i*h*w : (i+1)*h*w]
		for y, yy := range ys {
			dy := yy - c[0]
			for x, xx := range xs {
				dx := xx - c[1]
				frame[y*w+x] = math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			}
		}
	}
	return tensor.New(tensor.WithShape(len(centers), h, w), tensor.WithBacking(backing))
}

func gridCoords(n int) []float64 {
	retVal := make([]float64, n)
	if n == 1 {
		return retVal
	}
	for i := range retVal {
		retVal[i] = -1 + 2*float64(i)/float64(n-1)
	}
	return retVal
}

// MackeyGlass integrates the Mackey-Glass delay differential equation
//
//	dx/dt = beta*x(t-tau)/(1 + x(t-tau)^10) - gamma*x(t)
//
// with forward Euler steps of dt, starting from a constant history of x0, and samples it every sampleEvery steps.
func MackeyGlass(n int, tau, dt float64, sampleEvery int) ([]float64, error) {
	switch {
	case n < 0:
		return nil, errors.Errorf("negative length %d", n)
	case sampleEvery < 1:
		return nil, errors.Errorf("sampling every %d steps", sampleEvery)
	case !(dt > 0) || math.IsInf(dt, 0):
		return nil, errors.Errorf("step %v must be positive and finite", dt)
	case !(tau >= 0) || math.IsInf(tau, 0):
		return nil, errors.Errorf("delay %v must be non negative and finite", tau)
	}
	const (
		beta  = 0.2
		gamma = 0.1
		x0    = 1.2
	)
	delay := int(math.Round(tau / dt))
	steps := n * sampleEvery
	history := make([]float64, delay+steps+1)
	for i := 0; i <= delay; i++ {
		history[i] = x0
	}
	retVal := make([]float64, 0, n)
	for i := delay; i < delay+steps; i++ {
		xt := history[i]
		xtau := history[i-delay]
		history[i+1] = xt + dt*(beta*xtau/(1+math.Pow(xtau, 10))-gamma*xt)
		if (i-delay)%sampleEvery == 0 {
			retVal = append(retVal, history[i+1])
		}
	}
	return retVal, nil
}
