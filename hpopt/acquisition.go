package hpopt

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// acquisition scores a candidate from its posterior mean and standard deviation, given the best
// loss observed so far. Higher is better.
type acquisition func(mu, sigma, best float64) float64

func expectedImprovement(xi float64) acquisition {
	return func(mu, sigma, best float64) float64 {
		imp := best - mu - xi
		z := imp / sigma
		return imp*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
	}
}

func probabilityOfImprovement(xi float64) acquisition {
	return func(mu, sigma, best float64) float64 {
		return distuv.UnitNormal.CDF((best - mu - xi) / sigma)
	}
}

func lowerConfidenceBound(kappa float64) acquisition {
	return func(mu, sigma, _ float64) float64 {
		return -(mu - kappa*sigma)
	}
}

// hedgeOrder is the order of the acquisitions in a gp_hedge portfolio.
var hedgeOrder = [...]string{EI, PI, LCB}

func acquisitionFor(name string, conf Config) acquisition {
	switch name {
	case EI:
		return expectedImprovement(conf.Xi)
	case PI:
		return probabilityOfImprovement(conf.Xi)
	case LCB:
		return lowerConfidenceBound(conf.Kappa)
	}
	panic("unreachable: unknown acquisition " + name)
}
