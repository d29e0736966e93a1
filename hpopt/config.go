package hpopt

import "go.uber.org/zap"

// Acquisition function names.
const (
	GPHedge = "gp_hedge" // probabilistic choice among EI, PI and LCB
	EI      = "EI"       // expected improvement
	PI      = "PI"       // probability of improvement
	LCB     = "LCB"      // lower confidence bound
)

// Callback is called after every evaluation with the result so far. A non nil error stops the search.
type Callback func(res *Result) error

// Config configures a search.
type Config struct {
	Calls         int // total number of evaluations, including X0
	InitialPoints int // random evaluations (after X0) before the surrogate is used
	Candidates    int // candidate points scored by the acquisition function per step

	Acq   string
	Xi    float64 // exploration margin of EI and PI
	Kappa float64 // exploration weight of LCB

	Seed int64

	// X0 are points evaluated before anything else.
	X0        [][]float64
	Callbacks []Callback

	Logger *zap.SugaredLogger
}

// DefaultConfig returns the configuration used by the circle experiments.
func DefaultConfig() Config {
	return Config{
		Calls:         50,
		InitialPoints: 10,
		Candidates:    2000,

		Acq:   GPHedge,
		Xi:    0.01,
		Kappa: 1.96,

		Seed: 1337,
	}
}

func (conf Config) IsValid() bool {
	switch conf.Acq {
	case GPHedge, EI, PI, LCB:
	default:
		return false
	}
	return conf.Calls >= 1 &&
		conf.InitialPoints >= 0 &&
		conf.Candidates >= 1 &&
		conf.Xi >= 0 &&
		conf.Kappa >= 0
}

func (conf Config) logger() *zap.SugaredLogger {
	if conf.Logger != nil {
		return conf.Logger
	}
	return zap.S()
}
