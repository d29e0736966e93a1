package dataset

import (
	"github.com/gorgonia/torsk/internal/dense"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// Normalizer rescales a sequence in place.
type Normalizer func(seq []float64)

// MinMax maps a sequence onto [0, 1]. Constant sequences become all zeros.
func MinMax(seq []float64) {
	if len(seq) == 0 {
		return
	}
	lo, hi := floats.Min(seq), floats.Max(seq)
	floats.AddConst(-lo, seq)
	if hi > lo {
		floats.Scale(1/(hi-lo), seq)
	}
}

// ZScore maps a sequence to zero mean and unit variance. Constant sequences become all zeros.
func ZScore(seq []float64) {
	if len(seq) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(seq, nil)
	floats.AddConst(-mean, seq)
	if std > 0 {
		floats.Scale(1/std, seq)
	}
}

// ScalarDataset windows a normalized 1-D sequence. Each value is its own single feature.
type ScalarDataset struct {
	seq         *tensor.Dense // (T, 1)
	trainLength int
	predLength  int
	nrSequences int
}

// NewScalarDataset copies and normalizes seq.
func NewScalarDataset(seq []float64, trainLength, predLength int, opts ...Opt) (*ScalarDataset, error) {
	o := makeOptions(opts)
	if trainLength < 1 || predLength < 1 {
		return nil, errors.Errorf("invalid train length %d or pred length %d", trainLength, predLength)
	}
	if len(seq) == 0 {
		return nil, errors.New("empty sequence")
	}
	normalized := make([]float64, len(seq))
	copy(normalized, seq)
	o.normalizer(normalized)

	return &ScalarDataset{
		seq:         tensor.New(tensor.WithShape(len(seq), 1), tensor.WithBacking(normalized)),
		trainLength: trainLength,
		predLength:  predLength,
		nrSequences: nrSequences(len(seq), trainLength, predLength),
	}, nil
}

// Len is the number of windows.
func (ds *ScalarDataset) Len() int { return ds.nrSequences }

// Get returns the episode of window index.
func (ds *ScalarDataset) Get(index int) (Episode, error) {
	if index < 0 || index >= ds.nrSequences {
		return Episode{}, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", index, ds.nrSequences)
	}
	var s dense.Slicer
	window := s.Rows(ds.seq, index, index+ds.trainLength+ds.predLength+1)
	inputs, labels, predLabels := split(&s, window, ds.trainLength, ds.predLength)
	if err := s.Err(); err != nil {
		return Episode{}, err
	}
	return Episode{Inputs: inputs, Labels: labels, PredLabels: predLabels}, nil
}
