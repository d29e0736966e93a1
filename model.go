// Package torsk evaluates reservoir computing models on windowed image sequences.
//
// A Fitness turns a point of a hyperparameter space into a loss: it builds a model from the
// point, fits its readout for a sweep of ridge penalties on one episode, forecasts the
// prediction window in closed loop and keeps the smallest mean squared error.
package torsk

import (
	"github.com/gorgonia/torsk/dataset"
	"github.com/gorgonia/torsk/esn"
	"github.com/gorgonia/torsk/internal/dense"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Model is a sequence model with a linear readout fitted by ridge regression.
type Model interface {
	// Fit drives the model with inputs and fits the readout to labels with penalty beta.
	Fit(inputs, labels *tensor.Dense, beta float64) error
	// Predict forecasts steps steps in closed loop, starting with the input initial.
	Predict(initial *tensor.Dense, steps int) (*tensor.Dense, error)
}

// ModelBuilder builds a model for feature vectors of the given width.
type ModelBuilder func(p Params, features int) (Model, error)

// NewESN builds an echo state network.
func NewESN(p Params, features int) (Model, error) {
	m, err := esn.New(p.ESNConfig(features))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// lastRow returns the last step of a (T, F) sequence as a (1, F) tensor.
func lastRow(a *tensor.Dense) (*tensor.Dense, error) {
	t := a.Shape()[0]
	var s dense.Slicer
	row := s.Rows(a, t-1, t)
	return row, s.Err()
}

// TrainPredict fits the model on episode index of src with penalty beta and forecasts its
// prediction window, starting from the last label.
func TrainPredict(model Model, src dataset.Source, index int, beta float64) (outputs, predLabels *tensor.Dense, err error) {
	ep, err := src.Get(index)
	if err != nil {
		return nil, nil, err
	}
	if err = model.Fit(ep.Inputs, ep.Labels, beta); err != nil {
		return nil, nil, errors.WithMessage(err, "fitting readout")
	}
	initial, err := lastRow(ep.Labels)
	if err != nil {
		return nil, nil, err
	}
	if outputs, err = model.Predict(initial, ep.PredLabels.Shape()[0]); err != nil {
		return nil, nil, errors.WithMessage(err, "predicting")
	}
	return outputs, ep.PredLabels, nil
}
