package main

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// tracePlot plots feature offset of two (T, stride) sequences over the forecast steps.
func tracePlot(filename, title string, truth, predicted []float64, stride, offset int) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.X.Label.Text = "step"

	steps := len(truth) / stride
	real := make(plotter.XYs, steps)
	pred := make(plotter.XYs, steps)
	for i := 0; i < steps; i++ {
		real[i] = plotter.XY{X: float64(i), Y: truth[i*stride+offset]}
		pred[i] = plotter.XY{X: float64(i), Y: predicted[i*stride+offset]}
	}
	if err := plotutil.AddLines(p, "real", real, "predicted", pred); err != nil {
		return err
	}
	p.Add(plotter.NewGrid())
	return p.Save(8*vg.Inch, 4*vg.Inch, filename)
}
