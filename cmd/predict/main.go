// Command predict trains a reservoir on one episode and forecasts its prediction window.
// On the circle dataset the forecast is animated next to the real frames, as a gif and
// optionally as a live motion jpeg stream. On the Mackey-Glass series the error is reported.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"github.com/gorgonia/torsk"
	"github.com/gorgonia/torsk/dataset"
	"github.com/gorgonia/torsk/encoding"
	"github.com/gorgonia/torsk/encoding/gif"
	"github.com/gorgonia/torsk/encoding/mjpeg"
	"github.com/gorgonia/torsk/internal/dense"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

func fail(err error) {
	if err != nil {
		zap.S().Fatalf("%+v", err)
	}
}

const (
	circleFrames = 6284
	mackeyFrames = 5000
)

func main() {
	args := struct {
		Params     string   `arg:"help:params.json to start from; defaults are used when empty"`
		Data       string   `arg:"help:circle or mackey"`
		Index      int      `arg:"help:episode to train on"`
		Beta       float64  `arg:"help:tikhonov beta; the beta of the params when negative"`
		Gif        string   `arg:"help:write the animation to this file; empty disables"`
		Dot        string   `arg:"help:write the feature pipeline as graphviz to this file"`
		Plot       string   `arg:"help:plot the forecast of one pixel (or the scalar series) to this png"`
		Pixel      []int    `arg:"help:row and column of the plotted pixel"`
		Scale      int      `arg:"help:upscaling of the animation"`
		Addr       string   `arg:"help:stream the animation as motion jpeg at this address; empty disables"`
		Production bool     `arg:"help:log as JSON"`
		Set        []string `arg:"positional,help:key value pairs overriding params"`
	}{
		Data:  "circle",
		Beta:  -1,
		Gif:   "prediction.gif",
		Scale: 8,
		Pixel: []int{5, 5},
	}
	arg.MustParse(&args)

	var logger *zap.Logger
	var err error
	if args.Production {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()
	log := logger.Sugar()

	params := torsk.DefaultParams()
	if args.Params != "" {
		params, err = torsk.LoadParams(args.Params)
		fail(err)
	}
	fail(params.Update(args.Set))
	fail(params.Validate())
	beta := params.TikhonovBeta
	if args.Beta >= 0 {
		beta = args.Beta
	}
	log.Infow("params", "params", params.String(), "beta", beta)

	switch args.Data {
	case "mackey":
		seq, err := dataset.MackeyGlass(mackeyFrames, 17, 0.1, 10)
		fail(err)
		ds, err := dataset.NewScalarDataset(seq, params.TrainLength, params.PredLength)
		fail(err)
		model, err := torsk.NewESN(params, 1)
		fail(err)
		outputs, predLabels, err := torsk.TrainPredict(model, ds, args.Index, beta)
		fail(err)
		log.Infow("forecast", "mse", mse(outputs, predLabels), "steps", params.PredLength)
		if args.Plot != "" {
			fail(tracePlot(args.Plot, "Mackey-Glass", floats64(predLabels), floats64(outputs), 1, 0))
		}

	case "circle":
		images := dataset.GaussBlobSequence(
			dataset.CircleCenters(circleFrames, 0.1, 0.3, 1),
			params.Sigma, params.InputShape[0], params.InputShape[1])
		conf, err := params.DatasetConfig()
		fail(err)
		ds, err := dataset.NewImageDataset(images, conf)
		fail(err)
		if args.Dot != "" {
			dot, err := ds.Pipeline().ToDot()
			fail(err)
			fail(os.WriteFile(args.Dot, []byte(dot), 0644))
		}

		log.Infow("training", "episode", args.Index, "of", humanize.Comma(int64(ds.Len())), "features", ds.Pipeline().Width())
		model, err := torsk.NewESN(params, ds.Pipeline().Width())
		fail(err)
		outputs, predLabels, err := torsk.TrainPredict(model, ds, args.Index, beta)
		fail(err)
		log.Infow("forecast", "mse", mse(outputs, predLabels), "steps", params.PredLength)

		truth, err := ds.ToImages(predLabels)
		fail(err)
		predicted, err := ds.ToImages(outputs)
		fail(err)
		if args.Plot != "" {
			if len(args.Pixel) != 2 {
				fail(errors.Errorf("expected a row and a column, got %v", args.Pixel))
			}
			shp := truth.Shape()
			y, x := args.Pixel[0], args.Pixel[1]
			if y < 0 || y >= shp[1] || x < 0 || x >= shp[2] {
				fail(errors.Errorf("pixel %v is outside the %v frames", args.Pixel, shp[1:]))
			}
			title := fmt.Sprintf("pixel (%d, %d)", y, x)
			fail(tracePlot(args.Plot, title, floats64(truth), floats64(predicted), shp[1]*shp[2], y*shp[2]+x))
		}
		frames, err := encoding.Frames(truth, predicted, fmt.Sprintf("episode %d, beta %g", args.Index, beta))
		fail(err)

		if args.Gif != "" {
			fail(writeGif(args.Gif, args.Scale, frames))
			log.Infow("wrote animation", "file", args.Gif, "frames", len(frames))
		}
		if args.Addr != "" {
			stream(args.Addr, args.Scale, frames, log)
		}

	default:
		fail(errors.Errorf("unknown data %q", args.Data))
	}
}

func floats64(a *tensor.Dense) []float64 {
	retVal, err := dense.Float64s(a)
	fail(err)
	return retVal
}

func mse(outputs, labels *tensor.Dense) float64 {
	got, want := floats64(outputs), floats64(labels)
	d := floats.Distance(got, want, 2)
	return d * d / float64(len(want))
}

func writeGif(filename string, scale int, frames []encoding.Frame) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return encoding.EncodeAll(gif.NewEncoder(f, scale), frames)
}

// stream loops the animation over motion jpeg until interrupted.
func stream(addr string, scale int, frames []encoding.Frame, log *zap.SugaredLogger) {
	enc := mjpeg.NewEncoder(scale, log)
	mux := http.NewServeMux()
	mux.Handle("/stream", enc)
	mux.Handle("/snapshot", enc.SnapshotHandler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Infow("streaming", "url", "http://"+addr+"/stream")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("stream server stopped", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i = (i + 1) % len(frames) {
		select {
		case <-ctx.Done():
			srv.Close()
			return
		case <-tick.C:
			if err := enc.Encode(frames[i]); err != nil {
				log.Warnw("frame dropped", "err", err)
			}
		}
	}
}
