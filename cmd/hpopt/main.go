// Command hpopt searches reservoir hyperparameters on the circle dataset: a gaussian blob
// travelling along a closed curve. Results go to the output directory as a gob artifact and a
// CSV trace, with a checkpoint after every evaluation. An interrupted search continues from its
// checkpoint with --resume.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"github.com/gorgonia/torsk"
	"github.com/gorgonia/torsk/dataset"
	"github.com/gorgonia/torsk/hpopt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func fail(err error) {
	if err != nil {
		zap.S().Fatalf("%+v", err)
	}
}

// circleFrames is the length of the circle experiment: t in [0, 200π) with steps of 0.1.
const circleFrames = 6284

func main() {
	args := struct {
		Params     string   `arg:"help:params.json to start from; defaults are used when empty"`
		Output     string   `arg:"help:directory for results and checkpoints"`
		Calls      int      `arg:"help:number of evaluations"`
		Initial    int      `arg:"help:random evaluations before the surrogate is used"`
		Acq        string   `arg:"help:acquisition function: gp_hedge, EI, PI or LCB"`
		BetaStart  float64  `arg:"help:log10 of the smallest tikhonov beta"`
		BetaStop   float64  `arg:"help:log10 of the largest tikhonov beta"`
		BetaSteps  int      `arg:"help:number of tikhonov betas"`
		Seed       int64    `arg:"help:seed of the search"`
		Resume     string   `arg:"help:checkpoint or result to continue; run with the params and flags of the interrupted search"`
		Addr       string   `arg:"help:serve progress over websocket at this address; empty disables"`
		Production bool     `arg:"help:log as JSON"`
		Set        []string `arg:"positional,help:key value pairs overriding params"`
	}{
		Output:    "hpopt",
		Calls:     50,
		Initial:   10,
		Acq:       hpopt.GPHedge,
		BetaStart: -5,
		BetaStop:  2,
		BetaSteps: 20,
		Seed:      1337,
	}
	arg.MustParse(&args)

	logger, err := newLogger(args.Production)
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
	log.Infow("params", "params", params.String())

	images := dataset.GaussBlobSequence(
		dataset.CircleCenters(circleFrames, 0.1, 0.25, 1),
		params.Sigma, params.InputShape[0], params.InputShape[1])
	dsConf, err := params.DatasetConfig()
	fail(err)
	ds, err := dataset.NewImageDataset(images, dsConf)
	fail(err)
	loader, err := dataset.NewLoader(ds, params.Seed)
	fail(err)
	log.Infow("circle dataset", "frames", humanize.Comma(circleFrames), "episodes", humanize.Comma(int64(ds.Len())), "features", ds.Pipeline().Width())

	space := hpopt.Space{
		{Name: "spectral_radius", Kind: hpopt.Real, Low: 0.5, High: 2.0},
		{Name: "in_weight_init", Kind: hpopt.Real, Low: 0.0, High: 2.0},
		{Name: "in_bias_init", Kind: hpopt.Real, Low: 0.0, High: 2.0},
	}
	betas := torsk.LogBetas(args.BetaStart, args.BetaStop, args.BetaSteps)
	fitness, err := torsk.NewFitness(space, loader, params, betas)
	fail(err)

	fail(os.MkdirAll(args.Output, 0755))
	fail(params.Save(filepath.Join(args.Output, "params.json")))
	checkpoint, err := hpopt.CheckpointSaver(args.Output)
	fail(err)

	conf := hpopt.DefaultConfig()
	conf.Calls = args.Calls
	conf.InitialPoints = args.Initial
	conf.Acq = args.Acq
	conf.Seed = args.Seed
	conf.X0 = [][]float64{{params.SpectralRadius, params.InWeightInit, params.InBiasInit}}
	conf.Callbacks = []hpopt.Callback{checkpoint}
	conf.Logger = log

	if args.Addr != "" {
		prog := NewProgress(conf.Calls, log)
		conf.Callbacks = append(conf.Callbacks, prog.Callback)
		go func(h http.Handler) {
			mux := http.NewServeMux()
			mux.Handle("/ws", h)
			log.Infow("serving progress", "url", "ws://"+args.Addr+"/ws")
			if err := http.ListenAndServe(args.Addr, mux); err != nil {
				log.Errorw("progress server stopped", "err", err)
			}
		}(prog)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	var result, recorded *hpopt.Result
	if args.Resume != "" {
		recorded, err = hpopt.Load(args.Resume)
		fail(err)
		log.Infow("resuming", "file", args.Resume, "evaluations", len(recorded.Xs), "best", recorded.Fun)
		result, err = hpopt.Resume(ctx, fitness.Loss, space, recorded, conf)
	} else {
		result, err = hpopt.Minimize(ctx, fitness.Loss, space, conf)
	}
	if result == nil {
		fail(err)
	}
	if err != nil {
		log.Warnw("search stopped early", "evaluations", len(result.Xs), "err", err)
	}
	log.Infow("search done", "evaluations", len(result.Xs), "took", time.Since(start).Round(time.Second).String())

	report(os.Stdout, result)
	fail(save(args.Output, result))
}

func newLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func report(w io.Writer, res *hpopt.Result) {
	fmt.Fprintf(w, "\n\nBest parameters:\n")
	for i, name := range res.Space.Names() {
		if i < len(res.X) {
			fmt.Fprintf(w, "\t%v\t%v\n", name, res.X[i])
		}
	}
	fmt.Fprintf(w, "With loss: %v\n\n", res.Fun)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "loss\t%v\n", strings.Join(res.Space.Names(), "\t"))
	for _, e := range res.Sorted() {
		fmt.Fprintf(tw, "%v", e.Loss)
		for _, v := range e.X {
			fmt.Fprintf(tw, "\t%.4f", v)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

// save dumps the result and its CSV trace next to each other.
func save(dir string, res *hpopt.Result) (err error) {
	filename, err := res.Dump(dir)
	if err != nil {
		return err
	}
	trace := strings.TrimSuffix(filename, ".gob") + ".csv"
	f, err := os.Create(trace)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	err = res.WriteCSV(f)

	if fi, statErr := os.Stat(filename); statErr == nil {
		zap.S().Infow("saved result", "file", filename, "size", humanize.Bytes(uint64(fi.Size())), "trace", trace)
	}
	return err
}
