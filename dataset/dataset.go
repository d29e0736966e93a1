// Package dataset windows long sequences into training episodes.
//
// A window of train_length + pred_length + 1 consecutive frames starting at index i yields
// the inputs (frames [0, train_length)), the one-step-ahead labels (frames [1, train_length+1))
// and the prediction labels (the pred_length frames that follow).
package dataset

import (
	"github.com/gorgonia/torsk/feature"
	"github.com/gorgonia/torsk/internal/dense"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// ErrIndexOutOfRange is returned when a window index is outside [0, Len()).
var ErrIndexOutOfRange = errors.New("dataset index out of range")

// Episode is one window of a sequence, split for training and forecasting.
type Episode struct {
	Inputs     *tensor.Dense // (train_length, F)
	Labels     *tensor.Dense // (train_length, F), one step ahead of Inputs
	PredLabels *tensor.Dense // (pred_length, F)

	// Images is the raw window the features were computed from. It is nil for scalar datasets.
	Images *tensor.Dense
}

// Source is anything that hands out episodes by index.
type Source interface {
	Len() int
	Get(index int) (Episode, error)
}

// Config configures an ImageDataset.
type Config struct {
	TrainLength int
	PredLength  int
	Specs       feature.Specs
	Dtype       tensor.Dtype // defaults to Float64
	Seed        int64        // seeds random feature specs
}

func (conf Config) IsValid() bool {
	return conf.TrainLength >= 1 &&
		conf.PredLength >= 1 &&
		len(conf.Specs) > 0
}

// nrSequences is the number of windows of a sequence of length n. It is never negative.
func nrSequences(n, trainLength, predLength int) int {
	if retVal := n - trainLength - predLength; retVal > 0 {
		return retVal
	}
	return 0
}

// split splits a window into inputs, labels and prediction labels.
func split(s *dense.Slicer, window *tensor.Dense, trainLength, predLength int) (inputs, labels, predLabels *tensor.Dense) {
	inputs = s.Rows(window, 0, trainLength)
	labels = s.Rows(window, 1, trainLength+1)
	predLabels = s.Rows(window, trainLength+1, trainLength+1+predLength)
	return
}

// ImageDataset is a randomly indexable view of an image sequence as episodes.
type ImageDataset struct {
	images      *tensor.Dense
	trainLength int
	predLength  int
	nrSequences int

	pipeline *feature.Pipeline
	logger   *zap.SugaredLogger
}

// Opt configures a dataset.
type Opt func(*options)

type options struct {
	logger     *zap.SugaredLogger
	normalizer Normalizer
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Opt { return func(o *options) { o.logger = l } }

// WithNormalizer sets the normalization of scalar sequences. MinMax is the default.
func WithNormalizer(n Normalizer) Opt { return func(o *options) { o.normalizer = n } }

func makeOptions(opts []Opt) options {
	o := options{logger: zap.S(), normalizer: MinMax}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewImageDataset creates a dataset over a (T, H, W) image sequence. The images are borrowed,
// unless their dtype differs from the configured one, in which case a converted copy is kept.
func NewImageDataset(images *tensor.Dense, conf Config, opts ...Opt) (*ImageDataset, error) {
	o := makeOptions(opts)
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid dataset config: train length %d, pred length %d, %d feature specs", conf.TrainLength, conf.PredLength, len(conf.Specs))
	}
	shp := images.Shape()
	if shp.Dims() != 3 {
		return nil, errors.Errorf("expected a (T, H, W) image sequence, got shape %v", shp)
	}
	dt := conf.Dtype
	if dt == (tensor.Dtype{}) {
		dt = tensor.Float64
	}

	pipeline, err := feature.NewPipeline(conf.Specs, [2]int{shp[1], shp[2]},
		feature.WithDtype(dt),
		feature.WithSeed(conf.Seed),
		feature.WithLogger(o.logger))
	if err != nil {
		return nil, errors.WithMessage(err, "building feature pipeline")
	}
	if images, err = pipeline.Cast(images); err != nil {
		return nil, err
	}

	ds := &ImageDataset{
		images:      images,
		trainLength: conf.TrainLength,
		predLength:  conf.PredLength,
		nrSequences: nrSequences(shp[0], conf.TrainLength, conf.PredLength),
		pipeline:    pipeline,
		logger:      o.logger,
	}
	if ds.nrSequences == 0 {
		ds.logger.Warnw("image sequence too short for a single episode", "frames", shp[0], "train_length", conf.TrainLength, "pred_length", conf.PredLength)
	}
	return ds, nil
}

// Len is the number of windows.
func (ds *ImageDataset) Len() int { return ds.nrSequences }

// Pipeline returns the feature pipeline of the dataset.
func (ds *ImageDataset) Pipeline() *feature.Pipeline { return ds.pipeline }

// TrainLength returns the number of training steps per episode.
func (ds *ImageDataset) TrainLength() int { return ds.trainLength }

// PredLength returns the number of forecast steps per episode.
func (ds *ImageDataset) PredLength() int { return ds.predLength }

func (ds *ImageDataset) window(index int) (*tensor.Dense, error) {
	if index < 0 || index >= ds.nrSequences {
		ds.logger.Debugw("episode index out of range", "index", index, "len", ds.nrSequences)
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", index, ds.nrSequences)
	}
	var s dense.Slicer
	window := s.Rows(ds.images, index, index+ds.trainLength+ds.predLength+1)
	return window, s.Err()
}

// Get computes the features of window index and splits them into an episode.
func (ds *ImageDataset) Get(index int) (Episode, error) {
	images, err := ds.window(index)
	if err != nil {
		return Episode{}, err
	}
	features, err := ds.pipeline.ToFeatures(images)
	if err != nil {
		return Episode{}, err
	}

	var s dense.Slicer
	inputs, labels, predLabels := split(&s, features, ds.trainLength, ds.predLength)
	if err = s.Err(); err != nil {
		return Episode{}, err
	}
	return Episode{
		Inputs:     inputs,
		Labels:     labels,
		PredLabels: predLabels,
		Images:     images,
	}, nil
}

// RawEpisode is like Get, but returns the raw frames instead of features.
func (ds *ImageDataset) RawEpisode(index int) (inputs, labels, predLabels *tensor.Dense, err error) {
	images, err := ds.window(index)
	if err != nil {
		return nil, nil, nil, err
	}
	var s dense.Slicer
	inputs, labels, predLabels = split(&s, images, ds.trainLength, ds.predLength)
	return inputs, labels, predLabels, s.Err()
}

// ToImages maps (predicted) features back to images.
func (ds *ImageDataset) ToImages(features *tensor.Dense) (*tensor.Dense, error) {
	return ds.pipeline.ToImages(features)
}
