package torsk

import (
	"encoding/json"
	"os"
	"reflect"
	"strings"

	"github.com/gorgonia/torsk/dataset"
	"github.com/gorgonia/torsk/esn"
	"github.com/gorgonia/torsk/feature"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrUnknownParam is returned when setting a parameter that does not exist.
var ErrUnknownParam = errors.New("unknown parameter")

// Params are the parameters of an experiment, as stored in params.json.
type Params struct {
	InputShape   [2]int        `json:"input_shape"`
	FeatureSpecs feature.Specs `json:"feature_specs"`

	HiddenSize     int     `json:"hidden_size"`
	SpectralRadius float64 `json:"spectral_radius"`
	Density        float64 `json:"density"`
	InWeightInit   float64 `json:"in_weight_init"`
	InBiasInit     float64 `json:"in_bias_init"`

	TrainLength     int     `json:"train_length"`
	PredLength      int     `json:"pred_length"`
	TransientLength int     `json:"transient_length"`
	TikhonovBeta    float64 `json:"tikhonov_beta"`

	Dtype string  `json:"dtype"`
	Sigma float64 `json:"sigma"` // width of the synthetic gaussian blobs
	Seed  int64   `json:"seed"`
	Debug bool    `json:"debug"`
}

// DefaultParams returns the parameters of the circle experiment.
func DefaultParams() Params {
	return Params{
		InputShape: [2]int{30, 30},
		FeatureSpecs: feature.Specs{
			feature.PixelSpec{Size: [2]int{20, 20}, InputScale: 1},
		},

		HiddenSize:     1000,
		SpectralRadius: 1.0,
		Density:        0.01,
		InWeightInit:   1.0,
		InBiasInit:     1.0,

		TrainLength:     2000,
		PredLength:      300,
		TransientLength: 200,
		TikhonovBeta:    0.01,

		Dtype: "float64",
		Sigma: 0.5,
		Seed:  1337,
	}
}

// LoadParams reads params from a JSON file. Keys absent from the file keep their default values.
func LoadParams(filename string) (Params, error) {
	p := DefaultParams()
	f, err := os.Open(filename)
	if err != nil {
		return p, errors.WithStack(err)
	}
	defer f.Close()

	if err = json.NewDecoder(f).Decode(&p); err != nil {
		return p, errors.Wrapf(err, "decoding %v", filename)
	}
	return p, p.Validate()
}

// Save writes the params to filename as indented JSON.
func (p Params) Save(filename string) error {
	bs, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(filename, bs, 0644))
}

func (p Params) String() string {
	bs, err := json.Marshal(p)
	if err != nil {
		return err.Error()
	}
	return string(bs)
}

// TensorDtype is the tensor dtype named by Dtype.
func (p Params) TensorDtype() (tensor.Dtype, error) {
	switch p.Dtype {
	case "float64", "":
		return tensor.Float64, nil
	case "float32":
		return tensor.Float32, nil
	}
	return tensor.Dtype{}, errors.Errorf("unsupported dtype %q", p.Dtype)
}

// Validate checks the params for consistency.
func (p Params) Validate() error {
	if p.InputShape[0] < 1 || p.InputShape[1] < 1 {
		return errors.Errorf("input_shape %v must be positive", p.InputShape)
	}
	if len(p.FeatureSpecs) == 0 {
		return errors.New("no feature_specs")
	}
	for i, s := range p.FeatureSpecs {
		if _, err := feature.Width(s, p.InputShape); err != nil {
			return errors.WithMessagef(err, "feature_specs[%d]", i)
		}
	}
	if _, err := p.TensorDtype(); err != nil {
		return err
	}
	if p.TrainLength < 1 || p.PredLength < 1 {
		return errors.Errorf("train_length %d and pred_length %d must be positive", p.TrainLength, p.PredLength)
	}
	if p.TransientLength < 0 || p.TransientLength >= p.TrainLength {
		return errors.Errorf("transient_length %d must be in [0, train_length %d)", p.TransientLength, p.TrainLength)
	}
	if p.TikhonovBeta < 0 {
		return errors.Errorf("negative tikhonov_beta %v", p.TikhonovBeta)
	}
	if p.Sigma <= 0 {
		return errors.Errorf("sigma %v must be positive", p.Sigma)
	}
	if conf := p.ESNConfig(1); !conf.IsValid() {
		return errors.Errorf("invalid reservoir params %+v", conf)
	}
	return nil
}

// ESNConfig is the reservoir configuration for feature vectors of the given width.
func (p Params) ESNConfig(features int) esn.Config {
	return esn.Config{
		InputSize:       features,
		OutputSize:      features,
		HiddenSize:      p.HiddenSize,
		SpectralRadius:  p.SpectralRadius,
		Density:         p.Density,
		InWeightInit:    p.InWeightInit,
		InBiasInit:      p.InBiasInit,
		TransientLength: p.TransientLength,
		Seed:            p.Seed,
	}
}

// DatasetConfig is the windowing configuration of an image dataset.
func (p Params) DatasetConfig() (dataset.Config, error) {
	dt, err := p.TensorDtype()
	if err != nil {
		return dataset.Config{}, err
	}
	return dataset.Config{
		TrainLength: p.TrainLength,
		PredLength:  p.PredLength,
		Specs:       p.FeatureSpecs,
		Dtype:       dt,
		Seed:        p.Seed,
	}, nil
}

// field returns the settable field tagged key.
func (p *Params) field(key string) (reflect.Value, error) {
	v := reflect.ValueOf(p).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if tag == key {
			return v.Field(i), nil
		}
	}
	return reflect.Value{}, errors.Wrapf(ErrUnknownParam, "%q", key)
}

// Set parses value as JSON into the parameter named key. String parameters may be given unquoted.
func (p *Params) Set(key, value string) error {
	f, err := p.field(key)
	if err != nil {
		return err
	}
	ptr := reflect.New(f.Type())
	if err := json.Unmarshal([]byte(value), ptr.Interface()); err != nil {
		if f.Kind() != reflect.String {
			return errors.Wrapf(err, "parsing %v=%v", key, value)
		}
		ptr.Elem().SetString(value)
	}
	f.Set(ptr.Elem())
	return nil
}

// SetFloat sets a numeric parameter. Integer parameters only take integral values.
func (p *Params) SetFloat(key string, v float64) error {
	f, err := p.field(key)
	if err != nil {
		return err
	}
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		f.SetFloat(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v != float64(int64(v)) {
			return errors.Errorf("%v is an integer parameter, got %v", key, v)
		}
		f.SetInt(int64(v))
	default:
		return errors.Errorf("%v is not a numeric parameter", key)
	}
	return nil
}

// Update applies key value pairs, as given on the command line.
func (p *Params) Update(args []string) error {
	if len(args)%2 != 0 {
		return errors.Errorf("expected key value pairs, got %d arguments", len(args))
	}
	for i := 0; i < len(args); i += 2 {
		if err := p.Set(args[i], args[i+1]); err != nil {
			return err
		}
	}
	return nil
}
