package esn

// Config configures an echo state network.
type Config struct {
	InputSize  int // features per input step
	OutputSize int // features per output step; must equal InputSize to forecast in closed loop
	HiddenSize int // reservoir size

	SpectralRadius float64 // spectral radius of the reservoir matrix
	Density        float64 // fraction of non zero reservoir weights
	InWeightInit   float64 // input weights are uniform in [-InWeightInit, InWeightInit]
	InBiasInit     float64 // input biases are uniform in [-InBiasInit, InBiasInit]

	TransientLength int // states discarded before fitting the readout
	Seed            int64
}

// DefaultConf returns a config for features of the given size.
func DefaultConf(features, hiddenSize int) Config {
	return Config{
		InputSize:  features,
		OutputSize: features,
		HiddenSize: hiddenSize,

		SpectralRadius: 1.0,
		Density:        0.01,
		InWeightInit:   1.0,
		InBiasInit:     1.0,

		TransientLength: 10,
		Seed:            1337,
	}
}

func (conf Config) IsValid() bool {
	return conf.InputSize >= 1 &&
		conf.OutputSize >= 1 &&
		conf.HiddenSize >= 1 &&
		conf.SpectralRadius >= 0 &&
		conf.Density > 0 && conf.Density <= 1 &&
		conf.InWeightInit >= 0 &&
		conf.InBiasInit >= 0 &&
		conf.TransientLength >= 0
}
