package feature

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Spec type tags as they appear in the declared records.
const (
	PixelsType        = "pixels"
	DCTType           = "dct"
	ConvType          = "conv"
	RandomWeightsType = "random_weights"
)

// Spec is one feature extraction transform and its parameters.
// The set of variants is closed: PixelSpec, DCTSpec, ConvSpec and RandomWeightsSpec.
type Spec interface {
	// Type is the tag of the spec.
	Type() string

	// Shape is the per-frame output shape, given the (H, W) of the input frames.
	// It fails when the parameters cannot be applied to frames of that size.
	Shape(in [2]int) ([]int, error)

	isSpec()
}

// KernelType is a convolution kernel family.
type KernelType string

const (
	RandomKernel KernelType = "random"
	GaussKernel  KernelType = "gauss"
	MeanKernel   KernelType = "mean"
)

// PixelSpec resamples every frame to Size and uses the pixels as features.
type PixelSpec struct {
	Size       [2]int
	InputScale float64
}

// DCTSpec keeps the low frequency Size window of the 2D DCT of every frame.
type DCTSpec struct {
	Size       [2]int
	InputScale float64
}

// ConvSpec correlates every frame with a kernel of Size.
type ConvSpec struct {
	Size       [2]int
	KernelType KernelType
	Stride     int
	Padding    int
	InputScale float64
}

// RandomWeightsSpec projects every flattened frame with a fixed random matrix to Size features.
type RandomWeightsSpec struct {
	Size        int
	WeightScale float64
}

func (PixelSpec) Type() string         { return PixelsType }
func (DCTSpec) Type() string           { return DCTType }
func (ConvSpec) Type() string          { return ConvType }
func (RandomWeightsSpec) Type() string { return RandomWeightsType }

func (PixelSpec) isSpec()         {}
func (DCTSpec) isSpec()           {}
func (ConvSpec) isSpec()          {}
func (RandomWeightsSpec) isSpec() {}

func (s PixelSpec) Shape(in [2]int) ([]int, error) {
	if s.Size[0] < 1 || s.Size[1] < 1 {
		return nil, errors.Errorf("pixels: invalid size %v", s.Size)
	}
	return []int{s.Size[0], s.Size[1]}, nil
}

func (s DCTSpec) Shape(in [2]int) ([]int, error) {
	if s.Size[0] < 1 || s.Size[1] < 1 {
		return nil, errors.Errorf("dct: invalid size %v", s.Size)
	}
	if s.Size[0] > in[0] || s.Size[1] > in[1] {
		return nil, errors.Errorf("dct: size %v exceeds input shape %v", s.Size, in)
	}
	return []int{s.Size[0], s.Size[1]}, nil
}

// Shape follows the usual convolution output size: (in + 2*padding - kernel)/stride + 1.
func (s ConvSpec) Shape(in [2]int) ([]int, error) {
	if s.Size[0] < 1 || s.Size[1] < 1 {
		return nil, errors.Errorf("conv: invalid kernel size %v", s.Size)
	}
	if s.Stride < 1 || s.Padding < 0 {
		return nil, errors.Errorf("conv: invalid stride %d or padding %d", s.Stride, s.Padding)
	}
	retVal := make([]int, 2)
	for i := range retVal {
		span := in[i] + 2*s.Padding - s.Size[i]
		if span < 0 {
			return nil, errors.Errorf("conv: kernel %v does not fit input %v with padding %d", s.Size, in, s.Padding)
		}
		retVal[i] = span/s.Stride + 1
	}
	return retVal, nil
}

func (s RandomWeightsSpec) Shape(in [2]int) ([]int, error) {
	if s.Size < 1 {
		return nil, errors.Errorf("random_weights: invalid size %d", s.Size)
	}
	return []int{s.Size}, nil
}

// Width is the number of features a spec produces per frame.
func Width(s Spec, in [2]int) (int, error) {
	shp, err := s.Shape(in)
	if err != nil {
		return 0, err
	}
	retVal := 1
	for _, d := range shp {
		retVal *= d
	}
	return retVal, nil
}

func inputScale(s Spec) float64 {
	switch s := s.(type) {
	case PixelSpec:
		return s.InputScale
	case DCTSpec:
		return s.InputScale
	case ConvSpec:
		return s.InputScale
	}
	return 1
}

// Specs is an ordered list of specs. The order is the concatenation order of the feature blocks.
type Specs []Spec

// Types lists the type tags in order.
func (specs Specs) Types() []string {
	retVal := make([]string, len(specs))
	for i, s := range specs {
		retVal[i] = s.Type()
	}
	return retVal
}

// record is the declared form of a spec. Fields that a type does not use are ignored.
type record struct {
	Type        string   `json:"type"`
	Size        []int    `json:"size,omitempty"`
	InputScale  *float64 `json:"input_scale,omitempty"`
	KernelType  string   `json:"kernel_type,omitempty"`
	Stride      *int     `json:"stride,omitempty"`
	Padding     *int     `json:"padding,omitempty"`
	WeightScale *float64 `json:"weight_scale,omitempty"`
}

func (r record) size2() ([2]int, error) {
	if len(r.Size) != 2 {
		return [2]int{}, errors.Errorf("%s: size must have 2 entries, got %v", r.Type, r.Size)
	}
	return [2]int{r.Size[0], r.Size[1]}, nil
}

func orOne(f *float64) float64 {
	if f == nil {
		return 1
	}
	return *f
}

func (r record) spec() (Spec, error) {
	switch r.Type {
	case PixelsType:
		size, err := r.size2()
		if err != nil {
			return nil, err
		}
		return PixelSpec{Size: size, InputScale: orOne(r.InputScale)}, nil
	case DCTType:
		size, err := r.size2()
		if err != nil {
			return nil, err
		}
		return DCTSpec{Size: size, InputScale: orOne(r.InputScale)}, nil
	case ConvType:
		size, err := r.size2()
		if err != nil {
			return nil, err
		}
		kt, err := parseKernelType(r.KernelType)
		if err != nil {
			return nil, err
		}
		s := ConvSpec{Size: size, KernelType: kt, Stride: 1, InputScale: orOne(r.InputScale)}
		if r.Stride != nil {
			s.Stride = *r.Stride
		}
		if r.Padding != nil {
			s.Padding = *r.Padding
		}
		return s, nil
	case RandomWeightsType:
		if len(r.Size) != 1 {
			return nil, errors.Errorf("random_weights: size must have 1 entry, got %v", r.Size)
		}
		return RandomWeightsSpec{Size: r.Size[0], WeightScale: orOne(r.WeightScale)}, nil
	case "":
		return nil, errors.Wrap(ErrUnknownSpec, "missing type")
	}
	return nil, errors.Wrapf(ErrUnknownSpec, "type %q", r.Type)
}

func parseKernelType(s string) (KernelType, error) {
	switch s {
	case "random":
		return RandomKernel, nil
	case "gauss", "gaussian":
		return GaussKernel, nil
	case "mean":
		return MeanKernel, nil
	case "":
		return "", errors.New("conv: missing kernel_type")
	}
	return "", errors.Errorf("conv: unknown kernel_type %q", s)
}

func toRecord(s Spec) record {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	switch s := s.(type) {
	case PixelSpec:
		return record{Type: PixelsType, Size: s.Size[:], InputScale: f(s.InputScale)}
	case DCTSpec:
		return record{Type: DCTType, Size: s.Size[:], InputScale: f(s.InputScale)}
	case ConvSpec:
		return record{Type: ConvType, Size: s.Size[:], KernelType: string(s.KernelType), Stride: i(s.Stride), Padding: i(s.Padding), InputScale: f(s.InputScale)}
	case RandomWeightsSpec:
		return record{Type: RandomWeightsType, Size: []int{s.Size}, WeightScale: f(s.WeightScale)}
	}
	panic(fmt.Sprintf("unreachable: %T", s))
}

// ParseSpecs decodes a JSON list of spec records.
func ParseSpecs(p []byte) (Specs, error) {
	var specs Specs
	if err := json.Unmarshal(p, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// UnmarshalJSON decodes a list of records like {"type": "conv", "size": [5, 5], "kernel_type": "gauss"}.
func (specs *Specs) UnmarshalJSON(p []byte) error {
	var records []record
	if err := json.Unmarshal(p, &records); err != nil {
		return errors.WithStack(err)
	}
	retVal := make(Specs, 0, len(records))
	for i, r := range records {
		s, err := r.spec()
		if err != nil {
			return errors.WithMessagef(err, "feature spec %d", i)
		}
		retVal = append(retVal, s)
	}
	*specs = retVal
	return nil
}

func (specs Specs) MarshalJSON() ([]byte, error) {
	records := make([]record, len(specs))
	for i, s := range specs {
		records[i] = toRecord(s)
	}
	return json.Marshal(records)
}
