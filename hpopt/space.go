// Package hpopt minimizes expensive black-box functions over a box of real and integer
// dimensions with a Gaussian-process surrogate.
package hpopt

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Kind is the kind of values a dimension takes.
type Kind byte

const (
	Real Kind = iota
	Integer
)

func (k Kind) String() string {
	switch k {
	case Real:
		return "Real"
	case Integer:
		return "Integer"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Dimension is one named, bounded axis of the search space. Both bounds are inclusive.
type Dimension struct {
	Name      string
	Kind      Kind
	Low, High float64
}

func (d Dimension) String() string {
	return fmt.Sprintf("%v(low=%v, high=%v, name=%q)", d.Kind, d.Low, d.High, d.Name)
}

// Space is an ordered list of dimensions. Points in the space list one value per dimension, in order.
type Space []Dimension

// Validate checks that the space is usable.
func (s Space) Validate() error {
	if len(s) == 0 {
		return errors.New("empty search space")
	}
	seen := make(map[string]bool, len(s))
	for i, d := range s {
		if d.Name == "" {
			return errors.Errorf("dimension %d has no name", i)
		}
		if seen[d.Name] {
			return errors.Errorf("duplicate dimension %q", d.Name)
		}
		seen[d.Name] = true

		if math.IsNaN(d.Low) || math.IsNaN(d.High) || math.IsInf(d.Low, 0) || math.IsInf(d.High, 0) {
			return errors.Errorf("dimension %v has non finite bounds", d)
		}
		switch d.Kind {
		case Real:
			if d.Low >= d.High {
				return errors.Errorf("dimension %v: low must be below high", d)
			}
		case Integer:
			if d.Low != math.Trunc(d.Low) || d.High != math.Trunc(d.High) {
				return errors.Errorf("dimension %v: integer bounds expected", d)
			}
			if d.Low > d.High {
				return errors.Errorf("dimension %v: low must not exceed high", d)
			}
		default:
			return errors.Errorf("dimension %q has unknown kind %v", d.Name, d.Kind)
		}
	}
	return nil
}

// Equal reports whether both spaces have the same dimensions in the same order.
func (s Space) Equal(other Space) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Names returns the dimension names in order.
func (s Space) Names() []string {
	retVal := make([]string, len(s))
	for i, d := range s {
		retVal[i] = d.Name
	}
	return retVal
}

// Contains reports an error when x is not a point of the space.
func (s Space) Contains(x []float64) error {
	if len(x) != len(s) {
		return errors.Errorf("point has %d values, space has %d dimensions", len(x), len(s))
	}
	for i, d := range s {
		v := x[i]
		if v < d.Low || v > d.High || math.IsNaN(v) {
			return errors.Errorf("%v = %v is out of bounds", d.Name, v)
		}
		if d.Kind == Integer && v != math.Trunc(v) {
			return errors.Errorf("%v = %v is not an integer", d.Name, v)
		}
	}
	return nil
}

// toUnit maps a point of the space to the unit cube.
func (s Space) toUnit(x []float64) []float64 {
	retVal := make([]float64, len(s))
	for i, d := range s {
		if d.High == d.Low {
			continue
		}
		retVal[i] = (x[i] - d.Low) / (d.High - d.Low)
	}
	return retVal
}

// fromUnit maps a point of the unit cube into the space, rounding integer dimensions.
func (s Space) fromUnit(u []float64) []float64 {
	retVal := make([]float64, len(s))
	for i, d := range s {
		v := d.Low + clip01(u[i])*(d.High-d.Low)
		if d.Kind == Integer {
			v = math.Round(v)
		}
		retVal[i] = math.Min(math.Max(v, d.Low), d.High)
	}
	return retVal
}

func clip01(v float64) float64 { return math.Min(math.Max(v, 0), 1) }
