package feature

import "github.com/pkg/errors"

var (
	// ErrUnknownSpec is returned for spec types that are not one of pixels, dct, conv or random_weights.
	ErrUnknownSpec = errors.New("unknown feature spec")

	// ErrNotInvertible is returned by ToImages when no spec can be mapped back to images.
	ErrNotInvertible = errors.New("cannot reconstruct images")

	// ErrUnsupported is returned by ToImages when the only candidate for reconstruction
	// is a frequency spec, whose inverse is not implemented.
	ErrUnsupported = errors.New("reconstruction not supported")
)
