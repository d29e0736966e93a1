// Package feature turns image sequences into feature vector sequences.
//
// A Pipeline holds an ordered list of Specs. Every spec maps each frame to a block of features and
// the blocks are concatenated in spec order, giving one feature vector per frame.
package feature

import (
	"bytes"
	"fmt"
	"math/rand"
	"text/template"

	"github.com/awalterschulze/gographviz"
	"github.com/gorgonia/torsk/internal/dense"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
	"gorgonia.org/vecf64"
)

// Pipeline extracts the concatenated features of a list of specs.
type Pipeline struct {
	specs      Specs
	transforms []transform
	offsets    []int
	widths     []int
	width      int

	in     [2]int
	dtype  tensor.Dtype
	seed   int64
	logger *zap.SugaredLogger
}

// PipelineOpt configures a Pipeline.
type PipelineOpt func(*Pipeline)

// WithDtype sets the working dtype. Float64 is the default.
func WithDtype(dt tensor.Dtype) PipelineOpt { return func(p *Pipeline) { p.dtype = dt } }

// WithSeed seeds the random kernels and random projections.
func WithSeed(seed int64) PipelineOpt { return func(p *Pipeline) { p.seed = seed } }

// WithLogger sets the logger used for dtype warnings.
func WithLogger(l *zap.SugaredLogger) PipelineOpt { return func(p *Pipeline) { p.logger = l } }

// NewPipeline validates the specs against frames of shape inputShape and prepares their transforms.
// Random kernels and projections are drawn here, once.
func NewPipeline(specs Specs, inputShape [2]int, opts ...PipelineOpt) (*Pipeline, error) {
	p := &Pipeline{
		specs:  specs,
		in:     inputShape,
		dtype:  tensor.Float64,
		seed:   1337,
		logger: zap.S(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if inputShape[0] < 1 || inputShape[1] < 1 {
		return nil, errors.Errorf("invalid input shape %v", inputShape)
	}
	if p.dtype != tensor.Float64 && p.dtype != tensor.Float32 {
		return nil, errors.Errorf("unsupported dtype %v", p.dtype)
	}
	if len(specs) == 0 {
		return nil, errors.New("no feature specs")
	}

	for i, spec := range specs {
		w, err := Width(spec, inputShape)
		if err != nil {
			return nil, errors.WithMessagef(err, "feature spec %d", i)
		}
		if inputScale(spec) == 0 {
			return nil, errors.Errorf("feature spec %d: input_scale must not be 0", i)
		}
		r := rand.New(rand.NewSource(p.seed + int64(i)))

		var tr transform
		switch s := spec.(type) {
		case PixelSpec:
			tr = pixelTransform{h: inputShape[0], w: inputShape[1], oh: s.Size[0], ow: s.Size[1]}
		case DCTSpec:
			tr = newDCTTransform(inputShape, s.Size)
		case ConvSpec:
			tr = newConvTransform(inputShape, s, r)
		case RandomWeightsSpec:
			tr = newRandomTransform(inputShape, s, r)
		default:
			return nil, errors.Wrapf(ErrUnknownSpec, "feature spec %d (%T)", i, spec)
		}

		p.transforms = append(p.transforms, tr)
		p.offsets = append(p.offsets, p.width)
		p.widths = append(p.widths, w)
		p.width += w
	}
	return p, nil
}

// Specs returns the specs of the pipeline.
func (p *Pipeline) Specs() Specs { return p.specs }

// Width is the number of features per frame.
func (p *Pipeline) Width() int { return p.width }

// Dtype is the working dtype.
func (p *Pipeline) Dtype() tensor.Dtype { return p.dtype }

// InputShape is the (H, W) of the frames the pipeline accepts.
func (p *Pipeline) InputShape() [2]int { return p.in }

// Block returns the column range of the features of spec i.
func (p *Pipeline) Block(i int) (start, end int) { return p.offsets[i], p.offsets[i] + p.widths[i] }

// Cast converts images to the working dtype. A mismatch is not an error: it is repaired and logged.
func (p *Pipeline) Cast(images *tensor.Dense) (*tensor.Dense, error) {
	if images.Dtype() == p.dtype {
		return images, nil
	}
	p.logger.Warnw("images dtype converted", "from", images.Dtype().String(), "to", p.dtype.String())
	return dense.Cast(images, p.dtype)
}

// ToFeatures maps a (T, H, W) image sequence to its (T, F) feature sequence.
func (p *Pipeline) ToFeatures(images *tensor.Dense) (*tensor.Dense, error) {
	shp := images.Shape()
	if shp.Dims() != 3 || shp[1] != p.in[0] || shp[2] != p.in[1] {
		return nil, errors.Errorf("expected images of shape (T, %d, %d), got %v", p.in[0], p.in[1], shp)
	}
	if shp[0] < 1 {
		return nil, errors.New("empty image sequence")
	}
	images, err := p.Cast(images)
	if err != nil {
		return nil, err
	}
	frames, err := dense.Float64s(images)
	if err != nil {
		return nil, err
	}

	t := shp[0]
	retVal := make([]float64, t*p.width)
	for i, tr := range p.transforms {
		block, err := tr.apply(frames, t)
		if err != nil {
			return nil, errors.WithMessagef(err, "feature spec %d (%s)", i, p.specs[i].Type())
		}
		if scale := inputScale(p.specs[i]); scale != 1 {
			vecf64.Scale(block, scale)
		}
		w := p.widths[i]
		for row := 0; row < t; row++ {
			copy(retVal[row*p.width+p.offsets[i]:], block[row*w:(row+1)*w])
		}
	}
	return dense.New(retVal, p.dtype, t, p.width)
}

// ToImages maps features back to images using the first pixels spec.
//
// If there is no pixels spec, the error is ErrUnsupported when a dct spec is present
// and ErrNotInvertible otherwise.
func (p *Pipeline) ToImages(features *tensor.Dense) (*tensor.Dense, error) {
	idx := -1
	var hasDCT bool
	for i, spec := range p.specs {
		switch spec.(type) {
		case PixelSpec:
			if idx < 0 {
				idx = i
			}
		case DCTSpec:
			hasDCT = true
		}
	}
	switch {
	case idx < 0 && hasDCT:
		return nil, errors.Wrap(ErrUnsupported, "the inverse of dct features is not implemented")
	case idx < 0:
		return nil, errors.Wrapf(ErrNotInvertible, "from feature types %v", p.specs.Types())
	}

	shp := features.Shape()
	if shp.Dims() != 2 || shp[1] != p.width {
		return nil, errors.Errorf("expected features of shape (T, %d), got %v", p.width, shp)
	}

	var s dense.Slicer
	start, end := p.Block(idx)
	retVal := s.Cols(features, start, end)
	if err := s.Err(); err != nil {
		return nil, err
	}
	if scale := inputScale(p.specs[idx]); scale != 1 {
		switch data := retVal.Data().(type) {
		case []float64:
			vecf64.Scale(data, 1/scale)
		case []float32:
			vecf32.Scale(data, float32(1/scale))
		}
	}
	size := p.specs[idx].(PixelSpec).Size
	if err := retVal.Reshape(shp[0], size[0], size[1]); err != nil {
		return nil, errors.WithStack(err)
	}
	return retVal, nil
}

// Resample bilinearly resamples a (T, H, W) sequence to (T, h, w), in the same way the pixels spec does.
func Resample(images *tensor.Dense, h, w int) (*tensor.Dense, error) {
	shp := images.Shape()
	if shp.Dims() != 3 {
		return nil, errors.Errorf("expected a (T, H, W) sequence, got %v", shp)
	}
	frames, err := dense.Float64s(images)
	if err != nil {
		return nil, err
	}
	return dense.New(resample(frames, shp[0], shp[1], shp[2], h, w), images.Dtype(), shp[0], h, w)
}

// ToDot renders the pipeline as a graphviz graph: the input frames fan out to the specs,
// whose blocks are concatenated into the feature vector.
func (p *Pipeline) ToDot() (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("Pipeline"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	if err := g.AddNode("Pipeline", "images", map[string]string{
		"shape": "box",
		"label": fmt.Sprintf(`"images (T, %d, %d) %v"`, p.in[0], p.in[1], p.dtype),
	}); err != nil {
		return "", err
	}
	if err := g.AddNode("Pipeline", "features", map[string]string{
		"shape": "box",
		"label": fmt.Sprintf(`"features (T, %d)"`, p.width),
	}); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for i, spec := range p.specs {
		buf.Reset()
		start, end := p.Block(i)
		if err := specTmpl.Execute(&buf, struct {
			Index      int
			Spec       Spec
			Start, End int
		}{i, spec, start, end}); err != nil {
			return "", err
		}
		name := fmt.Sprintf("spec%d", i)
		if err := g.AddNode("Pipeline", name, map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		}); err != nil {
			return "", err
		}
		if err := g.AddEdge("images", name, true, nil); err != nil {
			return "", err
		}
		if err := g.AddEdge(name, "features", true, map[string]string{
			"label": fmt.Sprintf(`"[%d:%d)"`, start, end),
		}); err != nil {
			return "", err
		}
	}
	return g.String(), nil
}

const specTmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD>Spec</TD><TD>{{.Index}}</TD></TR>
<TR><TD>Type</TD><TD>{{.Spec.Type}}</TD></TR>
<TR><TD>Params</TD><TD>{{printf "%+v" .Spec}}</TD></TR>
<TR><TD>Columns</TD><TD>{{.Start}} - {{.End}}</TD></TR>
</TABLE>
>`

var specTmpl = template.Must(template.New("spec").Parse(specTmplRaw))
