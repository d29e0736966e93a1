package encoding

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi        = 144.0
	fontsize   = 12.0
	lineheight = 1.2
	padding    = 10
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// GrayPalette holds every gray level, so gray images convert to paletted ones without loss.
var GrayPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{uint8(i)}
	}
	return p
}()

// Renderer draws frames: the real frame on the left, the predicted one on the right, each
// upscaled Scale times, labelled, with the frame caption underneath.
// A Renderer is not safe for concurrent use.
type Renderer struct {
	Scale int
	font.Drawer
}

// NewRenderer creates a renderer. Scales below 1 are taken as 1.
func NewRenderer(scale int) *Renderer {
	if scale < 1 {
		scale = 1
	}
	return &Renderer{
		Scale: scale,
		Drawer: font.Drawer{
			Src: image.Black,
			Face: truetype.NewFace(regular, &truetype.Options{
				Size:    fontsize,
				DPI:     dpi,
				Hinting: font.HintingFull,
			}),
		},
	}
}

// Bounds is the size of the image of a frame.
func (r *Renderer) Bounds(f Frame) image.Rectangle {
	ph, pw := f.H*r.Scale, f.W*r.Scale
	dy := lineHeight()
	w := 2*pw + 3*padding
	if cw := font.MeasureString(r.Face, f.String()).Ceil() + 2*padding; cw > w {
		w = cw
	}
	h := padding + dy + ph + padding + dy + padding
	return image.Rect(0, 0, w, h)
}

func lineHeight() int { return int(math.Ceil(fontsize * lineheight * dpi / 72)) }

// Render draws f.
func (r *Renderer) Render(f Frame) *image.Gray {
	im := image.NewGray(r.Bounds(f))
	draw.Draw(im, im.Bounds(), image.White, image.Point{}, draw.Src)

	ph, pw := f.H*r.Scale, f.W*r.Scale
	dy := lineHeight()
	ascent := r.Face.Metrics().Ascent.Ceil()
	top := padding + dy

	r.Dst = im
	r.Dot = fixed.P(padding, padding+ascent)
	r.DrawString("real")
	r.Dot = fixed.P(2*padding+pw, padding+ascent)
	r.DrawString("predicted")

	left := image.Rect(padding, top, padding+pw, top+ph)
	right := left.Add(image.Pt(pw+padding, 0))
	draw.NearestNeighbor.Scale(im, left, panel(f.Real, f), image.Rect(0, 0, f.W, f.H), draw.Src, nil)
	draw.NearestNeighbor.Scale(im, right, panel(f.Predicted, f), image.Rect(0, 0, f.W, f.H), draw.Src, nil)

	r.Dot = fixed.P(padding, top+ph+padding+ascent)
	r.DrawString(f.String())
	return im
}

func panel(values []float32, f Frame) *image.Gray {
	im := image.NewGray(image.Rect(0, 0, f.W, f.H))
	for i, v := range values {
		im.Pix[i] = gray(v, f.Lo, f.Hi)
	}
	return im
}
