package gif

import (
	"image"
	"image/draw"
	"image/gif"
	"io"

	"github.com/gorgonia/torsk/encoding"
)

// Encoder collects frames into an animated gif, written out on Flush.
type Encoder struct {
	io.Writer
	*encoding.Renderer

	Delay     int // per frame, in 100ths of a second
	LastDelay int // for the last frame

	out *gif.GIF
}

// NewEncoder creates an encoder writing to w, upscaling frames scale times.
func NewEncoder(w io.Writer, scale int) *Encoder {
	return &Encoder{
		Writer:    w,
		Renderer:  encoding.NewRenderer(scale),
		Delay:     10,
		LastDelay: 300,
		out:       &gif.GIF{LoopCount: 0},
	}
}

// Encode a frame.
func (enc *Encoder) Encode(f encoding.Frame) error {
	g := enc.Render(f)
	im := image.NewPaletted(g.Bounds(), encoding.GrayPalette)
	draw.Draw(im, im.Bounds(), g, image.Point{}, draw.Src)

	delay := enc.Delay
	if f.Step == f.Steps-1 {
		delay = enc.LastDelay
	}
	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, delay)
	return nil
}

// Len is the number of frames encoded so far.
func (enc *Encoder) Len() int { return len(enc.out.Image) }

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error { return gif.EncodeAll(enc.Writer, enc.out) }
