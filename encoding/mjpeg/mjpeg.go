package mjpeg

import (
	"bytes"
	"image/jpeg"
	"net/http"
	"sync"

	"github.com/gorgonia/torsk/encoding"
	"github.com/mattn/go-mjpeg"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Encoder streams frames as motion jpeg over HTTP.
type Encoder struct {
	*encoding.Renderer
	Quality int

	stream *mjpeg.Stream
	logger *zap.SugaredLogger

	sync.Mutex
	last []byte
}

// NewEncoder creates an encoder upscaling frames scale times.
func NewEncoder(scale int, logger *zap.SugaredLogger) *Encoder {
	if logger == nil {
		logger = zap.S()
	}
	return &Encoder{
		Renderer: encoding.NewRenderer(scale),
		Quality:  jpeg.DefaultQuality,
		stream:   mjpeg.NewStream(),
		logger:   logger,
	}
}

func (enc *Encoder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	enc.stream.ServeHTTP(w, r)
}

// Snapshot returns the last encoded frame as a jpeg, or nil before the first frame.
func (enc *Encoder) Snapshot() []byte {
	enc.Lock()
	defer enc.Unlock()
	return enc.last
}

// SnapshotHandler serves the last encoded frame.
func (enc *Encoder) SnapshotHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := enc.Snapshot()
		if b == nil {
			http.Error(w, "no frame yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(b)
	})
}

// Encode a frame
func (enc *Encoder) Encode(f encoding.Frame) error {
	im := enc.Render(f)
	var b bytes.Buffer
	if err := jpeg.Encode(&b, im, &jpeg.Options{Quality: enc.Quality}); err != nil {
		enc.logger.Errorw("jpeg encoding failed", "frame", f.String(), "err", err)
		return errors.WithStack(err)
	}
	enc.Lock()
	enc.last = b.Bytes()
	enc.Unlock()

	if err := enc.stream.Update(b.Bytes()); err != nil {
		enc.logger.Errorw("stream update failed", "frame", f.String(), "err", err)
		return errors.WithStack(err)
	}
	return nil
}

func (enc *Encoder) Flush() error { return nil }
