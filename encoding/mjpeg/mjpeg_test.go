package mjpeg

import (
	"bytes"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorgonia/torsk/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

func TestSnapshot(t *testing.T) {
	enc := NewEncoder(4, zap.NewNop().Sugar())
	assert.Nil(t, enc.Snapshot())

	rec := httptest.NewRecorder()
	enc.SnapshotHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/snapshot", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	seq := tensor.New(tensor.WithShape(2, 4, 4), tensor.WithBacking(make([]float64, 32)))
	frames, err := encoding.Frames(seq, seq, "")
	require.NoError(t, err)
	require.NoError(t, encoding.EncodeAll(enc, frames))

	im, err := jpeg.Decode(bytes.NewReader(enc.Snapshot()))
	require.NoError(t, err)
	assert.Equal(t, enc.Bounds(frames[1]), im.Bounds())

	rec = httptest.NewRecorder()
	enc.SnapshotHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/snapshot", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}
