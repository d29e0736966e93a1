package feature

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// transform maps T row-major frames of the pipeline's input shape to T rows of features.
type transform interface {
	apply(frames []float64, t int) ([]float64, error)
}

type pixelTransform struct {
	h, w   int // input
	oh, ow int // output
}

func (tr pixelTransform) apply(frames []float64, t int) ([]float64, error) {
	return resample(frames, t, tr.h, tr.w, tr.oh, tr.ow), nil
}

// resample bilinearly interpolates every frame to (oh, ow). Sample positions are pixel centre aligned,
// so resampling to the same shape returns the frames unchanged.
func resample(frames []float64, t, h, w, oh, ow int) []float64 {
	retVal := make([]float64, t*oh*ow)
	if h == oh && w == ow {
		copy(retVal, frames[:t*h*w])
		return retVal
	}
	ys0, ys1, fy := samplePositions(h, oh)
	xs0, xs1, fx := samplePositions(w, ow)
	for i := 0; i < t; i++ {
		frame := frames[i*h*w : (i+1)*h*w]
		out := retVal[i*oh*ow : (i+1)*oh*ow]
		for y := 0; y < oh; y++ {
			row0 := frame[ys0[y]*w : (ys0[y]+1)*w]
			row1 := frame[ys1[y]*w : (ys1[y]+1)*w]
			for x := 0; x < ow; x++ {
				top := row0[xs0[x]]*(1-fx[x]) + row0[xs1[x]]*fx[x]
				bottom := row1[xs0[x]]*(1-fx[x]) + row1[xs1[x]]*fx[x]
				out[y*ow+x] = top*(1-fy[y]) + bottom*fy[y]
			}
		}
	}
	return retVal
}

func samplePositions(in, out int) (lo, hi []int, frac []float64) {
	lo = make([]int, out)
	hi = make([]int, out)
	frac = make([]float64, out)
	scale := float64(in) / float64(out)
	for i := 0; i < out; i++ {
		src := (float64(i)+0.5)*scale - 0.5
		if src < 0 {
			src = 0
		}
		if src > float64(in-1) {
			src = float64(in - 1)
		}
		lo[i] = int(math.Floor(src))
		hi[i] = lo[i] + 1
		if hi[i] > in-1 {
			hi[i] = in - 1
		}
		frac[i] = src - float64(lo[i])
	}
	return
}

// dctTransform is an orthonormal 2D DCT-II truncated to the first (kh, kw) coefficients: Ch · X · Cwᵀ.
type dctTransform struct {
	h, w   int
	ch, cw *mat.Dense // (kh × h), (kw × w)
}

func newDCTTransform(in [2]int, size [2]int) dctTransform {
	return dctTransform{
		h:  in[0],
		w:  in[1],
		ch: dctBasis(size[0], in[0]),
		cw: dctBasis(size[1], in[1]),
	}
}

// dctBasis returns the first k rows of the orthonormal n-point DCT-II matrix.
func dctBasis(k, n int) *mat.Dense {
	retVal := mat.NewDense(k, n, nil)
	for u := 0; u < k; u++ {
		alpha := math.Sqrt(2 / float64(n))
		if u == 0 {
			alpha = math.Sqrt(1 / float64(n))
		}
		for i := 0; i < n; i++ {
			retVal.Set(u, i, alpha*math.Cos(math.Pi*float64((2*i+1)*u)/float64(2*n)))
		}
	}
	return retVal
}

func (tr dctTransform) apply(frames []float64, t int) ([]float64, error) {
	kh, _ := tr.ch.Dims()
	kw, _ := tr.cw.Dims()
	retVal := make([]float64, t*kh*kw)
	size := tr.h * tr.w

	var tmp mat.Dense
	for i := 0; i < t; i++ {
		x := mat.NewDense(tr.h, tr.w, frames[i*size:(i+1)*size])
		out := mat.NewDense(kh, kw, retVal[i*kh*kw:(i+1)*kh*kw])
		tmp.Reset()
		tmp.Mul(tr.ch, x)
		out.Mul(&tmp, tr.cw.T())
	}
	return retVal, nil
}

// randomTransform is a fixed random linear map of the flattened frames.
type randomTransform struct {
	weights *mat.Dense // (n × h*w)
}

func newRandomTransform(in [2]int, s RandomWeightsSpec, r *rand.Rand) randomTransform {
	size := in[0] * in[1]
	backing := make([]float64, s.Size*size)
	for i := range backing {
		backing[i] = (2*r.Float64() - 1) * s.WeightScale
	}
	return randomTransform{weights: mat.NewDense(s.Size, size, backing)}
}

func (tr randomTransform) apply(frames []float64, t int) ([]float64, error) {
	n, size := tr.weights.Dims()
	x := mat.NewDense(t, size, frames[:t*size])
	retVal := make([]float64, t*n)
	out := mat.NewDense(t, n, retVal)
	out.Mul(x, tr.weights.T())
	return retVal, nil
}

// kernel builds a (kh × kw) kernel of the given family.
func kernel(kt KernelType, size [2]int, r *rand.Rand) []float64 {
	kh, kw := size[0], size[1]
	retVal := make([]float64, kh*kw)
	switch kt {
	case MeanKernel:
		for i := range retVal {
			retVal[i] = 1 / float64(kh*kw)
		}
	case GaussKernel:
		sigma := float64(kh) / 6
		if kw < kh {
			sigma = float64(kw) / 6
		}
		ys := linspace(-float64(kh)/2, float64(kh)/2, kh)
		xs := linspace(-float64(kw)/2, float64(kw)/2, kw)
		var norm float64
		for i, y := range ys {
			for j, x := range xs {
				v := math.Exp(-(x*x + y*y) / (2 * sigma * sigma))
				retVal[i*kw+j] = v
				norm += v
			}
		}
		for i := range retVal {
			retVal[i] /= norm
		}
	case RandomKernel:
		for i := range retVal {
			retVal[i] = r.Float64() - 0.5
		}
	}
	return retVal
}

func linspace(lo, hi float64, n int) []float64 {
	retVal := make([]float64, n)
	if n == 1 {
		retVal[0] = (lo + hi) / 2
		return retVal
	}
	step := (hi - lo) / float64(n-1)
	for i := range retVal {
		retVal[i] = lo + float64(i)*step
	}
	return retVal
}
