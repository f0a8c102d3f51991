package lstm

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// layer is one LSTM layer. Weight rows are grouped by gate in the order
// input, forget, cell, output; w is 4u x in, u is 4u x units.
type layer struct {
	in    int
	units int
	w     []float64
	u     []float64
	b     []float64
}

func newLayer(rng *rand.Rand, in, units int) *layer {
	l := &layer{
		in:    in,
		units: units,
		w:     glorotUniform(rng, 4*units, in),
		u:     orthogonal(rng, 4*units, units),
		b:     make([]float64, 4*units),
	}
	for j := units; j < 2*units; j++ {
		l.b[j] = 1
	}
	return l
}

// step advances one timestep. gate receives post-activation gate values,
// tc receives tanh(c).
func (l *layer) step(x, hPrev, cPrev, gate, c, tc, h []float64) {
	u := l.units
	for r := 0; r < 4*u; r++ {
		z := l.b[r] +
			floats.Dot(l.w[r*l.in:(r+1)*l.in], x) +
			floats.Dot(l.u[r*u:(r+1)*u], hPrev)
		if r/u == 2 {
			gate[r] = math.Tanh(z)
		} else {
			gate[r] = sigmoid(z)
		}
	}
	for j := 0; j < u; j++ {
		i, f, g, o := gate[j], gate[u+j], gate[2*u+j], gate[3*u+j]
		c[j] = f*cPrev[j] + i*g
		tc[j] = math.Tanh(c[j])
		h[j] = o * tc[j]
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func glorotUniform(rng *rand.Rand, rows, cols int) []float64 {
	limit := math.Sqrt(6 / float64(rows+cols))
	out := make([]float64, rows*cols)
	for i := range out {
		out[i] = (2*rng.Float64() - 1) * limit
	}
	return out
}

// orthogonal returns a rows x cols matrix (rows >= cols) with orthonormal
// columns taken from the QR factorization of a Gaussian matrix.
func orthogonal(rng *rand.Rand, rows, cols int) []float64 {
	a := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	out := make([]float64, rows*cols)
	for j := 0; j < cols; j++ {
		sign := 1.0
		if r.At(j, j) < 0 {
			sign = -1
		}
		for i := 0; i < rows; i++ {
			out[i*cols+j] = sign * q.At(i, j)
		}
	}
	return out
}
