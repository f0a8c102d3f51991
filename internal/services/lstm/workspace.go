package lstm

// workspace holds per-sample activations for one forward and backward pass.
// Each gradient worker owns one and reuses it across samples.
type workspace struct {
	steps int
	in    [][][]float64 // [layer][t] layer input
	h     [][][]float64 // [layer][t+1], h[l][0] is the zero state
	c     [][][]float64 // [layer][t+1]
	gate  [][][]float64 // [layer][t] i, f, g, o after activation
	tc    [][][]float64 // [layer][t] tanh(c)
	top   []float64     // last hidden state of the top layer after dropout

	dOut   [][]float64 // [t] gradient w.r.t. the current layer's output
	dIn    [][]float64 // [t] gradient w.r.t. the current layer's input
	da     []float64
	dhNext []float64
	dcNext []float64
}

func newWorkspace(n *Network) *workspace {
	T, U := n.cfg.Window, n.cfg.Units
	L := len(n.layers)
	ws := &workspace{
		steps:  T,
		in:     make([][][]float64, L),
		h:      make([][][]float64, L),
		c:      make([][][]float64, L),
		gate:   make([][][]float64, L),
		tc:     make([][][]float64, L),
		top:    make([]float64, U),
		dOut:   matrix(T, U),
		da:     make([]float64, 4*U),
		dhNext: make([]float64, U),
		dcNext: make([]float64, U),
	}
	maxIn := U
	for l, ly := range n.layers {
		ws.in[l] = matrix(T, ly.in)
		ws.h[l] = matrix(T+1, U)
		ws.c[l] = matrix(T+1, U)
		ws.gate[l] = matrix(T, 4*U)
		ws.tc[l] = matrix(T, U)
		if ly.in > maxIn {
			maxIn = ly.in
		}
	}
	ws.dIn = matrix(T, maxIn)
	return ws
}

func matrix(rows, cols int) [][]float64 {
	flat := make([]float64, rows*cols)
	out := make([][]float64, rows)
	for i := range out {
		out[i] = flat[i*cols : (i+1)*cols]
	}
	return out
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
