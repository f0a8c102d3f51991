package lstm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
)

// Network is a stack of LSTM layers with dropout after each layer and a
// single-output dense head. Every layer but the top returns its full
// sequence. Predict is safe for concurrent use; Fit is not.
type Network struct {
	cfg    Config
	layers []*layer
	dw     []float64
	db     []float64
	rng    *rand.Rand
}

// New builds a freshly initialized network. Equal seeds give equal weights,
// shuffles and dropout masks.
func New(cfg Config, seed int64) *Network {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(seed))

	n := &Network{cfg: cfg, rng: rng}
	in := cfg.Features
	for i := 0; i < cfg.Layers; i++ {
		n.layers = append(n.layers, newLayer(rng, in, cfg.Units))
		in = cfg.Units
	}
	n.dw = glorotUniform(rng, 1, cfg.Units)
	n.db = make([]float64, 1)
	return n
}

// Config returns the effective configuration.
func (n *Network) Config() Config { return n.cfg }

func (n *Network) params() [][]float64 {
	ps := make([][]float64, 0, 3*len(n.layers)+2)
	for _, l := range n.layers {
		ps = append(ps, l.w, l.u, l.b)
	}
	return append(ps, n.dw, n.db)
}

func zerosLike(ps [][]float64) [][]float64 {
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = make([]float64, len(p))
	}
	return out
}

// maskLen is the number of dropout multipliers one training sample needs.
func (n *Network) maskLen() int {
	return len(n.layers) * n.cfg.Window * n.cfg.Units
}

func (n *Network) fillMask(mask []float64) {
	p := n.cfg.Dropout
	if p == 0 {
		for i := range mask {
			mask[i] = 1
		}
		return
	}
	scale := 1 / (1 - p)
	for i := range mask {
		if n.rng.Float64() < p {
			mask[i] = 0
		} else {
			mask[i] = scale
		}
	}
}

// forward runs one sample and returns the prediction. A nil mask disables
// dropout. The mask is laid out [layer][t][unit]; for the top layer only
// the last timestep is used.
func (n *Network) forward(ws *workspace, window [][models.NumChannels]float64, mask []float64) float64 {
	T, U := n.cfg.Window, n.cfg.Units
	L := len(n.layers)

	for t := 0; t < T; t++ {
		copy(ws.in[0][t], window[t][:])
	}
	for l, ly := range n.layers {
		zero(ws.h[l][0])
		zero(ws.c[l][0])
		for t := 0; t < T; t++ {
			ly.step(ws.in[l][t], ws.h[l][t], ws.c[l][t], ws.gate[l][t], ws.c[l][t+1], ws.tc[l][t], ws.h[l][t+1])
			if l+1 < L {
				out := ws.in[l+1][t]
				copy(out, ws.h[l][t+1])
				if mask != nil {
					off := (l*T + t) * U
					floats.Mul(out, mask[off:off+U])
				}
			}
		}
	}

	copy(ws.top, ws.h[L-1][T])
	if mask != nil {
		off := ((L-1)*T + T - 1) * U
		floats.Mul(ws.top, mask[off:off+U])
	}
	return floats.Dot(n.dw, ws.top) + n.db[0]
}

// backward accumulates the gradients of one sample into grads given
// dy = dLoss/dPrediction. It must follow forward on the same workspace.
func (n *Network) backward(ws *workspace, dy float64, mask []float64, grads [][]float64) {
	T, U := n.cfg.Window, n.cfg.Units
	L := len(n.layers)

	floats.AddScaled(grads[3*L], dy, ws.top)
	grads[3*L+1][0] += dy

	for t := 0; t < T; t++ {
		zero(ws.dOut[t])
	}
	last := ws.dOut[T-1]
	floats.AddScaled(last, dy, n.dw)
	if mask != nil {
		off := ((L-1)*T + T - 1) * U
		floats.Mul(last, mask[off:off+U])
	}

	for l := L - 1; l >= 0; l-- {
		ly := n.layers[l]
		needIn := l > 0
		gw, gu, gb := grads[3*l], grads[3*l+1], grads[3*l+2]
		zero(ws.dhNext)
		zero(ws.dcNext)

		for t := T - 1; t >= 0; t-- {
			gate, tc := ws.gate[l][t], ws.tc[l][t]
			cPrev, hPrev, x := ws.c[l][t], ws.h[l][t], ws.in[l][t]
			da := ws.da

			for j := 0; j < U; j++ {
				i, f, g, o := gate[j], gate[U+j], gate[2*U+j], gate[3*U+j]
				dh := ws.dOut[t][j] + ws.dhNext[j]
				dc := ws.dcNext[j] + dh*o*(1-tc[j]*tc[j])
				da[j] = dc * g * i * (1 - i)
				da[U+j] = dc * cPrev[j] * f * (1 - f)
				da[2*U+j] = dc * i * (1 - g*g)
				da[3*U+j] = dh * tc[j] * o * (1 - o)
				ws.dcNext[j] = dc * f
			}

			zero(ws.dhNext)
			dIn := ws.dIn[t][:ly.in]
			if needIn {
				zero(dIn)
			}
			for r := 0; r < 4*U; r++ {
				a := da[r]
				if a == 0 {
					continue
				}
				wRow := ly.w[r*ly.in : (r+1)*ly.in]
				uRow := ly.u[r*U : (r+1)*U]
				floats.AddScaled(gw[r*ly.in:(r+1)*ly.in], a, x)
				floats.AddScaled(gu[r*U:(r+1)*U], a, hPrev)
				gb[r] += a
				floats.AddScaled(ws.dhNext, a, uRow)
				if needIn {
					floats.AddScaled(dIn, a, wRow)
				}
			}
		}

		if needIn {
			for t := 0; t < T; t++ {
				copy(ws.dOut[t], ws.dIn[t][:U])
				if mask != nil {
					off := ((l-1)*T + t) * U
					floats.Mul(ws.dOut[t], mask[off:off+U])
				}
			}
		}
	}
}

type gradWorker struct {
	ws    *workspace
	grads [][]float64
	loss  float64
}

// batchGradients computes mean-loss gradients for one batch in parallel and
// returns the summed squared error. The result is left in workers[0].grads.
func (n *Network) batchGradients(batch []service.Sample, masks [][]float64, workers []*gradWorker) float64 {
	k := len(workers)
	if k > len(batch) {
		k = len(batch)
	}
	chunk := (len(batch) + k - 1) / k
	scale := 2 / float64(len(batch))

	var wg sync.WaitGroup
	used := 0
	for lo := 0; lo < len(batch); lo += chunk {
		hi := lo + chunk
		if hi > len(batch) {
			hi = len(batch)
		}
		wk := workers[used]
		used++
		for _, g := range wk.grads {
			zero(g)
		}
		wk.loss = 0

		wg.Add(1)
		go func(wk *gradWorker, lo, hi int) {
			defer wg.Done()
			for s := lo; s < hi; s++ {
				y := n.forward(wk.ws, batch[s].Window, masks[s])
				diff := y - batch[s].Target
				wk.loss += diff * diff
				n.backward(wk.ws, scale*diff, masks[s], wk.grads)
			}
		}(wk, lo, hi)
	}
	wg.Wait()

	total := workers[0].loss
	for w := 1; w < used; w++ {
		for p := range workers[0].grads {
			floats.Add(workers[0].grads[p], workers[w].grads[p])
		}
		total += workers[w].loss
	}
	return total
}

// Fit trains on samples. The last ValidationSplit fraction is held out and
// never shuffled into training; training order is reshuffled every epoch.
// A non-finite loss aborts with models.ErrTrainingFailure.
func (n *Network) Fit(ctx context.Context, samples []service.Sample) (service.FitResult, error) {
	var res service.FitResult
	if len(samples) == 0 {
		return res, fmt.Errorf("no samples: %w", models.ErrTrainingFailure)
	}
	for i, s := range samples {
		if len(s.Window) != n.cfg.Window {
			return res, fmt.Errorf("sample %d has window %d, want %d", i, len(s.Window), n.cfg.Window)
		}
	}

	nTrain := int(math.Ceil(float64(len(samples)) * (1 - n.cfg.ValidationSplit)))
	if nTrain < 1 {
		nTrain = 1
	}
	if nTrain > len(samples) {
		nTrain = len(samples)
	}
	train, val := samples[:nTrain], samples[nTrain:]

	params := n.params()
	opt := newAdam(n.cfg, params)
	workers := make([]*gradWorker, n.cfg.Workers)
	for i := range workers {
		workers[i] = &gradWorker{ws: newWorkspace(n), grads: zerosLike(params)}
	}

	bs := n.cfg.BatchSize
	masks := make([][]float64, bs)
	for i := range masks {
		masks[i] = make([]float64, n.maskLen())
	}
	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}
	batch := make([]service.Sample, 0, bs)
	evalWS := newWorkspace(n)

	for epoch := 0; epoch < n.cfg.Epochs; epoch++ {
		n.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		sse := 0.0
		for start := 0; start < len(order); start += bs {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			end := start + bs
			if end > len(order) {
				end = len(order)
			}
			batch = batch[:0]
			for _, idx := range order[start:end] {
				batch = append(batch, train[idx])
			}
			for i := range batch {
				n.fillMask(masks[i])
			}

			sse += n.batchGradients(batch, masks[:len(batch)], workers)
			opt.step(params, workers[0].grads)
		}

		res.TrainLoss = sse / float64(len(train))
		res.Epochs = epoch + 1
		if !finite(res.TrainLoss) {
			return res, fmt.Errorf("epoch %d loss %v: %w", epoch+1, res.TrainLoss, models.ErrTrainingFailure)
		}
		if len(val) > 0 {
			res.ValLoss = n.mse(evalWS, val)
			if !finite(res.ValLoss) {
				return res, fmt.Errorf("epoch %d val loss %v: %w", epoch+1, res.ValLoss, models.ErrTrainingFailure)
			}
		}
	}
	return res, nil
}

func (n *Network) mse(ws *workspace, samples []service.Sample) float64 {
	sse := 0.0
	for _, s := range samples {
		d := n.forward(ws, s.Window, nil) - s.Target
		sse += d * d
	}
	return sse / float64(len(samples))
}

// Predict returns the normalized next close for one window.
func (n *Network) Predict(window [][models.NumChannels]float64) (float64, error) {
	if len(window) != n.cfg.Window {
		return 0, fmt.Errorf("window has %d steps, want %d", len(window), n.cfg.Window)
	}
	y := n.forward(newWorkspace(n), window, nil)
	if !finite(y) {
		return 0, fmt.Errorf("non-finite prediction %v", y)
	}
	return y, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

var _ service.SequenceModel = (*Network)(nil)
