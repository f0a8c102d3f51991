package lstm

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"FinCast/internal/domain/service"
)

const blobVersion = 1

type layerBlob struct {
	In, Units int
	W, U, B   []float64
}

type networkBlob struct {
	Version int
	Config  Config
	Layers  []layerBlob
	Dense   []float64
	Bias    float64
}

// MarshalBinary encodes the configuration and weights.
func (n *Network) MarshalBinary() ([]byte, error) {
	nb := networkBlob{
		Version: blobVersion,
		Config:  n.cfg,
		Dense:   n.dw,
		Bias:    n.db[0],
	}
	for _, l := range n.layers {
		nb.Layers = append(nb.Layers, layerBlob{In: l.in, Units: l.units, W: l.w, U: l.u, B: l.b})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&nb); err != nil {
		return nil, fmt.Errorf("encode network: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal restores a network written by MarshalBinary.
func Unmarshal(blob []byte) (*Network, error) {
	var nb networkBlob
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&nb); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}
	if nb.Version != blobVersion {
		return nil, fmt.Errorf("unsupported network blob version %d", nb.Version)
	}

	cfg := nb.Config.withDefaults()
	if len(nb.Layers) != cfg.Layers || len(nb.Dense) != cfg.Units {
		return nil, fmt.Errorf("network blob shape mismatch")
	}
	n := &Network{cfg: cfg, dw: nb.Dense, db: []float64{nb.Bias}}
	in := cfg.Features
	for i, lb := range nb.Layers {
		if lb.In != in || lb.Units != cfg.Units ||
			len(lb.W) != 4*lb.Units*lb.In || len(lb.U) != 4*lb.Units*lb.Units || len(lb.B) != 4*lb.Units {
			return nil, fmt.Errorf("network blob layer %d shape mismatch", i)
		}
		n.layers = append(n.layers, &layer{in: lb.In, units: lb.Units, w: lb.W, u: lb.U, b: lb.B})
		in = lb.Units
	}
	return n, nil
}

// Factory builds networks sharing one configuration.
type Factory struct {
	cfg Config
}

func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg.withDefaults()}
}

func (f *Factory) New(seed int64) service.SequenceModel {
	return New(f.cfg, seed)
}

func (f *Factory) Restore(blob []byte) (service.SequenceModel, error) {
	return Unmarshal(blob)
}

var _ service.ModelFactory = (*Factory)(nil)
