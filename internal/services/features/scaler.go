package features

import (
	"FinCast/internal/domain/models"
)

// Vector is one bar as a feature vector (open, high, low, close, volume).
type Vector = [models.NumChannels]float64

// Scaler is a per-channel min-max normalizer. A constant channel is scaled
// with a range of 1 so it maps to 0.
type Scaler struct {
	state models.ScalerState
}

// FitScaler computes per-channel min and max over bars.
func FitScaler(bars []models.Bar) *Scaler {
	var st models.ScalerState
	for i, b := range bars {
		v := b.Channels()
		for ch := 0; ch < models.NumChannels; ch++ {
			if i == 0 || v[ch] < st.Min[ch] {
				st.Min[ch] = v[ch]
			}
			if i == 0 || v[ch] > st.Max[ch] {
				st.Max[ch] = v[ch]
			}
		}
	}
	return &Scaler{state: st}
}

// NewScaler restores a scaler from persisted state.
func NewScaler(st models.ScalerState) *Scaler {
	return &Scaler{state: st}
}

// State returns the persisted form.
func (s *Scaler) State() models.ScalerState { return s.state }

func (s *Scaler) span(ch int) float64 {
	r := s.state.Max[ch] - s.state.Min[ch]
	if r == 0 {
		return 1
	}
	return r
}

// Transform maps raw values into the fitted [0,1] range. Values outside the
// fitted range are not clipped.
func (s *Scaler) Transform(v Vector) Vector {
	var out Vector
	for ch := range v {
		out[ch] = (v[ch] - s.state.Min[ch]) / s.span(ch)
	}
	return out
}

// Inverse undoes Transform.
func (s *Scaler) Inverse(v Vector) Vector {
	var out Vector
	for ch := range v {
		out[ch] = v[ch]*s.span(ch) + s.state.Min[ch]
	}
	return out
}

// InverseChannel denormalizes a single channel value.
func (s *Scaler) InverseChannel(ch int, x float64) float64 {
	return x*s.span(ch) + s.state.Min[ch]
}

// TransformBars normalizes every bar.
func (s *Scaler) TransformBars(bars []models.Bar) []Vector {
	out := make([]Vector, len(bars))
	for i, b := range bars {
		out[i] = s.Transform(b.Channels())
	}
	return out
}
