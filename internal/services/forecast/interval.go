package forecast

import (
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultIntervalConfidence is used when the requested level is outside (0,1).
const DefaultIntervalConfidence = 0.95

// Interval builds a symmetric band around each predicted value from the
// residuals between the tail of actual and the head of predicted, aligned
// on the shorter length. Fewer than two residuals give a zero-width band.
func Interval(actual, predicted []float64, confidence float64) [][2]float64 {
	if !(confidence > 0 && confidence < 1) {
		confidence = DefaultIntervalConfidence
	}

	m := len(predicted)
	if len(actual) < m {
		m = len(actual)
	}
	var sd float64
	if m >= 2 {
		residuals := make([]float64, m)
		tail := actual[len(actual)-m:]
		for i := 0; i < m; i++ {
			residuals[i] = tail[i] - predicted[i]
		}
		sd = stat.StdDev(residuals, nil)
	}

	half := zScore(confidence) * sd
	out := make([][2]float64, len(predicted))
	for i, p := range predicted {
		out[i] = [2]float64{p - half, p + half}
	}
	return out
}

func zScore(confidence float64) float64 {
	return distuv.UnitNormal.Quantile(1 - (1-confidence)/2)
}
