package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// Non-positive prices yield a zero return.
func ComputeLogReturns(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// DailyVolatility is the sample std of the last `window` log returns.
// Returns 0 when there is not enough data.
func DailyVolatility(bars []models.Bar, window int) float64 {
	r := ComputeLogReturns(bars)
	if window < 2 || len(r) < 2 {
		return 0
	}
	if len(r) > window {
		r = r[len(r)-window:]
	}
	return stat.StdDev(r, nil)
}

// Diffs returns consecutive differences x[i]-x[i-1].
func Diffs(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}
