package lstm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
)

// Evaluate computes MAE, RMSE and R² of predictions against targets.
// R² is 0 when the targets have no variance.
func Evaluate(pred, target []float64) models.ModelMetrics {
	n := len(pred)
	if n == 0 || n != len(target) {
		return models.ModelMetrics{}
	}
	m := models.ModelMetrics{
		MAE:  floats.Distance(pred, target, 1) / float64(n),
		RMSE: floats.Distance(pred, target, 2) / math.Sqrt(float64(n)),
	}
	if r2 := stat.RSquaredFrom(pred, target, nil); finite(r2) {
		m.R2 = r2
	}
	return m
}
