package forecast

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
)

// 2026-10-16 is a Friday.
var lastDay = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

func series(n int, closeAt func(i int) float64) *models.PriceSeries {
	bars := make([]models.Bar, n)
	for i := range bars {
		c := closeAt(i)
		bars[i] = models.Bar{
			Date:   lastDay.AddDate(0, 0, i-n+1),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000 + float64(i),
		}
	}
	return &models.PriceSeries{Symbol: "AAPL", Bars: bars}
}

type recordingModel struct {
	out     float64
	windows [][]features.Vector
	err     error
}

func (m *recordingModel) Predict(w [][models.NumChannels]float64) (float64, error) {
	cp := make([]features.Vector, len(w))
	copy(cp, w)
	m.windows = append(m.windows, cp)
	return m.out, m.err
}

func artifactFor(s *models.PriceSeries, window int) *models.ModelArtifact {
	return &models.ModelArtifact{
		Symbol: s.Symbol,
		Scaler: features.FitScaler(s.Bars).State(),
		Window: window,
	}
}

func TestWalkForwardFeedsPredictionsBack(t *testing.T) {
	s := series(80, func(i int) float64 { return 100 + float64(i) })
	art := artifactFor(s, 60)
	m := &recordingModel{out: 0.5}

	res, err := NewWalkForward(0.8, 0.95).Forecast(s, art, m, 5, time.Now())
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(m.windows) != 5 {
		t.Fatalf("model called %d times, want 5", len(m.windows))
	}

	scaler := features.NewScaler(art.Scaler)
	lastVol := scaler.Transform(s.Last().Channels())[4]
	for step := 1; step < 5; step++ {
		w := m.windows[step]
		if len(w) != 60 {
			t.Fatalf("step %d window len %d", step, len(w))
		}
		tail := w[len(w)-1]
		want := features.Vector{0.5, 0.5, 0.5, 0.5, lastVol}
		if tail != want {
			t.Fatalf("step %d synthesized vector %v, want %v", step, tail, want)
		}
	}

	if res.PredictedPrices[0] != s.Last().Close {
		t.Fatalf("continuity: first price %v, want %v", res.PredictedPrices[0], s.Last().Close)
	}
	wantPrice := scaler.InverseChannel(models.CloseChannel, 0.5)
	for i := 1; i < 5; i++ {
		if math.Abs(res.PredictedPrices[i]-wantPrice) > 1e-9 {
			t.Fatalf("price[%d] = %v, want %v", i, res.PredictedPrices[i], wantPrice)
		}
	}

	wantDates := []string{"2026-10-19", "2026-10-20", "2026-10-21", "2026-10-22", "2026-10-23"}
	if !reflect.DeepEqual(res.PredictionDates, wantDates) {
		t.Fatalf("dates = %v", res.PredictionDates)
	}
	if res.ModelUsed != models.ModelUsedPrimary || res.Model != models.ModelLSTM || res.Confidence != 0.8 {
		t.Fatalf("labels = %s/%s/%v", res.Model, res.ModelUsed, res.Confidence)
	}
	if len(res.PredictionInterval) != 5 {
		t.Fatalf("interval len %d", len(res.PredictionInterval))
	}
}

func TestWalkForwardUsesPersistedScaler(t *testing.T) {
	s := series(80, func(i int) float64 { return 100 })
	art := artifactFor(s, 60)
	art.Scaler.Min[models.CloseChannel] = 0
	art.Scaler.Max[models.CloseChannel] = 1000

	res, err := NewWalkForward(0.8, 0.95).Forecast(s, art, &recordingModel{out: 0.2}, 3, time.Now())
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if math.Abs(res.PredictedPrices[1]-200) > 1e-9 {
		t.Fatalf("price[1] = %v, want 200 from persisted scaler", res.PredictedPrices[1])
	}
}

func TestWalkForwardConfidenceClamped(t *testing.T) {
	s := series(80, func(i int) float64 { return 100 + float64(i%3) })
	res, err := NewWalkForward(1.7, 0.95).Forecast(s, artifactFor(s, 60), &recordingModel{out: 0.5}, 2, time.Now())
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if res.Confidence != 1 {
		t.Fatalf("confidence = %v, want 1", res.Confidence)
	}
}

func TestWalkForwardModelError(t *testing.T) {
	s := series(80, func(i int) float64 { return 100 })
	m := &recordingModel{err: errors.New("bad weights")}
	if _, err := NewWalkForward(0.8, 0.95).Forecast(s, artifactFor(s, 60), m, 2, time.Now()); err == nil {
		t.Fatalf("expected model error")
	}
	if _, err := NewWalkForward(0.8, 0.95).Forecast(s, artifactFor(s, 60), m, 0, time.Now()); !errors.Is(err, models.ErrInvalidHorizon) {
		t.Fatalf("expected ErrInvalidHorizon, got %v", err)
	}
}

func TestIntervalContainsPredictions(t *testing.T) {
	pred := []float64{100, 101, 102}
	got := Interval([]float64{50, 99, 103, 101}, pred, 0.95)
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	// residuals -1, 2, -1: sample std sqrt(3)
	half := 1.959963984540054 * math.Sqrt(3)
	for i, p := range pred {
		if got[i][0] > p || got[i][1] < p {
			t.Fatalf("band %v does not contain %v", got[i], p)
		}
		if math.Abs((got[i][1]-got[i][0])/2-half) > 1e-6 {
			t.Fatalf("half width %v, want %v", (got[i][1]-got[i][0])/2, half)
		}
	}
}

func TestIntervalDegenerateAndInvalidConfidence(t *testing.T) {
	got := Interval([]float64{10}, []float64{11, 12}, 0.95)
	for i, b := range got {
		if b[0] != b[1] {
			t.Fatalf("band %d should be zero width: %v", i, b)
		}
	}

	a := Interval([]float64{1, 2, 4}, []float64{1, 1, 1}, 1.5)
	b := Interval([]float64{1, 2, 4}, []float64{1, 1, 1}, 0.95)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("invalid confidence should fall back to 0.95")
	}
}

func TestFallbackDeterministicAndBounded(t *testing.T) {
	s := series(40, func(i int) float64 { return 50 + 3*math.Sin(float64(i)) })
	fb := NewFallback(20, 0.95)

	a, err := fb.Forecast(s, 30, time.Now())
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	b, _ := fb.Forecast(s, 30, time.Now())
	if !reflect.DeepEqual(a.PredictedPrices, b.PredictedPrices) {
		t.Fatalf("fallback is not deterministic")
	}

	last := s.Last().Close
	if a.PredictedPrices[0] != last {
		t.Fatalf("continuity: %v != %v", a.PredictedPrices[0], last)
	}
	for i, p := range a.PredictedPrices {
		if p < 0.5*last {
			t.Fatalf("price[%d] = %v below floor", i, p)
		}
	}
	if a.Confidence < 0.3 || a.Confidence > 0.7 {
		t.Fatalf("confidence %v out of range", a.Confidence)
	}
	if a.Confidence != math.Round(a.Confidence*100)/100 {
		t.Fatalf("confidence not rounded: %v", a.Confidence)
	}
	if a.ModelUsed != models.ModelUsedFallback || a.Model != models.ModelSMA {
		t.Fatalf("labels = %s/%s", a.Model, a.ModelUsed)
	}
	if len(a.PredictionDates) != 30 || len(a.PredictionInterval) != 30 {
		t.Fatalf("shape mismatch")
	}
}

func TestFallbackFlatSeries(t *testing.T) {
	s := series(5, func(int) float64 { return 20 })
	res, err := NewFallback(20, 0.95).Forecast(s, 3, time.Now())
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	for _, p := range res.PredictedPrices {
		if p != 20 {
			t.Fatalf("flat series should project flat, got %v", res.PredictedPrices)
		}
	}
	if res.Confidence != 0.7 {
		t.Fatalf("confidence = %v, want 0.7", res.Confidence)
	}
}

func TestFallbackDiffersBySymbol(t *testing.T) {
	s := series(40, func(i int) float64 { return 50 + 3*math.Sin(float64(i)) })
	other := &models.PriceSeries{Symbol: "MSFT", Bars: s.Bars}
	fb := NewFallback(20, 0.95)
	a, _ := fb.Forecast(s, 10, time.Now())
	b, _ := fb.Forecast(other, 10, time.Now())
	if reflect.DeepEqual(a.PredictedPrices[1:], b.PredictedPrices[1:]) {
		t.Fatalf("different symbols should draw different noise")
	}
}

func TestWalkForwardRejectsEmptyWindow(t *testing.T) {
	s := series(80, func(i int) float64 { return 100 })
	m := &recordingModel{out: 0.5}

	for _, w := range []int{0, -3} {
		if _, err := NewWalkForward(0.8, 0.95).Forecast(s, artifactFor(s, w), m, 3, time.Now()); err == nil {
			t.Fatalf("window %d: expected error", w)
		}
	}
	if len(m.windows) != 0 {
		t.Fatalf("model must not be called, got %d calls", len(m.windows))
	}
}
