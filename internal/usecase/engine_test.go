package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinCast/internal/domain/models"
)

func TestPredictUnwatchedUsesFallback(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("TSLA", 100))

	res, err := f.engine.Predict(context.Background(), "tsla", 5)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ModelUsed != models.ModelUsedFallback || res.Horizon() != 5 {
		t.Fatalf("got %s with %d steps", res.ModelUsed, res.Horizon())
	}
	if f.factory.built != 0 {
		t.Fatalf("unwatched symbol must not train")
	}
}

func TestPredictInsufficientDataUsesFallback(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", testWindow+testMargin-1))

	res, err := f.engine.Predict(context.Background(), "AAPL", 3)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ModelUsed != models.ModelUsedFallback {
		t.Fatalf("got %s", res.ModelUsed)
	}
}

func TestPredictValidation(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	ctx := context.Background()

	for _, h := range []int{0, -1, MaxHorizon + 1} {
		if _, err := f.engine.Predict(ctx, "AAPL", h); !errors.Is(err, models.ErrInvalidHorizon) {
			t.Fatalf("horizon %d: got %v", h, err)
		}
	}
	if _, err := f.engine.Predict(ctx, "NOPE", 5); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown symbol: got %v", err)
	}
}

func TestPredictWithoutModelTrainsThenServesPrimary(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	ctx := context.Background()

	if _, err := f.engine.Predict(ctx, "AAPL", 5); !errors.Is(err, models.ErrTrainingInProgress) {
		t.Fatalf("first call: got %v", err)
	}
	a := f.store.get("AAPL")
	if a == nil || a.Window != testWindow || a.SampleCount != 100 {
		t.Fatalf("unexpected artifact %+v", a)
	}

	res, err := f.engine.Predict(ctx, "AAPL", 7)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if res.ModelUsed != models.ModelUsedPrimary || res.Model != models.ModelLSTM || res.Horizon() != 7 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.PredictedPrices[0] != res.CurrentPrice {
		t.Fatalf("first prediction %v not pinned to last close %v", res.PredictedPrices[0], res.CurrentPrice)
	}
	if f.factory.built != 1 {
		t.Fatalf("fresh artifact must not retrain, built=%d", f.factory.built)
	}

	types := f.events.types()
	if len(types) != 2 || types[0] != models.EventTrainingCompleted || types[1] != models.EventForecastServed {
		t.Fatalf("events=%v", types)
	}
}

func TestPredictStaleModelServedWhileRetraining(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	ctx := context.Background()
	old := afterClose.AddDate(0, 0, -3)
	_ = f.store.Save(ctx, &models.ModelArtifact{
		Symbol:    "AAPL",
		Weights:   []byte("old"),
		Scaler:    models.ScalerState{Min: [5]float64{90, 90, 90, 90, 9e5}, Max: [5]float64{110, 110, 110, 110, 2e6}},
		Window:    testWindow,
		TrainedAt: old,
	})

	res, err := f.engine.Predict(ctx, "AAPL", 2)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ModelUsed != models.ModelUsedPrimary {
		t.Fatalf("stale model should still be served, got %s", res.ModelUsed)
	}
	if a := f.store.get("AAPL"); !a.TrainedAt.Equal(afterClose) {
		t.Fatalf("artifact not replaced, trained_at=%s", a.TrainedAt)
	}
}

func TestPredictFailedTrainingFallsBackDuringCooldown(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	f.factory.fitErr = errFit

	res, err := f.engine.Predict(context.Background(), "AAPL", 4)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ModelUsed != models.ModelUsedFallback {
		t.Fatalf("got %s", res.ModelUsed)
	}
	if st := f.engine.TrainingState(context.Background(), "AAPL"); st.State != models.StateFailed {
		t.Fatalf("state=%s", st.State)
	}
	if all := f.engine.TrainingStates(); len(all) != 1 || all[0].Symbol != "AAPL" || all[0].Error == "" {
		t.Fatalf("unexpected states %+v", all)
	}

	if _, err := f.engine.Predict(context.Background(), "AAPL", 4); err != nil {
		t.Fatalf("second Predict: %v", err)
	}
	if f.factory.built != 1 {
		t.Fatalf("cooldown must suppress retraining, built=%d", f.factory.built)
	}
}

func TestPredictModelErrorFallsBack(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	ctx := context.Background()
	if !f.engine.TrainNow(ctx, "AAPL") {
		t.Fatalf("TrainNow failed")
	}
	f.factory.restoreErr = errors.New("corrupt weights")

	res, err := f.engine.Predict(ctx, "AAPL", 3)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.ModelUsed != models.ModelUsedFallback {
		t.Fatalf("got %s", res.ModelUsed)
	}
}

func TestPredictPersistenceErrorTreatedAsAbsent(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	f.store.loadErr = errors.New("db locked")

	if _, err := f.engine.Predict(context.Background(), "AAPL", 3); !errors.Is(err, models.ErrTrainingInProgress) {
		t.Fatalf("got %v", err)
	}
}

func TestTrainNowAndTrainingState(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	ctx := context.Background()

	if st := f.engine.TrainingState(ctx, "AAPL"); st.State != models.StateNoModel {
		t.Fatalf("state=%s", st.State)
	}
	if !f.engine.TrainNow(ctx, "aapl") {
		t.Fatalf("TrainNow failed")
	}
	if st := f.engine.TrainingState(ctx, "AAPL"); st.State != models.StateTrained {
		t.Fatalf("state=%s", st.State)
	}
	if f.engine.TrainNow(ctx, "NOPE") {
		t.Fatalf("unknown symbol must fail")
	}

	// A persisted artifact from an earlier process reports trained.
	_ = f.store.Save(ctx, &models.ModelArtifact{Symbol: "MSFT", TrainedAt: afterClose.Add(-time.Hour)})
	if st := f.engine.TrainingState(ctx, "MSFT"); st.State != models.StateTrained {
		t.Fatalf("state=%s", st.State)
	}
}

func TestTrainNowRejectsWhileInProgress(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	ctx := context.Background()

	if f.guard.BeginTraining(ctx, "AAPL") != models.Admitted {
		t.Fatalf("setup failed")
	}
	if f.engine.TrainNow(ctx, "AAPL") {
		t.Fatalf("TrainNow must return false while training runs")
	}
	f.guard.EndTraining("AAPL")
}

func TestPretrainAllIsolatesFailures(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL", "MSFT", "GONE"},
		makeSeries("AAPL", 100), makeSeries("MSFT", 100), makeSeries("BADX", 100))
	// BADX panics inside the trainer.
	f.guard.trainer = panicTrainer{next: f.guard.trainer, prefix: "BAD"}

	got := f.engine.PretrainAll(context.Background(), []string{"aapl", "MSFT", "GONE", "BADX"})
	want := map[string]bool{"AAPL": true, "MSFT": true, "GONE": false, "BADX": false}
	for sym, ok := range want {
		if got[sym] != ok {
			t.Fatalf("%s: got %v want %v (all: %v)", sym, got[sym], ok, got)
		}
	}

	// Empty list means the watchlist.
	got = f.engine.PretrainAll(context.Background(), nil)
	if len(got) != 3 || !got["AAPL"] {
		t.Fatalf("watchlist pretrain: %v", got)
	}
}

func TestPretrainAllCancelled(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := f.engine.PretrainAll(ctx, []string{"AAPL"})
	if got["AAPL"] {
		t.Fatalf("cancelled batch must not train")
	}
}

func TestStartPretrainRunsOneBatchAtATime(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	bt := newBlockingTrainer()
	f.guard.trainer = bt

	if !f.engine.StartPretrain(nil) {
		t.Fatalf("first batch rejected")
	}
	<-bt.started
	if f.engine.StartPretrain([]string{"MSFT"}) {
		t.Fatalf("second batch accepted while the first is running")
	}

	close(bt.release)
	f.engine.Wait()
	if st := f.engine.TrainingState(context.Background(), "AAPL"); st.State != models.StateTrained {
		t.Fatalf("state=%s", st.State)
	}

	if !f.engine.StartPretrain([]string{"AAPL"}) {
		t.Fatalf("batch rejected after the previous one finished")
	}
	f.engine.Wait()
	if bt.count() != 2 {
		t.Fatalf("trainer calls=%d", bt.count())
	}
}

func TestCancelBatchesStopsRunningPretrain(t *testing.T) {
	f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
	bt := newBlockingTrainer()
	f.guard.trainer = bt

	if !f.engine.StartPretrain(nil) {
		t.Fatalf("batch rejected")
	}
	<-bt.started
	f.engine.CancelBatches()
	f.engine.Wait()

	if st := f.engine.TrainingState(context.Background(), "AAPL"); st.State != models.StateFailed {
		t.Fatalf("cancelled job state=%s", st.State)
	}
	if f.engine.StartPretrain(nil) {
		t.Fatalf("batch accepted after cancellation")
	}
}

func TestPredictMalformedArtifactFallsBack(t *testing.T) {
	ctx := context.Background()
	for name, a := range map[string]*models.ModelArtifact{
		"zero window":   {Symbol: "AAPL", Weights: []byte("w"), Window: 0, TrainedAt: afterClose},
		"empty weights": {Symbol: "AAPL", Window: testWindow, TrainedAt: afterClose},
	} {
		f := newEngineFixture(afterClose, []string{"AAPL"}, makeSeries("AAPL", 100))
		_ = f.store.Save(ctx, a)

		res, err := f.engine.Predict(ctx, "AAPL", 3)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if res.ModelUsed != models.ModelUsedFallback {
			t.Fatalf("%s: got %s", name, res.ModelUsed)
		}
	}
}
