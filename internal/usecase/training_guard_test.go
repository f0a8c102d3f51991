package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/pkg/cache"
	"FinCast/pkg/logger"
)

func TestBeginTrainingAdmitsExactlyOne(t *testing.T) {
	g := NewTrainingGuard(stubPolicy{true}, newBlockingTrainer(), NewTrainingRegistry(nil), SyncExecutor{}, logger.Nop())

	var admitted, busy int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch g.BeginTraining(context.Background(), "AAPL") {
			case models.Admitted:
				atomic.AddInt32(&admitted, 1)
			case models.AlreadyInProgress:
				atomic.AddInt32(&busy, 1)
			}
		}()
	}
	wg.Wait()

	if admitted != 1 || busy != 63 {
		t.Fatalf("admitted=%d busy=%d", admitted, busy)
	}
	g.EndTraining("AAPL")
	if g.BeginTraining(context.Background(), "AAPL") != models.Admitted {
		t.Fatalf("expected admission after EndTraining")
	}
}

func TestEnsureTrainedConcurrentRequests(t *testing.T) {
	trainer := newBlockingTrainer()
	reg := NewTrainingRegistry(nil)
	g := NewTrainingGuard(stubPolicy{true}, trainer, reg, NewPoolExecutor(2), logger.Nop())

	results := make(chan models.Admission, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.EnsureTrained(context.Background(), "AAPL")
		}()
	}
	wg.Wait()
	close(results)

	counts := map[models.Admission]int{}
	for r := range results {
		counts[r]++
	}
	if counts[models.Admitted] != 1 || counts[models.AlreadyInProgress] != 19 {
		t.Fatalf("unexpected admissions: %v", counts)
	}

	<-trainer.started
	if st, _ := reg.Get("AAPL"); st.State != models.StateTraining {
		t.Fatalf("state=%s want training", st.State)
	}
	close(trainer.release)
	g.Wait()

	if trainer.count() != 1 {
		t.Fatalf("trainer called %d times", trainer.count())
	}
	if st, _ := reg.Get("AAPL"); st.State != models.StateTrained {
		t.Fatalf("state=%s want trained", st.State)
	}
	if g.InProgress("AAPL") {
		t.Fatalf("symbol still marked in progress")
	}
}

func TestEnsureTrainedDifferentSymbolsRunInParallel(t *testing.T) {
	trainer := newBlockingTrainer()
	g := NewTrainingGuard(stubPolicy{true}, trainer, NewTrainingRegistry(nil), NewPoolExecutor(2), logger.Nop())

	if g.EnsureTrained(context.Background(), "AAPL") != models.Admitted {
		t.Fatalf("AAPL not admitted")
	}
	if g.EnsureTrained(context.Background(), "MSFT") != models.Admitted {
		t.Fatalf("MSFT not admitted")
	}
	for i := 0; i < 2; i++ {
		select {
		case <-trainer.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("jobs did not start concurrently")
		}
	}
	close(trainer.release)
	g.Wait()
}

func TestEnsureTrainedNotNeeded(t *testing.T) {
	trainer := newBlockingTrainer()
	g := NewTrainingGuard(stubPolicy{false}, trainer, NewTrainingRegistry(nil), SyncExecutor{}, logger.Nop())

	if got := g.EnsureTrained(context.Background(), "AAPL"); got != models.NotNeeded {
		t.Fatalf("got %s want not_needed", got)
	}
	if trainer.count() != 0 {
		t.Fatalf("trainer should not run")
	}
}

func TestGuardRecordsFailureAndPanic(t *testing.T) {
	reg := NewTrainingRegistry(fixedClock(afterClose))

	failing := newBlockingTrainer()
	failing.err = errFit
	close(failing.release)
	g := NewTrainingGuard(stubPolicy{true}, failing, reg, SyncExecutor{}, logger.Nop())

	adm, err := g.TrainSync(context.Background(), "AAPL")
	if adm != models.Admitted || !errors.Is(err, errFit) {
		t.Fatalf("adm=%s err=%v", adm, err)
	}
	st, _ := reg.Get("AAPL")
	if st.State != models.StateFailed || st.Error == "" || !st.UpdatedAt.Equal(afterClose) {
		t.Fatalf("unexpected status %+v", st)
	}

	g = NewTrainingGuard(stubPolicy{true}, panicTrainer{next: failing, prefix: "BAD"}, reg, SyncExecutor{}, logger.Nop())
	if got := g.EnsureTrained(context.Background(), "BAD1"); got != models.Admitted {
		t.Fatalf("got %s", got)
	}
	if st, _ := reg.Get("BAD1"); st.State != models.StateFailed {
		t.Fatalf("panic should be recorded as failure, got %s", st.State)
	}
	if g.InProgress("BAD1") {
		t.Fatalf("panic must release the guard")
	}
}

func TestGuardDistributedLock(t *testing.T) {
	shared := cache.NewMemoryCache()
	defer shared.Close()

	a := NewTrainingGuard(stubPolicy{true}, newBlockingTrainer(), NewTrainingRegistry(nil), SyncExecutor{}, logger.Nop(), WithLocker(shared, time.Minute))
	b := NewTrainingGuard(stubPolicy{true}, newBlockingTrainer(), NewTrainingRegistry(nil), SyncExecutor{}, logger.Nop(), WithLocker(shared, time.Minute))

	ctx := context.Background()
	if a.BeginTraining(ctx, "AAPL") != models.Admitted {
		t.Fatalf("first process not admitted")
	}
	if b.BeginTraining(ctx, "AAPL") != models.AlreadyInProgress {
		t.Fatalf("second process admitted while lock held")
	}
	if b.InProgress("AAPL") {
		t.Fatalf("rejected admission must not leave a local mark")
	}
	a.EndTraining("AAPL")
	if b.BeginTraining(ctx, "AAPL") != models.Admitted {
		t.Fatalf("lock not released")
	}
}

type deadlineTrainer struct {
	mu  sync.Mutex
	has []bool
}

func (d *deadlineTrainer) Train(ctx context.Context, _ string) (models.ModelMetrics, error) {
	_, ok := ctx.Deadline()
	d.mu.Lock()
	d.has = append(d.has, ok)
	d.mu.Unlock()
	return models.ModelMetrics{}, nil
}

func TestEnsureTrainedTimeoutOnlyWhenConfigured(t *testing.T) {
	unbounded := &deadlineTrainer{}
	g := NewTrainingGuard(stubPolicy{true}, unbounded, NewTrainingRegistry(nil), SyncExecutor{}, logger.Nop(),
		WithTrainingTimeout(0))
	g.EnsureTrained(context.Background(), "AAPL")
	if len(unbounded.has) != 1 || unbounded.has[0] {
		t.Fatalf("zero timeout must leave the fit unbounded: %v", unbounded.has)
	}

	bounded := &deadlineTrainer{}
	g = NewTrainingGuard(stubPolicy{true}, bounded, NewTrainingRegistry(nil), SyncExecutor{}, logger.Nop(),
		WithTrainingTimeout(time.Minute))
	g.EnsureTrained(context.Background(), "AAPL")
	if len(bounded.has) != 1 || !bounded.has[0] {
		t.Fatalf("configured timeout must set a deadline: %v", bounded.has)
	}
}
