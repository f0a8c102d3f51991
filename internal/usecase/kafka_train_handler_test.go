package usecase

import (
	"context"
	"errors"
	"testing"

	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
)

type recordingTrainer struct {
	symbols []string
	ok      bool
}

func (r *recordingTrainer) TrainNow(_ context.Context, symbol string) bool {
	r.symbols = append(r.symbols, symbol)
	return r.ok
}

func TestKafkaTrainHandler(t *testing.T) {
	tr := &recordingTrainer{ok: true}
	h := NewKafkaTrainHandler("fincast.train", tr, nopMetrics{}, logger.Nop())

	if h.Topic() != "fincast.train" {
		t.Fatalf("topic=%s", h.Topic())
	}
	if err := h.Handle(context.Background(), []byte(`{"symbol":" aapl "}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(tr.symbols) != 1 || tr.symbols[0] != "AAPL" {
		t.Fatalf("trained %v", tr.symbols)
	}

	for _, bad := range []string{`not json`, `{"symbol":""}`} {
		if err := h.Handle(context.Background(), []byte(bad)); !errors.Is(err, pkgkafka.ErrSkip) {
			t.Fatalf("%q: got %v", bad, err)
		}
	}

	tr.ok = false
	if err := h.Handle(context.Background(), []byte(`{"symbol":"MSFT"}`)); err != nil {
		t.Fatalf("failed training must not be redelivered: %v", err)
	}
}
