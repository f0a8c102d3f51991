package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type flakyHandler struct {
	failures int
	calls    int
	panic    bool
}

func (h *flakyHandler) Topic() string { return "train" }

func (h *flakyHandler) Handle(ctx context.Context, _ []byte) error {
	h.calls++
	if h.panic {
		panic("boom")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(nil,
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c
}

func TestHandleWithRetryRecovers(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &flakyHandler{failures: 2}

	if err := c.handleWithRetry(context.Background(), h, kafka.Message{Topic: "train"}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if h.calls != 3 {
		t.Fatalf("calls = %d, want 3", h.calls)
	}
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	c := newTestConsumer(t, 1)
	h := &flakyHandler{failures: 10}

	if err := c.handleWithRetry(context.Background(), h, kafka.Message{Topic: "train"}); err == nil {
		t.Fatalf("expected error")
	}
	if h.calls != 2 {
		t.Fatalf("calls = %d, want 2", h.calls)
	}
}

func TestHandleWithRetryPanicBecomesError(t *testing.T) {
	c := newTestConsumer(t, 0)
	h := &flakyHandler{panic: true}

	if err := c.handleWithRetry(context.Background(), h, kafka.Message{Topic: "train"}); err == nil {
		t.Fatalf("expected panic to surface as error")
	}
}

func TestHookSkipIsNotRetried(t *testing.T) {
	c := newTestConsumer(t, 5)
	c.WithConsumerHook(HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, data, ErrSkip
		},
	})
	h := &flakyHandler{}

	err := c.handleWithRetry(context.Background(), h, kafka.Message{Topic: "train"})
	if !errors.Is(err, ErrSkip) {
		t.Fatalf("expected ErrSkip, got %v", err)
	}
	if h.calls != 0 {
		t.Fatalf("handler should not run, calls = %d", h.calls)
	}
}

func TestTraceIDRoundTrip(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx := WithTraceID(context.Background(), ExtractTraceID(msg))
	if TraceID(ctx) != "abc" {
		t.Fatalf("trace id = %q", TraceID(ctx))
	}
}
