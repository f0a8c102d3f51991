package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

type symbolTrainer interface {
	TrainNow(ctx context.Context, symbol string) bool
}

// KafkaTrainHandler consumes train requests and trains synchronously on the
// consumer worker.
type KafkaTrainHandler struct {
	topic   string
	trainer symbolTrainer
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewKafkaTrainHandler(topic string, trainer symbolTrainer, metrics domrepo.Metrics, l *logger.Logger) *KafkaTrainHandler {
	return &KafkaTrainHandler{topic: topic, trainer: trainer, metrics: metrics, log: l.Component("train-handler")}
}

func (h *KafkaTrainHandler) Topic() string { return h.topic }

// incoming message schema: {"symbol": "AAPL"}
func (h *KafkaTrainHandler) Handle(ctx context.Context, b []byte) error {
	var req models.TrainRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode train request: %v: %w", err, pkgkafka.ErrSkip)
	}
	symbol := util.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("train request without symbol: %w", pkgkafka.ErrSkip)
	}

	start := time.Now()
	ok := h.trainer.TrainNow(ctx, symbol)
	h.metrics.RecordLatency("consumer_train", time.Since(start))
	if !ok {
		// not retried; the registry holds the failure
		h.log.Warn("train request not completed", logger.String("symbol", symbol))
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTrainHandler)(nil)
