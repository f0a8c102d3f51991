package repository

import (
	"context"
	"time"

	"FinCast/internal/domain/models"
)

// HistoryProvider returns daily bars for a symbol over a period such as "2y".
// An unknown symbol or empty result is models.ErrNotFound.
type HistoryProvider interface {
	GetHistory(ctx context.Context, symbol, period string) (*models.PriceSeries, error)
}

// BarArchive is durable storage for fetched daily bars.
type BarArchive interface {
	HistoryProvider
	Init(ctx context.Context) error
	SaveBars(ctx context.Context, series *models.PriceSeries) error
	Health(ctx context.Context) error
}

// ArtifactStore persists trained models. Load returns
// models.ErrArtifactNotFound when nothing is stored; other failures are
// *models.PersistenceError.
type ArtifactStore interface {
	Load(ctx context.Context, symbol string) (*models.ModelArtifact, error)
	Save(ctx context.Context, artifact *models.ModelArtifact) error
	Delete(ctx context.Context, symbol string) error
	Health(ctx context.Context) error
}

// EventPublisher emits domain events. Implementations must not block the
// caller for long and must tolerate a nil event payload field.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
	Close() error
}

type Metrics interface {
	RecordForecast(symbol, modelUsed string)
	RecordTraining(symbol, result string, d time.Duration)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, d time.Duration)
}
