package usecase

import (
	"context"
	"errors"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// DefaultStaleAfter is the minimum model age before a retrain is considered.
const DefaultStaleAfter = 24 * time.Hour

// RetrainPolicy decides whether a symbol's model must be (re)trained.
// A model is stale once it is older than staleAfter and the market's daily
// 16:00 cutoff has passed on the current exchange-local date.
type RetrainPolicy struct {
	store      domrepo.ArtifactStore
	market     *util.MarketClock
	staleAfter time.Duration
	now        func() time.Time
	log        *logger.Logger
}

func NewRetrainPolicy(store domrepo.ArtifactStore, market *util.MarketClock, staleAfter time.Duration, now func() time.Time, l *logger.Logger) *RetrainPolicy {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if now == nil {
		now = time.Now
	}
	return &RetrainPolicy{
		store:      store,
		market:     market,
		staleAfter: staleAfter,
		now:        now,
		log:        l.Component("retrain-policy"),
	}
}

// IsStale reports whether artifact needs replacing at now. A nil artifact is stale.
func (p *RetrainPolicy) IsStale(artifact *models.ModelArtifact, now time.Time) bool {
	if artifact == nil {
		return true
	}
	return now.Sub(artifact.TrainedAt) > p.staleAfter && p.market.AfterClose(now)
}

// ShouldRetrain loads the current artifact and applies IsStale. A missing
// artifact or a store failure means training is required.
func (p *RetrainPolicy) ShouldRetrain(ctx context.Context, symbol string) bool {
	artifact, err := p.store.Load(ctx, symbol)
	if err != nil {
		if !errors.Is(err, models.ErrArtifactNotFound) {
			p.log.Warn("artifact load failed, treating as absent",
				logger.String("symbol", symbol), logger.Error(err))
		}
		return true
	}
	return p.IsStale(artifact, p.now())
}

// Now returns the policy clock.
func (p *RetrainPolicy) Now() time.Time { return p.now() }
