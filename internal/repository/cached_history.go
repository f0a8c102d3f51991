package repository

import (
	"context"
	"errors"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/features"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

const historyVolWindow = 20

// CachedHistory memoizes history lookups. Entries live shorter while the
// market is open and when the symbol is volatile.
type CachedHistory struct {
	next   domrepo.HistoryProvider
	cache  cache.Service
	market *util.MarketClock
	now    func() time.Time
	l      *applogger.Logger
}

func NewCachedHistory(next domrepo.HistoryProvider, c cache.Service, market *util.MarketClock, l *applogger.Logger) *CachedHistory {
	return &CachedHistory{next: next, cache: c, market: market, now: time.Now, l: l.Component("history-cache")}
}

func historyKey(symbol, period string) string {
	return cache.GenerateKey("history", symbol, period)
}

func (h *CachedHistory) GetHistory(ctx context.Context, symbol, period string) (*models.PriceSeries, error) {
	key := historyKey(symbol, period)

	var cached models.PriceSeries
	err := cache.GetJSON(ctx, h.cache, key, &cached)
	switch {
	case err == nil && cached.Len() > 0:
		return &cached, nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		h.l.Warn("history cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	series, err := h.next.GetHistory(ctx, symbol, period)
	if err != nil {
		return nil, err
	}

	ttl := h.market.CacheTTL(h.now(), features.DailyVolatility(series.Bars, historyVolWindow))
	if err := cache.SetJSON(ctx, h.cache, key, series, ttl); err != nil {
		h.l.Warn("history cache write failed", applogger.String("key", key), applogger.Error(err))
	}
	return series, nil
}

// Invalidate drops every cached period for symbol.
func (h *CachedHistory) Invalidate(ctx context.Context, symbol string) error {
	return h.cache.DeleteByPattern(ctx, cache.BuildPattern(cache.GenerateKey("history", symbol)+":"))
}

var _ domrepo.HistoryProvider = (*CachedHistory)(nil)
