package repository

import (
	"context"
	"errors"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
)

// ArchivedHistory writes every upstream fetch through to the archive and
// serves from the archive when the upstream is unavailable.
type ArchivedHistory struct {
	upstream domrepo.HistoryProvider
	archive  domrepo.BarArchive
	l        *applogger.Logger
}

func NewArchivedHistory(upstream domrepo.HistoryProvider, archive domrepo.BarArchive, l *applogger.Logger) *ArchivedHistory {
	return &ArchivedHistory{upstream: upstream, archive: archive, l: l.Component("archived-history")}
}

func (a *ArchivedHistory) GetHistory(ctx context.Context, symbol, period string) (*models.PriceSeries, error) {
	series, err := a.upstream.GetHistory(ctx, symbol, period)
	if err == nil {
		// detached so a cancelled request does not abort the archive write
		go a.save(series)
		return series, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	archived, aerr := a.archive.GetHistory(ctx, symbol, period)
	if aerr != nil {
		return nil, err
	}
	a.l.Warn("upstream failed, serving archived history",
		applogger.String("symbol", symbol),
		applogger.Int("bars", archived.Len()),
		applogger.Error(err),
	)
	return archived, nil
}

func (a *ArchivedHistory) save(series *models.PriceSeries) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.archive.SaveBars(ctx, series); err != nil {
		a.l.Warn("archive write failed", applogger.String("symbol", series.Symbol), applogger.Error(err))
	}
}

var _ domrepo.HistoryProvider = (*ArchivedHistory)(nil)
