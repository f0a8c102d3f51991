package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgch "FinCast/pkg/clickhouse"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// CHBarArchive implements BarArchive backed by a ClickHouse daily bars table.
type CHBarArchive struct {
	db    *sql.DB
	table string
	now   func() time.Time
	l     *applogger.Logger
}

func NewCHBarArchive(ch *pkgch.Client, l *applogger.Logger) *CHBarArchive {
	return &CHBarArchive{
		db:    ch.DB(),
		table: ch.Database() + ".daily_bars",
		now:   time.Now,
		l:     l.Component("bar-archive"),
	}
}

func (s *CHBarArchive) Init(ctx context.Context) error {
	q := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol      LowCardinality(String),
            date        Date,
            open        Float64,
            high        Float64,
            low         Float64,
            close       Float64,
            volume      Float64,
            ingested_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (symbol, date)
    `, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// SaveBars upserts the series; re-archiving a day replaces the older row on merge.
func (s *CHBarArchive) SaveBars(ctx context.Context, series *models.PriceSeries) error {
	if series == nil || series.Len() == 0 {
		return nil
	}
	start := time.Now()
	const chunkSize = 2000
	for lo := 0; lo < series.Len(); lo += chunkSize {
		hi := lo + chunkSize
		if hi > series.Len() {
			hi = series.Len()
		}

		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*7)
		for _, b := range series.Bars[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, series.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, date, open, high, low, close, volume) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse save_bars error",
				applogger.String("symbol", series.Symbol),
				applogger.Int("rows", hi-lo),
				applogger.Error(err),
			)
			return fmt.Errorf("save bars: %w", err)
		}
	}
	s.l.Debug("clickhouse save_bars ok",
		applogger.String("symbol", series.Symbol),
		applogger.Int("rows", series.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHBarArchive) GetHistory(ctx context.Context, symbol, period string) (*models.PriceSeries, error) {
	from, err := util.PeriodStart(s.now(), period)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT date, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND date >= ?
        ORDER BY date ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), symbol, from)
	if err != nil {
		s.l.Error("clickhouse get_history query error",
			applogger.String("symbol", symbol),
			applogger.String("period", period),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	bars := make([]models.Bar, 0, 512)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: archive empty: %w", symbol, models.ErrNotFound)
	}
	return &models.PriceSeries{Symbol: symbol, Bars: bars}, nil
}

func (s *CHBarArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ domrepo.BarArchive = (*CHBarArchive)(nil)
