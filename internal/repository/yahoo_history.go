package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkghttp "FinCast/pkg/http"
	applogger "FinCast/pkg/logger"
)

// YahooConfig configures the chart API client.
type YahooConfig struct {
	BaseURL        string
	MaxRetries     uint64
	RetryMaxWait   time.Duration
	StaleAfterDays int
}

// YahooHistory fetches daily bars from the Yahoo Finance chart API.
type YahooHistory struct {
	cfg    YahooConfig
	client *pkghttp.Client
	now    func() time.Time
	l      *applogger.Logger
}

func NewYahooHistory(cfg YahooConfig, client *pkghttp.Client, l *applogger.Logger) *YahooHistory {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.RetryMaxWait <= 0 {
		cfg.RetryMaxWait = 10 * time.Second
	}
	if cfg.StaleAfterDays <= 0 {
		cfg.StaleAfterDays = 2
	}
	return &YahooHistory{cfg: cfg, client: client, now: time.Now, l: l.Component("yahoo")}
}

// chart API payload; every quote field may be null on halted days
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *YahooHistory) GetHistory(ctx context.Context, symbol, period string) (*models.PriceSeries, error) {
	start := time.Now()
	var resp chartResponse

	op := func() error {
		resp = chartResponse{}
		err := y.client.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method: pkghttp.MethodGet,
			URL:    fmt.Sprintf("%s/v8/finance/chart/%s", strings.TrimRight(y.cfg.BaseURL, "/"), url.PathEscape(symbol)),
			QueryParams: map[string][]string{
				"interval": {"1d"},
				"range":    {period},
			},
		}, &resp)
		var se *pkghttp.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusBadRequest) {
			return backoff.Permanent(fmt.Errorf("%s: %w", symbol, models.ErrNotFound))
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = y.cfg.RetryMaxWait
	if policy.InitialInterval > policy.MaxInterval {
		policy.InitialInterval = policy.MaxInterval
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, y.cfg.MaxRetries), ctx)); err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			y.l.Error("yahoo history fetch failed",
				applogger.String("symbol", symbol),
				applogger.String("period", period),
				applogger.Error(err),
			)
		}
		return nil, err
	}

	series, err := y.toSeries(symbol, &resp)
	if err != nil {
		return nil, err
	}

	last := series.Last().Date
	if age := y.now().Sub(last); age > time.Duration(y.cfg.StaleAfterDays)*24*time.Hour {
		y.l.Warn("history is not fresh",
			applogger.String("symbol", symbol),
			applogger.Time("last_bar", last),
		)
	}
	y.l.Debug("yahoo history ok",
		applogger.String("symbol", symbol),
		applogger.Int("bars", series.Len()),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return series, nil
}

func (y *YahooHistory) toSeries(symbol string, resp *chartResponse) (*models.PriceSeries, error) {
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%s: empty chart: %w", symbol, models.ErrNotFound)
	}
	r := resp.Chart.Result[0]
	q := r.Indicators.Quote[0]

	bars := make([]models.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		o, h, lo, c, v := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i), at(q.Volume, i)
		if o == nil || h == nil || lo == nil || c == nil {
			continue
		}
		vol := 0.0
		if v != nil {
			vol = *v
		}
		bars = append(bars, models.Bar{
			Date:   time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:   *o,
			High:   *h,
			Low:    *lo,
			Close:  *c,
			Volume: vol,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no bars: %w", symbol, models.ErrNotFound)
	}

	series := &models.PriceSeries{Symbol: symbol, Bars: bars}
	series.Normalize()
	return series, nil
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

var _ domrepo.HistoryProvider = (*YahooHistory)(nil)
