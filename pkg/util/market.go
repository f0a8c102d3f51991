package util

import (
	"time"
	_ "time/tzdata"
)

// MarketStatus is the session state of the exchange at an instant.
type MarketStatus string

const (
	MarketOpen       MarketStatus = "open"
	MarketPreMarket  MarketStatus = "pre_market"
	MarketAfterHours MarketStatus = "after_hours"
	MarketClosed     MarketStatus = "closed"
)

// DefaultMarketTimezone is the exchange timezone for US equities.
const DefaultMarketTimezone = "America/New_York"

// clock is expressed in minutes after local midnight.
const (
	preMarketStart   = 4 * 60
	regularOpen      = 9*60 + 30
	regularClose     = 16 * 60
	afterHoursFinish = 20 * 60
)

// MarketClock answers session questions in the exchange timezone.
type MarketClock struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// NewMarketClock loads tz (falling back to a fixed UTC-5 zone when the tz
// database is unavailable) and registers holidays given as YYYY-MM-DD.
func NewMarketClock(tz string, holidays []string) *MarketClock {
	if tz == "" {
		tz = DefaultMarketTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	h := make(map[string]struct{}, len(holidays))
	for _, d := range holidays {
		h[d] = struct{}{}
	}
	return &MarketClock{loc: loc, holidays: h}
}

// Location returns the exchange location.
func (m *MarketClock) Location() *time.Location { return m.loc }

// Local converts t to exchange time.
func (m *MarketClock) Local(t time.Time) time.Time { return t.In(m.loc) }

// IsTradingDay reports whether t's exchange-local date is a weekday and not a
// configured holiday.
func (m *MarketClock) IsTradingDay(t time.Time) bool {
	lt := m.Local(t)
	if IsWeekend(lt) {
		return false
	}
	_, holiday := m.holidays[FormatDate(lt)]
	return !holiday
}

// Status classifies t into a market session.
func (m *MarketClock) Status(t time.Time) MarketStatus {
	if !m.IsTradingDay(t) {
		return MarketClosed
	}
	mins := minutesOfDay(m.Local(t))
	switch {
	case mins >= regularOpen && mins < regularClose:
		return MarketOpen
	case mins >= preMarketStart && mins < regularOpen:
		return MarketPreMarket
	case mins >= regularClose && mins < afterHoursFinish:
		return MarketAfterHours
	default:
		return MarketClosed
	}
}

// CloseOn returns the 16:00 cutoff on t's exchange-local date.
func (m *MarketClock) CloseOn(t time.Time) time.Time {
	lt := m.Local(t)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), regularClose/60, regularClose%60, 0, 0, m.loc)
}

// AfterClose reports whether t is at or past the daily 16:00 cutoff on its
// own exchange-local date. Weekends are not special-cased.
func (m *MarketClock) AfterClose(t time.Time) bool {
	return !t.Before(m.CloseOn(t))
}

// NextOpen returns the next regular-session open strictly after t.
func (m *MarketClock) NextOpen(t time.Time) time.Time {
	lt := m.Local(t)
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), regularOpen/60, regularOpen%60, 0, 0, m.loc)
	if !day.After(lt) {
		day = day.AddDate(0, 0, 1)
	}
	for !m.IsTradingDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// CacheTTL picks how long market data fetched at t stays fresh. dailyVol is
// the recent daily return volatility (0.02 = 2%); pass 0 when unknown.
func (m *MarketClock) CacheTTL(t time.Time, dailyVol float64) time.Duration {
	var base time.Duration
	switch m.Status(t) {
	case MarketOpen:
		base = 30 * time.Second
	case MarketPreMarket:
		base = 60 * time.Second
	case MarketAfterHours:
		base = 120 * time.Second
	default:
		base = 300 * time.Second
	}

	switch {
	case dailyVol > 0.03:
		base /= 2
		if base < 15*time.Second {
			base = 15 * time.Second
		}
	case dailyVol > 0 && dailyVol < 0.01:
		base = base * 3 / 2
	}

	if IsWeekend(m.Local(t)) && base < 10*time.Minute {
		base = 10 * time.Minute
	}
	return base
}

// MarketInfo is a snapshot of the session state.
type MarketInfo struct {
	CurrentTime  time.Time    `json:"current_time"`
	Status       MarketStatus `json:"market_status"`
	IsTradingDay bool         `json:"is_trading_day"`
	NextOpen     time.Time    `json:"next_market_open"`
	Timezone     string       `json:"timezone"`
	RegularHours [2]string    `json:"regular_hours"`
	PreMarket    [2]string    `json:"pre_market"`
	AfterHours   [2]string    `json:"after_hours"`
}

// Info describes the market at t.
func (m *MarketClock) Info(t time.Time) MarketInfo {
	lt := m.Local(t)
	return MarketInfo{
		CurrentTime:  lt,
		Status:       m.Status(t),
		IsTradingDay: m.IsTradingDay(t),
		NextOpen:     m.NextOpen(t),
		Timezone:     m.loc.String(),
		RegularHours: [2]string{"09:30", "16:00"},
		PreMarket:    [2]string{"04:00", "09:30"},
		AfterHours:   [2]string{"16:00", "20:00"},
	}
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
