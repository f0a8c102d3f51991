package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for bar and forecast dates.
const DateLayout = "2006-01-02"

// FormatDate renders t as YYYY-MM-DD in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate accepts YYYY-MM-DD, RFC3339 and unix seconds.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NextTradingDays returns the n weekdays strictly after last.
// Holidays are not skipped.
func NextTradingDays(last time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	cur := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, last.Location())
	for len(out) < n {
		cur = cur.AddDate(0, 0, 1)
		if IsWeekend(cur) {
			continue
		}
		out = append(out, cur)
	}
	return out
}

// FormatDates renders each date with FormatDate.
func FormatDates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = FormatDate(t)
	}
	return out
}

// CalendarDaysBetween counts whole calendar days from a to b.
func CalendarDaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// PeriodStart returns the first date covered by a lookback period such as
// "5d", "3mo", "2y" or "max" ending at now.
func PeriodStart(now time.Time, period string) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "max" {
		return time.Time{}, nil
	}
	var unit string
	switch {
	case strings.HasSuffix(p, "mo"):
		unit = "mo"
	case strings.HasSuffix(p, "d"), strings.HasSuffix(p, "y"):
		unit = p[len(p)-1:]
	default:
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
	n, err := strconv.Atoi(strings.TrimSuffix(p, unit))
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
	switch unit {
	case "d":
		return now.AddDate(0, 0, -n), nil
	case "mo":
		return now.AddDate(0, -n, 0), nil
	default:
		return now.AddDate(-n, 0, 0), nil
	}
}
