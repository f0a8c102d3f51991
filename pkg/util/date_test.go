package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseDateLayouts(t *testing.T) {
	got, ok := ParseDate("2024-10-10")
	if !ok {
		t.Fatalf("expected ok")
	}
	if FormatDate(got) != "2024-10-10" {
		t.Fatalf("unexpected date %v", got)
	}

	got, ok = ParseDate("2024-10-10T10:10:10Z")
	if !ok || got.UTC().Format(time.RFC3339) != "2024-10-10T10:10:10Z" {
		t.Fatalf("unexpected rfc3339 parse %v %v", got, ok)
	}
}

func TestParseDateUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseDate(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseDateEmpty(t *testing.T) {
	if _, ok := ParseDate(""); ok {
		t.Fatalf("expected empty string to fail")
	}
	if _, ok := ParseDate("yesterday"); ok {
		t.Fatalf("expected garbage to fail")
	}
}

func TestNextTradingDaysSkipsWeekend(t *testing.T) {
	// Friday
	last := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	days := NextTradingDays(last, 6)
	want := []string{"2026-10-19", "2026-10-20", "2026-10-21", "2026-10-22", "2026-10-23", "2026-10-26"}
	got := FormatDates(days)
	if len(got) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("day %d: want %s got %s", i, want[i], got[i])
		}
	}
}

func TestNextTradingDaysFromWeekend(t *testing.T) {
	// Saturday
	last := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	days := NextTradingDays(last, 1)
	if FormatDate(days[0]) != "2026-10-19" {
		t.Fatalf("expected monday, got %s", FormatDate(days[0]))
	}
}

func TestNextTradingDaysStrictlyIncreasing(t *testing.T) {
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	days := NextTradingDays(last, 300)
	for i, d := range days {
		if IsWeekend(d) {
			t.Fatalf("weekend at %d: %s", i, FormatDate(d))
		}
		if i > 0 && !d.After(days[i-1]) {
			t.Fatalf("not increasing at %d", i)
		}
	}
	if NextTradingDays(last, 0) != nil {
		t.Fatalf("expected nil for n=0")
	}
}

func TestCalendarDaysBetween(t *testing.T) {
	a := time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC)
	if got := CalendarDaysBetween(a, b); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" aapl", "MSFT", "", "aapl ", "nvda"})
	want := []string{"AAPL", "MSFT", "NVDA"}
	if len(got) != len(want) {
		t.Fatalf("unexpected %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected %v", got)
		}
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	cases := map[string]time.Time{
		"5d":  now.AddDate(0, 0, -5),
		"3mo": now.AddDate(0, -3, 0),
		"2y":  now.AddDate(-2, 0, 0),
		"max": {},
	}
	for p, want := range cases {
		got, err := PeriodStart(now, p)
		if err != nil || !got.Equal(want) {
			t.Fatalf("%s: got %v, %v", p, got, err)
		}
	}
	for _, bad := range []string{"", "y", "0d", "2w", "-1y"} {
		if _, err := PeriodStart(now, bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
