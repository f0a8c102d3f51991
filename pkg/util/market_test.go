package util

import (
	"testing"
	"time"
)

func TestMarketStatus(t *testing.T) {
	clk := NewMarketClock(DefaultMarketTimezone, []string{"2026-11-26"})
	loc := clk.Location()

	cases := []struct {
		name string
		at   time.Time
		want MarketStatus
	}{
		{"pre market", time.Date(2026, 10, 14, 8, 0, 0, 0, loc), MarketPreMarket},
		{"open", time.Date(2026, 10, 14, 9, 30, 0, 0, loc), MarketOpen},
		{"after hours", time.Date(2026, 10, 14, 16, 0, 0, 0, loc), MarketAfterHours},
		{"night", time.Date(2026, 10, 14, 22, 0, 0, 0, loc), MarketClosed},
		{"weekend", time.Date(2026, 10, 17, 11, 0, 0, 0, loc), MarketClosed},
		{"holiday", time.Date(2026, 11, 26, 11, 0, 0, 0, loc), MarketClosed},
	}
	for _, tc := range cases {
		if got := clk.Status(tc.at); got != tc.want {
			t.Errorf("%s: want %s got %s", tc.name, tc.want, got)
		}
	}
}

func TestAfterClose(t *testing.T) {
	clk := NewMarketClock(DefaultMarketTimezone, nil)
	loc := clk.Location()
	if clk.AfterClose(time.Date(2026, 10, 14, 15, 59, 0, 0, loc)) {
		t.Fatalf("15:59 is before the close")
	}
	if !clk.AfterClose(time.Date(2026, 10, 14, 16, 0, 0, 0, loc)) {
		t.Fatalf("16:00 counts as past the close")
	}
	if !clk.AfterClose(time.Date(2026, 10, 14, 23, 30, 0, 0, loc)) {
		t.Fatalf("23:30 is after the close")
	}
}

func TestNextOpen(t *testing.T) {
	clk := NewMarketClock(DefaultMarketTimezone, nil)
	loc := clk.Location()
	// Friday evening -> Monday 09:30
	got := clk.NextOpen(time.Date(2026, 10, 16, 18, 0, 0, 0, loc))
	want := time.Date(2026, 10, 19, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("want %v got %v", want, got)
	}
	// Tuesday early morning -> same day
	got = clk.NextOpen(time.Date(2026, 10, 13, 7, 0, 0, 0, loc))
	want = time.Date(2026, 10, 13, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("want %v got %v", want, got)
	}
}

func TestCacheTTL(t *testing.T) {
	clk := NewMarketClock(DefaultMarketTimezone, nil)
	loc := clk.Location()
	open := time.Date(2026, 10, 14, 11, 0, 0, 0, loc)

	if got := clk.CacheTTL(open, 0); got != 30*time.Second {
		t.Fatalf("open ttl: %v", got)
	}
	if got := clk.CacheTTL(open, 0.05); got != 15*time.Second {
		t.Fatalf("volatile ttl: %v", got)
	}
	if got := clk.CacheTTL(open, 0.005); got != 45*time.Second {
		t.Fatalf("calm ttl: %v", got)
	}
	weekend := time.Date(2026, 10, 18, 11, 0, 0, 0, loc)
	if got := clk.CacheTTL(weekend, 0); got != 10*time.Minute {
		t.Fatalf("weekend ttl: %v", got)
	}
}
