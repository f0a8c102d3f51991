package models

import (
	"fmt"
	"sort"
	"time"
)

// Bar is one daily OHLCV record.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Channels returns the bar as the feature vector (open, high, low, close, volume).
func (b Bar) Channels() [NumChannels]float64 {
	return [NumChannels]float64{b.Open, b.High, b.Low, b.Close, b.Volume}
}

// NumChannels is the width of a bar feature vector.
const NumChannels = 5

// CloseChannel indexes the close price in Channels.
const CloseChannel = 3

// PriceSeries is a symbol's bars in strictly increasing date order.
type PriceSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int { return len(s.Bars) }

// Last returns the most recent bar. It panics on an empty series.
func (s *PriceSeries) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Closes returns the close prices in order.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Tail returns the last n bars, or all of them when n exceeds the length.
func (s *PriceSeries) Tail(n int) []Bar {
	if n >= len(s.Bars) {
		return s.Bars
	}
	return s.Bars[len(s.Bars)-n:]
}

// Validate checks non-emptiness and strictly increasing dates.
func (s *PriceSeries) Validate() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("%s: %w", s.Symbol, ErrNotFound)
	}
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Date.After(s.Bars[i-1].Date) {
			return fmt.Errorf("%s: bar %d (%s) not after previous", s.Symbol, i, s.Bars[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Normalize sorts bars by date and keeps the last bar seen for each day.
func (s *PriceSeries) Normalize() {
	sort.SliceStable(s.Bars, func(i, j int) bool { return s.Bars[i].Date.Before(s.Bars[j].Date) })
	out := s.Bars[:0]
	for _, b := range s.Bars {
		if n := len(out); n > 0 && sameDay(out[n-1].Date, b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	s.Bars = out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
