package market

import (
	"fmt"
	"time"
)

// Candle represents a single OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"ts" db:"ts"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
}

// Series is an ordered candle sequence, oldest first, unique timestamps.
// Consumers treat it as read-only; all indicator math takes it by value.
type Series []Candle

// NewSeries validates ordering and timestamp uniqueness before returning
// the series. Out-of-order or duplicate bars are a data-provider bug and
// are rejected rather than silently re-sorted.
func NewSeries(candles []Candle) (Series, error) {
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			return nil, fmt.Errorf("candle series not strictly ordered at index %d: %s followed by %s",
				i, candles[i-1].Timestamp.Format(time.RFC3339), candles[i].Timestamp.Format(time.RFC3339))
		}
	}
	return Series(candles), nil
}

// Len returns the number of candles in the series.
func (s Series) Len() int { return len(s) }

// Last returns the most recent candle. ok is false for an empty series.
func (s Series) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// LastClose returns the most recent close price, or 0 for an empty series.
func (s Series) LastClose() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Close
}

// Closes extracts the close prices, oldest first.
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, c := range s {
		closes[i] = c.Close
	}
	return closes
}

// Volumes extracts the volumes, oldest first.
func (s Series) Volumes() []float64 {
	volumes := make([]float64, len(s))
	for i, c := range s {
		volumes[i] = c.Volume
	}
	return volumes
}

// Tail returns the most recent n candles (the whole series if shorter).
func (s Series) Tail(n int) Series {
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
