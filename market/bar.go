package market

import "time"

// Bar is one OHLCV sample for a symbol.
type Bar struct {
	Symbol string
	Time   time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume float64
}

// Valid reports whether the bar's prices are positive and internally
// consistent (low <= open/close <= high).
func (b Bar) Valid() bool {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	if b.Low > b.High {
		return false
	}
	return b.Open >= b.Low && b.Open <= b.High && b.Close >= b.Low && b.Close <= b.High
}
