// Package indicators provides streaming and batch technical indicators
// over market bars.
package indicators

import "github.com/IvanHuYY/Stockbot/market"

// Indicator computes a single streaming value from bars.
// It is deterministic and safe to use in live runs and backtests.
type Indicator interface {
	// Name returns a stable identifier like "SMA(20)" or "ATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed bar.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, or 0 before warmup completes.
	Value() float64
}

// replay feeds bars through ind in order and returns its final value. The
// batch functions are built on it so both forms agree exactly.
func replay(ind Indicator, bars []market.Bar) float64 {
	for _, b := range bars {
		ind.Update(b)
	}
	return ind.Value()
}
