package indicators

import (
	"fmt"

	"github.com/IvanHuYY/Stockbot/market"
)

// SMA calculates the Simple Moving Average of the last period closes.
func SMA(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period {
		return 0, fmt.Errorf("not enough bars: need %d, got %d", period, len(bars))
	}

	return replay(NewSMA(period), bars[len(bars)-period:]), nil
}

// EMA calculates the Exponential Moving Average for the given period,
// seeded with the SMA of the first period closes.
func EMA(bars []market.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period {
		return 0, fmt.Errorf("not enough bars: need %d, got %d", period, len(bars))
	}

	return replay(NewEMA(period), bars), nil
}
