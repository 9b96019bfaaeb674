package portfolio

import (
	"math"
	"time"

	"github.com/IvanHuYY/Stockbot/market"
)

// Position is one open holding. Quantity is always positive; Side
// carries the direction.
type Position struct {
	Symbol       string      `json:"symbol" yaml:"symbol"`
	Side         market.Side `json:"side" yaml:"side"`
	Quantity     int64       `json:"quantity" yaml:"quantity"`
	EntryPrice   float64     `json:"entry_price" yaml:"entry_price"`
	CurrentPrice float64     `json:"current_price" yaml:"current_price"`

	// Zero means none.
	StopLoss   float64 `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit float64 `json:"take_profit" yaml:"take_profit"`

	OpenedAt         time.Time `json:"opened_at" yaml:"opened_at"`
	CorrelationGroup string    `json:"correlation_group" yaml:"correlation_group"`
}

// Notional is the unsigned value of the position at its current price.
func (p Position) Notional() float64 {
	return float64(p.Quantity) * p.CurrentPrice
}

// MarketValue is the signed contribution of the position to equity.
func (p Position) MarketValue() float64 {
	return p.Side.Sign() * p.Notional()
}

func (p Position) UnrealizedPL() float64 {
	return p.Side.Sign() * float64(p.Quantity) * (p.CurrentPrice - p.EntryPrice)
}

// AtRisk is the capital lost if the stop is hit, measured from entry.
func (p Position) AtRisk() float64 {
	return AtRisk(p.Side, p.EntryPrice, p.StopLoss, p.Quantity)
}

// AtRisk returns max(0, entry-stop)*qty for longs and the mirrored
// expression for shorts. A position without a stop risks its full entry
// value when long and is unbounded when short.
func AtRisk(side market.Side, entry, stop float64, qty int64) float64 {
	if qty <= 0 {
		return 0
	}
	if stop == 0 {
		if side == market.Short {
			return math.Inf(1)
		}
		return entry * float64(qty)
	}
	d := side.Sign() * (entry - stop)
	if d < 0 {
		d = 0
	}
	return d * float64(qty)
}

// Closed is the realized outcome of a full or partial close.
type Closed struct {
	Symbol           string
	Side             market.Side
	Quantity         int64
	EntryPrice       float64
	ExitPrice        float64
	OpenedAt         time.Time
	ClosedAt         time.Time
	RealizedPL       float64
	Reason           string
	CorrelationGroup string
}
