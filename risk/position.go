package risk

import "math"

// floorEps absorbs binary representation error before flooring share
// counts, so 0.05*100000/50 yields 100 and not 99.
const floorEps = 1e-9

type SizeInputs struct {
	Equity         float64
	RiskPct        float64 // fraction of equity risked on the trade
	MaxPositionPct float64 // cap on position value as a fraction of equity
	EntryPrice     float64
	StopDistance   float64 // |entry - stop|
}

type Size struct {
	RawShares     int64   // risk-budget shares before the cap
	CapShares     int64   // largest share count within the position cap
	Shares        int64   // min(RawShares, CapShares)
	RiskBudget    float64 // equity * RiskPct
	RiskAmount    float64 // Shares * StopDistance
	PositionValue float64 // Shares * EntryPrice
}

// Calculate sizes a position so that hitting the stop loses at most
// RiskPct of equity, then caps its value at MaxPositionPct of equity.
func Calculate(in SizeInputs) Size {
	var s Size
	if in.Equity <= 0 || in.EntryPrice <= 0 || in.StopDistance <= 0 {
		return s
	}

	s.RiskBudget = in.Equity * in.RiskPct
	s.RawShares = floorShares(s.RiskBudget / in.StopDistance)
	s.CapShares = CapShares(in.Equity, in.MaxPositionPct, in.EntryPrice)

	s.Shares = s.RawShares
	if s.CapShares < s.Shares {
		s.Shares = s.CapShares
	}
	if s.Shares < 0 {
		s.Shares = 0
	}

	s.RiskAmount = float64(s.Shares) * in.StopDistance
	s.PositionValue = float64(s.Shares) * in.EntryPrice
	return s
}

// CapShares is the most whole shares at price that keep the position
// within maxPct of equity.
func CapShares(equity, maxPct, price float64) int64 {
	if equity <= 0 || price <= 0 {
		return 0
	}
	return floorShares(maxPct * equity / price)
}

func floorShares(x float64) int64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	if x >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Floor(x + floorEps))
}
