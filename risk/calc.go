package risk

import "github.com/IvanHuYY/Stockbot/market"

// StopTarget derives a volatility stop k*ATR away from entry and a target
// rr times the stop distance on the other side.
func StopTarget(side market.Side, entry, atr, k, rr float64) (stop, target float64) {
	dist := k * atr
	stop = entry - side.Sign()*dist
	target = entry + side.Sign()*rr*dist
	return stop, target
}

// StopDistance is the signed distance from entry to stop in the losing
// direction. It is positive only when the stop sits on the correct side.
func StopDistance(side market.Side, entry, stop float64) float64 {
	return side.Sign() * (entry - stop)
}

// RewardRisk is (target-entry)/(entry-stop) for longs, mirrored for
// shorts. Zero when the stop is missing or on the wrong side.
func RewardRisk(side market.Side, entry, stop, target float64) float64 {
	risk := StopDistance(side, entry, stop)
	if risk <= 0 {
		return 0
	}
	reward := side.Sign() * (target - entry)
	return reward / risk
}

// RiskPct expresses an amount as a fraction of equity.
func RiskPct(amount, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	return amount / equity
}
