package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidLimits wraps every Limits validation failure. The engine must
// not run with limits that fail Validate.
var ErrInvalidLimits = errors.New("invalid risk limits")

// Limits are the sizing parameters and the five hard limits. All
// percentages are fractions of equity.
type Limits struct {
	// Sizing
	RiskPerTrade      float64 `json:"risk_per_trade" yaml:"risk_per_trade"`           // 0.02
	ATRMultiplierStop float64 `json:"atr_multiplier_stop" yaml:"atr_multiplier_stop"` // 2.0
	MinRewardRisk     float64 `json:"min_reward_risk" yaml:"min_reward_risk"`         // 2.0

	// Hard limits
	MaxPositionPct        float64 `json:"max_position_pct" yaml:"max_position_pct"`                 // 0.05
	MaxPortfolioRiskPct   float64 `json:"max_portfolio_risk_pct" yaml:"max_portfolio_risk_pct"`     // 0.20
	MaxDailyLossPct       float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`             // 0.03
	MaxCorrelationRiskPct float64 `json:"max_correlation_risk_pct" yaml:"max_correlation_risk_pct"` // 0.30
}

func DefaultLimits() Limits {
	return Limits{
		RiskPerTrade:          0.02,
		ATRMultiplierStop:     2.0,
		MinRewardRisk:         2.0,
		MaxPositionPct:        0.05,
		MaxPortfolioRiskPct:   0.20,
		MaxDailyLossPct:       0.03,
		MaxCorrelationRiskPct: 0.30,
	}
}

// Validate rejects non-finite values, non-positive multipliers and any
// fraction outside (0, 1].
func (l Limits) Validate() error {
	fractions := []struct {
		name string
		v    float64
	}{
		{"risk_per_trade", l.RiskPerTrade},
		{"max_position_pct", l.MaxPositionPct},
		{"max_portfolio_risk_pct", l.MaxPortfolioRiskPct},
		{"max_daily_loss_pct", l.MaxDailyLossPct},
		{"max_correlation_risk_pct", l.MaxCorrelationRiskPct},
	}
	for _, f := range fractions {
		if !finite(f.v) || f.v <= 0 || f.v > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidLimits, f.name, f.v)
		}
	}
	if !finite(l.ATRMultiplierStop) || l.ATRMultiplierStop <= 0 {
		return fmt.Errorf("%w: atr_multiplier_stop must be positive, got %v", ErrInvalidLimits, l.ATRMultiplierStop)
	}
	if !finite(l.MinRewardRisk) || l.MinRewardRisk <= 0 {
		return fmt.Errorf("%w: min_reward_risk must be positive, got %v", ErrInvalidLimits, l.MinRewardRisk)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
