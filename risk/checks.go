package risk

import (
	"fmt"
	"math"

	"github.com/IvanHuYY/Stockbot/portfolio"
)

// Tolerance is the numeric slack allowed on the reward/risk floor and
// the per-position cap.
const Tolerance = 1e-6

// capSlack keeps exact-boundary aggregate and correlation checks from
// failing on representation error.
const capSlack = 1e-9

// Evaluate runs the hard-limit checks for one candidate against a
// portfolio snapshot. Checks run in a fixed order and the first failure
// decides the reasoning. Evaluate has no side effects.
func Evaluate(c Candidate, s portfolio.Snapshot, l Limits) Assessment {
	// 1. Daily-loss gate: nothing else is computed once it trips.
	if pnl := s.DailyPnLPct(); pnl <= -l.MaxDailyLossPct {
		return reject(Assessment{}, CodeDailyLoss,
			fmt.Sprintf("daily loss limit breached: daily P&L %.2f%% <= -%.2f%%",
				100*pnl, 100*l.MaxDailyLossPct))
	}

	if msg := validateCandidate(c, s); msg != "" {
		return reject(Assessment{}, CodeInvalidCandidate, "invalid candidate: "+msg)
	}

	// 2. Stop and target.
	stop, target := StopTarget(c.Side, c.EntryPrice, c.ATR, l.ATRMultiplierStop, l.MinRewardRisk)
	if c.StopPrice != 0 {
		stop = c.StopPrice
		target = c.EntryPrice + c.Side.Sign()*l.MinRewardRisk*StopDistance(c.Side, c.EntryPrice, stop)
	}
	if c.TargetPrice != 0 {
		target = c.TargetPrice
	}
	dist := StopDistance(c.Side, c.EntryPrice, stop)
	if dist == 0 {
		return reject(Assessment{}, CodeInvalidCandidate,
			fmt.Sprintf("invalid candidate: zero stop distance (ATR %v), stop equals entry %.4f", c.ATR, c.EntryPrice))
	}
	if dist < 0 {
		return reject(Assessment{}, CodeInvalidCandidate,
			fmt.Sprintf("invalid candidate: stop %.4f is not on the losing side of entry %.4f", stop, c.EntryPrice))
	}
	if stop <= 0 || target <= 0 {
		return reject(Assessment{}, CodeInvalidCandidate,
			fmt.Sprintf("invalid candidate: stop %.4f and target %.4f must be positive", stop, target))
	}

	a := Assessment{
		SuggestedStopLoss:   stop,
		SuggestedTakeProfit: target,
		RiskRewardRatio:     RewardRisk(c.Side, c.EntryPrice, stop, target),
	}

	// 3. Sizing.
	equity := s.Equity
	size := Calculate(SizeInputs{
		Equity:         equity,
		RiskPct:        l.RiskPerTrade,
		MaxPositionPct: l.MaxPositionPct,
		EntryPrice:     c.EntryPrice,
		StopDistance:   dist,
	})
	if size.Shares <= 0 {
		return reject(a, CodeSizeZero,
			fmt.Sprintf("position size rounds to zero: risk budget %.2f / stop distance %.4f, cap %.2f / entry %.4f",
				size.RiskBudget, dist, l.MaxPositionPct*equity, c.EntryPrice))
	}
	a.MaxPositionSize = float64(size.Shares)
	a.PositionValue = size.PositionValue
	a.RiskAmount = size.RiskAmount

	// 4. Per-position cap, holds by construction.
	if pct := RiskPct(size.PositionValue, equity); pct > l.MaxPositionPct+Tolerance {
		return reject(a, CodePositionCap,
			fmt.Sprintf("position value %.2f%% of equity exceeds max %.2f%%", 100*pct, 100*l.MaxPositionPct))
	}

	// 5. Aggregate risk.
	a.PortfolioRiskAfter = RiskPct(s.AtRisk()+size.RiskAmount, equity)
	if a.PortfolioRiskAfter > l.MaxPortfolioRiskPct+capSlack {
		return reject(a, CodePortfolioRisk,
			fmt.Sprintf("portfolio risk %.2f%% after trade exceeds max %.2f%%",
				100*a.PortfolioRiskAfter, 100*l.MaxPortfolioRiskPct))
	}

	// 6. Reward/risk.
	if a.RiskRewardRatio < l.MinRewardRisk-Tolerance {
		return reject(a, CodeRewardRisk,
			fmt.Sprintf("reward/risk %.2f below minimum %.2f", a.RiskRewardRatio, l.MinRewardRisk))
	}

	// 7. Correlation group.
	a.CorrelationRiskAfter = RiskPct(s.GroupAtRisk(c.CorrelationGroup)+size.RiskAmount, equity)
	if a.CorrelationRiskAfter > l.MaxCorrelationRiskPct+capSlack {
		return reject(a, CodeCorrelation,
			fmt.Sprintf("correlation group %q risk %.2f%% after trade exceeds max %.2f%%",
				c.CorrelationGroup, 100*a.CorrelationRiskAfter, 100*l.MaxCorrelationRiskPct))
	}

	a.Approved = true
	a.Code = CodeApproved
	a.Reasoning = fmt.Sprintf("approved: %d shares %s %s @ %.4f, stop %.4f, target %.4f, R:R %.2f, risk %.2f (%.2f%%), portfolio risk %.2f%%",
		size.Shares, c.Side, c.Symbol, c.EntryPrice, stop, target, a.RiskRewardRatio,
		size.RiskAmount, 100*RiskPct(size.RiskAmount, equity), 100*a.PortfolioRiskAfter)
	return a
}

func reject(a Assessment, code Code, reason string) Assessment {
	a.Approved = false
	a.Code = code
	a.Reasoning = reason
	return a
}

func validateCandidate(c Candidate, s portfolio.Snapshot) string {
	switch {
	case c.Symbol == "":
		return "symbol is required"
	case !c.Side.Valid():
		return fmt.Sprintf("direction must be long or short for %s", c.Symbol)
	case !finite(c.EntryPrice) || c.EntryPrice <= 0:
		return fmt.Sprintf("entry price must be positive, got %v", c.EntryPrice)
	case !finite(c.ATR) || c.ATR < 0:
		return fmt.Sprintf("ATR must be non-negative, got %v", c.ATR)
	case math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1:
		return fmt.Sprintf("confidence must be in [0, 1], got %v", c.Confidence)
	case !finite(c.StopPrice) || c.StopPrice < 0:
		return fmt.Sprintf("stop override must be non-negative, got %v", c.StopPrice)
	case !finite(c.TargetPrice) || c.TargetPrice < 0:
		return fmt.Sprintf("target override must be non-negative, got %v", c.TargetPrice)
	case !finite(s.Equity) || s.Equity <= 0:
		return fmt.Sprintf("equity must be positive, got %.2f", s.Equity)
	}
	return ""
}
