package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/portfolio"
)

func flat(equity float64) portfolio.Snapshot {
	return portfolio.Snapshot{Cash: equity, Equity: equity, DailyStartEquity: equity}
}

func longAt(symbol string, entry, atr float64) Candidate {
	return Candidate{
		Symbol:           symbol,
		Side:             market.Long,
		EntryPrice:       entry,
		ATR:              atr,
		Confidence:       0.7,
		CorrelationGroup: "tech",
	}
}

func TestEvaluate_SizingScenario(t *testing.T) {
	t.Parallel()

	a := Evaluate(longAt("AAPL", 50, 2), flat(100_000), DefaultLimits())

	require.True(t, a.Approved, a.Reasoning)
	assert.Equal(t, CodeApproved, a.Code)
	assert.InDelta(t, 46.0, a.SuggestedStopLoss, 1e-9)
	assert.InDelta(t, 58.0, a.SuggestedTakeProfit, 1e-9)
	assert.InDelta(t, 100.0, a.MaxPositionSize, 1e-9)
	assert.Equal(t, int64(100), a.Shares())
	assert.InDelta(t, 5000.0, a.PositionValue, 1e-9)
	assert.InDelta(t, 400.0, a.RiskAmount, 1e-9)
	assert.InDelta(t, 2.0, a.RiskRewardRatio, 1e-9)
	assert.InDelta(t, 0.004, a.PortfolioRiskAfter, 1e-12)
}

func TestEvaluate_SizingIsCappedByPositionLimit(t *testing.T) {
	t.Parallel()

	size := Calculate(SizeInputs{
		Equity:         100_000,
		RiskPct:        0.02,
		MaxPositionPct: 0.05,
		EntryPrice:     50,
		StopDistance:   4,
	})

	assert.Equal(t, int64(500), size.RawShares)
	assert.Equal(t, int64(100), size.CapShares)
	assert.Equal(t, int64(100), size.Shares)
	assert.InDelta(t, 2000.0, size.RiskBudget, 1e-9)
}

func TestEvaluate_ShortMirrorsStopAndTarget(t *testing.T) {
	t.Parallel()

	c := longAt("TSLA", 50, 2)
	c.Side = market.Short

	a := Evaluate(c, flat(100_000), DefaultLimits())

	require.True(t, a.Approved, a.Reasoning)
	assert.InDelta(t, 54.0, a.SuggestedStopLoss, 1e-9)
	assert.InDelta(t, 42.0, a.SuggestedTakeProfit, 1e-9)
	assert.InDelta(t, 2.0, a.RiskRewardRatio, 1e-9)
	assert.Equal(t, int64(100), a.Shares())
}

func TestEvaluate_DailyLossGate(t *testing.T) {
	t.Parallel()

	s := flat(96_000)
	s.DailyStartEquity = 100_000 // -4%

	a := Evaluate(longAt("AAPL", 50, 2), s, DefaultLimits())

	assert.False(t, a.Approved)
	assert.Equal(t, CodeDailyLoss, a.Code)
	assert.Contains(t, a.Reasoning, "daily loss limit breached")
	assert.Zero(t, a.MaxPositionSize)
	assert.Zero(t, a.SuggestedStopLoss)
}

func TestEvaluate_DailyLossGateAtExactBoundary(t *testing.T) {
	t.Parallel()

	s := flat(97_000)
	s.DailyStartEquity = 100_000 // exactly -3%

	a := Evaluate(longAt("AAPL", 50, 2), s, DefaultLimits())
	assert.Equal(t, CodeDailyLoss, a.Code)

	s = flat(97_100)
	s.DailyStartEquity = 100_000
	a = Evaluate(longAt("AAPL", 50, 2), s, DefaultLimits())
	assert.True(t, a.Approved, a.Reasoning)
}

func TestEvaluate_DailyLossGateIgnoresEverythingElse(t *testing.T) {
	t.Parallel()

	s := flat(90_000)
	s.DailyStartEquity = 100_000

	// Malformed candidate: the daily gate still reports first.
	a := Evaluate(Candidate{}, s, DefaultLimits())
	assert.Equal(t, CodeDailyLoss, a.Code)
}

func TestEvaluate_AggregateRiskScenario(t *testing.T) {
	t.Parallel()

	// Two positions at 9% at-risk each = 18%.
	s := portfolio.Snapshot{
		Cash:             40_000,
		Equity:           100_000,
		DailyStartEquity: 100_000,
		Positions: []portfolio.Position{
			{Symbol: "XOM", Side: market.Long, Quantity: 300, EntryPrice: 100, CurrentPrice: 100, StopLoss: 70, CorrelationGroup: "energy"},
			{Symbol: "JPM", Side: market.Long, Quantity: 300, EntryPrice: 100, CurrentPrice: 100, StopLoss: 70, CorrelationGroup: "banks"},
		},
	}
	require.InDelta(t, 18_000.0, s.AtRisk(), 1e-9)

	l := DefaultLimits()
	l.RiskPerTrade = 0.04
	l.MaxPositionPct = 0.5

	c := longAt("WMT", 50, 2)
	c.CorrelationGroup = "retail"

	// Stand-alone the candidate passes.
	alone := Evaluate(c, flat(100_000), l)
	require.True(t, alone.Approved, alone.Reasoning)
	assert.InDelta(t, 4000.0, alone.RiskAmount, 1e-9)

	a := Evaluate(c, s, l)
	assert.False(t, a.Approved)
	assert.Equal(t, CodePortfolioRisk, a.Code)
	assert.InDelta(t, 0.22, a.PortfolioRiskAfter, 1e-9)
	assert.Contains(t, a.Reasoning, "portfolio risk 22.00%")
}

func TestEvaluate_CorrelationCap(t *testing.T) {
	t.Parallel()

	s := portfolio.Snapshot{
		Cash:             80_000,
		Equity:           100_000,
		DailyStartEquity: 100_000,
		Positions: []portfolio.Position{
			{Symbol: "MSFT", Side: market.Long, Quantity: 100, EntryPrice: 100, CurrentPrice: 100, StopLoss: 92, CorrelationGroup: "tech"},
			{Symbol: "NVDA", Side: market.Long, Quantity: 100, EntryPrice: 100, CurrentPrice: 100, StopLoss: 92, CorrelationGroup: "tech"},
		},
	}

	l := DefaultLimits()
	l.MaxCorrelationRiskPct = 0.015 // 1.6% already in "tech"

	a := Evaluate(longAt("AAPL", 50, 2), s, l)
	assert.False(t, a.Approved)
	assert.Equal(t, CodeCorrelation, a.Code)
	assert.InDelta(t, 0.02, a.CorrelationRiskAfter, 1e-9)

	// A candidate outside the group is unaffected.
	other := longAt("KO", 50, 2)
	other.CorrelationGroup = "staples"
	a = Evaluate(other, s, l)
	assert.True(t, a.Approved, a.Reasoning)
}

func TestEvaluate_RewardRiskOverride(t *testing.T) {
	t.Parallel()

	c := longAt("AAPL", 50, 2)
	c.TargetPrice = 55 // 5/4 = 1.25R

	a := Evaluate(c, flat(100_000), DefaultLimits())
	assert.False(t, a.Approved)
	assert.Equal(t, CodeRewardRisk, a.Code)
	assert.InDelta(t, 1.25, a.RiskRewardRatio, 1e-9)

	c.TargetPrice = 62 // wider target is fine
	a = Evaluate(c, flat(100_000), DefaultLimits())
	assert.True(t, a.Approved, a.Reasoning)
	assert.InDelta(t, 3.0, a.RiskRewardRatio, 1e-9)
}

func TestEvaluate_StopOverrideDerivesTarget(t *testing.T) {
	t.Parallel()

	c := longAt("AAPL", 50, 2)
	c.StopPrice = 48

	a := Evaluate(c, flat(100_000), DefaultLimits())
	require.True(t, a.Approved, a.Reasoning)
	assert.InDelta(t, 48.0, a.SuggestedStopLoss, 1e-9)
	assert.InDelta(t, 54.0, a.SuggestedTakeProfit, 1e-9)
}

func TestEvaluate_SizeRoundsToZero(t *testing.T) {
	t.Parallel()

	// 5% of 1000 buys no share of a 500 stock.
	a := Evaluate(longAt("BRK", 500, 5), flat(1_000), DefaultLimits())
	assert.False(t, a.Approved)
	assert.Equal(t, CodeSizeZero, a.Code)
	assert.Contains(t, a.Reasoning, "position size rounds to zero")
}

func TestEvaluate_InvalidCandidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mut    func(*Candidate)
		reason string
	}{
		{"no symbol", func(c *Candidate) { c.Symbol = "" }, "symbol is required"},
		{"bad side", func(c *Candidate) { c.Side = 0 }, "direction"},
		{"zero entry", func(c *Candidate) { c.EntryPrice = 0 }, "entry price"},
		{"negative atr", func(c *Candidate) { c.ATR = -1 }, "ATR must be non-negative"},
		{"zero atr", func(c *Candidate) { c.ATR = 0 }, "zero stop distance (ATR 0)"},
		{"stop at entry", func(c *Candidate) { c.StopPrice = 50 }, "zero stop distance"},
		{"confidence above one", func(c *Candidate) { c.Confidence = 1.5 }, "confidence"},
		{"stop above long entry", func(c *Candidate) { c.StopPrice = 51 }, "not on the losing side"},
		{"stop below zero", func(c *Candidate) { c.ATR = 30 }, "must be positive"},
		{"nan entry", func(c *Candidate) { c.EntryPrice = math.NaN() }, "entry price"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := longAt("AAPL", 50, 2)
			tt.mut(&c)
			a := Evaluate(c, flat(100_000), DefaultLimits())
			assert.False(t, a.Approved)
			assert.Equal(t, CodeInvalidCandidate, a.Code)
			assert.Contains(t, a.Reasoning, tt.reason)
		})
	}
}

func TestEvaluate_DoesNotMutateSnapshot(t *testing.T) {
	t.Parallel()

	s := portfolio.Snapshot{
		Cash: 95_000, Equity: 100_000, DailyStartEquity: 100_000,
		Positions: []portfolio.Position{
			{Symbol: "MSFT", Side: market.Long, Quantity: 50, EntryPrice: 100, CurrentPrice: 100, StopLoss: 90, OpenedAt: time.Unix(0, 0)},
		},
	}
	before := s
	beforePos := append([]portfolio.Position(nil), s.Positions...)

	_ = Evaluate(longAt("AAPL", 50, 2), s, DefaultLimits())

	assert.Equal(t, before.Equity, s.Equity)
	assert.Equal(t, beforePos, s.Positions)
}

func TestEvaluate_ReasonsAreDeterministic(t *testing.T) {
	t.Parallel()

	c := longAt("AAPL", 50, 2)
	a1 := Evaluate(c, flat(100_000), DefaultLimits())
	a2 := Evaluate(c, flat(100_000), DefaultLimits())
	assert.Equal(t, a1, a2)
}

// Randomized check of the invariants every approval must satisfy.
func TestEvaluate_ApprovalInvariants(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	l := DefaultLimits()
	groups := []string{"tech", "energy", "banks", ""}
	approved := 0

	for i := 0; i < 2000; i++ {
		equity := 10_000 + rng.Float64()*990_000
		s := portfolio.Snapshot{Equity: equity, Cash: equity, DailyStartEquity: equity * (0.95 + rng.Float64()*0.1)}

		n := rng.Intn(6)
		for j := 0; j < n; j++ {
			entry := 5 + rng.Float64()*500
			side := market.Long
			if rng.Intn(2) == 0 {
				side = market.Short
			}
			stop := entry - side.Sign()*entry*rng.Float64()*0.1
			s.Positions = append(s.Positions, portfolio.Position{
				Symbol:           string(rune('A'+j)) + "X",
				Side:             side,
				Quantity:         int64(1 + rng.Intn(100)),
				EntryPrice:       entry,
				CurrentPrice:     entry,
				StopLoss:         stop,
				CorrelationGroup: groups[rng.Intn(len(groups))],
			})
		}

		c := Candidate{
			Symbol:           "CAND",
			Side:             market.Long,
			EntryPrice:       1 + rng.Float64()*400,
			Confidence:       rng.Float64(),
			CorrelationGroup: groups[rng.Intn(len(groups))],
		}
		if rng.Intn(2) == 0 {
			c.Side = market.Short
		}
		c.ATR = c.EntryPrice * rng.Float64() * 0.05

		a := Evaluate(c, s, l)
		if s.DailyPnLPct() <= -l.MaxDailyLossPct {
			assert.False(t, a.Approved)
			continue
		}
		if !a.Approved {
			continue
		}
		approved++

		assert.LessOrEqual(t, a.PositionValue/s.Equity, l.MaxPositionPct+Tolerance)
		assert.LessOrEqual(t, (s.AtRisk()+a.RiskAmount)/s.Equity, l.MaxPortfolioRiskPct+Tolerance)
		assert.GreaterOrEqual(t, a.RiskRewardRatio, l.MinRewardRisk-Tolerance)
		if c.CorrelationGroup != "" {
			assert.LessOrEqual(t, (s.GroupAtRisk(c.CorrelationGroup)+a.RiskAmount)/s.Equity, l.MaxCorrelationRiskPct+Tolerance)
		}
		assert.GreaterOrEqual(t, a.PortfolioRiskAfter, 0.0)
		assert.LessOrEqual(t, a.PortfolioRiskAfter, 1.0)
	}

	assert.Greater(t, approved, 100)
}

func TestLimitsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultLimits().Validate())

	tests := []struct {
		name string
		mut  func(*Limits)
	}{
		{"zero risk per trade", func(l *Limits) { l.RiskPerTrade = 0 }},
		{"negative risk per trade", func(l *Limits) { l.RiskPerTrade = -0.01 }},
		{"position cap above one", func(l *Limits) { l.MaxPositionPct = 1.5 }},
		{"zero portfolio risk", func(l *Limits) { l.MaxPortfolioRiskPct = 0 }},
		{"nan daily loss", func(l *Limits) { l.MaxDailyLossPct = math.NaN() }},
		{"zero correlation cap", func(l *Limits) { l.MaxCorrelationRiskPct = 0 }},
		{"zero atr multiplier", func(l *Limits) { l.ATRMultiplierStop = 0 }},
		{"negative min rr", func(l *Limits) { l.MinRewardRisk = -2 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := DefaultLimits()
			tt.mut(&l)
			assert.ErrorIs(t, l.Validate(), ErrInvalidLimits)
		})
	}
}
