package portfolio

// Snapshot is an immutable, consistent view of a Portfolio. The risk
// engine only ever reads snapshots.
type Snapshot struct {
	Cash             float64    `json:"cash" yaml:"cash"`
	Equity           float64    `json:"equity" yaml:"equity"`
	DailyStartEquity float64    `json:"daily_start_equity" yaml:"daily_start_equity"`
	Positions        []Position `json:"positions" yaml:"positions"`
}

// DailyPnLPct is the change in equity since the daily baseline, as a
// fraction (-0.03 is a 3% loss).
func (s Snapshot) DailyPnLPct() float64 {
	return dailyPnLPct(s.Equity, s.DailyStartEquity)
}

// AtRisk sums the at-risk capital of every position.
func (s Snapshot) AtRisk() float64 {
	var sum float64
	for _, p := range s.Positions {
		sum += p.AtRisk()
	}
	return sum
}

// GroupAtRisk sums the at-risk capital of positions in group. Positions
// without a group never share one.
func (s Snapshot) GroupAtRisk(group string) float64 {
	if group == "" {
		return 0
	}
	var sum float64
	for _, p := range s.Positions {
		if p.CorrelationGroup == group {
			sum += p.AtRisk()
		}
	}
	return sum
}

func (s Snapshot) Has(symbol string) bool {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// With returns a copy that also holds p. Equity is unchanged: the
// position is treated as bought at its entry price. The backtester uses
// this to account for orders queued but not yet filled.
func (s Snapshot) With(p Position) Snapshot {
	out := s
	out.Positions = make([]Position, 0, len(s.Positions)+1)
	out.Positions = append(out.Positions, s.Positions...)
	if p.CurrentPrice == 0 {
		p.CurrentPrice = p.EntryPrice
	}
	out.Positions = append(out.Positions, p)
	out.Cash -= p.MarketValue()
	return out
}

func dailyPnLPct(equity, start float64) float64 {
	if start <= 0 {
		return 0
	}
	return (equity - start) / start
}
