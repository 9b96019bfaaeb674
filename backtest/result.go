package backtest

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/IvanHuYY/Stockbot/journal"
)

// Result is everything one run produced. Trades, equity samples and
// decisions are in the order they happened.
type Result struct {
	RunID    string
	Strategy string
	Symbols  []string
	Start    time.Time
	End      time.Time
	Config   Config

	StartEquity float64
	EndEquity   float64

	Trades    []journal.TradeRecord
	Equity    []journal.EquitySnapshot
	Decisions []journal.DecisionRecord

	Metrics Metrics
}

func (r *Result) NetPL() float64 { return r.EndEquity - r.StartEquity }

// EquityCurve is the equity of every sample, starting with the initial
// cash.
func (r *Result) EquityCurve() []float64 {
	out := make([]float64, 0, len(r.Equity)+1)
	out = append(out, r.StartEquity)
	for _, e := range r.Equity {
		out = append(out, e.Equity)
	}
	return out
}

// Approved counts decisions the risk engine approved.
func (r *Result) Approved() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Assessment.Approved {
			n++
		}
	}
	return n
}

// Outcomes counts decisions by outcome.
func (r *Result) Outcomes() map[journal.Outcome]int {
	out := make(map[journal.Outcome]int)
	for _, d := range r.Decisions {
		out[d.Outcome]++
	}
	return out
}

// Summary converts the result to the stored run record.
func (r *Result) Summary(dataset string, created time.Time) (journal.BacktestRun, error) {
	cfg, err := yaml.Marshal(r.Config)
	if err != nil {
		return journal.BacktestRun{}, fmt.Errorf("encode run config: %w", err)
	}
	m := r.Metrics
	l := r.Config.Limits
	return journal.BacktestRun{
		RunID:             r.RunID,
		Created:           created,
		Strategy:          r.Strategy,
		Dataset:           dataset,
		Symbols:           append([]string(nil), r.Symbols...),
		Config:            cfg,
		RiskPerTrade:      l.RiskPerTrade,
		ATRMultiplierStop: l.ATRMultiplierStop,
		MinRewardRisk:     l.MinRewardRisk,
		MaxPortfolioRisk:  l.MaxPortfolioRiskPct,
		Start:             r.Start,
		End:               r.End,
		Trades:            m.NumTrades,
		Wins:              m.Wins,
		Losses:            m.Losses,
		Decisions:         len(r.Decisions),
		Approved:          r.Approved(),
		StartEquity:       r.StartEquity,
		EndEquity:         r.EndEquity,
		NetPL:             r.NetPL(),
		ReturnPct:         100 * m.TotalReturn,
		WinRate:           m.WinRate,
		ProfitFactor:      m.ProfitFactor,
		MaxDDPct:          100 * m.MaxDrawdown,
		Sharpe:            m.Sharpe,
		Sortino:           m.Sortino,
	}, nil
}

func (r *Result) WriteTradesCSV(w io.Writer) error {
	return journal.WriteTradesCSV(w, r.Trades)
}

func (r *Result) WriteEquityCSV(w io.Writer) error {
	return journal.WriteEquityCSV(w, r.Equity)
}
