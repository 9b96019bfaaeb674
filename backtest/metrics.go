package backtest

import "math"

// ratioCap bounds profit factor and win/loss ratio when there is nothing
// to divide by.
const ratioCap = 999.0

// Metrics summarises an equity curve and its closed trades. Returns and
// drawdowns are fractions; MaxDrawdown is zero or negative.
type Metrics struct {
	TotalReturn          float64 `json:"total_return"`
	AnnualizedReturn     float64 `json:"annualized_return"`
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	Sharpe               float64 `json:"sharpe_ratio"`
	Sortino              float64 `json:"sortino_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	MaxDrawdownDuration  int     `json:"max_drawdown_duration"` // in samples
	Calmar               float64 `json:"calmar_ratio"`

	NumTrades       int     `json:"num_trades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"win_rate"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	AvgWinLossRatio float64 `json:"avg_win_loss_ratio"`
	ProfitFactor    float64 `json:"profit_factor"`
}

// ComputeMetrics derives performance figures from equity samples and the
// net P&L of each closed trade. periodsPerYear scales per-sample figures
// (252 for daily bars); riskFreeRate is annual. A trade with P&L <= 0
// counts as a loss.
func ComputeMetrics(equity []float64, tradePL []float64, periodsPerYear, riskFreeRate float64) Metrics {
	var m Metrics
	m.tradeStats(tradePL)

	if len(equity) < 2 || equity[0] <= 0 {
		return m
	}
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}

	m.TotalReturn = equity[len(equity)-1]/equity[0] - 1
	years := float64(len(returns)) / periodsPerYear
	switch {
	case m.TotalReturn <= -1:
		m.AnnualizedReturn = -1
	case years > 0:
		m.AnnualizedReturn = math.Pow(1+m.TotalReturn, 1/years) - 1
	}

	periodRF := riskFreeRate / periodsPerYear
	vol := stddev(returns)
	m.AnnualizedVolatility = vol * math.Sqrt(periodsPerYear)

	excess := mean(returns) - periodRF
	if vol > 0 {
		m.Sharpe = excess / vol * math.Sqrt(periodsPerYear)
	}

	var downside []float64
	for _, r := range returns {
		if r < periodRF {
			downside = append(downside, r)
		}
	}
	downVol := vol
	if len(downside) > 1 {
		downVol = stddev(downside)
	}
	if downVol > 0 {
		m.Sortino = excess / downVol * math.Sqrt(periodsPerYear)
	}

	m.MaxDrawdown, m.MaxDrawdownDuration = drawdown(equity)
	if m.MaxDrawdown != 0 {
		m.Calmar = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
	}
	return m
}

func (m *Metrics) tradeStats(pl []float64) {
	m.NumTrades = len(pl)
	if m.NumTrades == 0 {
		return
	}

	var grossWin, grossLoss float64
	for _, p := range pl {
		if p > 0 {
			m.Wins++
			grossWin += p
		} else {
			m.Losses++
			grossLoss += p
		}
	}
	m.WinRate = float64(m.Wins) / float64(m.NumTrades)
	if m.Wins > 0 {
		m.AvgWin = grossWin / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = grossLoss / float64(m.Losses)
	}

	m.ProfitFactor = ratioCap
	if grossLoss < 0 {
		m.ProfitFactor = math.Min(grossWin/-grossLoss, ratioCap)
	}
	m.AvgWinLossRatio = ratioCap
	if m.AvgLoss != 0 {
		m.AvgWinLossRatio = math.Min(math.Abs(m.AvgWin/m.AvgLoss), ratioCap)
	}
}

// drawdown returns the deepest peak-to-trough fall as a negative fraction
// and the longest run of samples spent below a prior peak.
func drawdown(equity []float64) (float64, int) {
	var (
		peak    = equity[0]
		worst   float64
		run     int
		longest int
	)
	for _, e := range equity {
		if e >= peak {
			peak = e
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
		if peak > 0 {
			if dd := (e - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst, longest
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stddev is the sample standard deviation (n-1).
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
