// Package report renders backtest results for people: console tables and
// spreadsheet exports.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/IvanHuYY/Stockbot/backtest"
	"github.com/IvanHuYY/Stockbot/journal"
)

func pct(x float64) string   { return fmt.Sprintf("%.2f%%", 100*x) }
func money(x float64) string { return fmt.Sprintf("%.2f", x) }

// PrintSummary writes the headline figures of one run.
func PrintSummary(w io.Writer, r *backtest.Result) {
	m := r.Metrics

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BACKTEST " + r.RunID)
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Strategy", r.Strategy},
		{"Symbols", fmt.Sprint(r.Symbols)},
		{"Period", r.Start.Format("2006-01-02") + " .. " + r.End.Format("2006-01-02")},
		{"Start equity", money(r.StartEquity)},
		{"End equity", money(r.EndEquity)},
		{"Net P&L", money(r.NetPL())},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Total return", pct(m.TotalReturn)},
		{"Annualized return", pct(m.AnnualizedReturn)},
		{"Volatility", pct(m.AnnualizedVolatility)},
		{"Sharpe", fmt.Sprintf("%.2f", m.Sharpe)},
		{"Sortino", fmt.Sprintf("%.2f", m.Sortino)},
		{"Max drawdown", pct(m.MaxDrawdown)},
		{"Drawdown length", m.MaxDrawdownDuration},
		{"Calmar", fmt.Sprintf("%.2f", m.Calmar)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Trades", m.NumTrades},
		{"Win rate", pct(m.WinRate)},
		{"Avg win / loss", money(m.AvgWin) + " / " + money(m.AvgLoss)},
		{"Profit factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
	})
	t.AppendSeparator()

	outcomes := r.Outcomes()
	keys := make([]string, 0, len(outcomes))
	for o := range outcomes {
		keys = append(keys, string(o))
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{"Decisions " + k, outcomes[journal.Outcome(k)]})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
}

// PrintComparison writes one row per ranked variant.
func PrintComparison(w io.Writer, ranked []backtest.Ranked) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("STRATEGY COMPARISON")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Variant", "Sharpe", "Return", "Max DD", "Trades", "Win rate", "Profit factor"})

	for _, r := range ranked {
		m := r.Result.Metrics
		t.AppendRow(table.Row{
			r.Rank,
			r.Name,
			fmt.Sprintf("%.2f", m.Sharpe),
			pct(m.TotalReturn),
			pct(m.MaxDrawdown),
			m.NumTrades,
			pct(m.WinRate),
			fmt.Sprintf("%.2f", m.ProfitFactor),
		})
	}
	t.Render()
}

// PrintTrades lists closed trades.
func PrintTrades(w io.Writer, trades []journal.TradeRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Symbol", "Side", "Qty", "Entry", "Exit", "Opened", "Closed", "P&L", "Reason"})

	var total float64
	for _, tr := range trades {
		total += tr.RealizedPL
		t.AppendRow(table.Row{
			tr.TradeID, tr.Symbol, tr.Side.String(), tr.Quantity,
			money(tr.EntryPrice), money(tr.ExitPrice),
			tr.OpenTime.Format("2006-01-02 15:04"), tr.CloseTime.Format("2006-01-02 15:04"),
			money(tr.RealizedPL), tr.Reason,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "Total", money(total), ""})
	t.Render()
}

// PrintDecisions lists decision records, one line each.
func PrintDecisions(w io.Writer, ds []journal.DecisionRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Time", "Symbol", "Side", "Outcome", "Code", "Shares", "Stop", "Target", "Reasoning"})

	for _, d := range ds {
		t.AppendRow(table.Row{
			d.Time.Format("2006-01-02 15:04"),
			d.Candidate.Symbol,
			d.Candidate.Side.String(),
			string(d.Outcome),
			string(d.Assessment.Code),
			d.Assessment.Shares(),
			money(d.Assessment.SuggestedStopLoss),
			money(d.Assessment.SuggestedTakeProfit),
			reasoning(d),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 9, WidthMax: 60},
	})
	t.Render()
}

func reasoning(d journal.DecisionRecord) string {
	if d.Error != "" {
		return d.Error
	}
	return d.Assessment.Reasoning
}
