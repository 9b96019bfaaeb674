package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/IvanHuYY/Stockbot/backtest"
)

const (
	SummarySheet   = "Summary"
	TradesSheet    = "Trades"
	EquitySheet    = "Equity"
	DecisionsSheet = "Decisions"
)

const timeLayout = "2006-01-02 15:04:05"

type styles struct {
	header, money, percent int
}

// WriteExcel exports a run to an xlsx workbook with summary, trades,
// equity and decisions sheets.
func WriteExcel(path string, r *backtest.Result) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), SummarySheet); err != nil {
		return err
	}
	for _, s := range []string{TradesSheet, EquitySheet, DecisionsSheet} {
		if _, err := fx.NewSheet(s); err != nil {
			return err
		}
	}

	st, err := newStyles(fx)
	if err != nil {
		return err
	}

	writers := []func(*excelize.File, styles, *backtest.Result) error{
		writeSummary, writeTrades, writeEquity, writeDecisions,
	}
	for _, w := range writers {
		if err := w(fx, st, r); err != nil {
			return err
		}
	}
	return fx.SaveAs(path)
}

func newStyles(fx *excelize.File) (styles, error) {
	var st styles
	var err error

	st.header, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return st, err
	}
	st.money, err = fx.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return st, err
	}
	st.percent, err = fx.NewStyle(&excelize.Style{NumFmt: 10})
	return st, err
}

func writeHeader(fx *excelize.File, sheet string, st styles, cols ...string) error {
	for i, h := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := fx.SetCellStyle(sheet, "A1", last, st.header); err != nil {
		return err
	}
	return fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func setRow(fx *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return fx.SetSheetRow(sheet, cell, &values)
}

func styleCol(fx *excelize.File, sheet string, col, rows, style int) error {
	if rows < 2 {
		return nil
	}
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return err
	}
	return fx.SetCellStyle(sheet, name+"2", fmt.Sprintf("%s%d", name, rows), style)
}

func writeSummary(fx *excelize.File, st styles, r *backtest.Result) error {
	m := r.Metrics
	rows := [][]any{
		{"Run", r.RunID},
		{"Strategy", r.Strategy},
		{"Start", r.Start.Format(timeLayout)},
		{"End", r.End.Format(timeLayout)},
		{"Start equity", r.StartEquity},
		{"End equity", r.EndEquity},
		{"Net P&L", r.NetPL()},
		{"Total return", m.TotalReturn},
		{"Annualized return", m.AnnualizedReturn},
		{"Annualized volatility", m.AnnualizedVolatility},
		{"Sharpe", m.Sharpe},
		{"Sortino", m.Sortino},
		{"Max drawdown", m.MaxDrawdown},
		{"Max drawdown duration", m.MaxDrawdownDuration},
		{"Calmar", m.Calmar},
		{"Trades", m.NumTrades},
		{"Win rate", m.WinRate},
		{"Average win", m.AvgWin},
		{"Average loss", m.AvgLoss},
		{"Profit factor", m.ProfitFactor},
	}
	if err := writeHeader(fx, SummarySheet, st, "Metric", "Value"); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(fx, SummarySheet, i+2, row); err != nil {
			return err
		}
	}
	return fx.SetColWidth(SummarySheet, "A", "B", 24)
}

func writeTrades(fx *excelize.File, st styles, r *backtest.Result) error {
	if err := writeHeader(fx, TradesSheet, st,
		"Trade", "Symbol", "Side", "Quantity", "Entry", "Exit", "Opened", "Closed", "P&L", "Commission", "Reason", "Group"); err != nil {
		return err
	}
	for i, t := range r.Trades {
		row := []any{
			t.TradeID, t.Symbol, t.Side.String(), t.Quantity, t.EntryPrice, t.ExitPrice,
			t.OpenTime.Format(timeLayout), t.CloseTime.Format(timeLayout),
			t.RealizedPL, t.Commission, t.Reason, t.CorrelationGroup,
		}
		if err := setRow(fx, TradesSheet, i+2, row); err != nil {
			return err
		}
	}
	n := len(r.Trades) + 1
	for _, col := range []int{5, 6, 9, 10} {
		if err := styleCol(fx, TradesSheet, col, n, st.money); err != nil {
			return err
		}
	}
	return fx.SetColWidth(TradesSheet, "G", "H", 20)
}

func writeEquity(fx *excelize.File, st styles, r *backtest.Result) error {
	if err := writeHeader(fx, EquitySheet, st,
		"Time", "Cash", "Equity", "At risk", "Daily P&L", "Open positions"); err != nil {
		return err
	}
	for i, e := range r.Equity {
		row := []any{e.Time.Format(timeLayout), e.Cash, e.Equity, e.AtRisk, e.DailyPnLPct, e.OpenPositions}
		if err := setRow(fx, EquitySheet, i+2, row); err != nil {
			return err
		}
	}
	n := len(r.Equity) + 1
	for _, col := range []int{2, 3, 4} {
		if err := styleCol(fx, EquitySheet, col, n, st.money); err != nil {
			return err
		}
	}
	if err := styleCol(fx, EquitySheet, 5, n, st.percent); err != nil {
		return err
	}
	return fx.SetColWidth(EquitySheet, "A", "A", 20)
}

func writeDecisions(fx *excelize.File, st styles, r *backtest.Result) error {
	if err := writeHeader(fx, DecisionsSheet, st,
		"ID", "Time", "Symbol", "Side", "Entry", "ATR", "Confidence", "Approved", "Code",
		"Shares", "Stop", "Target", "R:R", "Portfolio risk", "Outcome", "Order", "Fill price", "Reasoning"); err != nil {
		return err
	}
	for i, d := range r.Decisions {
		c, a := d.Candidate, d.Assessment
		row := []any{
			d.ID, d.Time.Format(timeLayout), c.Symbol, c.Side.String(), c.EntryPrice, c.ATR, c.Confidence,
			a.Approved, string(a.Code), a.Shares(), a.SuggestedStopLoss, a.SuggestedTakeProfit,
			a.RiskRewardRatio, a.PortfolioRiskAfter, string(d.Outcome), d.OrderID, d.FillPrice, reasoning(d),
		}
		if err := setRow(fx, DecisionsSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := styleCol(fx, DecisionsSheet, 14, len(r.Decisions)+1, st.percent); err != nil {
		return err
	}
	return fx.SetColWidth(DecisionsSheet, "R", "R", 80)
}
