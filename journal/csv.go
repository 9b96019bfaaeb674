package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	TradeHeader    = []string{"trade_id", "symbol", "side", "quantity", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "commission", "reason", "correlation_group"}
	EquityHeader   = []string{"time", "cash", "equity", "at_risk", "daily_pnl_pct", "open_positions"}
	DecisionHeader = []string{"id", "time", "symbol", "direction", "entry_price", "atr", "confidence", "correlation_group", "approved", "code", "shares", "stop", "target", "rr", "portfolio_risk_after", "outcome", "fill_price", "reasoning"}
)

// CSVJournal writes one CSV file per record kind. Decisions are only
// written when a decisions path is given.
type CSVJournal struct {
	mu        sync.Mutex
	trades    *csv.Writer
	equity    *csv.Writer
	decisions *csv.Writer
	files     []*os.File
}

func NewCSV(tradesPath, equityPath, decisionsPath string) (*CSVJournal, error) {
	j := &CSVJournal{}

	open := func(path string, header []string) (*csv.Writer, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, f)
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.trades, err = open(tradesPath, TradeHeader); err != nil {
		j.closeFiles()
		return nil, fmt.Errorf("csv journal trades: %w", err)
	}
	if j.equity, err = open(equityPath, EquityHeader); err != nil {
		j.closeFiles()
		return nil, fmt.Errorf("csv journal equity: %w", err)
	}
	if decisionsPath != "" {
		if j.decisions, err = open(decisionsPath, DecisionHeader); err != nil {
			j.closeFiles()
			return nil, fmt.Errorf("csv journal decisions: %w", err)
		}
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return writeFlush(j.trades, TradeRow(t))
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return writeFlush(j.equity, EquityRow(e))
}

func (j *CSVJournal) RecordDecision(d DecisionRecord) error {
	if j.decisions == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return writeFlush(j.decisions, DecisionRow(d))
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, w := range []*csv.Writer{j.trades, j.equity, j.decisions} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	return j.closeFiles()
}

func (j *CSVJournal) closeFiles() error {
	var first error
	for _, f := range j.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	j.files = nil
	return first
}

// WriteTradesCSV writes a header and one row per trade.
func WriteTradesCSV(w io.Writer, trades []TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write(TradeRow(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes a header and one row per sample.
func WriteEquityCSV(w io.Writer, points []EquitySnapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EquityHeader); err != nil {
		return err
	}
	for _, e := range points {
		if err := cw.Write(EquityRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func TradeRow(t TradeRecord) []string {
	return []string{
		t.TradeID,
		t.Symbol,
		sideText(t.Side),
		strconv.FormatInt(t.Quantity, 10),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.UTC().Format(time.RFC3339),
		t.CloseTime.UTC().Format(time.RFC3339),
		f(t.RealizedPL),
		f(t.Commission),
		t.Reason,
		t.CorrelationGroup,
	}
}

func EquityRow(e EquitySnapshot) []string {
	return []string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.Cash),
		f(e.Equity),
		f(e.AtRisk),
		f(e.DailyPnLPct),
		strconv.Itoa(e.OpenPositions),
	}
}

func DecisionRow(d DecisionRecord) []string {
	c, a := d.Candidate, d.Assessment
	return []string{
		d.ID,
		d.Time.UTC().Format(time.RFC3339),
		c.Symbol,
		sideText(c.Side),
		f(c.EntryPrice),
		f(c.ATR),
		f(c.Confidence),
		c.CorrelationGroup,
		strconv.FormatBool(a.Approved),
		string(a.Code),
		strconv.FormatInt(a.Shares(), 10),
		f(a.SuggestedStopLoss),
		f(a.SuggestedTakeProfit),
		f(a.RiskRewardRatio),
		f(a.PortfolioRiskAfter),
		string(d.Outcome),
		f(d.FillPrice),
		a.Reasoning,
	}
}

func writeFlush(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
