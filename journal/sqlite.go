package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the durable journal. All writes are single INSERTs; the
// decisions table rejects UPDATE and DELETE.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, run_id, symbol, side, quantity, entry_price, exit_price, open_time, close_time,
		 realized_pl, commission, reason, correlation_group)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Symbol, sideText(t.Side), t.Quantity, t.EntryPrice, t.ExitPrice,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.RealizedPL, t.Commission, t.Reason, t.CorrelationGroup,
	)
	if err != nil {
		return fmt.Errorf("record trade %q: %w", t.TradeID, err)
	}
	return nil
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, cash, equity, at_risk, daily_pnl_pct, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time.UTC(), e.Cash, e.Equity, e.AtRisk, e.DailyPnLPct, e.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("record equity: %w", err)
	}
	return nil
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	cand, err := json.Marshal(d.Candidate)
	if err != nil {
		return fmt.Errorf("record decision %q: candidate: %w", d.ID, err)
	}
	assess, err := json.Marshal(d.Assessment)
	if err != nil {
		return fmt.Errorf("record decision %q: assessment: %w", d.ID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.Exec(`
		INSERT INTO decisions
		(id, run_id, time, symbol, direction, approved, code, outcome, order_id, idempotency_key,
		 fill_price, fill_quantity, fill_time, error, candidate_json, assessment_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RunID, d.Time.UTC(), d.Candidate.Symbol, sideText(d.Candidate.Side), d.Assessment.Approved,
		string(d.Assessment.Code), string(d.Outcome), d.OrderID, d.IdempotencyKey,
		d.FillPrice, d.FillQuantity, nullTime(d.FillTime), d.Error, string(cand), string(assess),
	)
	if err != nil {
		return fmt.Errorf("record decision %q: %w", d.ID, err)
	}
	return nil
}

// RecordBacktest stores a run summary. The full run is kept as JSON.
func (j *SQLite) RecordBacktest(r BacktestRun) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("record backtest %q: %w", r.RunID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.Exec(`
		INSERT INTO backtest_runs (run_id, created, strategy, dataset, symbols, start_time, end_time, run_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Strategy, r.Dataset, strings.Join(r.Symbols, ","),
		r.Start.UTC(), r.End.UTC(), string(body),
	)
	if err != nil {
		return fmt.Errorf("record backtest %q: %w", r.RunID, err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
