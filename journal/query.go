package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IvanHuYY/Stockbot/market"
)

const tradeColumns = `trade_id, run_id, symbol, side, quantity, entry_price, exit_price,
	open_time, close_time, realized_pl, commission, reason, correlation_group`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec  TradeRecord
		side string
	)
	err := s.Scan(
		&rec.TradeID, &rec.RunID, &rec.Symbol, &side, &rec.Quantity, &rec.EntryPrice, &rec.ExitPrice,
		&rec.OpenTime, &rec.CloseTime, &rec.RealizedPL, &rec.Commission, &rec.Reason, &rec.CorrelationGroup,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	rec.Side, _ = market.ParseSide(side)
	return rec, nil
}

// GetTrade returns a single trade of a run. Trade IDs are only unique
// within a run.
func (j *SQLite) GetTrade(runID, tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE run_id = ? AND trade_id = ?`, runID, tradeID)
	rec, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TradeRecord{}, fmt.Errorf("trade %s/%s: %w", runID, tradeID, ErrNotFound)
	}
	return rec, err
}

// ListTrades returns a run's trades ordered by close time.
func (j *SQLite) ListTrades(runID string) ([]TradeRecord, error) {
	return j.queryTrades(`SELECT `+tradeColumns+` FROM trades WHERE run_id = ? ORDER BY close_time ASC, trade_id ASC`, runID)
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.queryTrades(`SELECT `+tradeColumns+` FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, trade_id ASC`, start.UTC(), end.UTC())
}

func (j *SQLite) queryTrades(q string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEquity returns a run's equity curve in time order.
func (j *SQLite) ListEquity(runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, cash, equity, at_risk, daily_pnl_pct, open_positions
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Cash, &e.Equity, &e.AtRisk, &e.DailyPnLPct, &e.OpenPositions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListDecisions returns decisions matching f in time order.
func (j *SQLite) ListDecisions(f DecisionFilter) ([]DecisionRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if !f.Since.IsZero() {
		where = append(where, "time >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		where = append(where, "time < ?")
		args = append(args, f.Until.UTC())
	}
	if f.ApprovedOnly {
		where = append(where, "approved = 1")
	}

	q := `SELECT id, run_id, time, outcome, order_id, idempotency_key, fill_price, fill_quantity,
		fill_time, error, candidate_json, assessment_json FROM decisions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY time ASC, rowid ASC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			d              DecisionRecord
			outcome        string
			fillTime       sql.NullTime
			cand, assessed string
		)
		if err := rows.Scan(&d.ID, &d.RunID, &d.Time, &outcome, &d.OrderID, &d.IdempotencyKey,
			&d.FillPrice, &d.FillQuantity, &fillTime, &d.Error, &cand, &assessed); err != nil {
			return nil, err
		}
		d.Outcome = Outcome(outcome)
		if fillTime.Valid {
			d.FillTime = fillTime.Time
		}
		if err := json.Unmarshal([]byte(cand), &d.Candidate); err != nil {
			return nil, fmt.Errorf("decision %q candidate: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(assessed), &d.Assessment); err != nil {
			return nil, fmt.Errorf("decision %q assessment: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (j *SQLite) GetBacktestRun(runID string) (BacktestRun, error) {
	var body string
	err := j.db.QueryRow(`SELECT run_json FROM backtest_runs WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return BacktestRun{}, fmt.Errorf("backtest run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return BacktestRun{}, err
	}

	var r BacktestRun
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return BacktestRun{}, fmt.Errorf("backtest run %q: %w", runID, err)
	}
	return r, nil
}

// ListBacktestRuns returns run IDs, newest first.
func (j *SQLite) ListBacktestRuns() ([]string, error) {
	rows, err := j.db.Query(`SELECT run_id FROM backtest_runs ORDER BY created DESC, run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
