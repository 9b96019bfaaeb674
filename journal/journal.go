// Package journal is the append-only record of trades, equity samples
// and risk decisions.
package journal

import (
	"errors"
	"time"

	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/risk"
)

var ErrNotFound = errors.New("journal: record not found")

// TradeRecord is one closed trade.
type TradeRecord struct {
	RunID            string      `json:"run_id,omitempty"`
	TradeID          string      `json:"trade_id"`
	Symbol           string      `json:"symbol"`
	Side             market.Side `json:"side"`
	Quantity         int64       `json:"quantity"`
	EntryPrice       float64     `json:"entry_price"`
	ExitPrice        float64     `json:"exit_price"`
	OpenTime         time.Time   `json:"open_time"`
	CloseTime        time.Time   `json:"close_time"`
	RealizedPL       float64     `json:"realized_pl"` // net of commission
	Commission       float64     `json:"commission"`
	Reason           string      `json:"reason"`
	CorrelationGroup string      `json:"correlation_group,omitempty"`
}

// EquitySnapshot is one point of the equity curve.
type EquitySnapshot struct {
	RunID         string    `json:"run_id,omitempty"`
	Time          time.Time `json:"time"`
	Cash          float64   `json:"cash"`
	Equity        float64   `json:"equity"`
	AtRisk        float64   `json:"at_risk"`
	DailyPnLPct   float64   `json:"daily_pnl_pct"`
	OpenPositions int       `json:"open_positions"`
}

// Outcome is what happened to a decision after assessment.
type Outcome string

const (
	OutcomeRejected        Outcome = "rejected"
	OutcomeFilled          Outcome = "filled"
	OutcomeExpired         Outcome = "expired"    // approved, never filled before data ended
	OutcomeNotFilled       Outcome = "not_filled" // placement failed or timed out
	OutcomeDuplicate       Outcome = "duplicate"  // idempotency key or open order already present
	OutcomeSkipped         Outcome = "skipped"    // symbol already held or pending
	OutcomeInsufficientBP  Outcome = "insufficient_buying_power"
	OutcomeOverCap         Outcome = "over_position_cap" // fill price left no whole share under the cap
	OutcomePlaced          Outcome = "placed"            // accepted by the broker, fill not yet known
	OutcomePositionExisted Outcome = "position_exists"
)

// DecisionRecord is the audit entry for one candidate: everything the
// engine saw and decided, plus the fill outcome.
type DecisionRecord struct {
	ID             string          `json:"id"`
	RunID          string          `json:"run_id,omitempty"`
	Time           time.Time       `json:"time"`
	Candidate      risk.Candidate  `json:"candidate"`
	Assessment     risk.Assessment `json:"assessment"`
	Outcome        Outcome         `json:"outcome"`
	OrderID        string          `json:"order_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	FillPrice      float64         `json:"fill_price,omitempty"`
	FillQuantity   int64           `json:"fill_quantity,omitempty"`
	FillTime       time.Time       `json:"fill_time,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordDecision(DecisionRecord) error
	Close() error
}

// DecisionFilter narrows ListDecisions. Zero values match everything.
type DecisionFilter struct {
	RunID        string
	Symbol       string
	Since        time.Time
	Until        time.Time
	ApprovedOnly bool
	Limit        int
}

func (f DecisionFilter) match(d DecisionRecord) bool {
	switch {
	case f.RunID != "" && d.RunID != f.RunID:
		return false
	case f.Symbol != "" && d.Candidate.Symbol != f.Symbol:
		return false
	case !f.Since.IsZero() && d.Time.Before(f.Since):
		return false
	case !f.Until.IsZero() && !d.Time.Before(f.Until):
		return false
	case f.ApprovedOnly && !d.Assessment.Approved:
		return false
	}
	return true
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error       { return nil }
func (Nop) RecordEquity(EquitySnapshot) error   { return nil }
func (Nop) RecordDecision(DecisionRecord) error { return nil }
func (Nop) Close() error                        { return nil }

func sideText(s market.Side) string {
	if !s.Valid() {
		return ""
	}
	return s.String()
}
