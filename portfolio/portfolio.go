// Package portfolio holds the single authoritative record of cash, open
// positions and the daily equity baseline.
//
// Every mutation runs under one mutex and touches only in-memory state;
// readers either call the query methods or take a Snapshot.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

var (
	// ErrPositionExists is returned when opening a symbol that is already
	// held. Callers must choose IncreasePosition or ClosePosition instead.
	ErrPositionExists   = errors.New("position already exists")
	ErrPositionNotFound = errors.New("position not found")
	ErrInvalidFill      = errors.New("invalid fill")
)

type Portfolio struct {
	mu sync.RWMutex

	cash      float64
	positions map[string]*Position

	dailyStartEquity float64
	day              time.Time // trading day the baseline belongs to

	realizedPL float64
	fees       float64
}

// New returns a flat portfolio whose daily baseline is its starting cash.
func New(cash float64) *Portfolio {
	return &Portfolio{
		cash:             cash,
		positions:        make(map[string]*Position),
		dailyStartEquity: cash,
	}
}

// FromSnapshot rebuilds a portfolio from a stored snapshot. Cash is taken
// as-is and positions are copied.
func FromSnapshot(s Snapshot) (*Portfolio, error) {
	p := New(s.Cash)
	p.dailyStartEquity = s.DailyStartEquity
	for _, pos := range s.Positions {
		if err := validatePosition(pos); err != nil {
			return nil, err
		}
		if _, ok := p.positions[pos.Symbol]; ok {
			return nil, fmt.Errorf("from snapshot %q: %w", pos.Symbol, ErrPositionExists)
		}
		cp := pos
		if cp.CurrentPrice == 0 {
			cp.CurrentPrice = cp.EntryPrice
		}
		p.positions[pos.Symbol] = &cp
	}
	if p.dailyStartEquity == 0 {
		p.dailyStartEquity = p.equityLocked()
	}
	return p, nil
}

func (p *Portfolio) Cash() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

func (p *Portfolio) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equityLocked()
}

// BuyingPower is cash not already owed back to cover shorts.
func (p *Portfolio) BuyingPower() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bp := p.cash
	for _, pos := range p.positions {
		if pos.Side.Sign() < 0 {
			bp -= pos.Notional()
		}
	}
	return math.Max(0, bp)
}

func (p *Portfolio) DailyStartEquity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dailyStartEquity
}

func (p *Portfolio) DailyPnLPct() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return dailyPnLPct(p.equityLocked(), p.dailyStartEquity)
}

func (p *Portfolio) RealizedPL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPL
}

func (p *Portfolio) Fees() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fees
}

// Positions returns copies ordered by open time, then symbol.
func (p *Portfolio) Positions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionsLocked()
}

func (p *Portfolio) Position(symbol string) (Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// AtRisk sums the at-risk capital of all open positions.
func (p *Portfolio) AtRisk() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var sum float64
	for _, pos := range p.positions {
		sum += pos.AtRisk()
	}
	return sum
}

// CorrelationExposure returns the at-risk capital held in group.
func (p *Portfolio) CorrelationExposure(group string) float64 {
	return p.Snapshot().GroupAtRisk(group)
}

func (p *Portfolio) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Snapshot{
		Cash:             p.cash,
		Equity:           p.equityLocked(),
		DailyStartEquity: p.dailyStartEquity,
		Positions:        p.positionsLocked(),
	}
}

// OpenPosition records a new fill. It never overwrites: if the symbol is
// already held the call fails with ErrPositionExists.
func (p *Portfolio) OpenPosition(pos Position) error {
	if err := validatePosition(pos); err != nil {
		return fmt.Errorf("open position: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.positions[pos.Symbol]; ok {
		return fmt.Errorf("open position %q: %w", pos.Symbol, ErrPositionExists)
	}

	pos.CurrentPrice = pos.EntryPrice
	p.cash -= pos.MarketValue()
	p.positions[pos.Symbol] = &pos
	return nil
}

// IncreasePosition adds qty at price to an existing position. The entry
// price becomes the quantity-weighted average; stops are left alone.
func (p *Portfolio) IncreasePosition(symbol string, qty int64, price float64) error {
	if qty <= 0 || price <= 0 {
		return fmt.Errorf("increase position %q: %w: qty=%d price=%g", symbol, ErrInvalidFill, qty, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("increase position %q: %w", symbol, ErrPositionNotFound)
	}

	total := pos.Quantity + qty
	pos.EntryPrice = (pos.EntryPrice*float64(pos.Quantity) + price*float64(qty)) / float64(total)
	pos.Quantity = total
	pos.CurrentPrice = price
	p.cash -= pos.Side.Sign() * float64(qty) * price
	return nil
}

// ReducePosition closes qty units at price. Reducing by the full quantity
// removes the position.
func (p *Portfolio) ReducePosition(symbol string, qty int64, price float64, at time.Time, reason string) (Closed, error) {
	if qty <= 0 || price <= 0 {
		return Closed{}, fmt.Errorf("reduce position %q: %w: qty=%d price=%g", symbol, ErrInvalidFill, qty, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return Closed{}, fmt.Errorf("reduce position %q: %w", symbol, ErrPositionNotFound)
	}
	if qty > pos.Quantity {
		return Closed{}, fmt.Errorf("reduce position %q: %w: qty %d exceeds held %d", symbol, ErrInvalidFill, qty, pos.Quantity)
	}
	return p.closeLocked(pos, qty, price, at, reason), nil
}

// ClosePosition exits the whole position at price.
func (p *Portfolio) ClosePosition(symbol string, price float64, at time.Time, reason string) (Closed, error) {
	if price <= 0 {
		return Closed{}, fmt.Errorf("close position %q: %w: price=%g", symbol, ErrInvalidFill, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return Closed{}, fmt.Errorf("close position %q: %w", symbol, ErrPositionNotFound)
	}
	return p.closeLocked(pos, pos.Quantity, price, at, reason), nil
}

// ChargeFee debits commissions and similar costs from cash.
func (p *Portfolio) ChargeFee(amount float64) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash -= amount
	p.fees += amount
	p.realizedPL -= amount
}

// MarkToMarket updates CurrentPrice for every held symbol present in
// prices. The daily baseline is never touched.
func (p *Portfolio) MarkToMarket(prices map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sym, px := range prices {
		if px <= 0 {
			continue
		}
		if pos, ok := p.positions[sym]; ok {
			pos.CurrentPrice = px
		}
	}
}

// RollDailyBaseline makes the current equity the reference for the daily
// loss gate. It acts once per trading day; repeated calls for the same
// day return false and change nothing.
func (p *Portfolio) RollDailyBaseline(day time.Time) bool {
	d := truncateDay(day)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.day.IsZero() && !d.After(p.day) {
		return false
	}
	p.day = d
	p.dailyStartEquity = p.equityLocked()
	return true
}

// TradingDay is the day of the current baseline (zero before the first roll).
func (p *Portfolio) TradingDay() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.day
}

func (p *Portfolio) closeLocked(pos *Position, qty int64, price float64, at time.Time, reason string) Closed {
	pl := pos.Side.Sign() * float64(qty) * (price - pos.EntryPrice)

	c := Closed{
		Symbol:           pos.Symbol,
		Side:             pos.Side,
		Quantity:         qty,
		EntryPrice:       pos.EntryPrice,
		ExitPrice:        price,
		OpenedAt:         pos.OpenedAt,
		ClosedAt:         at,
		RealizedPL:       pl,
		Reason:           reason,
		CorrelationGroup: pos.CorrelationGroup,
	}

	p.cash += pos.Side.Sign() * float64(qty) * price
	p.realizedPL += pl

	pos.Quantity -= qty
	pos.CurrentPrice = price
	if pos.Quantity == 0 {
		delete(p.positions, pos.Symbol)
	}
	return c
}

func (p *Portfolio) equityLocked() float64 {
	equity := p.cash
	for _, pos := range p.positions {
		equity += pos.MarketValue()
	}
	return equity
}

func (p *Portfolio) positionsLocked() []Position {
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func validatePosition(pos Position) error {
	switch {
	case pos.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidFill)
	case !pos.Side.Valid():
		return fmt.Errorf("%w: invalid side for %q", ErrInvalidFill, pos.Symbol)
	case pos.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive for %q", ErrInvalidFill, pos.Symbol)
	case pos.EntryPrice <= 0:
		return fmt.Errorf("%w: entry price must be positive for %q", ErrInvalidFill, pos.Symbol)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
