// Package backtest replays historical bars through a recommender and the
// risk engine with a simulated portfolio.
//
// The simulator steps through the union of all symbols' bar times. At
// each time t it rolls the daily baseline on a new day, fills orders
// queued on the previous step at this bar's open, marks positions to
// this bar's close, triggers stops and targets from the bar's range,
// asks the recommender for candidates using bars up to t only, and
// queues the approved ones for the symbol's next bar.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/IvanHuYY/Stockbot/journal"
	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/metrics"
	"github.com/IvanHuYY/Stockbot/pkg/id"
	"github.com/IvanHuYY/Stockbot/portfolio"
	"github.com/IvanHuYY/Stockbot/risk"
	"github.com/IvanHuYY/Stockbot/strategies"
)

var ErrNoData = errors.New("backtest: no bars")

// Exit reasons recorded on trades.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonEndOfData  = "end_of_data"
)

type Simulator struct {
	cfg Config
	loc *time.Location
	rec strategies.Recommender

	runID   string
	log     *zap.Logger
	journal journal.Journal
	metrics *metrics.Recorder
}

type Option func(*Simulator)

func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithJournal streams every trade, equity sample and decision to j as
// the run progresses.
func WithJournal(j journal.Journal) Option {
	return func(s *Simulator) {
		if j != nil {
			s.journal = j
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Simulator) { s.metrics = m }
}

func WithRunID(runID string) Option {
	return func(s *Simulator) { s.runID = runID }
}

func New(cfg Config, rec strategies.Recommender, opts ...Option) (*Simulator, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: recommender is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.location()
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:     cfg,
		loc:     loc,
		rec:     rec,
		log:     zap.NewNop(),
		journal: journal.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Simulator) Config() Config { return s.cfg }

// Run replays bars and returns the full result. Runs share no state, so
// one Simulator may run several data sets concurrently as long as its
// recommender is safe for that.
func (s *Simulator) Run(ctx context.Context, bars []market.Bar) (*Result, error) {
	h, err := NewHistory(bars)
	if err != nil {
		return nil, err
	}
	timeline := h.Timeline()
	if len(timeline) == 0 {
		return nil, ErrNoData
	}

	r := &run{
		Simulator:   s,
		h:           h,
		pf:          portfolio.New(s.cfg.InitialCash),
		pending:     make(map[string]*queued),
		open:        make(map[string]openTrade),
		tradeIDs:    id.NewSequence("T"),
		decisionIDs: id.NewSequence("D"),
		res: &Result{
			RunID:       s.runID,
			Strategy:    s.rec.Name(),
			Symbols:     h.AllSymbols(),
			Start:       timeline[0],
			End:         timeline[len(timeline)-1],
			Config:      s.cfg,
			StartEquity: s.cfg.InitialCash,
		},
	}

	s.log.Info("backtest started",
		zap.String("run_id", s.runID),
		zap.String("strategy", s.rec.Name()),
		zap.Strings("symbols", r.res.Symbols),
		zap.Int("steps", len(timeline)),
		zap.Time("start", r.res.Start),
		zap.Time("end", r.res.End))

	for i, t := range timeline {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.step(ctx, t, i == len(timeline)-1); err != nil {
			return nil, err
		}
	}
	if err := r.expirePending(); err != nil {
		return nil, err
	}

	r.res.EndEquity = r.pf.Equity()
	pl := make([]float64, len(r.res.Trades))
	for i, tr := range r.res.Trades {
		pl[i] = tr.RealizedPL
	}
	r.res.Metrics = ComputeMetrics(r.res.EquityCurve(), pl, s.cfg.PeriodsPerYear, s.cfg.RiskFreeRate)

	s.log.Info("backtest finished",
		zap.String("run_id", s.runID),
		zap.Float64("end_equity", r.res.EndEquity),
		zap.Int("trades", len(r.res.Trades)),
		zap.Int("decisions", len(r.res.Decisions)),
		zap.Float64("sharpe", r.res.Metrics.Sharpe))
	return r.res, nil
}

// run is the mutable state of one Run call.
type run struct {
	*Simulator

	h  *History
	pf *portfolio.Portfolio

	pending map[string]*queued
	open    map[string]openTrade

	tradeIDs    *id.Sequence
	decisionIDs *id.Sequence

	res *Result
}

// queued is an approved candidate waiting for the symbol's next bar.
type queued struct {
	decision journal.DecisionRecord
}

func (q *queued) position() portfolio.Position {
	c, a := q.decision.Candidate, q.decision.Assessment
	return portfolio.Position{
		Symbol:           c.Symbol,
		Side:             c.Side,
		Quantity:         a.Shares(),
		EntryPrice:       c.EntryPrice,
		StopLoss:         a.SuggestedStopLoss,
		TakeProfit:       a.SuggestedTakeProfit,
		OpenedAt:         q.decision.Time,
		CorrelationGroup: c.CorrelationGroup,
	}
}

type openTrade struct {
	id         string
	commission float64
}

func (r *run) step(ctx context.Context, t time.Time, last bool) error {
	r.h.Advance(t)

	if r.pf.RollDailyBaseline(t.In(r.loc)) {
		r.log.Debug("daily baseline rolled",
			zap.Time("day", r.pf.TradingDay()),
			zap.Float64("equity", r.pf.DailyStartEquity()))
	}

	if err := r.fillQueued(); err != nil {
		return err
	}

	closes := make(map[string]float64)
	for _, sym := range r.h.Symbols() {
		if b, ok := r.h.Current(sym); ok {
			closes[sym] = b.Close
		}
	}
	r.pf.MarkToMarket(closes)

	if err := r.checkExits(t); err != nil {
		return err
	}
	if err := r.recommend(ctx, t); err != nil {
		return err
	}
	if last && r.cfg.CloseEnd {
		if err := r.closeAll(t); err != nil {
			return err
		}
	}
	return r.recordEquity(t)
}

func (r *run) fillQueued() error {
	for _, sym := range sortedKeys(r.pending) {
		bar, ok := r.h.Current(sym)
		if !ok {
			continue
		}
		q := r.pending[sym]
		delete(r.pending, sym)
		if err := r.fill(q, bar); err != nil {
			return err
		}
	}
	return nil
}

// fill opens the queued trade at bar's open. Stop and target keep their
// distance from entry, so they move with the fill price. A gap since the
// signal can push the sized position over the cap; the quantity is cut
// back to what the cap allows at the fill price.
func (r *run) fill(q *queued, bar market.Bar) error {
	d := q.decision
	pos := q.position()

	price := r.slip(bar.Open, pos.Side, 1)
	equity := r.pf.Equity()
	if capped := risk.CapShares(equity, r.cfg.Limits.MaxPositionPct, price); capped < pos.Quantity {
		if capped <= 0 {
			d.Outcome = journal.OutcomeOverCap
			d.Error = fmt.Sprintf("no shares fit under the %.2f%% cap at %.4f, equity %.2f",
				100*r.cfg.Limits.MaxPositionPct, price, equity)
			return r.recordDecision(d)
		}
		r.log.Debug("fill reduced to position cap",
			zap.String("symbol", pos.Symbol),
			zap.Int64("sized", pos.Quantity),
			zap.Int64("filled", capped),
			zap.Float64("price", price))
		pos.Quantity = capped
	}
	commission := r.commission(pos.Quantity)
	need := float64(pos.Quantity)*price + commission
	if bp := r.pf.BuyingPower(); need > bp {
		d.Outcome = journal.OutcomeInsufficientBP
		d.Error = fmt.Sprintf("needs %.2f, buying power %.2f", need, bp)
		return r.recordDecision(d)
	}

	shift := price - pos.EntryPrice
	pos.EntryPrice = price
	pos.StopLoss += shift
	pos.TakeProfit += shift
	pos.OpenedAt = bar.Time

	if err := r.pf.OpenPosition(pos); err != nil {
		if errors.Is(err, portfolio.ErrPositionExists) {
			d.Outcome = journal.OutcomePositionExisted
			d.Error = err.Error()
			return r.recordDecision(d)
		}
		return err
	}
	r.pf.ChargeFee(commission)

	tradeID := r.tradeIDs.Next()
	r.open[pos.Symbol] = openTrade{id: tradeID, commission: commission}

	d.Outcome = journal.OutcomeFilled
	d.OrderID = tradeID
	d.FillPrice = price
	d.FillQuantity = pos.Quantity
	d.FillTime = bar.Time

	r.log.Debug("filled",
		zap.String("trade_id", tradeID),
		zap.String("symbol", pos.Symbol),
		zap.Stringer("side", pos.Side),
		zap.Int64("qty", pos.Quantity),
		zap.Float64("price", price))
	return r.recordDecision(d)
}

func (r *run) checkExits(t time.Time) error {
	for _, pos := range r.pf.Positions() {
		bar, ok := r.h.Current(pos.Symbol)
		if !ok {
			continue
		}
		price, reason, hit := exitPrice(pos, bar)
		if !hit {
			continue
		}
		if reason == ReasonStopLoss {
			price = r.slip(price, pos.Side, -1)
		}
		if err := r.closePosition(pos.Symbol, price, t, reason); err != nil {
			return err
		}
	}
	return nil
}

// exitPrice checks the stop before the target, so a bar that spans both
// is a loss. The stop fills at the stop price or, when the bar opened
// through it, at the open. Targets never fill better than the target.
func exitPrice(pos portfolio.Position, b market.Bar) (float64, string, bool) {
	if pos.Side == market.Long {
		if pos.StopLoss > 0 && b.Low <= pos.StopLoss {
			return math.Min(pos.StopLoss, b.Open), ReasonStopLoss, true
		}
		if pos.TakeProfit > 0 && b.High >= pos.TakeProfit {
			return pos.TakeProfit, ReasonTakeProfit, true
		}
		return 0, "", false
	}

	if pos.StopLoss > 0 && b.High >= pos.StopLoss {
		return math.Max(pos.StopLoss, b.Open), ReasonStopLoss, true
	}
	if pos.TakeProfit > 0 && b.Low <= pos.TakeProfit {
		return pos.TakeProfit, ReasonTakeProfit, true
	}
	return 0, "", false
}

func (r *run) closePosition(symbol string, price float64, t time.Time, reason string) error {
	c, err := r.pf.ClosePosition(symbol, price, t, reason)
	if err != nil {
		return err
	}
	commission := r.commission(c.Quantity)
	r.pf.ChargeFee(commission)

	ot := r.open[symbol]
	delete(r.open, symbol)

	tr := journal.TradeRecord{
		RunID:            r.runID,
		TradeID:          ot.id,
		Symbol:           c.Symbol,
		Side:             c.Side,
		Quantity:         c.Quantity,
		EntryPrice:       c.EntryPrice,
		ExitPrice:        c.ExitPrice,
		OpenTime:         c.OpenedAt,
		CloseTime:        t,
		RealizedPL:       c.RealizedPL - ot.commission - commission,
		Commission:       ot.commission + commission,
		Reason:           reason,
		CorrelationGroup: c.CorrelationGroup,
	}
	r.res.Trades = append(r.res.Trades, tr)
	r.metrics.ObserveTrade(reason, tr.RealizedPL)

	r.log.Debug("closed",
		zap.String("trade_id", tr.TradeID),
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Float64("price", price),
		zap.Float64("pl", tr.RealizedPL))

	if err := r.journal.RecordTrade(tr); err != nil {
		return fmt.Errorf("journal trade %s: %w", tr.TradeID, err)
	}
	return nil
}

func (r *run) recommend(ctx context.Context, t time.Time) error {
	cands, err := r.rec.Recommend(ctx, r.h)
	if err != nil {
		return fmt.Errorf("recommend at %s: %w", t.Format(time.RFC3339), err)
	}
	if len(cands) == 0 {
		return nil
	}

	// Orders queued but not yet filled count as held.
	snap := r.pf.Snapshot()
	for _, sym := range sortedKeys(r.pending) {
		snap = snap.With(r.pending[sym].position())
	}

	for _, c := range cands {
		d := journal.DecisionRecord{
			ID:        r.decisionIDs.Next(),
			RunID:     r.runID,
			Time:      t,
			Candidate: c,
		}

		if c.Symbol != "" && snap.Has(c.Symbol) {
			d.Outcome = journal.OutcomeSkipped
			d.Error = "position or order already open for " + c.Symbol
			if err := r.recordDecision(d); err != nil {
				return err
			}
			continue
		}

		a := risk.Evaluate(c, snap, r.cfg.Limits)
		d.Assessment = a
		r.metrics.ObserveAssessment(a)

		if !a.Approved {
			d.Outcome = journal.OutcomeRejected
			r.log.Debug("candidate rejected",
				zap.String("symbol", c.Symbol),
				zap.String("code", string(a.Code)),
				zap.String("reason", a.Reasoning))
			if err := r.recordDecision(d); err != nil {
				return err
			}
			continue
		}

		q := &queued{decision: d}
		r.pending[c.Symbol] = q
		snap = snap.With(q.position())
	}
	return nil
}

func (r *run) closeAll(t time.Time) error {
	for _, pos := range r.pf.Positions() {
		b, ok := r.h.Last(pos.Symbol)
		if !ok {
			continue
		}
		if err := r.closePosition(pos.Symbol, r.slip(b.Close, pos.Side, -1), t, ReasonEndOfData); err != nil {
			return err
		}
	}
	return nil
}

// expirePending journals approved orders that never reached a bar.
func (r *run) expirePending() error {
	for _, sym := range sortedKeys(r.pending) {
		d := r.pending[sym].decision
		delete(r.pending, sym)
		d.Outcome = journal.OutcomeExpired
		if err := r.recordDecision(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) recordEquity(t time.Time) error {
	snap := r.pf.Snapshot()
	e := journal.EquitySnapshot{
		RunID:         r.runID,
		Time:          t,
		Cash:          snap.Cash,
		Equity:        snap.Equity,
		AtRisk:        snap.AtRisk(),
		DailyPnLPct:   snap.DailyPnLPct(),
		OpenPositions: len(snap.Positions),
	}
	r.res.Equity = append(r.res.Equity, e)
	r.metrics.ObservePortfolio(e.Equity, e.AtRisk, e.DailyPnLPct, e.OpenPositions)

	if err := r.journal.RecordEquity(e); err != nil {
		return fmt.Errorf("journal equity at %s: %w", t.Format(time.RFC3339), err)
	}
	return nil
}

func (r *run) recordDecision(d journal.DecisionRecord) error {
	r.res.Decisions = append(r.res.Decisions, d)
	r.metrics.ObserveOutcome(string(d.Outcome))
	if err := r.journal.RecordDecision(d); err != nil {
		return fmt.Errorf("journal decision %s: %w", d.ID, err)
	}
	return nil
}

// slip moves price against the trader. dir is +1 when opening and -1
// when closing.
func (r *run) slip(price float64, side market.Side, dir float64) float64 {
	return price * (1 + dir*side.Sign()*r.cfg.SlippageBps/10_000)
}

func (r *run) commission(qty int64) float64 {
	return r.cfg.CommissionPerTrade + r.cfg.CommissionPerShare*float64(qty)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
