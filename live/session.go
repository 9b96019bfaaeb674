// Package live runs the risk engine against a broker: each cycle turns
// candidates into assessed, journaled and, when approved, placed bracket
// orders.
package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanHuYY/Stockbot/broker"
	"github.com/IvanHuYY/Stockbot/journal"
	"github.com/IvanHuYY/Stockbot/metrics"
	"github.com/IvanHuYY/Stockbot/pkg/id"
	"github.com/IvanHuYY/Stockbot/portfolio"
	"github.com/IvanHuYY/Stockbot/risk"
)

type Config struct {
	SessionID string             `json:"session_id" yaml:"session_id"`
	Limits    risk.Limits        `json:"limits" yaml:"limits"`
	OrderType broker.OrderType   `json:"order_type" yaml:"order_type"`
	Timezone  string             `json:"timezone" yaml:"timezone"`
	Guard     broker.GuardConfig `json:"guard" yaml:"guard"`
}

func DefaultConfig() Config {
	return Config{
		Limits:    risk.DefaultLimits(),
		OrderType: broker.Bracket,
		Timezone:  "America/New_York",
		Guard:     broker.DefaultGuardConfig(),
	}
}

type Session struct {
	cfg     Config
	pf      *portfolio.Portfolio
	exec    *broker.Guarded
	clock   *DayClock
	journal journal.Journal
	log     *zap.Logger
	metrics *metrics.Recorder

	// cycleMu serializes RunCycle so that evaluating a candidate and
	// registering its order in flight happen as one step.
	cycleMu sync.Mutex

	mu sync.Mutex
	// keys maps idempotency keys to their cycle time. A key stays taken
	// even when placement failed: the order may still exist.
	keys     map[string]time.Time
	inflight map[string]inflight // by broker order ID
}

// inflight is a placed order whose fill has not arrived yet.
type inflight struct {
	decision journal.DecisionRecord
	position portfolio.Position
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithJournal(j journal.Journal) Option {
	return func(s *Session) {
		if j != nil {
			s.journal = j
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Session) { s.metrics = m }
}

// NewSession wraps exec in a broker.Guarded built from cfg.Guard.
func NewSession(cfg Config, pf *portfolio.Portfolio, exec broker.Executor, opts ...Option) (*Session, error) {
	if pf == nil || exec == nil {
		return nil, errors.New("live: portfolio and executor are required")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, err
	}
	switch cfg.OrderType {
	case "":
		cfg.OrderType = broker.Bracket
	case broker.Bracket, broker.Market:
	default:
		return nil, fmt.Errorf("live: unsupported order type %q", cfg.OrderType)
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("live: timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	s := &Session{
		cfg:      cfg,
		pf:       pf,
		journal:  journal.Nop{},
		log:      zap.NewNop(),
		keys:     make(map[string]time.Time),
		inflight: make(map[string]inflight),
	}
	for _, o := range opts {
		o(s)
	}
	s.exec = broker.NewGuarded(exec, cfg.Guard, s.log)
	s.clock = NewDayClock(pf, loc, s.log)
	s.clock.OnRoll(s.pruneKeys)
	return s, nil
}

func (s *Session) Clock() *DayClock { return s.clock }

// UpdatePrices marks positions to market.
func (s *Session) UpdatePrices(prices map[string]float64) {
	s.pf.MarkToMarket(prices)
	snap := s.pf.Snapshot()
	s.metrics.ObservePortfolio(snap.Equity, snap.AtRisk(), snap.DailyPnLPct(), len(snap.Positions))
}

// RunCycle assesses candidates at cycle time and places the approved
// ones. Every candidate produces exactly one journaled decision, which is
// also returned. Placement failures are outcomes, not errors; the error
// return is for a canceled context or a journal that cannot write.
// Concurrent calls run one after the other.
func (s *Session) RunCycle(ctx context.Context, cycle time.Time, cands []risk.Candidate) ([]journal.DecisionRecord, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.clock.Tick(cycle)

	out := make([]journal.DecisionRecord, 0, len(cands))
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d := s.decide(ctx, cycle, c)
		if err := s.record(d); err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Session) decide(ctx context.Context, cycle time.Time, c risk.Candidate) journal.DecisionRecord {
	key := IdempotencyKey(c.Symbol, cycle)
	d := journal.DecisionRecord{
		ID:             id.NewAt(cycle),
		RunID:          s.cfg.SessionID,
		Time:           cycle,
		Candidate:      c,
		IdempotencyKey: key,
	}

	if !s.claim(key, cycle) {
		d.Outcome = journal.OutcomeDuplicate
		d.Error = "cycle already handled for " + c.Symbol
		return d
	}

	if _, held := s.pf.Position(c.Symbol); held {
		d.Outcome = journal.OutcomeSkipped
		d.Error = "position already open for " + c.Symbol
		return d
	}
	if c.Symbol != "" {
		pending, err := s.exec.PendingOrders(ctx, c.Symbol)
		if err != nil {
			d.Outcome = journal.OutcomeNotFilled
			d.Error = fmt.Sprintf("pending orders check: %v", err)
			return d
		}
		if len(pending) > 0 {
			d.Outcome = journal.OutcomeSkipped
			d.Error = fmt.Sprintf("%s has %d open orders", c.Symbol, len(pending))
			return d
		}
	}

	a := risk.Evaluate(c, s.snapshot(), s.cfg.Limits)
	d.Assessment = a
	s.metrics.ObserveAssessment(a)
	if !a.Approved {
		d.Outcome = journal.OutcomeRejected
		s.log.Info("candidate rejected",
			zap.String("symbol", c.Symbol),
			zap.String("code", string(a.Code)),
			zap.String("reason", a.Reasoning))
		return d
	}

	req := broker.OrderRequest{
		Symbol:        c.Symbol,
		Side:          c.Side,
		Quantity:      a.Shares(),
		Type:          s.cfg.OrderType,
		ClientOrderID: key,
	}
	if req.Type == broker.Bracket {
		req.StopLoss = a.SuggestedStopLoss
		req.TakeProfit = a.SuggestedTakeProfit
	}

	start := time.Now()
	orderID, err := s.exec.PlaceOrder(ctx, req)
	s.metrics.ObservePlacement(placementResult(err), time.Since(start))
	if err != nil {
		d.Outcome = journal.OutcomeNotFilled
		d.Error = err.Error()
		s.log.Warn("order not placed",
			zap.String("symbol", c.Symbol),
			zap.String("key", key),
			zap.Error(err))
		return d
	}

	d.Outcome = journal.OutcomePlaced
	d.OrderID = orderID

	s.mu.Lock()
	s.inflight[orderID] = inflight{
		decision: d,
		position: portfolio.Position{
			Symbol:           c.Symbol,
			Side:             c.Side,
			Quantity:         a.Shares(),
			EntryPrice:       c.EntryPrice,
			StopLoss:         a.SuggestedStopLoss,
			TakeProfit:       a.SuggestedTakeProfit,
			OpenedAt:         cycle,
			CorrelationGroup: c.CorrelationGroup,
		},
	}
	s.mu.Unlock()

	s.log.Info("order placed",
		zap.String("symbol", c.Symbol),
		zap.String("order_id", orderID),
		zap.Int64("qty", req.Quantity),
		zap.Float64("stop", req.StopLoss),
		zap.Float64("target", req.TakeProfit))
	return d
}

// OnFill applies a broker fill to the portfolio and journals it as a new
// decision record carrying the original candidate and assessment. A fill
// for a symbol already held adds to the position.
func (s *Session) OnFill(f broker.Fill) error {
	s.mu.Lock()
	in, known := s.inflight[f.OrderID]
	delete(s.inflight, f.OrderID)
	s.mu.Unlock()

	pos := portfolio.Position{
		Symbol:     f.Symbol,
		Side:       f.Side,
		Quantity:   f.Quantity,
		EntryPrice: f.Price,
		StopLoss:   f.StopLoss,
		TakeProfit: f.TakeProfit,
		OpenedAt:   f.Time,
	}
	if known {
		pos.CorrelationGroup = in.position.CorrelationGroup
		if pos.StopLoss == 0 {
			pos.StopLoss = in.position.StopLoss
		}
		if pos.TakeProfit == 0 {
			pos.TakeProfit = in.position.TakeProfit
		}
	} else {
		s.log.Warn("fill for unknown order", zap.String("order_id", f.OrderID), zap.String("symbol", f.Symbol))
	}

	err := s.pf.OpenPosition(pos)
	if errors.Is(err, portfolio.ErrPositionExists) {
		err = s.pf.IncreasePosition(f.Symbol, f.Quantity, f.Price)
	}
	if err != nil {
		return fmt.Errorf("apply fill %s: %w", f.OrderID, err)
	}
	s.pf.ChargeFee(f.Commission)

	d := journal.DecisionRecord{
		ID:             id.NewAt(f.Time),
		RunID:          s.cfg.SessionID,
		Time:           f.Time,
		Outcome:        journal.OutcomeFilled,
		OrderID:        f.OrderID,
		IdempotencyKey: f.ClientOrderID,
		FillPrice:      f.Price,
		FillQuantity:   f.Quantity,
		FillTime:       f.Time,
	}
	if known {
		d.Candidate = in.decision.Candidate
		d.Assessment = in.decision.Assessment
	} else {
		d.Candidate = risk.Candidate{Symbol: f.Symbol, Side: f.Side, EntryPrice: f.Price}
	}

	s.log.Info("filled",
		zap.String("symbol", f.Symbol),
		zap.String("order_id", f.OrderID),
		zap.Int64("qty", f.Quantity),
		zap.Float64("price", f.Price))
	return s.record(d)
}

// OnCancel forgets an order that will never fill.
func (s *Session) OnCancel(orderID string, at time.Time) error {
	s.mu.Lock()
	in, ok := s.inflight[orderID]
	delete(s.inflight, orderID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel %s: %w", orderID, broker.ErrOrderNotFound)
	}

	d := in.decision
	d.ID = id.NewAt(at)
	d.Time = at
	d.Outcome = journal.OutcomeExpired
	return s.record(d)
}

// OnClose exits a whole position, typically when a bracket leg fills.
func (s *Session) OnClose(symbol string, price float64, at time.Time, reason string, commission float64) (journal.TradeRecord, error) {
	c, err := s.pf.ClosePosition(symbol, price, at, reason)
	if err != nil {
		return journal.TradeRecord{}, err
	}
	s.pf.ChargeFee(commission)

	tr := journal.TradeRecord{
		RunID:            s.cfg.SessionID,
		TradeID:          id.NewAt(at),
		Symbol:           c.Symbol,
		Side:             c.Side,
		Quantity:         c.Quantity,
		EntryPrice:       c.EntryPrice,
		ExitPrice:        c.ExitPrice,
		OpenTime:         c.OpenedAt,
		CloseTime:        at,
		RealizedPL:       c.RealizedPL - commission,
		Commission:       commission,
		Reason:           reason,
		CorrelationGroup: c.CorrelationGroup,
	}
	s.metrics.ObserveTrade(reason, tr.RealizedPL)
	s.log.Info("position closed",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Float64("price", price),
		zap.Float64("pl", tr.RealizedPL))

	if err := s.journal.RecordTrade(tr); err != nil {
		return tr, fmt.Errorf("journal trade %s: %w", symbol, err)
	}
	return tr, nil
}

// Inflight lists placed orders still waiting for a fill, by order ID.
func (s *Session) Inflight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.inflight))
	for oid := range s.inflight {
		out = append(out, oid)
	}
	sort.Strings(out)
	return out
}

// snapshot is the portfolio plus orders placed but not yet filled.
func (s *Session) snapshot() portfolio.Snapshot {
	snap := s.pf.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	oids := make([]string, 0, len(s.inflight))
	for oid := range s.inflight {
		oids = append(oids, oid)
	}
	sort.Strings(oids)
	for _, oid := range oids {
		snap = snap.With(s.inflight[oid].position)
	}
	return snap
}

func (s *Session) claim(key string, cycle time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = cycle
	return true
}

// pruneKeys drops keys from cycles before day.
func (s *Session) pruneKeys(day time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.keys {
		if t.Before(day) {
			delete(s.keys, k)
		}
	}
}

func (s *Session) record(d journal.DecisionRecord) error {
	s.metrics.ObserveOutcome(string(d.Outcome))
	if err := s.journal.RecordDecision(d); err != nil {
		return fmt.Errorf("journal decision %s: %w", d.ID, err)
	}
	return nil
}

func placementResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, broker.ErrTimeout):
		return "timeout"
	case errors.Is(err, broker.ErrRejected):
		return "rejected"
	case errors.Is(err, broker.ErrDuplicateOrder):
		return "duplicate"
	case errors.Is(err, broker.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
