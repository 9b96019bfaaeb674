package strategies

import (
	"context"
	"fmt"

	"github.com/IvanHuYY/Stockbot/indicators"
	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/risk"
)

type MAKind string

const (
	SMAKind MAKind = "sma"
	EMAKind MAKind = "ema"
)

// MACross recommends on a fast/slow moving-average cross of the last
// closed bar:
//   - bull cross (fast moves from <= slow to > slow) => long
//   - bear cross => short, when AllowShort is set
//
// Entry is the last close and ATR comes from the same history, so the
// candidate never looks past Now.
type MACross struct {
	cfg  Config
	kind MAKind
	ma   func([]market.Bar, int) (float64, error)
}

func NewMACross(cfg Config, kind MAKind) (*MACross, error) {
	cfg = cfg.withDefaults()
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= 0 || cfg.FastPeriod >= cfg.SlowPeriod {
		return nil, fmt.Errorf("ma-cross: need 0 < fast < slow, got fast=%d slow=%d", cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.ATRPeriod <= 0 {
		return nil, fmt.Errorf("ma-cross: atr period must be positive, got %d", cfg.ATRPeriod)
	}

	m := &MACross{cfg: cfg, kind: kind, ma: indicators.SMA}
	switch kind {
	case SMAKind:
	case EMAKind:
		m.ma = indicators.EMA
	default:
		return nil, fmt.Errorf("ma-cross: unknown average %q", kind)
	}
	return m, nil
}

func (m *MACross) Name() string {
	return fmt.Sprintf("%s-cross(%d,%d)", m.kind, m.cfg.FastPeriod, m.cfg.SlowPeriod)
}

// Warmup is the number of bars needed before the first signal.
func (m *MACross) Warmup() int {
	n := m.cfg.SlowPeriod + 1
	if a := m.cfg.ATRPeriod + 1; a > n {
		n = a
	}
	return n
}

func (m *MACross) Recommend(ctx context.Context, h History) ([]risk.Candidate, error) {
	var out []risk.Candidate
	for _, sym := range h.Symbols() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, ok := m.signal(sym, h.Bars(sym))
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MACross) signal(sym string, bars []market.Bar) (risk.Candidate, bool) {
	if len(bars) < m.Warmup() {
		return risk.Candidate{}, false
	}
	n := len(bars)

	diff, err := m.diff(bars)
	if err != nil {
		return risk.Candidate{}, false
	}
	prev, err := m.diff(bars[:n-1])
	if err != nil {
		return risk.Candidate{}, false
	}

	var side market.Side
	switch {
	case diff > 0 && prev <= 0:
		side = market.Long
	case diff < 0 && prev >= 0 && m.cfg.AllowShort:
		side = market.Short
	default:
		return risk.Candidate{}, false
	}

	atr, err := indicators.ATRFunc(bars, m.cfg.ATRPeriod)
	if err != nil || atr <= 0 {
		return risk.Candidate{}, false
	}

	return risk.Candidate{
		Symbol:           sym,
		Side:             side,
		EntryPrice:       bars[n-1].Close,
		ATR:              atr,
		Confidence:       m.cfg.Confidence,
		CorrelationGroup: m.cfg.Groups[sym],
	}, true
}

func (m *MACross) diff(bars []market.Bar) (float64, error) {
	fast, err := m.ma(bars, m.cfg.FastPeriod)
	if err != nil {
		return 0, err
	}
	slow, err := m.ma(bars, m.cfg.SlowPeriod)
	if err != nil {
		return 0, err
	}
	return fast - slow, nil
}
