package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/IvanHuYY/Stockbot/market"
)

// History is a cursor over a fixed set of bars. After Advance(t) nothing
// later than t is reachable through it, so a recommender handed a
// History cannot look ahead.
type History struct {
	now      time.Time
	symbols  []string
	series   map[string][]market.Bar
	visible  map[string]int
	timeline []time.Time
}

// NewHistory groups bars by symbol. Each symbol's bars must be valid and
// strictly increasing in time; input order across symbols is free.
func NewHistory(bars []market.Bar) (*History, error) {
	h := &History{
		series:  make(map[string][]market.Bar),
		visible: make(map[string]int),
	}

	sorted := append([]market.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	seen := make(map[time.Time]struct{})
	for _, b := range sorted {
		if b.Symbol == "" || !b.Valid() {
			return nil, fmt.Errorf("%w: %q at %s", ErrBadBar, b.Symbol, b.Time.Format(time.RFC3339))
		}
		s := h.series[b.Symbol]
		if n := len(s); n > 0 && !b.Time.After(s[n-1].Time) {
			return nil, fmt.Errorf("%w: duplicate %s bar at %s", ErrBadBar, b.Symbol, b.Time.Format(time.RFC3339))
		}
		h.series[b.Symbol] = append(s, b)

		key := b.Time.UTC()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			h.timeline = append(h.timeline, b.Time)
		}
	}

	for sym := range h.series {
		h.symbols = append(h.symbols, sym)
	}
	sort.Strings(h.symbols)
	return h, nil
}

// Timeline is the ascending union of every symbol's bar times.
func (h *History) Timeline() []time.Time {
	return append([]time.Time(nil), h.timeline...)
}

// Advance moves the cursor forward to t. Moving backwards is not
// supported.
func (h *History) Advance(t time.Time) {
	h.now = t
	for sym, s := range h.series {
		i := h.visible[sym]
		for i < len(s) && !s[i].Time.After(t) {
			i++
		}
		h.visible[sym] = i
	}
}

func (h *History) Now() time.Time { return h.now }

// Symbols lists symbols with at least one visible bar.
func (h *History) Symbols() []string {
	out := make([]string, 0, len(h.symbols))
	for _, sym := range h.symbols {
		if h.visible[sym] > 0 {
			out = append(out, sym)
		}
	}
	return out
}

// AllSymbols lists every symbol in the data set.
func (h *History) AllSymbols() []string {
	return append([]string(nil), h.symbols...)
}

// Bars returns the visible bars of symbol. The slice has no spare
// capacity, so appending to it cannot reach later bars.
func (h *History) Bars(symbol string) []market.Bar {
	i := h.visible[symbol]
	return h.series[symbol][:i:i]
}

// Current returns the symbol's bar stamped exactly Now.
func (h *History) Current(symbol string) (market.Bar, bool) {
	b, ok := h.Last(symbol)
	if !ok || !b.Time.Equal(h.now) {
		return market.Bar{}, false
	}
	return b, true
}

// Last returns the most recent visible bar of symbol.
func (h *History) Last(symbol string) (market.Bar, bool) {
	i := h.visible[symbol]
	if i == 0 {
		return market.Bar{}, false
	}
	return h.series[symbol][i-1], true
}
