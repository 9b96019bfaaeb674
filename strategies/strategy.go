// Package strategies holds the recommenders that turn market history into
// trade candidates for the risk engine.
package strategies

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/risk"
)

// History is the read-only market view at one decision time. Bars never
// extend past Now.
type History interface {
	Now() time.Time
	Symbols() []string
	// Bars returns the symbol's bars up to and including Now, oldest first.
	// Callers must not modify the returned slice.
	Bars(symbol string) []market.Bar
}

// Recommender proposes candidates. Returning none is the normal answer
// when a symbol lacks enough history.
type Recommender interface {
	Name() string
	Recommend(ctx context.Context, h History) ([]risk.Candidate, error)
}

// Factory builds a fresh recommender so parallel runs share no state.
type Factory func(cfg Config) (Recommender, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Names lists registered recommenders in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds the recommender named by cfg.Name.
func New(cfg Config) (Recommender, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", cfg.Name, strings.Join(Names(), ", "))
	}
	return f(cfg.withDefaults())
}

func init() {
	Register("noop", func(Config) (Recommender, error) { return Noop{}, nil })
	Register("sma-cross", func(cfg Config) (Recommender, error) { return NewMACross(cfg, SMAKind) })
	Register("ema-cross", func(cfg Config) (Recommender, error) { return NewMACross(cfg, EMAKind) })
	Register("ema-adx", func(cfg Config) (Recommender, error) {
		inner, err := NewMACross(cfg, EMAKind)
		if err != nil {
			return nil, err
		}
		return NewADXFilter(inner, cfg.ADXPeriod, cfg.ADXMin), nil
	})
}
