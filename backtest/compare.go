package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/strategies"
)

// Variant is one named configuration in a comparison.
type Variant struct {
	Name     string            `json:"name" yaml:"name"`
	Strategy strategies.Config `json:"strategy" yaml:"strategy"`
	Backtest Config            `json:"backtest" yaml:"backtest"`
}

type Ranked struct {
	Rank   int
	Name   string
	Result *Result
}

// Compare runs every variant over the same bars in parallel and ranks
// them by Sharpe ratio, best first. Each variant gets a fresh recommender
// and portfolio; opts apply to every run and the variant name becomes
// the run ID.
func Compare(ctx context.Context, bars []market.Bar, variants []Variant, opts ...Option) ([]Ranked, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: no variants to compare", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if v.Name == "" || seen[v.Name] {
			return nil, fmt.Errorf("%w: variant names must be unique and non-empty (%q)", ErrInvalidConfig, v.Name)
		}
		seen[v.Name] = true
	}

	results := make([]*Result, len(variants))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			rec, err := strategies.New(v.Strategy)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.Name, err)
			}
			runOpts := append(append([]Option(nil), opts...), WithRunID(v.Name))
			sim, err := New(v.Backtest, rec, runOpts...)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.Name, err)
			}
			res, err := sim.Run(ctx, bars)
			if err != nil {
				return fmt.Errorf("variant %s: %w", v.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]Ranked, len(variants))
	for i, v := range variants {
		ranked[i] = Ranked{Name: v.Name, Result: results[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Result.Metrics.Sharpe, ranked[j].Result.Metrics.Sharpe
		if a != b {
			return a > b
		}
		return ranked[i].Name < ranked[j].Name
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked, nil
}
