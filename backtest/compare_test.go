package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanHuYY/Stockbot/journal"
	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/strategies"
)

func init() {
	strategies.Register("test-always", func(strategies.Config) (strategies.Recommender, error) { return always{}, nil })
}

// uptrend rises 1% per bar with a narrow range.
func uptrend(n int, sym string) []market.Bar {
	var out []market.Bar
	prev := 100.0
	for i := 0; i < n; i++ {
		c := prev * 1.01
		out = append(out, market.Bar{Symbol: sym, Time: day(i), Open: prev, High: c * 1.002, Low: prev * 0.998, Close: c})
		prev = c
	}
	return out
}

func TestCompareRanksBySharpe(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RiskFreeRate = 0
	variants := []Variant{
		{Name: "flat", Strategy: strategies.Config{Name: "noop"}, Backtest: cfg},
		{Name: "long", Strategy: strategies.Config{Name: "test-always"}, Backtest: cfg},
	}

	j := journal.NewMemory()
	ranked, err := Compare(context.Background(), uptrend(40, "AAPL"), variants, WithJournal(j))
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "long", ranked[0].Name)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Greater(t, ranked[0].Result.Metrics.Sharpe, 0.0)
	assert.Equal(t, "flat", ranked[1].Name)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Zero(t, ranked[1].Result.Metrics.Sharpe)

	assert.Equal(t, "long", ranked[0].Result.RunID)
	assert.NotEmpty(t, j.Decisions(journal.DecisionFilter{RunID: "long"}))
	assert.Empty(t, j.Decisions(journal.DecisionFilter{RunID: "flat"}))
}

func TestCompareMatchesSingleRuns(t *testing.T) {
	t.Parallel()

	bars := wave(40, "AAPL", "MSFT")
	cfg := DefaultConfig()
	variants := []Variant{
		{Name: "a", Strategy: strategies.Config{Name: "test-always"}, Backtest: cfg},
		{Name: "b", Strategy: strategies.Config{Name: "test-always"}, Backtest: cfg},
		{Name: "c", Strategy: strategies.Config{Name: "test-always"}, Backtest: cfg},
	}
	ranked, err := Compare(context.Background(), bars, variants)
	require.NoError(t, err)

	single := runSim(t, cfg, always{}, bars)
	for _, r := range ranked {
		assert.Equal(t, single.Trades[0].RealizedPL, r.Result.Trades[0].RealizedPL)
		assert.Equal(t, single.Metrics, r.Result.Metrics, "parallel runs share no state")
	}
	assert.Equal(t, []string{"a", "b", "c"}, []string{ranked[0].Name, ranked[1].Name, ranked[2].Name}, "ties break by name")
}

func TestCompareErrors(t *testing.T) {
	t.Parallel()

	bars := uptrend(5, "AAPL")
	cfg := DefaultConfig()

	_, err := Compare(context.Background(), bars, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Compare(context.Background(), bars, []Variant{
		{Name: "x", Strategy: strategies.Config{Name: "noop"}, Backtest: cfg},
		{Name: "x", Strategy: strategies.Config{Name: "noop"}, Backtest: cfg},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Compare(context.Background(), bars, []Variant{
		{Name: "x", Strategy: strategies.Config{Name: "no-such-strategy"}, Backtest: cfg},
	})
	assert.ErrorContains(t, err, "unknown strategy")
}
