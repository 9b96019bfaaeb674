package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/risk"
)

type fakeHistory map[string][]market.Bar

func (h fakeHistory) Now() time.Time { return time.Time{} }

func (h fakeHistory) Symbols() []string {
	out := make([]string, 0, len(h))
	for s := range h {
		out = append(out, s)
	}
	return out
}

func (h fakeHistory) Bars(symbol string) []market.Bar { return h[symbol] }

func closes(symbol string, cs ...float64) []market.Bar {
	base := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	out := make([]market.Bar, len(cs))
	for i, c := range cs {
		out[i] = market.Bar{Symbol: symbol, Time: base.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func testConfig() Config {
	return Config{FastPeriod: 2, SlowPeriod: 4, ATRPeriod: 3, Confidence: 0.8, Groups: map[string]string{"AAPL": "tech"}}
}

func TestMACross_BullCross(t *testing.T) {
	t.Parallel()

	m, err := NewMACross(testConfig(), SMAKind)
	require.NoError(t, err)

	h := fakeHistory{"AAPL": closes("AAPL", 10, 10, 10, 10, 10, 9, 9, 15)}
	got, err := m.Recommend(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "AAPL", c.Symbol)
	assert.Equal(t, market.Long, c.Side)
	assert.Equal(t, 15.0, c.EntryPrice)
	assert.Greater(t, c.ATR, 0.0)
	assert.Equal(t, 0.8, c.Confidence)
	assert.Equal(t, "tech", c.CorrelationGroup)
}

func TestMACross_BearCrossNeedsAllowShort(t *testing.T) {
	t.Parallel()

	h := fakeHistory{"XOM": closes("XOM", 10, 10, 10, 10, 10, 11, 11, 5)}

	m, err := NewMACross(testConfig(), SMAKind)
	require.NoError(t, err)
	got, err := m.Recommend(context.Background(), h)
	require.NoError(t, err)
	assert.Empty(t, got)

	cfg := testConfig()
	cfg.AllowShort = true
	m, err = NewMACross(cfg, SMAKind)
	require.NoError(t, err)
	got, err = m.Recommend(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, market.Short, got[0].Side)
	assert.Empty(t, got[0].CorrelationGroup)
}

func TestMACross_NoSignal(t *testing.T) {
	t.Parallel()

	m, err := NewMACross(testConfig(), EMAKind)
	require.NoError(t, err)

	h := fakeHistory{
		"FLAT":  closes("FLAT", 10, 10, 10, 10, 10, 10, 10, 10),
		"SHORT": closes("SHORT", 10, 12),
	}
	got, err := m.Recommend(context.Background(), h)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMACross_ConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := NewMACross(Config{FastPeriod: 5, SlowPeriod: 5}, SMAKind)
	assert.Error(t, err)

	_, err = NewMACross(testConfig(), MAKind("wma"))
	assert.Error(t, err)
}

func TestMACross_CanceledContext(t *testing.T) {
	t.Parallel()

	m, err := NewMACross(testConfig(), SMAKind)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Recommend(ctx, fakeHistory{"AAPL": closes("AAPL", 1, 2)})
	assert.ErrorIs(t, err, context.Canceled)
}

type fixed []risk.Candidate

func (f fixed) Name() string { return "fixed" }

func (f fixed) Recommend(context.Context, History) ([]risk.Candidate, error) {
	return append([]risk.Candidate(nil), f...), nil
}

func TestADXFilter(t *testing.T) {
	t.Parallel()

	trend := make([]float64, 20)
	for i := range trend {
		trend[i] = 100 + 2*float64(i)
	}
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}

	h := fakeHistory{
		"UP":   closes("UP", trend...),
		"FLAT": closes("FLAT", flat...),
		"NEW":  closes("NEW", 1, 2, 3),
	}
	inner := fixed{{Symbol: "UP"}, {Symbol: "FLAT"}, {Symbol: "NEW"}}

	f := NewADXFilter(inner, 3, 20)
	got, err := f.Recommend(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "UP", got[0].Symbol)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"noop", "sma-cross", "ema-cross", "ema-adx"} {
		r, err := New(Config{Name: name})
		require.NoError(t, err, name)
		assert.NotEmpty(t, r.Name())
	}

	_, err := New(Config{Name: "martingale"})
	assert.ErrorContains(t, err, "unknown strategy")

	got, err := Noop{}.Recommend(context.Background(), fakeHistory{})
	assert.NoError(t, err)
	assert.Empty(t, got)
}
