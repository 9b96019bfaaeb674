package portfolio

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanHuYY/Stockbot/market"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func long(symbol string, qty int64, entry, stop float64) Position {
	return Position{Symbol: symbol, Side: market.Long, Quantity: qty, EntryPrice: entry, StopLoss: stop, OpenedAt: t0}
}

func TestOpenPosition_UpdatesCashAndEquity(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	require.NoError(t, p.OpenPosition(long("AAPL", 100, 50, 46)))

	assert.InDelta(t, 95_000.0, p.Cash(), 1e-9)
	assert.InDelta(t, 100_000.0, p.Equity(), 1e-9)
	assert.InDelta(t, 400.0, p.AtRisk(), 1e-9)

	pos, ok := p.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 50.0, pos.CurrentPrice)
}

func TestOpenPosition_RejectsDuplicate(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	require.NoError(t, p.OpenPosition(long("AAPL", 100, 50, 46)))

	err := p.OpenPosition(long("AAPL", 10, 51, 47))
	require.ErrorIs(t, err, ErrPositionExists)

	pos, _ := p.Position("AAPL")
	assert.Equal(t, int64(100), pos.Quantity, "existing position must not be overwritten")
	assert.InDelta(t, 95_000.0, p.Cash(), 1e-9)
}

func TestOpenPosition_Validates(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	assert.ErrorIs(t, p.OpenPosition(Position{Symbol: "X", Side: market.Long, Quantity: 0, EntryPrice: 1}), ErrInvalidFill)
	assert.ErrorIs(t, p.OpenPosition(Position{Symbol: "X", Side: 0, Quantity: 1, EntryPrice: 1}), ErrInvalidFill)
	assert.ErrorIs(t, p.OpenPosition(Position{Symbol: "", Side: market.Long, Quantity: 1, EntryPrice: 1}), ErrInvalidFill)
	assert.Empty(t, p.Positions())
}

func TestShortPosition(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	require.NoError(t, p.OpenPosition(Position{
		Symbol: "TSLA", Side: market.Short, Quantity: 100, EntryPrice: 200, StopLoss: 210, OpenedAt: t0,
	}))

	// Short proceeds land in cash; equity is unchanged at entry.
	assert.InDelta(t, 120_000.0, p.Cash(), 1e-9)
	assert.InDelta(t, 100_000.0, p.Equity(), 1e-9)
	assert.InDelta(t, 100_000.0, p.BuyingPower(), 1e-9)
	assert.InDelta(t, 1_000.0, p.AtRisk(), 1e-9)

	p.MarkToMarket(map[string]float64{"TSLA": 190})
	assert.InDelta(t, 101_000.0, p.Equity(), 1e-9)

	c, err := p.ClosePosition("TSLA", 190, t0.Add(time.Hour), "target")
	require.NoError(t, err)
	assert.InDelta(t, 1_000.0, c.RealizedPL, 1e-9)
	assert.InDelta(t, 101_000.0, p.Cash(), 1e-9)
	assert.InDelta(t, 101_000.0, p.Equity(), 1e-9)
}

func TestIncreaseAndReducePosition(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	require.NoError(t, p.OpenPosition(long("AAPL", 100, 50, 46)))
	require.NoError(t, p.IncreasePosition("AAPL", 100, 60))

	pos, _ := p.Position("AAPL")
	assert.Equal(t, int64(200), pos.Quantity)
	assert.InDelta(t, 55.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 89_000.0, p.Cash(), 1e-9)

	c, err := p.ReducePosition("AAPL", 50, 65, t0, "trim")
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.Quantity)
	assert.InDelta(t, 500.0, c.RealizedPL, 1e-9)

	pos, _ = p.Position("AAPL")
	assert.Equal(t, int64(150), pos.Quantity)

	_, err = p.ReducePosition("AAPL", 151, 65, t0, "too many")
	assert.ErrorIs(t, err, ErrInvalidFill)

	_, err = p.ReducePosition("AAPL", 150, 65, t0, "rest")
	require.NoError(t, err)
	_, ok := p.Position("AAPL")
	assert.False(t, ok)
	assert.InDelta(t, 2_000.0, p.RealizedPL(), 1e-9)
}

func TestPositionNotFound(t *testing.T) {
	t.Parallel()

	p := New(1_000)
	assert.ErrorIs(t, p.IncreasePosition("NOPE", 1, 1), ErrPositionNotFound)
	_, err := p.ClosePosition("NOPE", 1, t0, "x")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestMarkToMarket_DoesNotMoveBaseline(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	require.True(t, p.RollDailyBaseline(t0))
	require.NoError(t, p.OpenPosition(long("AAPL", 1_000, 50, 40)))

	p.MarkToMarket(map[string]float64{"AAPL": 46, "UNHELD": 10})

	assert.InDelta(t, 96_000.0, p.Equity(), 1e-9)
	assert.InDelta(t, 100_000.0, p.DailyStartEquity(), 1e-9)
	assert.InDelta(t, -0.04, p.DailyPnLPct(), 1e-12)
}

func TestRollDailyBaseline_OncePerDay(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	require.NoError(t, p.OpenPosition(long("AAPL", 1_000, 50, 40)))

	assert.True(t, p.RollDailyBaseline(t0))
	p.MarkToMarket(map[string]float64{"AAPL": 48})

	// Same day again: no change.
	assert.False(t, p.RollDailyBaseline(t0.Add(3*time.Hour)))
	assert.InDelta(t, 100_000.0, p.DailyStartEquity(), 1e-9)

	// Earlier day is ignored too.
	assert.False(t, p.RollDailyBaseline(t0.AddDate(0, 0, -1)))

	assert.True(t, p.RollDailyBaseline(t0.AddDate(0, 0, 1)))
	assert.InDelta(t, 98_000.0, p.DailyStartEquity(), 1e-9)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), p.TradingDay())
}

func TestCorrelationExposure(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	a := long("MSFT", 10, 100, 90)
	a.CorrelationGroup = "tech"
	b := long("NVDA", 10, 100, 95)
	b.CorrelationGroup = "tech"
	c := long("XOM", 10, 100, 80)
	c.CorrelationGroup = "energy"
	d := long("KO", 10, 100, 99)

	for _, pos := range []Position{a, b, c, d} {
		require.NoError(t, p.OpenPosition(pos))
	}

	assert.InDelta(t, 150.0, p.CorrelationExposure("tech"), 1e-9)
	assert.InDelta(t, 200.0, p.CorrelationExposure("energy"), 1e-9)
	assert.Zero(t, p.CorrelationExposure(""))
	assert.InDelta(t, 360.0, p.AtRisk(), 1e-9)
}

func TestAtRisk_Edges(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, AtRisk(market.Long, 50, 55, 10), "stop above entry locks in profit")
	assert.Equal(t, 500.0, AtRisk(market.Long, 50, 0, 10), "no stop risks the full entry value")
	assert.True(t, math.IsInf(AtRisk(market.Short, 50, 0, 10), 1))
	assert.Equal(t, 50.0, AtRisk(market.Short, 50, 55, 10))
	assert.Equal(t, 0.0, AtRisk(market.Long, 50, 45, 0))
}

func TestSnapshot_IsACopy(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	require.NoError(t, p.OpenPosition(long("AAPL", 100, 50, 46)))

	s := p.Snapshot()
	s.Positions[0].Quantity = 1

	pos, _ := p.Position("AAPL")
	assert.Equal(t, int64(100), pos.Quantity)
}

func TestSnapshotWith(t *testing.T) {
	t.Parallel()

	s := Snapshot{Cash: 100_000, Equity: 100_000, DailyStartEquity: 100_000}
	s2 := s.With(long("AAPL", 100, 50, 46))

	assert.Empty(t, s.Positions)
	assert.Len(t, s2.Positions, 1)
	assert.True(t, s2.Has("AAPL"))
	assert.InDelta(t, 95_000.0, s2.Cash, 1e-9)
	assert.InDelta(t, 100_000.0, s2.Equity, 1e-9)
	assert.InDelta(t, 400.0, s2.AtRisk(), 1e-9)
}

func TestFromSnapshot(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	require.NoError(t, p.OpenPosition(long("AAPL", 100, 50, 46)))
	p.MarkToMarket(map[string]float64{"AAPL": 52})

	q, err := FromSnapshot(p.Snapshot())
	require.NoError(t, err)
	assert.InDelta(t, p.Equity(), q.Equity(), 1e-9)
	assert.Equal(t, p.Positions(), q.Positions())

	dup := p.Snapshot()
	dup.Positions = append(dup.Positions, dup.Positions[0])
	_, err = FromSnapshot(dup)
	assert.ErrorIs(t, err, ErrPositionExists)
}

func TestPositionsOrdering(t *testing.T) {
	t.Parallel()

	p := New(100_000)
	b := long("BBB", 1, 10, 9)
	b.OpenedAt = t0
	a := long("AAA", 1, 10, 9)
	a.OpenedAt = t0.Add(time.Minute)
	c := long("CCC", 1, 10, 9)
	c.OpenedAt = t0

	for _, pos := range []Position{a, b, c} {
		require.NoError(t, p.OpenPosition(pos))
	}

	var got []string
	for _, pos := range p.Positions() {
		got = append(got, pos.Symbol)
	}
	assert.Equal(t, []string{"BBB", "CCC", "AAA"}, got)
}

func TestConcurrentOpenSameSymbol(t *testing.T) {
	t.Parallel()

	p := New(1_000_000)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.OpenPosition(long("AAPL", 10, 50, 45)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
			_ = p.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.InDelta(t, 999_500.0, p.Cash(), 1e-9)
}

func TestChargeFee(t *testing.T) {
	t.Parallel()

	p := New(1_000)
	p.ChargeFee(2.5)
	p.ChargeFee(-1)

	assert.InDelta(t, 997.5, p.Cash(), 1e-9)
	assert.InDelta(t, 2.5, p.Fees(), 1e-9)
	assert.InDelta(t, -2.5, p.RealizedPL(), 1e-9)
}
