package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanHuYY/Stockbot/market"
)

func TestHistoryTimelineAndCursor(t *testing.T) {
	t.Parallel()

	h, err := NewHistory([]market.Bar{
		bar("MSFT", 1, 100, 101, 99, 100),
		bar("AAPL", 0, 50, 51, 49, 50),
		bar("AAPL", 2, 50, 51, 49, 50),
		bar("AAPL", 1, 50, 51, 49, 50),
	})
	require.NoError(t, err)

	tl := h.Timeline()
	require.Len(t, tl, 3)
	assert.True(t, tl[0].Equal(day(0)))
	assert.True(t, tl[2].Equal(day(2)))
	assert.Equal(t, []string{"AAPL", "MSFT"}, h.AllSymbols())

	h.Advance(day(0))
	assert.Equal(t, []string{"AAPL"}, h.Symbols())
	assert.Len(t, h.Bars("AAPL"), 1)
	assert.Empty(t, h.Bars("MSFT"))
	assert.Empty(t, h.Bars("NOPE"))
	_, ok := h.Current("MSFT")
	assert.False(t, ok)

	h.Advance(day(1))
	assert.Equal(t, []string{"AAPL", "MSFT"}, h.Symbols())
	cur, ok := h.Current("MSFT")
	require.True(t, ok)
	assert.True(t, cur.Time.Equal(day(1)))

	h.Advance(day(2))
	_, ok = h.Current("MSFT")
	assert.False(t, ok, "MSFT has no bar at day 2")
	last, ok := h.Last("MSFT")
	require.True(t, ok)
	assert.True(t, last.Time.Equal(day(1)))
}

func TestHistoryBarsHaveNoSpareCapacity(t *testing.T) {
	t.Parallel()

	h, err := NewHistory([]market.Bar{
		bar("AAPL", 0, 50, 51, 49, 50),
		bar("AAPL", 1, 60, 61, 59, 60),
	})
	require.NoError(t, err)
	h.Advance(day(0))

	bars := h.Bars("AAPL")
	assert.Equal(t, len(bars), cap(bars))

	bars = append(bars, bar("AAPL", 9, 1, 1, 1, 1))
	h.Advance(day(1))
	assert.Equal(t, 60.0, h.Bars("AAPL")[1].Close, "append must not overwrite later bars")
}

func TestHistoryRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewHistory([]market.Bar{bar("AAPL", 0, 50, 51, 49, 50), bar("AAPL", 0, 50, 51, 49, 50)})
	assert.ErrorIs(t, err, ErrBadBar)

	_, err = NewHistory([]market.Bar{bar("", 0, 50, 51, 49, 50)})
	assert.ErrorIs(t, err, ErrBadBar)

	_, err = NewHistory([]market.Bar{bar("AAPL", 0, 50, 40, 49, 50)})
	assert.ErrorIs(t, err, ErrBadBar)
}
