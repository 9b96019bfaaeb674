package backtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBarRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		row     []string
		wantOk  bool
		wantErr bool
	}{
		{"rfc3339", []string{"2024-01-02T14:30:00Z", "AAPL", "50", "51", "49", "50.5", "1000"}, true, false},
		{"date only", []string{"2024-01-02", "AAPL", "50", "51", "49", "50.5"}, true, false},
		{"space layout", []string{"2024-01-02 09:30:00", "AAPL", "50", "51", "49", "50.5"}, true, false},
		{"whitespace", []string{" 2024-01-02 ", " AAPL ", " 50 ", "51", "49", "50.5"}, true, false},
		{"too few columns", []string{"2024-01-02", "AAPL", "50", "51", "49"}, false, false},
		{"empty time", []string{"", "AAPL", "50", "51", "49", "50.5"}, false, false},
		{"empty symbol", []string{"2024-01-02", "", "50", "51", "49", "50.5"}, false, false},
		{"bad time", []string{"yesterday", "AAPL", "50", "51", "49", "50.5"}, false, true},
		{"bad price", []string{"2024-01-02", "AAPL", "x", "51", "49", "50.5"}, false, true},
		{"bad volume", []string{"2024-01-02", "AAPL", "50", "51", "49", "50.5", "lots"}, false, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, ok, err := parseBarRow(tt.row, time.UTC)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOk, ok)
			if ok {
				assert.Equal(t, "AAPL", b.Symbol)
				assert.Equal(t, 50.5, b.Close)
			}
		})
	}
}

func TestParseTimeUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*3600)
	got, err := parseTime("2024-01-02 09:30:00", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)))

	// An explicit offset wins over the location.
	got, err = parseTime("2024-01-02T09:30:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)))
}

const sampleCSV = `time,symbol,open,high,low,close,volume
2024-01-02,AAPL,50,51,49,50.5,1000
2024-01-02,MSFT,100,101,99,100.5,2000

2024-01-03,AAPL,50.5,52,50,51,1100
2024-01-03,MSFT,100.5,102,100,101,2100
2024-01-04,AAPL,51,53,50.5,52,1200
`

func TestCSVBarFeed(t *testing.T) {
	t.Parallel()

	feed := newCSVBarFeed(strings.NewReader(sampleCSV), time.Time{}, time.Time{}, nil)
	bars, err := feed.ReadAll()
	require.NoError(t, err)
	require.Len(t, bars, 5)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, 1000.0, bars[0].Volume)
	assert.Equal(t, "MSFT", bars[3].Symbol)
	assert.NoError(t, feed.Close())
}

func TestCSVBarFeedRange(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	feed := newCSVBarFeed(strings.NewReader(sampleCSV), from, to, time.UTC)
	bars, err := feed.ReadAll()
	require.NoError(t, err)
	require.Len(t, bars, 2)
	for _, b := range bars {
		assert.True(t, b.Time.Equal(from))
	}
}

func TestCSVBarFeedRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		csv  string
	}{
		{"out of order", "2024-01-03,AAPL,50,51,49,50\n2024-01-02,AAPL,50,51,49,50\n"},
		{"duplicate time", "2024-01-02,AAPL,50,51,49,50\n2024-01-02,AAPL,50,51,49,50\n"},
		{"high below low", "2024-01-02,AAPL,50,48,49,50\n"},
		{"non-positive", "2024-01-02,AAPL,0,51,49,50\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := newCSVBarFeed(strings.NewReader(tt.csv), time.Time{}, time.Time{}, nil).ReadAll()
			assert.ErrorIs(t, err, ErrBadBar)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "aapl.csv")
	m := filepath.Join(dir, "msft.csv")
	require.NoError(t, os.WriteFile(a, []byte("2024-01-02,AAPL,50,51,49,50\n2024-01-03,AAPL,50,51,49,50\n"), 0o644))
	require.NoError(t, os.WriteFile(m, []byte("time,symbol,open,high,low,close\n2024-01-02,MSFT,100,101,99,100\n"), 0o644))

	bars, err := LoadCSV([]string{a, m}, time.Time{}, time.Time{}, time.UTC)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars[0].Time.Equal(bars[1].Time), "sorted by time across files")
	assert.Equal(t, "MSFT", bars[1].Symbol)

	_, err = LoadCSV([]string{filepath.Join(dir, "missing.csv")}, time.Time{}, time.Time{}, nil)
	assert.Error(t, err)
}
