package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/IvanHuYY/Stockbot/market"
)

// ErrBadBar marks a row that parsed but failed validation or ordering.
var ErrBadBar = errors.New("backtest: bad bar")

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CSVBarFeed reads OHLCV rows:
//
//	time,symbol,open,high,low,close[,volume]
//
// time is RFC3339, "2006-01-02 15:04:05" or a bare date; zoneless values
// are read in Location. A header row ("time,...") is allowed and
// empty/short rows are skipped. Bars outside [From, To) are dropped.
type CSVBarFeed struct {
	f    io.Closer
	r    *csv.Reader
	from time.Time
	to   time.Time
	loc  *time.Location

	line     int
	sawFirst bool
	last     map[string]time.Time
}

func NewCSVBarFeed(path string, from, to time.Time, loc *time.Location) (*CSVBarFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := newCSVBarFeed(f, from, to, loc)
	feed.f = f
	return feed, nil
}

func newCSVBarFeed(r io.Reader, from, to time.Time, loc *time.Location) *CSVBarFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if loc == nil {
		loc = time.UTC
	}
	return &CSVBarFeed{r: cr, from: from, to: to, loc: loc, last: map[string]time.Time{}}
}

func (f *CSVBarFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

// Next returns the next bar in range. ok is false at EOF. Bars of one
// symbol must be strictly increasing in time.
func (f *CSVBarFeed) Next() (market.Bar, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Bar{}, false, nil
		}
		if err != nil {
			return market.Bar{}, false, err
		}
		f.line++
		if len(row) == 0 {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		b, ok, err := parseBarRow(row, f.loc)
		if err != nil {
			return market.Bar{}, false, fmt.Errorf("line %d: %w", f.line, err)
		}
		if !ok {
			continue
		}
		if !b.Valid() {
			return market.Bar{}, false, fmt.Errorf("line %d: %w: %s %s ohlc %g/%g/%g/%g",
				f.line, ErrBadBar, b.Symbol, b.Time.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close)
		}
		if prev, seen := f.last[b.Symbol]; seen && !b.Time.After(prev) {
			return market.Bar{}, false, fmt.Errorf("line %d: %w: %s at %s is not after %s",
				f.line, ErrBadBar, b.Symbol, b.Time.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		f.last[b.Symbol] = b.Time

		if !inRange(b.Time, f.from, f.to) {
			continue
		}
		return b, true, nil
	}
}

// ReadAll drains the feed.
func (f *CSVBarFeed) ReadAll() ([]market.Bar, error) {
	var out []market.Bar
	for {
		b, ok, err := f.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, b)
	}
}

// LoadCSV reads and concatenates bars from every path. A symbol may be
// split across files as long as its bars stay in order overall.
func LoadCSV(paths []string, from, to time.Time, loc *time.Location) ([]market.Bar, error) {
	var all []market.Bar
	for _, p := range paths {
		feed, err := NewCSVBarFeed(p, from, to, loc)
		if err != nil {
			return nil, err
		}
		bars, err := feed.ReadAll()
		_ = feed.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		all = append(all, bars...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	return all, nil
}

func parseBarRow(row []string, loc *time.Location) (market.Bar, bool, error) {
	if len(row) < 6 {
		return market.Bar{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	sym := strings.TrimSpace(row[1])
	if ts == "" || sym == "" {
		return market.Bar{}, false, nil
	}
	t, err := parseTime(ts, loc)
	if err != nil {
		return market.Bar{}, false, err
	}

	var px [4]float64
	for i := range px {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[2+i]), 64)
		if err != nil {
			return market.Bar{}, false, fmt.Errorf("bad price %q: %w", row[2+i], err)
		}
		px[i] = v
	}

	var vol float64
	if len(row) > 6 && strings.TrimSpace(row[6]) != "" {
		vol, err = strconv.ParseFloat(strings.TrimSpace(row[6]), 64)
		if err != nil {
			return market.Bar{}, false, fmt.Errorf("bad volume %q: %w", row[6], err)
		}
	}

	return market.Bar{
		Symbol: sym,
		Time:   t,
		Open:   px[0],
		High:   px[1],
		Low:    px[2],
		Close:  px[3],
		Volume: vol,
	}, true, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
