package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IvanHuYY/Stockbot/portfolio"
)

// DayClock rolls the portfolio's daily loss baseline exactly once per
// trading day in its time zone, no matter how often Tick is called.
type DayClock struct {
	mu  sync.Mutex
	pf  *portfolio.Portfolio
	loc *time.Location
	log *zap.Logger

	onRoll []func(day time.Time)
}

func NewDayClock(pf *portfolio.Portfolio, loc *time.Location, log *zap.Logger) *DayClock {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DayClock{pf: pf, loc: loc, log: log}
}

// OnRoll registers f to run after each roll.
func (c *DayClock) OnRoll(f func(day time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRoll = append(c.onRoll, f)
}

// Tick reports whether now started a new trading day.
func (c *DayClock) Tick(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pf.RollDailyBaseline(now.In(c.loc)) {
		return false
	}
	day := c.pf.TradingDay()
	c.log.Info("new trading day",
		zap.String("day", day.Format("2006-01-02")),
		zap.Float64("start_equity", c.pf.DailyStartEquity()))
	for _, f := range c.onRoll {
		f(day)
	}
	return true
}

// Run ticks every interval until ctx is done.
func (c *DayClock) Run(ctx context.Context, interval time.Duration) error {
	c.Tick(time.Now())
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			c.Tick(now)
		}
	}
}
