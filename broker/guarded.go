package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Delay is the wait before attempt n+1 (n starts at 1).
func (c RetryConfig) Delay(n int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(n-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

type GuardConfig struct {
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	RatePerSec float64       `json:"rate_per_sec" yaml:"rate_per_sec"`
	Burst      int           `json:"burst" yaml:"burst"`
	Retry      RetryConfig   `json:"retry" yaml:"retry"`
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:    10 * time.Second,
		RatePerSec: 3,
		Burst:      5,
		Retry:      DefaultRetryConfig(),
	}
}

// Guarded wraps an Executor with a per-attempt timeout, a rate limiter and
// bounded retries of ErrTransient only. Before every retry it asks the
// broker for open orders on the symbol so a request that did land is not
// placed twice.
type Guarded struct {
	next    Executor
	cfg     GuardConfig
	limiter *rate.Limiter
	log     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewGuarded(next Executor, cfg GuardConfig, log *zap.Logger) *Guarded {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Guarded{
		next:    next,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
		sleep:   sleepCtx,
	}
}

func (g *Guarded) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if id, err := g.recheck(ctx, req); id != "" || err != nil {
				return id, err
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		id, err := g.placeOnce(ctx, req)
		if err == nil {
			if attempt > 1 {
				g.log.Info("order placed after retry",
					zap.String("symbol", req.Symbol), zap.Int("attempt", attempt), zap.String("order_id", id))
			}
			return id, nil
		}
		lastErr = err

		if !Retryable(err) {
			return "", err
		}
		if attempt == g.cfg.Retry.MaxAttempts {
			break
		}

		delay := g.cfg.Retry.Delay(attempt)
		g.log.Warn("order placement failed, retrying",
			zap.String("symbol", req.Symbol),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("place order %s after %d attempts: %w", req.Symbol, g.cfg.Retry.MaxAttempts, lastErr)
}

func (g *Guarded) PendingOrders(ctx context.Context, symbol string) ([]Order, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	return g.next.PendingOrders(ctx, symbol)
}

func (g *Guarded) placeOnce(ctx context.Context, req OrderRequest) (string, error) {
	actx, cancel := g.withTimeout(ctx)
	defer cancel()

	id, err := g.next.PlaceOrder(actx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Errorf("%w after %s: %v", ErrTimeout, g.cfg.Timeout, err)
	}
	return id, err
}

// recheck returns the ID of an order that already landed for this request,
// or ErrDuplicateOrder when some other open order covers the symbol.
func (g *Guarded) recheck(ctx context.Context, req OrderRequest) (string, error) {
	pending, err := g.PendingOrders(ctx, req.Symbol)
	if err != nil {
		return "", fmt.Errorf("recheck pending orders for %s: %w", req.Symbol, err)
	}
	for _, o := range pending {
		if req.ClientOrderID != "" && o.ClientOrderID == req.ClientOrderID {
			g.log.Info("order found on recheck", zap.String("symbol", req.Symbol), zap.String("order_id", o.ID))
			return o.ID, nil
		}
	}
	if len(pending) > 0 {
		return "", fmt.Errorf("%w: %s has %d open orders", ErrDuplicateOrder, req.Symbol, len(pending))
	}
	return "", nil
}

func (g *Guarded) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.Timeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
