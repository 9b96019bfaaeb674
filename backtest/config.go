package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/IvanHuYY/Stockbot/risk"
)

var ErrInvalidConfig = errors.New("invalid backtest config")

// Config controls one simulator run.
type Config struct {
	InitialCash float64     `json:"initial_cash" yaml:"initial_cash"`
	Limits      risk.Limits `json:"limits" yaml:"limits"`

	// Costs. Slippage is applied against the trader on market fills.
	CommissionPerTrade float64 `json:"commission_per_trade" yaml:"commission_per_trade"`
	CommissionPerShare float64 `json:"commission_per_share" yaml:"commission_per_share"`
	SlippageBps        float64 `json:"slippage_bps" yaml:"slippage_bps"`

	// CloseEnd liquidates open positions at the final bar's close.
	CloseEnd bool `json:"close_end" yaml:"close_end"`

	// Timezone decides where one trading day ends and the next begins.
	Timezone string `json:"timezone" yaml:"timezone"`

	PeriodsPerYear float64 `json:"periods_per_year" yaml:"periods_per_year"`
	RiskFreeRate   float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
}

func DefaultConfig() Config {
	return Config{
		InitialCash:    100_000,
		Limits:         risk.DefaultLimits(),
		Timezone:       "UTC",
		PeriodsPerYear: 252,
		RiskFreeRate:   0.05,
	}
}

func (c Config) Validate() error {
	switch {
	case !(c.InitialCash > 0):
		return fmt.Errorf("%w: initial_cash must be positive, got %v", ErrInvalidConfig, c.InitialCash)
	case c.CommissionPerTrade < 0 || c.CommissionPerShare < 0:
		return fmt.Errorf("%w: commissions must be non-negative", ErrInvalidConfig)
	case c.SlippageBps < 0 || c.SlippageBps >= 10_000:
		return fmt.Errorf("%w: slippage_bps must be in [0, 10000), got %v", ErrInvalidConfig, c.SlippageBps)
	case !(c.PeriodsPerYear > 0):
		return fmt.Errorf("%w: periods_per_year must be positive, got %v", ErrInvalidConfig, c.PeriodsPerYear)
	}
	if _, err := c.location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
