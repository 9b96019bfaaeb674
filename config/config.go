// Package config is the single file a stockbot deployment is driven by:
// risk limits, strategy, backtest costs, execution, journal, logging and
// metrics. Files are YAML with a JSON fallback; .env files and
// STOCKBOT_* variables override selected fields.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/IvanHuYY/Stockbot/backtest"
	"github.com/IvanHuYY/Stockbot/broker"
	"github.com/IvanHuYY/Stockbot/live"
	"github.com/IvanHuYY/Stockbot/pkg/logging"
	"github.com/IvanHuYY/Stockbot/risk"
	"github.com/IvanHuYY/Stockbot/strategies"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Risk      risk.Limits       `json:"risk" yaml:"risk"`
	Strategy  strategies.Config `json:"strategy" yaml:"strategy"`
	Backtest  BacktestConfig    `json:"backtest" yaml:"backtest"`
	Execution ExecutionConfig   `json:"execution" yaml:"execution"`
	Journal   JournalConfig     `json:"journal" yaml:"journal"`
	Log       logging.Config    `json:"log" yaml:"log"`
	Metrics   MetricsConfig     `json:"metrics" yaml:"metrics"`
}

// BacktestConfig is backtest.Config without the limits, which come from
// the risk section.
type BacktestConfig struct {
	InitialCash        float64 `json:"initial_cash" yaml:"initial_cash"`
	CommissionPerTrade float64 `json:"commission_per_trade" yaml:"commission_per_trade"`
	CommissionPerShare float64 `json:"commission_per_share" yaml:"commission_per_share"`
	SlippageBps        float64 `json:"slippage_bps" yaml:"slippage_bps"`
	CloseEnd           bool    `json:"close_end" yaml:"close_end"`
	Timezone           string  `json:"timezone" yaml:"timezone"`
	PeriodsPerYear     float64 `json:"periods_per_year" yaml:"periods_per_year"`
	RiskFreeRate       float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
}

type ExecutionConfig struct {
	SessionID   string             `json:"session_id" yaml:"session_id"`
	InitialCash float64            `json:"initial_cash" yaml:"initial_cash"`
	OrderType   broker.OrderType   `json:"order_type" yaml:"order_type"`
	Timezone    string             `json:"timezone" yaml:"timezone"`
	Guard       broker.GuardConfig `json:"guard" yaml:"guard"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func Default() *Config {
	bt := backtest.DefaultConfig()
	lv := live.DefaultConfig()
	return &Config{
		Risk:     risk.DefaultLimits(),
		Strategy: strategies.DefaultConfig(),
		Backtest: BacktestConfig{
			InitialCash:        bt.InitialCash,
			CommissionPerTrade: bt.CommissionPerTrade,
			CommissionPerShare: bt.CommissionPerShare,
			SlippageBps:        bt.SlippageBps,
			CloseEnd:           bt.CloseEnd,
			Timezone:           bt.Timezone,
			PeriodsPerYear:     bt.PeriodsPerYear,
			RiskFreeRate:       bt.RiskFreeRate,
		},
		Execution: ExecutionConfig{
			SessionID:   "paper",
			InitialCash: 100_000,
			OrderType:   lv.OrderType,
			Timezone:    lv.Timezone,
			Guard:       lv.Guard,
		},
		Journal: JournalConfig{
			Type:   JournalSQLite,
			DBPath: "./stockbot.db",
		},
		Log: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
	}
}

// BacktestRun is the simulator configuration this file describes.
func (c *Config) BacktestRun() backtest.Config {
	b := c.Backtest
	return backtest.Config{
		InitialCash:        b.InitialCash,
		Limits:             c.Risk,
		CommissionPerTrade: b.CommissionPerTrade,
		CommissionPerShare: b.CommissionPerShare,
		SlippageBps:        b.SlippageBps,
		CloseEnd:           b.CloseEnd,
		Timezone:           b.Timezone,
		PeriodsPerYear:     b.PeriodsPerYear,
		RiskFreeRate:       b.RiskFreeRate,
	}
}

// Session is the live session configuration this file describes.
func (c *Config) Session() live.Config {
	e := c.Execution
	return live.Config{
		SessionID: e.SessionID,
		Limits:    c.Risk,
		OrderType: e.OrderType,
		Timezone:  e.Timezone,
		Guard:     e.Guard,
	}
}

// LoadFromFile reads path, trying YAML first and then JSON. Fields the
// file leaves out keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path, applies overrides from envFiles and the process
// environment, then validates. An empty path starts from Default.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = parseFile(path); err != nil {
			return nil, err
		}
	}

	env, err := Environ(envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate returns the first problem found, wrapped in ErrInvalid. Risk
// limit failures also match risk.ErrInvalidLimits.
func (c *Config) Validate() error {
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.BacktestRun().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := strategies.New(c.Strategy); err != nil {
		return fmt.Errorf("%w: strategy: %w", ErrInvalid, err)
	}

	e := c.Execution
	if !(e.InitialCash > 0) {
		return fmt.Errorf("%w: execution.initial_cash must be positive", ErrInvalid)
	}
	switch e.OrderType {
	case broker.Bracket, broker.Market:
	default:
		return fmt.Errorf("%w: execution.order_type must be bracket or market, got %q", ErrInvalid, e.OrderType)
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return fmt.Errorf("%w: execution.timezone %q: %v", ErrInvalid, e.Timezone, err)
	}
	g := e.Guard
	if g.Timeout <= 0 {
		return fmt.Errorf("%w: execution.guard.timeout must be positive", ErrInvalid)
	}
	if g.Retry.MaxAttempts < 1 || g.Retry.BackoffFactor < 1 || g.Retry.InitialDelay < 0 {
		return fmt.Errorf("%w: execution.guard.retry needs max_attempts >= 1, backoff_factor >= 1, initial_delay >= 0", ErrInvalid)
	}
	if g.RatePerSec < 0 {
		return fmt.Errorf("%w: execution.guard.rate_per_sec must be non-negative", ErrInvalid)
	}

	if err := c.Journal.Validate(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level must be debug, info, warn or error, got %q", ErrInvalid, c.Log.Level)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr is required when metrics are enabled", ErrInvalid)
	}
	return nil
}
