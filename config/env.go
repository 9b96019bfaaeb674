package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvLogLevel     = "STOCKBOT_LOG_LEVEL"
	EnvLogFile      = "STOCKBOT_LOG_FILE"
	EnvJournalType  = "STOCKBOT_JOURNAL_TYPE"
	EnvJournalDB    = "STOCKBOT_JOURNAL_DB"
	EnvJournalDir   = "STOCKBOT_JOURNAL_DIR"
	EnvMetricsAddr  = "STOCKBOT_METRICS_ADDR"
	EnvInitialCash  = "STOCKBOT_INITIAL_CASH"
	EnvSessionID    = "STOCKBOT_SESSION_ID"
	EnvTimezone     = "STOCKBOT_TIMEZONE"
	EnvOrderTimeout = "STOCKBOT_ORDER_TIMEOUT"
)

// Environ merges the given .env files with the process environment.
// Process variables win over file values, as with godotenv.Load. Missing
// files are skipped.
func Environ(files ...string) (map[string]string, error) {
	env := make(map[string]string)
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", f, err)
		}
		for k, v := range vals {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "STOCKBOT_") {
			env[k] = v
		}
	}
	return env, nil
}

// ApplyEnv overrides fields from env. Unknown keys are ignored.
func (c *Config) ApplyEnv(env map[string]string) error {
	if v, ok := env[EnvLogLevel]; ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := env[EnvLogFile]; ok {
		c.Log.File = v
		if !contains(c.Log.Outputs, "file") {
			c.Log.Outputs = append(c.Log.Outputs, "file")
		}
	}
	if v, ok := env[EnvJournalType]; ok {
		c.Journal.Type = strings.ToLower(v)
	}
	if v, ok := env[EnvJournalDB]; ok {
		c.Journal.DBPath = v
	}
	if v, ok := env[EnvJournalDir]; ok {
		c.Journal.Dir = v
	}
	if v, ok := env[EnvMetricsAddr]; ok {
		c.Metrics.Addr = v
		c.Metrics.Enabled = v != ""
	}
	if v, ok := env[EnvInitialCash]; ok {
		cash, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvInitialCash, err)
		}
		c.Backtest.InitialCash = cash
		c.Execution.InitialCash = cash
	}
	if v, ok := env[EnvSessionID]; ok {
		c.Execution.SessionID = v
	}
	if v, ok := env[EnvTimezone]; ok {
		c.Backtest.Timezone = v
		c.Execution.Timezone = v
	}
	if v, ok := env[EnvOrderTimeout]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvOrderTimeout, err)
		}
		c.Execution.Guard.Timeout = d
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
