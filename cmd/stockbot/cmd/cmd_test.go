package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanHuYY/Stockbot/config"
	"github.com/IvanHuYY/Stockbot/journal"
)

// resetFlags puts every flag back to its default so one Execute does not
// leak into the next.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := strings.Trim(f.DefValue, "[]")
			var vals []string
			if def != "" {
				vals = strings.Split(def, ",")
			}
			_ = sv.Replace(vals)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	c := config.Default()
	c.Log.Level = "error"
	c.Journal = config.JournalConfig{Type: config.JournalSQLite, DBPath: filepath.Join(dir, "journal.db")}
	c.Strategy.FastPeriod = 2
	c.Strategy.SlowPeriod = 4
	c.Strategy.ATRPeriod = 3
	c.Backtest.CloseEnd = true
	path := filepath.Join(dir, "stockbot.yaml")
	require.NoError(t, c.SaveToFile(path))
	return path
}

// writeBars writes a fall then a rise so the fast average crosses up.
func writeBars(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("time,symbol,open,high,low,close,volume\n")
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < 40; i++ {
		if i < 15 {
			price -= 1
		} else {
			price += 1.5
		}
		fmt.Fprintf(&b, "%s,AAPL,%.2f,%.2f,%.2f,%.2f,1000\n",
			day.AddDate(0, 0, i).Format("2006-01-02"), price, price+1, price-1, price+0.5)
	}
	path := filepath.Join(dir, "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stockbot version "+version)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yaml")

	out, err := execute(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	out, err = execute(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "sma-cross")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("risk:\n  max_daily_loss_pct: 0\n"), 0o644))
	_, err = execute(t, "config", "validate", "-f", bad)
	assert.ErrorContains(t, err, "validation failed")
}

func TestEvaluate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	cands := filepath.Join(dir, "cands.json")
	require.NoError(t, os.WriteFile(cands, []byte(`[
  {"symbol": "AAPL", "direction": "long", "entry_price": 50, "atr": 2, "confidence": 0.7},
  {"symbol": "BAD", "direction": "long", "entry_price": -1, "atr": 2, "confidence": 0.7}
]`), 0o644))

	out, err := execute(t, "-c", cfgPath, "evaluate", "--candidates", cands)
	require.NoError(t, err)

	var got []evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.True(t, got[0].Assessment.Approved)
	assert.Equal(t, 100.0, got[0].Assessment.MaxPositionSize)
	assert.InDelta(t, 46.0, got[0].Assessment.SuggestedStopLoss, 1e-9)
	assert.False(t, got[1].Assessment.Approved)
	assert.Contains(t, got[1].Assessment.Reasoning, "invalid candidate")
}

func TestBacktestAndJournal(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	bars := writeBars(t, dir)
	xlsx := filepath.Join(dir, "out", "run.xlsx")
	org := filepath.Join(dir, "run.org")

	out, err := execute(t, "-c", cfgPath, "backtest", "--data", bars, "--run-id", "bt-test", "--xlsx", xlsx, "--org", org)
	require.NoError(t, err)
	assert.Contains(t, out, "BACKTEST bt-test")
	assert.FileExists(t, xlsx)
	assert.FileExists(t, org)

	out, err = execute(t, "-c", cfgPath, "journal", "runs")
	require.NoError(t, err)
	assert.Equal(t, "bt-test\n", out)

	out, err = execute(t, "-c", cfgPath, "journal", "run", "bt-test")
	require.NoError(t, err)
	assert.Contains(t, out, "bt-test")

	out, err = execute(t, "-c", cfgPath, "journal", "decisions", "--run", "bt-test")
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL")

	_, err = execute(t, "-c", cfgPath, "journal", "trades")
	assert.ErrorContains(t, err, "--run or --day")

	_, err = execute(t, "-c", cfgPath, "backtest", "--data", filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	bars := writeBars(t, dir)
	variants := filepath.Join(dir, "variants.yaml")
	require.NoError(t, os.WriteFile(variants, []byte(`variants:
  - name: fast
    strategy: {name: sma-cross, fast_period: 2, slow_period: 4}
  - name: idle
    strategy: {name: noop}
`), 0o644))

	out, err := execute(t, "-c", cfgPath, "compare", "--data", bars, "--variants", variants)
	require.NoError(t, err)
	assert.Contains(t, out, "STRATEGY COMPARISON")
	assert.Contains(t, out, "fast")
	assert.Contains(t, out, "idle")
}

func TestPaper(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	cands := filepath.Join(dir, "cands.yaml")
	require.NoError(t, os.WriteFile(cands, []byte(`
- symbol: AAPL
  direction: long
  entry_price: 50
  atr: 2
  confidence: 0.7
`), 0o644))

	out, err := execute(t, "-c", cfgPath, "paper", "--candidates", cands, "--cycle", "2024-03-04T15:00:00Z", "--fill")
	require.NoError(t, err)
	assert.Contains(t, out, "placed")

	j, err := journal.NewSQLite(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	ds, err := j.ListDecisions(journal.DecisionFilter{RunID: "paper"})
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, journal.OutcomePlaced, ds[0].Outcome)
	assert.Equal(t, journal.OutcomeFilled, ds[1].Outcome)
}
