package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/IvanHuYY/Stockbot/backtest"
	"github.com/IvanHuYY/Stockbot/journal"
	"github.com/IvanHuYY/Stockbot/report"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Backtest several strategy variants in parallel and rank them by Sharpe",
	Long: `Compare runs every variant in the variants file over the same bars.
Variants inherit the config's backtest settings and risk limits; each
names its own strategy section.

Variants file:
  variants:
    - name: sma-10-30
      strategy: {name: sma-cross, fast_period: 10, slow_period: 30}
    - name: ema-adx
      strategy: {name: ema-adx, fast_period: 12, slow_period: 26, adx_min: 25}

Example:
  stockbot compare --data data/daily.csv --variants variants.yaml`,
	RunE: runCompare,
}

var (
	cmpData     []string
	cmpFrom     string
	cmpTo       string
	cmpVariants string
	cmpRecord   bool
)

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringSliceVar(&cmpData, "data", nil, "bar CSV files (required)")
	compareCmd.Flags().StringVar(&cmpFrom, "from", "", "first day to include (YYYY-MM-DD)")
	compareCmd.Flags().StringVar(&cmpTo, "to", "", "first day to exclude (YYYY-MM-DD)")
	compareCmd.Flags().StringVar(&cmpVariants, "variants", "", "YAML file listing variants (required)")
	compareCmd.Flags().BoolVar(&cmpRecord, "record", false, "journal every variant, using its name as the run ID")

	_ = compareCmd.MarkFlagRequired("data")
	_ = compareCmd.MarkFlagRequired("variants")
}

type variantFile struct {
	Variants []struct {
		Name     string         `yaml:"name"`
		Strategy map[string]any `yaml:"strategy"`
	} `yaml:"variants"`
}

// loadVariants layers each variant's strategy section over the config's.
func loadVariants(path string) ([]backtest.Variant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f variantFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse variants: %w", err)
	}

	out := make([]backtest.Variant, 0, len(f.Variants))
	for _, v := range f.Variants {
		sc := cfg.Strategy
		raw, err := yaml.Marshal(v.Strategy)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &sc); err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.Name, err)
		}
		out = append(out, backtest.Variant{Name: v.Name, Strategy: sc, Backtest: cfg.BacktestRun()})
	}
	return out, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	bars, err := loadBars(cmpData, cmpFrom, cmpTo, cfg.Backtest.Timezone)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	variants, err := loadVariants(cmpVariants)
	if err != nil {
		return err
	}

	var j journal.Journal = journal.Nop{}
	if cmpRecord {
		if j, err = cfg.Journal.Open(); err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
	}

	log.Info("comparing variants", zap.Int("variants", len(variants)), zap.Int("bars", len(bars)))
	ranked, err := backtest.Compare(ctx, bars, variants,
		backtest.WithLogger(log),
		backtest.WithJournal(j),
		backtest.WithMetrics(startMetrics(ctx)),
	)
	if err != nil {
		return err
	}
	report.PrintComparison(cmd.OutOrStdout(), ranked)
	return nil
}
