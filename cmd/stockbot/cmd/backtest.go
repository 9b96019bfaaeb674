package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanHuYY/Stockbot/backtest"
	"github.com/IvanHuYY/Stockbot/journal"
	"github.com/IvanHuYY/Stockbot/market"
	"github.com/IvanHuYY/Stockbot/pkg/id"
	"github.com/IvanHuYY/Stockbot/report"
	"github.com/IvanHuYY/Stockbot/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a recommender over historical bars through the risk engine",
	Long: `Backtest replays OHLCV bars, asks the configured recommender for
candidates, vets them with the risk engine and simulates fills at the
next bar's open.

Bar CSV columns: time,symbol,open,high,low,close[,volume]

Example:
  stockbot -c stockbot.yaml backtest --data data/daily.csv --strategy ema-cross --xlsx out/run.xlsx`,
	RunE: runBacktest,
}

var (
	btData     []string
	btFrom     string
	btTo       string
	btStrategy string
	btRunID    string
	btXLSX     string
	btOrg      string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringSliceVar(&btData, "data", nil, "bar CSV files (required)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "first day to include (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "first day to exclude (YYYY-MM-DD)")
	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "", "override strategy.name ("+strings.Join(strategies.Names(), ", ")+")")
	backtestCmd.Flags().StringVar(&btRunID, "run-id", "", "run ID (default: generated)")
	backtestCmd.Flags().StringVar(&btXLSX, "xlsx", "", "write trades, equity and decisions to this workbook")
	backtestCmd.Flags().StringVar(&btOrg, "org", "", "write an org-mode run report to this path")

	_ = backtestCmd.MarkFlagRequired("data")
}

func loadBars(paths []string, from, to string, tz string) ([]market.Bar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	var start, end time.Time
	if from != "" {
		if start, err = time.ParseInLocation("2006-01-02", from, loc); err != nil {
			return nil, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if end, err = time.ParseInLocation("2006-01-02", to, loc); err != nil {
			return nil, fmt.Errorf("--to: %w", err)
		}
	}
	bars, err := backtest.LoadCSV(paths, start, end, loc)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, backtest.ErrNoData
	}
	return bars, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	bars, err := loadBars(btData, btFrom, btTo, cfg.Backtest.Timezone)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	scfg := cfg.Strategy
	if btStrategy != "" {
		scfg.Name = btStrategy
	}
	rec, err := strategies.New(scfg)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	j, err := cfg.Journal.Open()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	runID := btRunID
	if runID == "" {
		runID = "bt-" + id.New()
	}

	sim, err := backtest.New(cfg.BacktestRun(), rec,
		backtest.WithLogger(log),
		backtest.WithJournal(j),
		backtest.WithMetrics(startMetrics(ctx)),
		backtest.WithRunID(runID),
	)
	if err != nil {
		return err
	}

	log.Info("backtest starting",
		zap.String("run_id", runID),
		zap.String("strategy", rec.Name()),
		zap.Int("bars", len(bars)))

	res, err := sim.Run(ctx, bars)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	report.PrintSummary(cmd.OutOrStdout(), res)

	summary, err := res.Summary(strings.Join(btData, ","), time.Now())
	if err != nil {
		return err
	}
	if db, ok := j.(*journal.SQLite); ok {
		if err := db.RecordBacktest(summary); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	if btOrg != "" {
		summary.OrgPath = btOrg
		if err := summary.WriteBacktestOrg(); err != nil {
			return err
		}
		log.Info("wrote org report", zap.String("path", btOrg))
	}
	if btXLSX != "" {
		if err := report.WriteExcel(btXLSX, res); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
		log.Info("wrote workbook", zap.String("path", btXLSX))
	}
	return nil
}
