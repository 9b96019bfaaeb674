package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanHuYY/Stockbot/config"
	"github.com/IvanHuYY/Stockbot/metrics"
	"github.com/IvanHuYY/Stockbot/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "stockbot",
	Short: "Risk-managed stock trading: backtests, comparisons and paper sessions",
	Long: `Stockbot sizes and vets trade candidates against hard risk limits.

It provides tools for:
  - Evaluating candidates against a portfolio snapshot
  - Backtesting recommenders on daily or intraday bars
  - Comparing strategy variants ranked by Sharpe ratio
  - Running paper trading cycles through a guarded executor
  - Querying the decision and trade journal`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var (
	cfgPath  string
	envFiles []string
	logLevel string

	cfg *config.Config
	log *zap.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, ".env files with STOCKBOT_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgPath, envFiles...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err = logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startMetrics returns a recorder, serving it in the background when
// metrics are enabled.
func startMetrics(ctx context.Context) *metrics.Recorder {
	rec := metrics.New().WithProcessCollectors()
	if !cfg.Metrics.Enabled {
		return rec
	}
	go func() {
		log.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, rec.Handler()); err != nil {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	return rec
}
