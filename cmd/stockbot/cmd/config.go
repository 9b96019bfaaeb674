package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IvanHuYY/Stockbot/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage stockbot configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  stockbot config init -o stockbot.yaml
  stockbot config validate -f stockbot.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	// Neither needs the effective config loaded.
	configCmd.PersistentPreRunE = func(*cobra.Command, []string) error { return nil }

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "stockbot.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintf(out, "Edit the file and run with:\n  stockbot -c %s backtest --data bars.csv\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Risk: %.2f%% per trade, %.2f%% position cap, %.2f%% daily loss\n",
		100*c.Risk.RiskPerTrade, 100*c.Risk.MaxPositionPct, 100*c.Risk.MaxDailyLossPct)
	fmt.Fprintf(out, "  Strategy: %s (%d/%d)\n", c.Strategy.Name, c.Strategy.FastPeriod, c.Strategy.SlowPeriod)
	fmt.Fprintf(out, "  Journal: %s\n", c.Journal.Type)
	return nil
}
