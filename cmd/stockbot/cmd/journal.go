package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IvanHuYY/Stockbot/journal"
	"github.com/IvanHuYY/Stockbot/report"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite decision and trade journal",
	Long: `Query and display journal records.

Subcommands:
  decisions         - List risk decisions
  trades            - List closed trades for a run or a day
  trade <run> <id>  - Show one trade as an org entry
  runs              - List stored backtest runs
  run <run>         - Show a backtest run report

Examples:
  stockbot journal decisions --run bt-01HV... --approved
  stockbot journal trades --day 2024-01-15
  stockbot journal run bt-01HV...`,
}

var journalDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List risk decisions",
	Args:  cobra.NoArgs,
	RunE:  runJournalDecisions,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List closed trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <run-id> <trade-id>",
	Short: "Show one trade",
	Args:  cobra.ExactArgs(2),
	RunE:  runJournalTrade,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored backtest runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show a backtest run report",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var (
	journalDBPath string
	jRunID        string
	jSymbol       string
	jDay          string
	jApproved     bool
	jLimit        int
	jOrg          bool
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalDecisionsCmd, journalTradesCmd, journalTradeCmd, journalRunsCmd, journalRunCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal (default journal.db_path)")
	journalCmd.PersistentFlags().StringVar(&jRunID, "run", "", "run or session ID")
	journalCmd.PersistentFlags().BoolVar(&jOrg, "org", false, "print org-mode entries instead of a table")

	journalDecisionsCmd.Flags().StringVar(&jSymbol, "symbol", "", "only this symbol")
	journalDecisionsCmd.Flags().StringVar(&jDay, "day", "", "only this day (YYYY-MM-DD, local time)")
	journalDecisionsCmd.Flags().BoolVar(&jApproved, "approved", false, "only approved decisions")
	journalDecisionsCmd.Flags().IntVar(&jLimit, "limit", 0, "maximum rows")

	journalTradesCmd.Flags().StringVar(&jDay, "day", "", "trades closed on this day (YYYY-MM-DD, local time)")
}

func openSQLite() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		path = cfg.Journal.DBPath
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalDecisions(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	f := journal.DecisionFilter{RunID: jRunID, Symbol: jSymbol, ApprovedOnly: jApproved, Limit: jLimit}
	if jDay != "" {
		if f.Since, f.Until, err = dayBounds(time.Local, jDay); err != nil {
			return fmt.Errorf("date: %w", err)
		}
	}
	ds, err := j.ListDecisions(f)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}

	out := cmd.OutOrStdout()
	if jOrg {
		for _, d := range ds {
			fmt.Fprintln(out, journal.FormatDecisionOrg(d))
		}
		return nil
	}
	report.PrintDecisions(out, ds)
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	var recs []journal.TradeRecord
	switch {
	case jDay != "":
		start, end, err := dayBounds(time.Local, jDay)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		recs, err = j.ListTradesClosedBetween(start, end)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
	case jRunID != "":
		if recs, err = j.ListTrades(jRunID); err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
	default:
		return fmt.Errorf("one of --run or --day is required")
	}

	out := cmd.OutOrStdout()
	if jOrg {
		fmt.Fprintln(out, journal.FormatTradesOrg(recs))
		return nil
	}
	report.PrintTrades(out, recs)
	return nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0], args[1])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	ids, err := j.ListBacktestRuns()
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	r, err := j.GetBacktestRun(args[0])
	if err != nil {
		return err
	}
	b, err := r.RenderOrg()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
