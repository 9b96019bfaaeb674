package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanHuYY/Stockbot/broker/paper"
	"github.com/IvanHuYY/Stockbot/journal"
	"github.com/IvanHuYY/Stockbot/live"
	"github.com/IvanHuYY/Stockbot/portfolio"
	"github.com/IvanHuYY/Stockbot/report"
	"github.com/IvanHuYY/Stockbot/risk"
)

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "Run one live cycle against the in-memory paper executor",
	Long: `Paper assesses candidates exactly as a live session would, places
approved bracket orders with the paper executor and journals every
decision. With --fill, placed orders fill at their candidate entry price.

Example:
  stockbot -c stockbot.yaml paper --candidates cands.json --fill`,
	RunE: runPaper,
}

var (
	ppCandidates string
	ppSnapshot   string
	ppCycle      string
	ppFill       bool
)

func init() {
	rootCmd.AddCommand(paperCmd)

	paperCmd.Flags().StringVar(&ppCandidates, "candidates", "", "candidates file (required)")
	paperCmd.Flags().StringVar(&ppSnapshot, "snapshot", "", "starting portfolio snapshot; default is execution.initial_cash in cash")
	paperCmd.Flags().StringVar(&ppCycle, "cycle", "", "cycle time (RFC3339); default is now")
	paperCmd.Flags().BoolVar(&ppFill, "fill", false, "fill placed orders at their entry price")

	_ = paperCmd.MarkFlagRequired("candidates")
}

func runPaper(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var cands []risk.Candidate
	if err := readFile(ppCandidates, &cands); err != nil {
		return err
	}
	snap, err := loadSnapshot(ppSnapshot, cfg.Execution.InitialCash)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	pf, err := portfolio.FromSnapshot(snap)
	if err != nil {
		return err
	}

	cycle := time.Now().UTC().Truncate(time.Minute)
	if ppCycle != "" {
		if cycle, err = time.Parse(time.RFC3339, ppCycle); err != nil {
			return fmt.Errorf("--cycle: %w", err)
		}
	}

	j, err := cfg.Journal.Open()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	px := paper.New()
	s, err := live.NewSession(cfg.Session(), pf, px,
		live.WithLogger(log),
		live.WithJournal(j),
		live.WithMetrics(startMetrics(ctx)),
	)
	if err != nil {
		return err
	}

	decisions, err := s.RunCycle(ctx, cycle, cands)
	if err != nil {
		return err
	}

	if ppFill {
		for _, d := range decisions {
			if d.Outcome != journal.OutcomePlaced {
				continue
			}
			f, err := px.Fill(d.OrderID, d.Candidate.EntryPrice, cycle)
			if err != nil {
				return err
			}
			if err := s.OnFill(f); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	report.PrintDecisions(out, decisions)
	log.Info("paper cycle done",
		zap.Time("cycle", cycle),
		zap.Int("decisions", len(decisions)),
		zap.Int("open_positions", len(pf.Positions())),
		zap.Float64("cash", pf.Cash()),
		zap.Float64("equity", pf.Equity()))
	return nil
}
