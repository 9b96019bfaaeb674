package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/IvanHuYY/Stockbot/portfolio"
	"github.com/IvanHuYY/Stockbot/risk"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Assess trade candidates against a portfolio snapshot",
	Long: `Evaluate prints one assessment per candidate as JSON. Candidates are
judged independently against the same snapshot; nothing is placed.

Candidates file (JSON or YAML):
  [{"symbol": "AAPL", "direction": "long", "entry_price": 185.2, "atr": 3.1,
    "confidence": 0.7, "correlation_group": "tech"}]

Example:
  stockbot evaluate --candidates cands.json --snapshot portfolio.json`,
	RunE: runEvaluate,
}

var (
	evCandidates string
	evSnapshot   string
	evEquity     float64
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evCandidates, "candidates", "", "candidates file (required)")
	evaluateCmd.Flags().StringVar(&evSnapshot, "snapshot", "", "portfolio snapshot file; default is a flat portfolio")
	evaluateCmd.Flags().Float64Var(&evEquity, "equity", 100_000, "equity of the flat portfolio when no snapshot is given")

	_ = evaluateCmd.MarkFlagRequired("candidates")
}

// readFile decodes JSON or YAML from path into v.
func readFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadSnapshot(path string, equity float64) (portfolio.Snapshot, error) {
	if path == "" {
		return portfolio.New(equity).Snapshot(), nil
	}
	var s portfolio.Snapshot
	if err := readFile(path, &s); err != nil {
		return s, err
	}
	// Rebuilding recomputes equity from cash and positions.
	pf, err := portfolio.FromSnapshot(s)
	if err != nil {
		return s, err
	}
	return pf.Snapshot(), nil
}

type evaluation struct {
	Candidate  risk.Candidate  `json:"candidate"`
	Assessment risk.Assessment `json:"assessment"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	var cands []risk.Candidate
	if err := readFile(evCandidates, &cands); err != nil {
		return err
	}
	snap, err := loadSnapshot(evSnapshot, evEquity)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	out := make([]evaluation, 0, len(cands))
	for _, c := range cands {
		a := risk.Evaluate(c, snap, cfg.Risk)
		log.Debug("assessed",
			zap.String("symbol", c.Symbol),
			zap.Bool("approved", a.Approved),
			zap.String("code", string(a.Code)))
		out = append(out, evaluation{Candidate: c, Assessment: a})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
