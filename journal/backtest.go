package journal

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
	"time"
)

// BacktestRun is the stored summary of one simulator run.
type BacktestRun struct {
	RunID    string    `json:"run_id"`
	Created  time.Time `json:"created"`
	Strategy string    `json:"strategy"`
	Dataset  string    `json:"dataset"`
	Symbols  []string  `json:"symbols"`
	Config   []byte    `json:"config,omitempty"` // YAML of the effective config

	// Risk limits in force
	RiskPerTrade      float64 `json:"risk_per_trade"`
	ATRMultiplierStop float64 `json:"atr_multiplier_stop"`
	MinRewardRisk     float64 `json:"min_reward_risk"`
	MaxPortfolioRisk  float64 `json:"max_portfolio_risk"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Trades    int `json:"trades"`
	Wins      int `json:"wins"`
	Losses    int `json:"losses"`
	Decisions int `json:"decisions"`
	Approved  int `json:"approved"`

	StartEquity float64 `json:"start_equity"`
	EndEquity   float64 `json:"end_equity"`

	NetPL        float64 `json:"net_pl"`
	ReturnPct    float64 `json:"return_pct"`
	WinRate      float64 `json:"win_rate"` // fraction
	ProfitFactor float64 `json:"profit_factor"`
	MaxDDPct     float64 `json:"max_dd_pct"`
	Sharpe       float64 `json:"sharpe"`
	Sortino      float64 `json:"sortino"`

	OrgPath string `json:"org_path,omitempty"`

	Notes       []string `json:"notes,omitempty"`
	NextActions []string `json:"next_actions,omitempty"`
}

var backtestOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var backtestOrg = template.Must(template.New("backtest").Funcs(backtestOrgFuncs).Parse(BacktestOrgTemplate))

// RenderOrg returns the run as an Org-mode report.
func (r *BacktestRun) RenderOrg() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := backtestOrg.Execute(buf, r); err != nil {
		return nil, fmt.Errorf("render backtest org: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteBacktestOrg renders the run to r.OrgPath.
func (r *BacktestRun) WriteBacktestOrg() error {
	if r.OrgPath == "" {
		return fmt.Errorf("write backtest org: OrgPath is empty")
	}
	b, err := r.RenderOrg()
	if err != nil {
		return err
	}
	return os.WriteFile(r.OrgPath, b, 0o644)
}

const BacktestOrgTemplate = `
* BACKTEST: {{.Strategy}} {{range $i, $s := .Symbols}}{{if $i}},{{end}}{{$s}}{{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_EQ:    {{printf "%.2f" .StartEquity}}
:END_EQ:      {{printf "%.2f" .EndEquity}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:SHARPE:      {{printf "%.2f" .Sharpe}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" (mul100 .WinRate)}}
:PROFIT_FAC:  {{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(profit-factor?){{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Risk Limits
| Parameter        | Value |
|------------------+-------|
| Risk per Trade % | {{printf "%.2f" (mul100 .RiskPerTrade)}} |
| ATR Stop x       | {{printf "%.2f" .ATRMultiplierStop}} |
| Min R:R          | {{printf "%.2f" .MinRewardRisk}} |
| Max Port. Risk % | {{printf "%.2f" (mul100 .MaxPortfolioRisk)}} |

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDDPct}}%*
- Sharpe / Sortino: *{{printf "%.2f" .Sharpe}} / {{printf "%.2f" .Sortino}}*
- Win Rate:         *{{printf "%.2f" (mul100 .WinRate)}}%*
- Decisions:        *{{.Approved}} approved of {{.Decisions}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}

{{- if .NextActions }}
** Notes / Next Actions
{{- range .NextActions }}
- [ ] {{.}}
{{- end }}
{{- end }}
`
