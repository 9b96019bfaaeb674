package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block suitable for
// pasting into a trading journal. Structured facts live in the
// PROPERTIES drawer; Thesis/Execution/Review are left for notes.
func FormatTradeOrg(t TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s (%s)\n", t.Symbol, sideText(t.Side), shortID(t.TradeID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":QUANTITY: %d\n", t.Quantity)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.4f\n", t.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %.4f\n", t.ExitPrice)
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.OpenTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.CloseTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":REALIZED_PL: %.2f\n", t.RealizedPL)
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Execution\n- \n\n")
	b.WriteString("*** Review\n- \n")
	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatDecisionOrg renders one audit record with the engine's reasoning.
func FormatDecisionOrg(d DecisionRecord) string {
	c, a := d.Candidate, d.Assessment
	verdict := "REJECTED"
	if a.Approved {
		verdict = "APPROVED"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s (%s)\n", verdict, c.Symbol, sideText(c.Side), d.Time.UTC().Format(time.RFC3339))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", d.ID)
	fmt.Fprintf(&b, ":CODE: %s\n", a.Code)
	fmt.Fprintf(&b, ":OUTCOME: %s\n", d.Outcome)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.4f\n", c.EntryPrice)
	fmt.Fprintf(&b, ":ATR: %.4f\n", c.ATR)
	fmt.Fprintf(&b, ":SHARES: %d\n", a.Shares())
	fmt.Fprintf(&b, ":STOP: %.4f\n", a.SuggestedStopLoss)
	fmt.Fprintf(&b, ":TARGET: %.4f\n", a.SuggestedTakeProfit)
	fmt.Fprintf(&b, ":RR: %.2f\n", a.RiskRewardRatio)
	fmt.Fprintf(&b, ":PORTFOLIO_RISK_AFTER: %.4f\n", a.PortfolioRiskAfter)
	b.WriteString(":END:\n")
	fmt.Fprintf(&b, "%s\n", a.Reasoning)
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
