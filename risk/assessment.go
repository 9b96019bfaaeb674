package risk

import "github.com/IvanHuYY/Stockbot/market"

// Candidate is a trade idea from an upstream recommender. It is never
// modified by the engine.
type Candidate struct {
	Symbol           string      `json:"symbol" yaml:"symbol"`
	Side             market.Side `json:"direction" yaml:"direction"`
	EntryPrice       float64     `json:"entry_price" yaml:"entry_price"`
	ATR              float64     `json:"atr" yaml:"atr"`
	Confidence       float64     `json:"confidence" yaml:"confidence"`
	CorrelationGroup string      `json:"correlation_group" yaml:"correlation_group"`

	// Optional upstream overrides; zero means derive from ATR.
	StopPrice   float64 `json:"stop_price,omitempty" yaml:"stop_price,omitempty"`
	TargetPrice float64 `json:"target_price,omitempty" yaml:"target_price,omitempty"`
}

// Code identifies which check decided an assessment.
type Code string

const (
	CodeApproved         Code = "APPROVED"
	CodeDailyLoss        Code = "DAILY_LOSS_LIMIT"
	CodeInvalidCandidate Code = "INVALID_CANDIDATE"
	CodeSizeZero         Code = "SIZE_ROUNDS_TO_ZERO"
	CodePositionCap      Code = "POSITION_CAP"
	CodePortfolioRisk    Code = "PORTFOLIO_RISK"
	CodeRewardRisk       Code = "RR_TOO_LOW"
	CodeCorrelation      Code = "CORRELATION_CAP"
)

// Assessment is the verdict for one candidate. The first seven JSON
// fields are the contract read by downstream decision makers.
type Assessment struct {
	Approved            bool    `json:"approved"`
	MaxPositionSize     float64 `json:"max_position_size"` // shares
	SuggestedStopLoss   float64 `json:"suggested_stop_loss"`
	SuggestedTakeProfit float64 `json:"suggested_take_profit"`
	RiskRewardRatio     float64 `json:"risk_reward_ratio"`
	PortfolioRiskAfter  float64 `json:"portfolio_risk_after"`
	Reasoning           string  `json:"reasoning"`

	Code                 Code    `json:"code"`
	PositionValue        float64 `json:"position_value"`
	RiskAmount           float64 `json:"risk_amount"`
	CorrelationRiskAfter float64 `json:"correlation_risk_after"`
}

// Shares is MaxPositionSize as a whole share count.
func (a Assessment) Shares() int64 {
	return int64(a.MaxPositionSize)
}
