package strategies

import (
	"context"
	"fmt"

	"github.com/IvanHuYY/Stockbot/indicators"
	"github.com/IvanHuYY/Stockbot/risk"
)

// ADXFilter drops candidates whose symbol is not trending: ADX over the
// symbol's history must be ready and at least Min.
type ADXFilter struct {
	Inner  Recommender
	Period int
	Min    float64
}

func NewADXFilter(inner Recommender, period int, min float64) *ADXFilter {
	return &ADXFilter{Inner: inner, Period: period, Min: min}
}

func (f *ADXFilter) Name() string {
	return fmt.Sprintf("%s+adx(%d>=%.0f)", f.Inner.Name(), f.Period, f.Min)
}

func (f *ADXFilter) Recommend(ctx context.Context, h History) ([]risk.Candidate, error) {
	cands, err := f.Inner.Recommend(ctx, h)
	if err != nil {
		return nil, err
	}

	out := cands[:0]
	for _, c := range cands {
		adx := indicators.NewADX(f.Period)
		for _, b := range h.Bars(c.Symbol) {
			adx.Update(b)
		}
		if adx.Ready() && adx.Value() >= f.Min {
			out = append(out, c)
		}
	}
	return out, nil
}
