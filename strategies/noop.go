package strategies

import (
	"context"

	"github.com/IvanHuYY/Stockbot/risk"
)

// Noop never recommends anything.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Recommend(context.Context, History) ([]risk.Candidate, error) {
	return nil, nil
}
