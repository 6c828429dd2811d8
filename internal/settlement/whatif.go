package settlement

import (
	"fmt"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// WhatIf returns a counterfactual message for r when putting the whole budget
// on its best position would have earned a strictly better rank.
// Winners never get one.
func WhatIf(r contracts.Result, ranked []contracts.Result) (string, bool) {
	if r.Rank <= 1 {
		return "", false
	}
	best, ok := r.BestPosition()
	if !ok {
		return "", false
	}

	target := RoundReturn(best.ReturnPercent)
	hypothetical := 1
	for _, other := range ranked {
		if other.PlayerID == r.PlayerID {
			continue
		}
		if RoundReturn(other.PortfolioReturnPercent) > target {
			hypothetical++
		}
	}
	if hypothetical >= r.Rank {
		return "", false
	}

	return fmt.Sprintf(
		"All in on %s (%+.2f%%) would have finished #%d instead of #%d",
		best.Ticker, best.ReturnPercent, hypothetical, r.Rank,
	), true
}
