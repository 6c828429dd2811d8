package settlement

import (
	"time"

	"github.com/wonny/pickem/backend/internal/contracts"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// result builds an unranked result with one position per return
func result(id string, submitted time.Duration, returns ...float64) contracts.Result {
	r := contracts.Result{
		PlayerID:    id,
		TotalBudget: 10000,
		SubmittedAt: t0.Add(submitted),
	}
	per := 10000 / float64(max(len(returns), 1))
	value := 0.0
	for i, ret := range returns {
		v := per * (1 + ret/100)
		value += v
		r.Positions = append(r.Positions, contracts.PositionResult{
			Ticker:         string(rune('A'+i)) + id,
			BudgetInvested: per,
			InitialPrice:   100,
			FinalPrice:     100 * (1 + ret/100),
			Quantity:       per / 100,
			ReturnPercent:  ret,
			ValueAtEnd:     v,
		})
	}
	r.FinalValue = value
	r.PortfolioReturnPercent = PortfolioReturn(value, r.TotalBudget)
	return r
}

func awardTypes(awards []contracts.Award) []contracts.AwardType {
	out := make([]contracts.AwardType, 0, len(awards))
	for _, a := range awards {
		out = append(out, a.Type)
	}
	return out
}

func grantedTo(awards map[string][]contracts.Award, t contracts.AwardType) []string {
	var ids []string
	for id, list := range awards {
		for _, a := range list {
			if a.Type == t {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
