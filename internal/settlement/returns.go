package settlement

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// Persisted precision. Intermediate math stays unrounded.
const (
	returnPlaces = 4
	moneyPlaces  = 2
)

// PositionReturn settles one position at finalPrice.
// Quantity is taken as stored; it is never recomputed from the budget.
func PositionReturn(pos contracts.Position, finalPrice float64) contracts.PositionResult {
	ret := 0.0
	if pos.InitialPrice != 0 {
		ret = (finalPrice - pos.InitialPrice) / pos.InitialPrice * 100
	}

	return contracts.PositionResult{
		Ticker:         contracts.NormalizeTicker(pos.Ticker),
		BudgetInvested: pos.BudgetInvested,
		InitialPrice:   pos.InitialPrice,
		FinalPrice:     finalPrice,
		Quantity:       pos.Quantity,
		ReturnPercent:  ret,
		ValueAtEnd:     pos.Quantity * finalPrice,
	}
}

// PortfolioReturn returns the percentage change of finalValue over totalBudget
func PortfolioReturn(finalValue, totalBudget float64) float64 {
	if totalBudget == 0 {
		return 0
	}
	return (finalValue - totalBudget) / totalBudget * 100
}

// ComputeResult builds the unranked Result of one player.
// A ticker missing from prices settles at its initial price. Blank user ids are dropped.
func ComputeResult(player *contracts.Player, prices map[string]float64, calculatedAt time.Time) contracts.Result {
	positions := make([]contracts.PositionResult, 0, len(player.Positions))
	finalValue := 0.0

	for _, pos := range player.Positions {
		final, ok := prices[contracts.NormalizeTicker(pos.Ticker)]
		if !ok {
			final = pos.InitialPrice
		}
		pr := PositionReturn(pos, final)
		finalValue += pr.ValueAtEnd
		positions = append(positions, pr)
	}

	userID := strings.TrimSpace(player.UserID)
	if player.IsAnonymous() {
		userID = ""
	}

	return contracts.Result{
		GameCode:               player.GameCode,
		PlayerID:               player.ID,
		Nickname:               player.Nickname,
		UserID:                 userID,
		Positions:              positions,
		TotalBudget:            player.TotalBudget,
		FinalValue:             finalValue,
		PortfolioReturnPercent: PortfolioReturn(finalValue, player.TotalBudget),
		SubmittedAt:            player.SubmittedAt,
		CalculatedAt:           calculatedAt,
	}
}

// RoundReturn rounds a percentage to the persisted precision
func RoundReturn(v float64) float64 {
	return decimal.NewFromFloat(v).Round(returnPlaces).InexactFloat64()
}

// RoundMoney rounds a monetary amount to the persisted precision
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(moneyPlaces).InexactFloat64()
}

// roundedForPersistence returns a deep copy of r with every stored number rounded
func roundedForPersistence(r contracts.Result) contracts.Result {
	out := r
	out.TotalBudget = RoundMoney(r.TotalBudget)
	out.FinalValue = RoundMoney(r.FinalValue)
	out.PortfolioReturnPercent = RoundReturn(r.PortfolioReturnPercent)

	out.Positions = make([]contracts.PositionResult, len(r.Positions))
	for i, p := range r.Positions {
		p.BudgetInvested = RoundMoney(p.BudgetInvested)
		p.ReturnPercent = RoundReturn(p.ReturnPercent)
		p.ValueAtEnd = RoundMoney(p.ValueAtEnd)
		out.Positions[i] = p
	}

	out.Awards = make([]contracts.Award, len(r.Awards))
	for i, a := range r.Awards {
		if a.Value != nil {
			v := RoundReturn(*a.Value)
			if a.Type == contracts.AwardAllIn {
				v = RoundMoney(*a.Value)
			}
			a.Value = &v
		}
		out.Awards[i] = a
	}
	return out
}
