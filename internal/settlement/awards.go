package settlement

import (
	"fmt"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// DefaultAllInThreshold is the minimum share of a player's budget a single
// position needs to compete for ALL_IN
const DefaultAllInThreshold = 0.5

// Grant is one award for one player
type Grant struct {
	PlayerID string
	Award    contracts.Award
}

// AwardRule inspects the full ranked list and returns zero or more grants.
// Rules must not mutate ranked.
type AwardRule func(ranked []contracts.Result) []Grant

// AwardsEngine folds independent rules over a ranked result list
// ⭐ SSOT: 어워드 규칙은 여기서만
type AwardsEngine struct {
	rules []AwardRule
}

// NewAwardsEngine builds the engine with the standard seven rules. When
// enabled is given only those awards are computed; order stays canonical.
func NewAwardsEngine(allInThreshold float64, enabled ...contracts.AwardType) *AwardsEngine {
	if allInThreshold <= 0 {
		allInThreshold = DefaultAllInThreshold
	}
	all := []struct {
		t    contracts.AwardType
		rule AwardRule
	}{
		{contracts.AwardChampion, ChampionRule},
		{contracts.AwardRunnerUp, RunnerUpRule},
		{contracts.AwardLastPlace, LastPlaceRule},
		{contracts.AwardOracle, OracleRule},
		{contracts.AwardFreefall, FreefallRule},
		{contracts.AwardAllGreen, AllGreenRule},
		{contracts.AwardAllIn, AllInRule(allInThreshold)},
	}

	on := make(map[contracts.AwardType]bool, len(enabled))
	for _, t := range enabled {
		on[t] = true
	}

	e := &AwardsEngine{rules: make([]AwardRule, 0, len(all))}
	for _, r := range all {
		if len(enabled) == 0 || on[r.t] {
			e.rules = append(e.rules, r.rule)
		}
	}
	return e
}

// Compute runs every rule and merges grants per player in rule order
func (e *AwardsEngine) Compute(ranked []contracts.Result) map[string][]contracts.Award {
	out := make(map[string][]contracts.Award)
	for _, rule := range e.rules {
		for _, g := range rule(ranked) {
			out[g.PlayerID] = append(out[g.PlayerID], g.Award)
		}
	}
	return out
}

func value(v float64) *float64 { return &v }

// ChampionRule awards first place whenever anyone played
func ChampionRule(ranked []contracts.Result) []Grant {
	if len(ranked) == 0 {
		return nil
	}
	r := ranked[0]
	return []Grant{{PlayerID: r.PlayerID, Award: contracts.Award{
		Type:    contracts.AwardChampion,
		Value:   value(r.PortfolioReturnPercent),
		Message: fmt.Sprintf("1st place with a %+.2f%% return", r.PortfolioReturnPercent),
	}}}
}

// RunnerUpRule awards second place when there are at least two players
func RunnerUpRule(ranked []contracts.Result) []Grant {
	if len(ranked) < 2 {
		return nil
	}
	r := ranked[1]
	return []Grant{{PlayerID: r.PlayerID, Award: contracts.Award{
		Type:    contracts.AwardRunnerUp,
		Value:   value(r.PortfolioReturnPercent),
		Message: fmt.Sprintf("2nd place with a %+.2f%% return", r.PortfolioReturnPercent),
	}}}
}

// LastPlaceRule awards last place only when it is not also 1st or 2nd
func LastPlaceRule(ranked []contracts.Result) []Grant {
	if len(ranked) == 0 {
		return nil
	}
	r := ranked[len(ranked)-1]
	if r.Rank <= 2 {
		return nil
	}
	return []Grant{{PlayerID: r.PlayerID, Award: contracts.Award{
		Type:    contracts.AwardLastPlace,
		Value:   value(r.PortfolioReturnPercent),
		Message: fmt.Sprintf("Finished last with a %+.2f%% return", r.PortfolioReturnPercent),
	}}}
}

type ownedPosition struct {
	playerID string
	position contracts.PositionResult
}

// scanPositions returns the first position, in ranked order, for which better
// holds against every other
func scanPositions(ranked []contracts.Result, better func(a, b contracts.PositionResult) bool) (ownedPosition, bool) {
	var pick ownedPosition
	found := false
	for _, r := range ranked {
		for _, p := range r.Positions {
			if !found || better(p, pick.position) {
				pick = ownedPosition{playerID: r.PlayerID, position: p}
				found = true
			}
		}
	}
	return pick, found
}

// OracleRule awards the single best position in the game
func OracleRule(ranked []contracts.Result) []Grant {
	best, ok := scanPositions(ranked, func(a, b contracts.PositionResult) bool {
		return a.ReturnPercent > b.ReturnPercent
	})
	if !ok {
		return nil
	}
	p := best.position
	return []Grant{{PlayerID: best.playerID, Award: contracts.Award{
		Type:    contracts.AwardOracle,
		Ticker:  p.Ticker,
		Value:   value(p.ReturnPercent),
		Message: fmt.Sprintf("Best pick of the game: %s at %+.2f%%", p.Ticker, p.ReturnPercent),
	}}}
}

// FreefallRule awards the single worst position, only when it lost money
func FreefallRule(ranked []contracts.Result) []Grant {
	worst, ok := scanPositions(ranked, func(a, b contracts.PositionResult) bool {
		return a.ReturnPercent < b.ReturnPercent
	})
	if !ok || worst.position.ReturnPercent >= 0 {
		return nil
	}
	p := worst.position
	return []Grant{{PlayerID: worst.playerID, Award: contracts.Award{
		Type:    contracts.AwardFreefall,
		Ticker:  p.Ticker,
		Value:   value(p.ReturnPercent),
		Message: fmt.Sprintf("Worst pick of the game: %s at %+.2f%%", p.Ticker, p.ReturnPercent),
	}}}
}

// AllGreenRule awards the first ranked player whose every position gained
func AllGreenRule(ranked []contracts.Result) []Grant {
	for _, r := range ranked {
		if len(r.Positions) == 0 {
			continue
		}
		allGreen := true
		for _, p := range r.Positions {
			if p.ReturnPercent <= 0 {
				allGreen = false
				break
			}
		}
		if allGreen {
			return []Grant{{PlayerID: r.PlayerID, Award: contracts.Award{
				Type:    contracts.AwardAllGreen,
				Value:   value(r.PortfolioReturnPercent),
				Message: fmt.Sprintf("All %d picks finished in the green", len(r.Positions)),
			}}}
		}
	}
	return nil
}

// AllInRule awards the largest single allocation holding at least threshold
// of its owner's total budget
func AllInRule(threshold float64) AwardRule {
	return func(ranked []contracts.Result) []Grant {
		var pick ownedPosition
		found := false
		for _, r := range ranked {
			if r.TotalBudget <= 0 {
				continue
			}
			for _, p := range r.Positions {
				if p.BudgetInvested/r.TotalBudget < threshold {
					continue
				}
				if !found || p.BudgetInvested > pick.position.BudgetInvested {
					pick = ownedPosition{playerID: r.PlayerID, position: p}
					found = true
				}
			}
		}
		if !found {
			return nil
		}
		p := pick.position
		return []Grant{{PlayerID: pick.playerID, Award: contracts.Award{
			Type:    contracts.AwardAllIn,
			Ticker:  p.Ticker,
			Value:   value(p.BudgetInvested),
			Message: fmt.Sprintf("Went all in with %.2f credits on %s", p.BudgetInvested, p.Ticker),
		}}}
	}
}
