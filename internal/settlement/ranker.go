package settlement

import (
	"sort"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// Rank sorts a copy of results and assigns 1-based ranks.
// Order: return desc, earlier submission first, then player id.
// Returns are compared at persisted precision so float noise never beats the
// submission tie-break. Every result gets a distinct rank even when returns tie.
// ⭐ SSOT: 순위 비교 규칙은 여기서만
func Rank(results []contracts.Result) []contracts.Result {
	ranked := make([]contracts.Result, len(results))
	copy(ranked, results)

	sort.Slice(ranked, func(i, j int) bool {
		return rankedBefore(&ranked[i], &ranked[j])
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].TotalParticipants = len(ranked)
	}
	return ranked
}

func rankedBefore(a, b *contracts.Result) bool {
	ra, rb := RoundReturn(a.PortfolioReturnPercent), RoundReturn(b.PortfolioReturnPercent)
	if ra != rb {
		return ra > rb
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.PlayerID < b.PlayerID
}
