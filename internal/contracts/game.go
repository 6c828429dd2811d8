package contracts

import (
	"sort"
	"strings"
	"time"
)

// GameStatus is the lifecycle state of a game
// ⭐ SSOT: 게임 상태는 DRAFT → LIVE → ENDED 한 방향으로만 이동
type GameStatus string

const (
	GameStatusDraft GameStatus = "DRAFT"
	GameStatusLive  GameStatus = "LIVE"
	GameStatusEnded GameStatus = "ENDED"
)

// CanTransitionTo reports whether moving from s to next is allowed
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	switch s {
	case GameStatusDraft:
		return next == GameStatusLive
	case GameStatusLive:
		return next == GameStatusEnded
	default:
		return false
	}
}

// DataQuality flags whether any final price had to be synthesized
type DataQuality string

const (
	DataQualityOK       DataQuality = "OK"
	DataQualityDegraded DataQuality = "DEGRADED"
)

// Game is one stock-picking round.
// InitialPrices is frozen at launch and never rewritten.
type Game struct {
	Code          string             `json:"code"`
	Status        GameStatus         `json:"status"`
	CreatorID     string             `json:"creator_id"`
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	Tickers       []string           `json:"tickers"`
	InitialPrices map[string]float64 `json:"initial_prices"`
	PlayerCount   int                `json:"player_count"`
	DataQuality   DataQuality        `json:"data_quality,omitempty"`
	SettledAt     *time.Time         `json:"settled_at,omitempty"`
	SettlementID  string             `json:"settlement_id,omitempty"`
}

// IsDue reports whether the game is LIVE and its end date has passed
func (g *Game) IsDue(now time.Time) bool {
	return g.Status == GameStatusLive && !g.EndDate.After(now)
}

// InitialPrice returns the frozen launch price of ticker
func (g *Game) InitialPrice(ticker string) (float64, bool) {
	p, ok := g.InitialPrices[NormalizeTicker(ticker)]
	return p, ok
}

// Position is one ticker allocation. Quantity = BudgetInvested / InitialPrice, fixed at launch.
type Position struct {
	Ticker         string  `json:"ticker"`
	BudgetInvested float64 `json:"budget_invested"`
	Quantity       float64 `json:"quantity"`
	InitialPrice   float64 `json:"initial_price"`
}

// Player is one participant's submitted portfolio
type Player struct {
	ID          string     `json:"id"`
	GameCode    string     `json:"game_code"`
	Nickname    string     `json:"nickname"`
	UserID      string     `json:"user_id,omitempty"` // empty = 익명
	Positions   []Position `json:"positions"`
	TotalBudget float64    `json:"total_budget"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// IsAnonymous reports whether the player has no linked user account
func (p *Player) IsAnonymous() bool {
	return IsAnonymousUser(p.UserID)
}

// IsAnonymousUser reports whether userID links no account. Blank ids count as anonymous.
// ⭐ SSOT: 익명 판정은 여기서만
func IsAnonymousUser(userID string) bool {
	return strings.TrimSpace(userID) == ""
}

// UniqueTickers returns the sorted, de-duplicated tickers across players
func UniqueTickers(players []*Player) []string {
	seen := make(map[string]struct{})
	for _, p := range players {
		for _, pos := range p.Positions {
			seen[NormalizeTicker(pos.Ticker)] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NormalizeTicker upper-cases and trims a ticker symbol
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
