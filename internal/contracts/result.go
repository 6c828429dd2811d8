package contracts

import "time"

// AwardType is the fixed award taxonomy
type AwardType string

const (
	AwardChampion  AwardType = "CHAMPION"   // 1위
	AwardRunnerUp  AwardType = "RUNNER_UP"  // 2위
	AwardLastPlace AwardType = "LAST_PLACE" // 꼴찌 (3명 이상일 때만)
	AwardOracle    AwardType = "ORACLE"     // 최고 수익 종목
	AwardFreefall  AwardType = "FREEFALL"   // 최악 종목 (음수일 때만)
	AwardAllGreen  AwardType = "ALL_GREEN"  // 전 종목 플러스
	AwardAllIn     AwardType = "ALL_IN"     // 최대 몰빵
)

// AllAwardTypes lists the taxonomy in rule order
var AllAwardTypes = []AwardType{
	AwardChampion, AwardRunnerUp, AwardLastPlace,
	AwardOracle, AwardFreefall, AwardAllGreen, AwardAllIn,
}

// Award is a badge granted at settlement
type Award struct {
	Type    AwardType `json:"type"`
	Ticker  string    `json:"ticker,omitempty"`
	Value   *float64  `json:"value,omitempty"`
	Message string    `json:"message"`
}

// PositionResult is the settled outcome of one position
type PositionResult struct {
	Ticker         string  `json:"ticker"`
	BudgetInvested float64 `json:"budget_invested"`
	InitialPrice   float64 `json:"initial_price"`
	FinalPrice     float64 `json:"final_price"`
	Quantity       float64 `json:"quantity"`
	ReturnPercent  float64 `json:"return_percent"`
	ValueAtEnd     float64 `json:"value_at_end"`
}

// PositionSummary is the short form used on leaderboards
type PositionSummary struct {
	Ticker        string  `json:"ticker"`
	ReturnPercent float64 `json:"return_percent"`
}

// Result is one player's settled standing. Write-once.
type Result struct {
	SettlementID           string           `json:"settlement_id"`
	GameCode               string           `json:"game_code"`
	PlayerID               string           `json:"player_id"`
	Nickname               string           `json:"nickname"`
	UserID                 string           `json:"user_id,omitempty"`
	Positions              []PositionResult `json:"positions"`
	TotalBudget            float64          `json:"total_budget"`
	FinalValue             float64          `json:"final_value"`
	PortfolioReturnPercent float64          `json:"portfolio_return_percent"`
	Rank                   int              `json:"rank"`
	TotalParticipants      int              `json:"total_participants"`
	Awards                 []Award          `json:"awards"`
	WhatIfMessage          string           `json:"what_if_message,omitempty"`
	SubmittedAt            time.Time        `json:"submitted_at"`
	CalculatedAt           time.Time        `json:"calculated_at"`
}

// IsAnonymous reports whether the result belongs to a player without an account
func (r *Result) IsAnonymous() bool {
	return IsAnonymousUser(r.UserID)
}

// BestPosition returns the first position with the highest return
func (r *Result) BestPosition() (PositionResult, bool) {
	if len(r.Positions) == 0 {
		return PositionResult{}, false
	}
	best := r.Positions[0]
	for _, p := range r.Positions[1:] {
		if p.ReturnPercent > best.ReturnPercent {
			best = p
		}
	}
	return best, true
}

// WorstPosition returns the first position with the lowest return
func (r *Result) WorstPosition() (PositionResult, bool) {
	if len(r.Positions) == 0 {
		return PositionResult{}, false
	}
	worst := r.Positions[0]
	for _, p := range r.Positions[1:] {
		if p.ReturnPercent < worst.ReturnPercent {
			worst = p
		}
	}
	return worst, true
}

// LeaderboardEntry is the read-optimized projection of a Result
type LeaderboardEntry struct {
	SettlementID  string           `json:"settlement_id"`
	GameCode      string           `json:"game_code"`
	PlayerID      string           `json:"player_id"`
	Nickname      string           `json:"nickname"`
	Rank          int              `json:"rank"`
	ReturnPercent float64          `json:"return_percent"`
	FinalValue    float64          `json:"final_value"`
	Awards        []Award          `json:"awards"`
	BestPosition  *PositionSummary `json:"best_position,omitempty"`
	WorstPosition *PositionSummary `json:"worst_position,omitempty"`
}

// NewLeaderboardEntry projects r
func NewLeaderboardEntry(r *Result) LeaderboardEntry {
	entry := LeaderboardEntry{
		SettlementID:  r.SettlementID,
		GameCode:      r.GameCode,
		PlayerID:      r.PlayerID,
		Nickname:      r.Nickname,
		Rank:          r.Rank,
		ReturnPercent: r.PortfolioReturnPercent,
		FinalValue:    r.FinalValue,
		Awards:        r.Awards,
	}
	if best, ok := r.BestPosition(); ok {
		entry.BestPosition = &PositionSummary{Ticker: best.Ticker, ReturnPercent: best.ReturnPercent}
	}
	if worst, ok := r.WorstPosition(); ok {
		entry.WorstPosition = &PositionSummary{Ticker: worst.Ticker, ReturnPercent: worst.ReturnPercent}
	}
	return entry
}

// SettlementBatch is everything written atomically when a game ends
type SettlementBatch struct {
	SettlementID string             `json:"settlement_id"`
	GameCode     string             `json:"game_code"`
	DataQuality  DataQuality        `json:"data_quality"`
	SettledAt    time.Time          `json:"settled_at"`
	Results      []Result           `json:"results"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
}

// SettlementEvent is published after a settlement batch commits
type SettlementEvent struct {
	Type         string      `json:"type"` // "game_settled"
	GameCode     string      `json:"game_code"`
	SettlementID string      `json:"settlement_id"`
	Participants int         `json:"participants"`
	DataQuality  DataQuality `json:"data_quality"`
	WinnerID     string      `json:"winner_id,omitempty"`
	WinnerName   string      `json:"winner_name,omitempty"`
	SettledAt    time.Time   `json:"settled_at"`
}
