package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to GameStatus
		want     bool
	}{
		{GameStatusDraft, GameStatusLive, true},
		{GameStatusLive, GameStatusEnded, true},
		{GameStatusDraft, GameStatusEnded, false},
		{GameStatusLive, GameStatusDraft, false},
		{GameStatusEnded, GameStatusLive, false},
		{GameStatusEnded, GameStatusEnded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestGame_IsDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	live := &Game{Status: GameStatusLive, EndDate: now}
	assert.True(t, live.IsDue(now), "end date equal to now is due")
	assert.False(t, live.IsDue(now.Add(-time.Second)))

	ended := &Game{Status: GameStatusEnded, EndDate: now.Add(-time.Hour)}
	assert.False(t, ended.IsDue(now))
}

func TestUniqueTickers(t *testing.T) {
	players := []*Player{
		{Positions: []Position{{Ticker: "aapl"}, {Ticker: "MSFT"}}},
		{Positions: []Position{{Ticker: " AAPL "}, {Ticker: "BTC-USD"}}},
	}
	assert.Equal(t, []string{"AAPL", "BTC-USD", "MSFT"}, UniqueTickers(players))
	assert.Empty(t, UniqueTickers(nil))
}

func TestResult_BestAndWorstPosition(t *testing.T) {
	r := &Result{Positions: []PositionResult{
		{Ticker: "A", ReturnPercent: 5},
		{Ticker: "B", ReturnPercent: 12},
		{Ticker: "C", ReturnPercent: 12},
		{Ticker: "D", ReturnPercent: -3},
	}}

	best, ok := r.BestPosition()
	require.True(t, ok)
	assert.Equal(t, "B", best.Ticker, "first encountered wins ties")

	worst, ok := r.WorstPosition()
	require.True(t, ok)
	assert.Equal(t, "D", worst.Ticker)

	_, ok = (&Result{}).BestPosition()
	assert.False(t, ok)
}

func TestNewLeaderboardEntry(t *testing.T) {
	r := &Result{
		GameCode:               "G1",
		PlayerID:               "p1",
		Rank:                   2,
		PortfolioReturnPercent: 7.5,
		FinalValue:             10750,
		Positions:              []PositionResult{{Ticker: "A", ReturnPercent: 7.5}},
	}

	entry := NewLeaderboardEntry(r)
	assert.Equal(t, 2, entry.Rank)
	assert.Equal(t, 7.5, entry.ReturnPercent)
	require.NotNil(t, entry.BestPosition)
	assert.Equal(t, "A", entry.BestPosition.Ticker)
	assert.Equal(t, entry.BestPosition, entry.WorstPosition)

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"best_position"`)
}

func TestTradingDate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("KST", 9*3600))
	assert.Equal(t, "2024-03-01", DateKey(ts))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), TradingDate(ts))
}

func TestUserStats_WinRate(t *testing.T) {
	assert.Zero(t, (&UserStats{}).WinRate())
	assert.InDelta(t, 0.25, (&UserStats{GamesPlayed: 4, GamesWon: 1}).WinRate(), 1e-9)
}
