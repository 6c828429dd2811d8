package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/internal/store"
	"github.com/wonny/pickem/backend/pkg/logger"
)

func TestApplyResult(t *testing.T) {
	st := &contracts.UserStats{UserID: "u1"}

	ApplyResult(st, 3, -4.5, t0)
	assert.Equal(t, 1, st.GamesPlayed)
	assert.Zero(t, st.GamesWon)
	assert.Equal(t, -4.5, st.BestReturn, "first game sets best even when negative")
	assert.Equal(t, 3.0, st.AverageRank)

	ApplyResult(st, 1, 12, t0)
	assert.Equal(t, 2, st.GamesPlayed)
	assert.Equal(t, 1, st.GamesWon)
	assert.Equal(t, 12.0, st.BestReturn)
	assert.InDelta(t, 7.5, st.TotalReturn, 1e-9)
	assert.Equal(t, 2.0, st.AverageRank)

	ApplyResult(st, 2, 1, t0)
	assert.Equal(t, 12.0, st.BestReturn)
	assert.InDelta(t, 2.0, st.AverageRank, 1e-9)
	assert.Equal(t, t0, st.UpdatedAt)
}

func TestStatsUpdater_SkipsAnonymousAndSurvivesFailures(t *testing.T) {
	ms := store.NewMemoryStore()
	u := NewStatsUpdater(ms, logger.Nop())

	results := []contracts.Result{
		{PlayerID: "p1", UserID: "u1", Rank: 1, PortfolioReturnPercent: 10},
		{PlayerID: "p2", UserID: "   ", Rank: 2, PortfolioReturnPercent: 5},
		{PlayerID: "p3", UserID: "u3", Rank: 3, PortfolioReturnPercent: -2},
	}

	report := u.Apply(context.Background(), results)
	assert.Equal(t, StatsReport{Updated: 2, Skipped: 1}, report)

	st, err := ms.GetUserStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.GamesWon)
	_, err = ms.GetUserStats(context.Background(), "   ")
	assert.ErrorIs(t, err, contracts.ErrNotFound, "blank user ids are anonymous")

	ms.FailStats(errors.New("stats store down"))
	report = u.Apply(context.Background(), results)
	assert.Equal(t, StatsReport{Skipped: 1, Failed: 2}, report)
}
