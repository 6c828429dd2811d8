package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/internal/pricing"
	"github.com/wonny/pickem/backend/internal/store"
	"github.com/wonny/pickem/backend/pkg/logger"
)

var endDate = time.Date(2024, 3, 8, 21, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []contracts.SettlementEvent
}

func (n *recordingNotifier) Publish(e contracts.SettlementEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

type panicResolver struct{ ticker string }

func (p panicResolver) Resolve(_ context.Context, _ *contracts.Game, tickers []string) *pricing.Resolution {
	for _, t := range tickers {
		if t == p.ticker {
			panic("quote feed exploded")
		}
	}
	return &pricing.Resolution{Prices: map[string]float64{}}
}

func seedGame(ms *store.MemoryStore, code string, prices map[string]float64) {
	ms.PutGame(&contracts.Game{
		Code:          code,
		Status:        contracts.GameStatusLive,
		CreatorID:     "creator",
		StartDate:     endDate.AddDate(0, 0, -7),
		EndDate:       endDate,
		Tickers:       []string{"AAA", "BBB", "CCC"},
		InitialPrices: map[string]float64{"AAA": 100, "BBB": 100, "CCC": 200},
	})

	players := []struct {
		id, user, ticker string
		price            float64
		submitted        time.Duration
	}{
		{"P1", "u1", "AAA", 100, 0},
		{"P2", "", "BBB", 100, time.Minute},
		{"P3", "u3", "CCC", 200, 2 * time.Minute},
	}
	for _, p := range players {
		ms.PutPlayer(&contracts.Player{
			ID:          p.id,
			GameCode:    code,
			Nickname:    "nick-" + p.id,
			UserID:      p.user,
			TotalBudget: 10000,
			SubmittedAt: endDate.AddDate(0, 0, -7).Add(p.submitted),
			Positions: []contracts.Position{{
				Ticker: p.ticker, BudgetInvested: 10000, Quantity: 10000 / p.price, InitialPrice: p.price,
			}},
		})
	}

	var snaps []contracts.PriceSnapshot
	for ticker, close := range prices {
		snaps = append(snaps, contracts.PriceSnapshot{Ticker: ticker, Date: endDate, Close: close, Source: contracts.PriceSourceSnapshot})
	}
	_ = ms.SaveSnapshots(context.Background(), snaps)
}

func newTestSettler(ms *store.MemoryStore, n Notifier) *Settler {
	resolver := pricing.NewResolver(ms, logger.Nop())
	s := NewSettler(ms, resolver, n, Config{AllInThreshold: DefaultAllInThreshold, StatsEnabled: true}, logger.Nop())
	s.now = func() time.Time { return endDate.Add(time.Hour) }
	return s
}

var examplePrices = map[string]float64{"AAA": 150, "BBB": 90, "CCC": 200}

func TestSettle_ThreePlayerExample(t *testing.T) {
	ms := store.NewMemoryStore()
	seedGame(ms, "G1", examplePrices)
	notifier := &recordingNotifier{}
	s := newTestSettler(ms, notifier)
	ctx := context.Background()

	outcome, err := s.Settle(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome.Status)
	assert.Equal(t, 3, outcome.Participants)
	assert.Equal(t, contracts.DataQualityOK, outcome.DataQuality)
	assert.NotEmpty(t, outcome.SettlementID)

	game, err := ms.GetGame(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, contracts.GameStatusEnded, game.Status)
	assert.Equal(t, outcome.SettlementID, game.SettlementID)
	require.NotNil(t, game.SettledAt)

	board, err := ms.GetLeaderboard(ctx, "G1")
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "P1", board[0].PlayerID)
	assert.Equal(t, 50.0, board[0].ReturnPercent)
	assert.Equal(t, 15000.0, board[0].FinalValue)
	assert.Equal(t, "P3", board[1].PlayerID)
	assert.Equal(t, 0.0, board[1].ReturnPercent)
	assert.Equal(t, "P2", board[2].PlayerID)
	assert.Equal(t, -10.0, board[2].ReturnPercent)

	p1, err := ms.GetPlayerResult(ctx, "G1", "P1")
	require.NoError(t, err)
	assert.Equal(t, 1, p1.Rank)
	assert.Equal(t, 3, p1.TotalParticipants)
	assert.Contains(t, awardTypes(p1.Awards), contracts.AwardChampion)
	assert.Contains(t, awardTypes(p1.Awards), contracts.AwardOracle)
	assert.Contains(t, awardTypes(p1.Awards), contracts.AwardAllGreen)
	assert.Empty(t, p1.WhatIfMessage)

	p2, err := ms.GetPlayerResult(ctx, "G1", "P2")
	require.NoError(t, err)
	assert.Equal(t, []contracts.AwardType{contracts.AwardLastPlace, contracts.AwardFreefall}, awardTypes(p2.Awards))

	p3, err := ms.GetPlayerResult(ctx, "G1", "P3")
	require.NoError(t, err)
	assert.NotNil(t, p3.Awards)
	assert.Equal(t, []contracts.AwardType{contracts.AwardRunnerUp}, awardTypes(p3.Awards))

	st, err := ms.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.GamesPlayed)
	assert.Equal(t, 1, st.GamesWon)
	_, err = ms.GetUserStats(ctx, "")
	assert.ErrorIs(t, err, contracts.ErrNotFound, "anonymous players get no stats")
	assert.Equal(t, StatsReport{Updated: 2, Skipped: 1}, outcome.Stats)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, "P1", notifier.events[0].WinnerID)
	assert.Equal(t, "game_settled", notifier.events[0].Type)
}

func TestSettle_IsIdempotent(t *testing.T) {
	ms := store.NewMemoryStore()
	seedGame(ms, "G1", examplePrices)
	s := newTestSettler(ms, nil)
	ctx := context.Background()

	_, err := s.Settle(ctx, "G1")
	require.NoError(t, err)
	before, err := ms.GetLeaderboard(ctx, "G1")
	require.NoError(t, err)

	outcome, err := s.Settle(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyEnded, outcome.Status)

	after, err := ms.GetLeaderboard(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, ms.CommitCount())

	st, err := ms.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.GamesPlayed, "stats are not double counted")
}

func TestSettle_ConcurrentCallsCommitOnce(t *testing.T) {
	ms := store.NewMemoryStore()
	seedGame(ms, "G1", examplePrices)
	s := newTestSettler(ms, nil)

	var wg sync.WaitGroup
	outcomes := make([]*Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := s.Settle(context.Background(), "G1")
			assert.NoError(t, err)
			outcomes[i] = o
		}(i)
	}
	wg.Wait()

	settled := 0
	for _, o := range outcomes {
		if o != nil && o.Status == OutcomeSettled {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, ms.CommitCount())
}

func TestSettle_CommitFailureLeavesGameLive(t *testing.T) {
	ms := store.NewMemoryStore()
	seedGame(ms, "G1", examplePrices)
	ms.FailCommits(errors.New("disk full"))
	s := newTestSettler(ms, nil)
	ctx := context.Background()

	_, err := s.Settle(ctx, "G1")
	require.Error(t, err)

	game, err := ms.GetGame(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, contracts.GameStatusLive, game.Status)
	has, err := ms.HasResults(ctx, "G1")
	require.NoError(t, err)
	assert.False(t, has)
	_, err = ms.GetUserStats(ctx, "u1")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	ms.FailCommits(nil)
	outcome, err := s.Settle(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome.Status, "the next tick retries safely")
}

func TestSettle_StatsFailureDoesNotRollBack(t *testing.T) {
	ms := store.NewMemoryStore()
	seedGame(ms, "G1", examplePrices)
	ms.FailStats(errors.New("stats down"))
	s := newTestSettler(ms, nil)

	outcome, err := s.Settle(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome.Status)
	assert.Equal(t, 2, outcome.Stats.Failed)

	game, err := ms.GetGame(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, contracts.GameStatusEnded, game.Status)
}

func TestSettle_MissingPricesDegrade(t *testing.T) {
	ms := store.NewMemoryStore()
	seedGame(ms, "G1", map[string]float64{"AAA": 150})
	s := newTestSettler(ms, nil)

	outcome, err := s.Settle(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, contracts.DataQualityDegraded, outcome.DataQuality)

	game, err := ms.GetGame(context.Background(), "G1")
	require.NoError(t, err)
	assert.Equal(t, contracts.DataQualityDegraded, game.DataQuality)
}

func TestSettle_NoPlayersStillEnds(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.PutGame(&contracts.Game{Code: "EMPTY", Status: contracts.GameStatusLive, EndDate: endDate})
	s := newTestSettler(ms, nil)

	outcome, err := s.Settle(context.Background(), "EMPTY")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome.Status)
	assert.Zero(t, outcome.Participants)
}

func TestSettle_UnknownGame(t *testing.T) {
	s := newTestSettler(store.NewMemoryStore(), nil)
	_, err := s.Settle(context.Background(), "NOPE")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestForceSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("creator settles live game", func(t *testing.T) {
		ms := store.NewMemoryStore()
		seedGame(ms, "G1", examplePrices)
		outcome, err := newTestSettler(ms, nil).ForceSettle(ctx, "G1", "creator")
		require.NoError(t, err)
		assert.Equal(t, OutcomeSettled, outcome.Status)
	})

	t.Run("other caller is denied", func(t *testing.T) {
		ms := store.NewMemoryStore()
		seedGame(ms, "G1", examplePrices)
		_, err := newTestSettler(ms, nil).ForceSettle(ctx, "G1", "intruder")
		assert.ErrorIs(t, err, contracts.ErrPermissionDenied)

		game, _ := ms.GetGame(ctx, "G1")
		assert.Equal(t, contracts.GameStatusLive, game.Status)
	})

	t.Run("ended game fails precondition", func(t *testing.T) {
		ms := store.NewMemoryStore()
		seedGame(ms, "G1", examplePrices)
		s := newTestSettler(ms, nil)
		_, err := s.Settle(ctx, "G1")
		require.NoError(t, err)

		_, err = s.ForceSettle(ctx, "G1", "creator")
		assert.ErrorIs(t, err, contracts.ErrFailedPrecondition)
	})

	t.Run("draft game fails precondition", func(t *testing.T) {
		ms := store.NewMemoryStore()
		ms.PutGame(&contracts.Game{Code: "D", Status: contracts.GameStatusDraft, CreatorID: "creator"})
		_, err := newTestSettler(ms, nil).ForceSettle(ctx, "D", "creator")
		assert.ErrorIs(t, err, contracts.ErrFailedPrecondition)
	})

	t.Run("unknown game", func(t *testing.T) {
		_, err := newTestSettler(store.NewMemoryStore(), nil).ForceSettle(ctx, "X", "creator")
		assert.ErrorIs(t, err, contracts.ErrNotFound)
	})
}

func TestSettleDue_IsolatesFailures(t *testing.T) {
	ms := store.NewMemoryStore()
	seedGame(ms, "OK1", examplePrices)
	seedGame(ms, "OK2", examplePrices)
	ms.PutGame(&contracts.Game{Code: "FUTURE", Status: contracts.GameStatusLive, EndDate: endDate.AddDate(0, 0, 7)})
	s := newTestSettler(ms, nil)

	summary, err := s.SettleDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Due)
	assert.Equal(t, 2, summary.Settled)
	assert.Zero(t, summary.Failed)

	future, _ := ms.GetGame(context.Background(), "FUTURE")
	assert.Equal(t, contracts.GameStatusLive, future.Status)

	summary, err = s.SettleDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Due, "settled games are no longer due")
}

func TestSettleDue_RecoversPanics(t *testing.T) {
	ms := store.NewMemoryStore()
	seedGame(ms, "BOOM", examplePrices)
	ms.PutGame(&contracts.Game{Code: "CALM", Status: contracts.GameStatusLive, EndDate: endDate})
	ms.PutPlayer(&contracts.Player{
		ID: "c1", GameCode: "CALM", TotalBudget: 100,
		Positions: []contracts.Position{{Ticker: "ZZZ", BudgetInvested: 100, Quantity: 1, InitialPrice: 100}},
	})

	s := newTestSettler(ms, nil)
	s.resolver = panicResolver{ticker: "AAA"}

	summary, err := s.SettleDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Due)
	assert.Equal(t, 1, summary.Settled)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Failures["BOOM"], "panicked")

	boom, _ := ms.GetGame(context.Background(), "BOOM")
	assert.Equal(t, contracts.GameStatusLive, boom.Status)
}
