package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pickem/backend/internal/api/handlers"
	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/internal/pricing"
	"github.com/wonny/pickem/backend/internal/settlement"
	"github.com/wonny/pickem/backend/internal/store"
	"github.com/wonny/pickem/backend/pkg/database"
	"github.com/wonny/pickem/backend/pkg/logger"
	"github.com/wonny/pickem/backend/pkg/redis"
)

var gameEnd = time.Date(2024, 3, 8, 21, 0, 0, 0, time.UTC)

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, redis.RateLimitConfig) (bool, int, error) {
	return false, 0, nil
}

type mapCache struct {
	data map[string][]byte
	sets int
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	c.sets++
	return nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type poolChecker struct{ err error }

func (p poolChecker) Ping(context.Context) error { return errors.New("Ping must not be used") }

func (p poolChecker) HealthCheck(context.Context) (*database.HealthStatus, error) {
	st := &database.HealthStatus{Healthy: p.err == nil, Stats: database.PoolStats{MaxConns: 25, IdleConns: 4}}
	if p.err != nil {
		st.Error = p.err.Error()
	}
	return st, p.err
}

func seed(ms *store.MemoryStore) {
	ms.PutGame(&contracts.Game{
		Code:          "G1",
		Status:        contracts.GameStatusLive,
		CreatorID:     "creator",
		EndDate:       gameEnd,
		InitialPrices: map[string]float64{"AAA": 100, "BBB": 100},
	})
	for i, p := range []struct{ id, ticker string }{{"P1", "AAA"}, {"P2", "BBB"}} {
		ms.PutPlayer(&contracts.Player{
			ID: p.id, GameCode: "G1", Nickname: "nick-" + p.id, UserID: "u-" + p.id,
			TotalBudget: 1000, SubmittedAt: gameEnd.AddDate(0, 0, -7).Add(time.Duration(i) * time.Minute),
			Positions: []contracts.Position{{Ticker: p.ticker, BudgetInvested: 1000, Quantity: 10, InitialPrice: 100}},
		})
	}
	_ = ms.SaveSnapshots(context.Background(), []contracts.PriceSnapshot{
		{Ticker: "AAA", Date: gameEnd, Close: 120},
		{Ticker: "BBB", Date: gameEnd, Close: 95},
	})
}

func newTestRouter(t *testing.T, limiter handlers.Limiter, cache handlers.ResponseCache) (http.Handler, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	seed(ms)

	log := logger.Nop()
	settler := settlement.NewSettler(ms, pricing.NewResolver(ms, log), nil,
		settlement.Config{AllInThreshold: settlement.DefaultAllInThreshold, StatsEnabled: true}, log)
	h := handlers.NewSettlementHandler(ms, settler, limiter, cache, log)
	health := handlers.NewHealthHandler(map[string]handlers.Pinger{"store": ms})

	return NewRouter(Routes{Settlement: h, Health: health}, log), ms
}

func do(t *testing.T, h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestForceSettleThenRead(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	rec := do(t, router, http.MethodPost, "/api/games/G1/settle", map[string]string{handlers.CallerHeader: "creator"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var outcome settlement.Outcome
	decode(t, rec, &outcome)
	assert.Equal(t, settlement.OutcomeSettled, outcome.Status)
	assert.Equal(t, 2, outcome.Participants)

	rec = do(t, router, http.MethodGet, "/api/games/G1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board handlers.LeaderboardResponse
	decode(t, rec, &board)
	assert.Equal(t, contracts.GameStatusEnded, board.Status)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "P1", board.Entries[0].PlayerID)
	assert.Equal(t, 20.0, board.Entries[0].ReturnPercent)

	rec = do(t, router, http.MethodGet, "/api/games/G1/leaderboard?limit=1", nil)
	decode(t, rec, &board)
	assert.Len(t, board.Entries, 1)

	rec = do(t, router, http.MethodGet, "/api/games/G1/players/P2/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result contracts.Result
	decode(t, rec, &result)
	assert.Equal(t, 2, result.Rank)
	assert.Equal(t, -5.0, result.PortfolioReturnPercent)

	rec = do(t, router, http.MethodGet, "/api/users/u-P1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestForceSettle_Errors(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	rec := do(t, router, http.MethodPost, "/api/games/G1/settle", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/games/G1/settle", map[string]string{handlers.CallerHeader: "someone"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/games/NOPE/settle", map[string]string{handlers.CallerHeader: "creator"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/games/G1/settle", map[string]string{handlers.CallerHeader: "creator"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/games/G1/settle", map[string]string{handlers.CallerHeader: "creator"})
	assert.Equal(t, http.StatusConflict, rec.Code, "an ENDED game cannot be settled again")
}

func TestForceSettle_RateLimited(t *testing.T) {
	router, ms := newTestRouter(t, denyLimiter{}, nil)

	rec := do(t, router, http.MethodPost, "/api/games/G1/settle", map[string]string{handlers.CallerHeader: "creator"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, ms.CommitCount())
}

func TestReadEndpoints_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/games/NOPE/leaderboard", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/games/G1/players/P1/result", nil).Code,
		"no result before settlement")
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/users/ghost/stats", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/games/G1/leaderboard?limit=0", nil).Code)
}

func TestLeaderboard_LiveGameIsEmptyAndUncached(t *testing.T) {
	cache := &mapCache{data: map[string][]byte{}}
	router, _ := newTestRouter(t, nil, cache)

	rec := do(t, router, http.MethodGet, "/api/games/G1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board handlers.LeaderboardResponse
	decode(t, rec, &board)
	assert.Equal(t, contracts.GameStatusLive, board.Status)
	assert.NotNil(t, board.Entries)
	assert.Empty(t, board.Entries)
	assert.Zero(t, cache.sets)

	do(t, router, http.MethodPost, "/api/games/G1/settle", map[string]string{handlers.CallerHeader: "creator"})
	do(t, router, http.MethodGet, "/api/games/G1/leaderboard", nil)
	do(t, router, http.MethodGet, "/api/games/G1/leaderboard", nil)
	assert.Equal(t, 1, cache.sets, "settled boards are cached once")
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, nil, nil)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", nil).Code)

	log := logger.Nop()
	h := handlers.NewHealthHandler(map[string]handlers.Pinger{"redis": failingPinger{}})
	degraded := NewRouter(Routes{Settlement: &handlers.SettlementHandler{}, Health: h}, log)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, degraded, http.MethodGet, "/health", nil).Code)
}

func TestHealth_ReportsDatabaseDetail(t *testing.T) {
	log := logger.Nop()

	h := handlers.NewHealthHandler(map[string]handlers.Pinger{"database": poolChecker{}})
	rec := do(t, NewRouter(Routes{Settlement: &handlers.SettlementHandler{}, Health: h}, log), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  string                           `json:"status"`
		Checks  map[string]string                `json:"checks"`
		Details map[string]database.HealthStatus `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.True(t, body.Details["database"].Healthy)
	assert.Equal(t, int32(25), body.Details["database"].Stats.MaxConns)

	h = handlers.NewHealthHandler(map[string]handlers.Pinger{"database": poolChecker{err: errors.New("pool exhausted")}})
	rec = do(t, NewRouter(Routes{Settlement: &handlers.SettlementHandler{}, Health: h}, log), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pool exhausted", body.Checks["database"])
	assert.Equal(t, "pool exhausted", body.Details["database"].Error)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
