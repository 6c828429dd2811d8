package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/internal/settlement"
	"github.com/wonny/pickem/backend/pkg/logger"
	"github.com/wonny/pickem/backend/pkg/redis"
)

// CallerHeader carries the authenticated user id, set by the gateway
const CallerHeader = "X-User-ID"

// Reader is the read side the handlers need
type Reader interface {
	contracts.GameRepository
	contracts.ResultRepository
	GetUserStats(ctx context.Context, userID string) (*contracts.UserStats, error)
}

// ForceSettler settles a game on the creator's request
type ForceSettler interface {
	ForceSettle(ctx context.Context, code, callerID string) (*settlement.Outcome, error)
}

// Limiter throttles callers; *redis.RateLimiter implements it
type Limiter interface {
	Allow(ctx context.Context, cfg redis.RateLimitConfig) (bool, int, error)
}

// ResponseCache caches settled read models; *redis.Cache implements it
type ResponseCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// SettlementHandler serves settlement results and the manual trigger
// ⭐ SSOT: 정산 API 핸들러는 이 구조체에서만
type SettlementHandler struct {
	reader  Reader
	settler ForceSettler
	limiter Limiter
	cache   ResponseCache
	logger  *logger.Logger
}

// NewSettlementHandler creates the handler. limiter and cache may be nil.
func NewSettlementHandler(reader Reader, settler ForceSettler, limiter Limiter, cache ResponseCache, log *logger.Logger) *SettlementHandler {
	return &SettlementHandler{
		reader:  reader,
		settler: settler,
		limiter: limiter,
		cache:   cache,
		logger:  log,
	}
}

// LeaderboardResponse is the settled board of one game
type LeaderboardResponse struct {
	GameCode     string                       `json:"game_code"`
	Status       contracts.GameStatus         `json:"status"`
	DataQuality  contracts.DataQuality        `json:"data_quality,omitempty"`
	SettlementID string                       `json:"settlement_id,omitempty"`
	SettledAt    *time.Time                   `json:"settled_at,omitempty"`
	Entries      []contracts.LeaderboardEntry `json:"entries"`
}

// GetLeaderboard returns the ranked board
// GET /api/games/{code}/leaderboard?limit=N
func (h *SettlementHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := mux.Vars(r)["code"]

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	resp, err := h.leaderboard(ctx, code)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.WithGame(code).WithError(err).Error("Failed to get leaderboard")
		}
		respondEngineError(w, err, "Failed to retrieve leaderboard")
		return
	}

	if limit > 0 && limit < len(resp.Entries) {
		trimmed := *resp
		trimmed.Entries = resp.Entries[:limit]
		resp = &trimmed
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *SettlementHandler) leaderboard(ctx context.Context, code string) (*LeaderboardResponse, error) {
	key := redis.LeaderboardKey(code)
	if h.cache != nil {
		var cached LeaderboardResponse
		if ok, err := h.cache.Get(ctx, key, &cached); err != nil {
			h.logger.WithError(err).Warn("Leaderboard cache read failed")
		} else if ok {
			return &cached, nil
		}
	}

	game, err := h.reader.GetGame(ctx, code)
	if err != nil {
		return nil, err
	}
	entries, err := h.reader.GetLeaderboard(ctx, code)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []contracts.LeaderboardEntry{}
	}

	resp := &LeaderboardResponse{
		GameCode:     game.Code,
		Status:       game.Status,
		DataQuality:  game.DataQuality,
		SettlementID: game.SettlementID,
		SettledAt:    game.SettledAt,
		Entries:      entries,
	}

	// 정산 완료된 결과만 캐시 (불변)
	if h.cache != nil && game.Status == contracts.GameStatusEnded {
		if err := h.cache.Set(ctx, key, resp, redis.TTLDaily); err != nil {
			h.logger.WithError(err).Warn("Leaderboard cache write failed")
		}
	}
	return resp, nil
}

// GetPlayerResult returns one player's full result
// GET /api/games/{code}/players/{playerId}/result
func (h *SettlementHandler) GetPlayerResult(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code, playerID := vars["code"], vars["playerId"]

	result, err := h.reader.GetPlayerResult(r.Context(), code, playerID)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.WithGame(code).WithError(err).Error("Failed to get player result")
		}
		respondEngineError(w, err, "Failed to retrieve result")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetUserStats returns a user's lifetime aggregate
// GET /api/users/{userId}/stats
func (h *SettlementHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	st, err := h.reader.GetUserStats(r.Context(), userID)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.WithError(err).WithField("user_id", userID).Error("Failed to get user stats")
		}
		respondEngineError(w, err, "Failed to retrieve stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":    st,
		"win_rate": st.WinRate(),
	})
}

// ForceSettle settles a LIVE game now; only its creator may call it
// POST /api/games/{code}/settle
func (h *SettlementHandler) ForceSettle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := mux.Vars(r)["code"]
	callerID := r.Header.Get(CallerHeader)

	if callerID == "" {
		respondError(w, http.StatusUnauthorized, CallerHeader+" header is required")
		return
	}

	if h.limiter != nil {
		allowed, _, err := h.limiter.Allow(ctx, redis.ForceSettleRateLimit(callerID))
		if err != nil {
			h.logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
		} else if !allowed {
			respondError(w, http.StatusTooManyRequests, "Too many settlement requests")
			return
		}
	}

	outcome, err := h.settler.ForceSettle(ctx, code, callerID)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.WithGame(code).WithError(err).Error("Force settlement failed")
		}
		respondEngineError(w, err, "Settlement failed")
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}
