package settlement

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/internal/metrics"
	"github.com/wonny/pickem/backend/internal/pricing"
	"github.com/wonny/pickem/backend/pkg/logger"
)

// PriceResolver resolves final prices; it must never fail
type PriceResolver interface {
	Resolve(ctx context.Context, game *contracts.Game, tickers []string) *pricing.Resolution
}

// Notifier receives an event after each committed settlement
type Notifier interface {
	Publish(event contracts.SettlementEvent)
}

// OutcomeStatus tells what Settle did
type OutcomeStatus string

const (
	OutcomeSettled        OutcomeStatus = "SETTLED"
	OutcomeAlreadyEnded   OutcomeStatus = "ALREADY_ENDED"   // status was not LIVE
	OutcomeAlreadySettled OutcomeStatus = "ALREADY_SETTLED" // results exist or the commit guard lost
)

// Outcome is the result of one Settle call
type Outcome struct {
	GameCode     string                `json:"game_code"`
	Status       OutcomeStatus         `json:"status"`
	SettlementID string                `json:"settlement_id,omitempty"`
	Participants int                   `json:"participants"`
	DataQuality  contracts.DataQuality `json:"data_quality,omitempty"`
	Stats        StatsReport           `json:"-"`
}

// Config tunes the engine
type Config struct {
	AllInThreshold float64
	StatsEnabled   bool
	EnabledAwards  []contracts.AwardType // empty means all
	PolicyHash     string                // logged with every settlement
}

// Settler drives one game from LIVE to ENDED exactly once
// ⭐ SSOT: 정산 오케스트레이션은 여기서만
type Settler struct {
	store    contracts.Store
	resolver PriceResolver
	awards   *AwardsEngine
	stats    *StatsUpdater
	notifier Notifier
	cfg      Config
	logger   *logger.Logger
	now      func() time.Time
	newID    func() string
}

// NewSettler wires the orchestrator. notifier may be nil.
func NewSettler(store contracts.Store, resolver PriceResolver, notifier Notifier, cfg Config, log *logger.Logger) *Settler {
	return &Settler{
		store:    store,
		resolver: resolver,
		awards:   NewAwardsEngine(cfg.AllInThreshold, cfg.EnabledAwards...),
		stats:    NewStatsUpdater(store, log),
		notifier: notifier,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Settle settles one game. Already-handled games are a no-op, not an error.
// Any error before the commit leaves the game LIVE and without results.
func (s *Settler) Settle(ctx context.Context, code string) (*Outcome, error) {
	start := time.Now()
	log := s.logger.WithGame(code)

	outcome, err := s.settle(ctx, code, log)

	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("Settlement failed")
		return nil, err
	}
	metrics.SettlementsTotal.WithLabelValues(outcomeLabel(outcome.Status)).Inc()
	return outcome, nil
}

func outcomeLabel(s OutcomeStatus) string {
	switch s {
	case OutcomeAlreadyEnded:
		return "already_ended"
	case OutcomeAlreadySettled:
		return "already_settled"
	default:
		return "settled"
	}
}

func (s *Settler) settle(ctx context.Context, code string, log *logger.Logger) (*Outcome, error) {
	game, err := s.store.GetGame(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", code, err)
	}

	// 1차 확인: 상태
	if game.Status != contracts.GameStatusLive {
		log.WithField("status", game.Status).Info("Game not live, skipping settlement")
		return &Outcome{GameCode: code, Status: OutcomeAlreadyEnded}, nil
	}

	// 2차 확인: 결과 존재 여부
	settled, err := s.store.HasResults(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to check results of %s: %w", code, err)
	}
	if settled {
		log.Info("Results already exist, skipping settlement")
		return &Outcome{GameCode: code, Status: OutcomeAlreadySettled}, nil
	}

	players, err := s.store.ListPlayers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load players of %s: %w", code, err)
	}

	resolution := s.resolver.Resolve(ctx, game, contracts.UniqueTickers(players))
	batch := s.buildBatch(game, players, resolution)

	// 최종 가드: LIVE → ENDED 조건부 업데이트와 결과 저장이 한 트랜잭션
	if err := s.store.CommitSettlement(ctx, batch); err != nil {
		if errors.Is(err, contracts.ErrAlreadySettled) {
			log.Info("Game settled concurrently, discarding batch")
			return &Outcome{GameCode: code, Status: OutcomeAlreadySettled}, nil
		}
		return nil, fmt.Errorf("failed to commit settlement of %s: %w", code, err)
	}

	outcome := &Outcome{
		GameCode:     code,
		Status:       OutcomeSettled,
		SettlementID: batch.SettlementID,
		Participants: len(batch.Results),
		DataQuality:  batch.DataQuality,
	}

	log.WithFields(map[string]interface{}{
		"settlement_id": batch.SettlementID,
		"participants":  outcome.Participants,
		"data_quality":  batch.DataQuality,
		"award_policy":  s.cfg.PolicyHash,
	}).Info("Game settled")

	if s.cfg.StatsEnabled {
		outcome.Stats = s.stats.Apply(ctx, batch.Results)
	}
	if s.notifier != nil {
		s.notifier.Publish(settlementEvent(batch))
	}
	return outcome, nil
}

// buildBatch computes, ranks, awards and rounds every result of the game.
// Ranking and awards run on unrounded values.
func (s *Settler) buildBatch(game *contracts.Game, players []*contracts.Player, resolution *pricing.Resolution) *contracts.SettlementBatch {
	now := s.now().UTC()
	id := s.newID()

	computed := make([]contracts.Result, 0, len(players))
	for _, p := range players {
		computed = append(computed, ComputeResult(p, resolution.Prices, now))
	}

	ranked := Rank(computed)
	awards := s.awards.Compute(ranked)

	batch := &contracts.SettlementBatch{
		SettlementID: id,
		GameCode:     game.Code,
		DataQuality:  resolution.Quality(),
		SettledAt:    now,
		Results:      make([]contracts.Result, 0, len(ranked)),
		Leaderboard:  make([]contracts.LeaderboardEntry, 0, len(ranked)),
	}

	for _, r := range ranked {
		r.SettlementID = id
		r.GameCode = game.Code
		r.Awards = awards[r.PlayerID]
		if r.Awards == nil {
			r.Awards = []contracts.Award{}
		}
		if msg, ok := WhatIf(r, ranked); ok {
			r.WhatIfMessage = msg
		}

		persisted := roundedForPersistence(r)
		batch.Results = append(batch.Results, persisted)
		batch.Leaderboard = append(batch.Leaderboard, contracts.NewLeaderboardEntry(&persisted))
	}
	return batch
}

func settlementEvent(batch *contracts.SettlementBatch) contracts.SettlementEvent {
	event := contracts.SettlementEvent{
		Type:         "game_settled",
		GameCode:     batch.GameCode,
		SettlementID: batch.SettlementID,
		Participants: len(batch.Results),
		DataQuality:  batch.DataQuality,
		SettledAt:    batch.SettledAt,
	}
	if len(batch.Results) > 0 {
		event.WinnerID = batch.Results[0].PlayerID
		event.WinnerName = batch.Results[0].Nickname
	}
	return event
}

// ForceSettle is the manual entry point: only the creator may settle, and
// only a LIVE game
func (s *Settler) ForceSettle(ctx context.Context, code, callerID string) (*Outcome, error) {
	game, err := s.store.GetGame(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", code, err)
	}
	if callerID == "" || game.CreatorID != callerID {
		return nil, fmt.Errorf("only the creator may settle %s: %w", code, contracts.ErrPermissionDenied)
	}
	if game.Status != contracts.GameStatusLive {
		return nil, fmt.Errorf("game %s is %s, not LIVE: %w", code, game.Status, contracts.ErrFailedPrecondition)
	}

	s.logger.WithGame(code).WithField("caller_id", callerID).Info("Force settlement requested")

	outcome, err := s.Settle(ctx, code)
	if err != nil {
		return nil, err
	}
	if outcome.Status != OutcomeSettled {
		return nil, fmt.Errorf("game %s was settled concurrently: %w", code, contracts.ErrFailedPrecondition)
	}
	return outcome, nil
}

// DueSummary reports one trigger tick
type DueSummary struct {
	Due      int               `json:"due"`
	Settled  int               `json:"settled"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// SettleDue settles every LIVE game whose end date has passed.
// Games are isolated: an error or panic in one never stops the others.
func (s *Settler) SettleDue(ctx context.Context) (*DueSummary, error) {
	games, err := s.store.ListDueGames(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list due games: %w", err)
	}

	summary := &DueSummary{Due: len(games)}
	metrics.DueGames.Set(float64(len(games)))

	for _, g := range games {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		outcome, err := s.settleIsolated(ctx, g.Code)
		switch {
		case err != nil:
			summary.Failed++
			if summary.Failures == nil {
				summary.Failures = make(map[string]string)
			}
			summary.Failures[g.Code] = err.Error()
		case outcome.Status == OutcomeSettled:
			summary.Settled++
		default:
			summary.Skipped++
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"due":     summary.Due,
		"settled": summary.Settled,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}).Info("Settlement tick completed")
	return summary, nil
}

func (s *Settler) settleIsolated(ctx context.Context, code string) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithGame(code).WithFields(map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Settlement panicked")
			metrics.SettlementsTotal.WithLabelValues("failed").Inc()
			outcome, err = nil, fmt.Errorf("settlement of %s panicked: %v", code, r)
		}
	}()
	return s.Settle(ctx, code)
}
