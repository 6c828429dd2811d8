package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// GameRepository reads games and their players
type GameRepository interface {
	GetGame(ctx context.Context, code string) (*Game, error)
	ListDueGames(ctx context.Context, now time.Time) ([]*Game, error)
	ListPlayers(ctx context.Context, gameCode string) ([]*Player, error)
}

// ResultRepository reads settlement output
type ResultRepository interface {
	HasResults(ctx context.Context, gameCode string) (bool, error)
	GetLeaderboard(ctx context.Context, gameCode string) ([]LeaderboardEntry, error)
	GetPlayerResult(ctx context.Context, gameCode, playerID string) (*Result, error)
}

// SettlementWriter commits a settlement batch atomically.
// Returns ErrAlreadySettled when the game is no longer LIVE at commit time.
type SettlementWriter interface {
	CommitSettlement(ctx context.Context, batch *SettlementBatch) error
}

// StatsRepository applies fn to a user's stats under a row lock
// (fn receives a zero UserStats with UserID set when none exist yet)
type StatsRepository interface {
	GetUserStats(ctx context.Context, userID string) (*UserStats, error)
	UpdateUserStats(ctx context.Context, userID string, fn func(*UserStats) error) (*UserStats, error)
}

// PriceSnapshotRepository manages persisted closing prices
type PriceSnapshotRepository interface {
	GetSnapshot(ctx context.Context, ticker string, date time.Time) (*PriceSnapshot, error)
	SaveSnapshots(ctx context.Context, snapshots []PriceSnapshot) error
}

// Store bundles every repository the settlement backend needs
type Store interface {
	GameRepository
	ResultRepository
	SettlementWriter
	StatsRepository
	PriceSnapshotRepository
	Ping(ctx context.Context) error
	Close()
}
