package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// MemoryStore implements contracts.Store with in-memory maps. Used for tests
// and local development. All reads return copies.
type MemoryStore struct {
	mu          sync.RWMutex
	games       map[string]*contracts.Game
	players     map[string][]*contracts.Player
	results     map[string][]contracts.Result
	leaderboard map[string][]contracts.LeaderboardEntry
	stats       map[string]*contracts.UserStats
	snapshots   map[string]contracts.PriceSnapshot

	commitErr   error
	statsErr    error
	commitCount int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:       make(map[string]*contracts.Game),
		players:     make(map[string][]*contracts.Player),
		results:     make(map[string][]contracts.Result),
		leaderboard: make(map[string][]contracts.LeaderboardEntry),
		stats:       make(map[string]*contracts.UserStats),
		snapshots:   make(map[string]contracts.PriceSnapshot),
	}
}

// PutGame inserts or replaces a game
func (s *MemoryStore) PutGame(g *contracts.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.Code] = copyGame(g)
}

// PutPlayer appends a player to its game
func (s *MemoryStore) PutPlayer(p *contracts.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	cp.Positions = append([]contracts.Position(nil), p.Positions...)
	s.players[p.GameCode] = append(s.players[p.GameCode], &cp)
	if g, ok := s.games[p.GameCode]; ok {
		g.PlayerCount = len(s.players[p.GameCode])
	}
}

// FailCommits makes every CommitSettlement return err until reset with nil
func (s *MemoryStore) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// FailStats makes every UpdateUserStats return err until reset with nil
func (s *MemoryStore) FailStats(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsErr = err
}

// CommitCount returns how many settlement batches were committed
func (s *MemoryStore) CommitCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitCount
}

func copyGame(g *contracts.Game) *contracts.Game {
	cp := *g
	cp.Tickers = append([]string(nil), g.Tickers...)
	cp.InitialPrices = make(map[string]float64, len(g.InitialPrices))
	for k, v := range g.InitialPrices {
		cp.InitialPrices[contracts.NormalizeTicker(k)] = v
	}
	if g.SettledAt != nil {
		t := *g.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}

func (s *MemoryStore) GetGame(_ context.Context, code string) (*contracts.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[code]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return copyGame(g), nil
}

func (s *MemoryStore) ListDueGames(_ context.Context, now time.Time) ([]*contracts.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*contracts.Game
	for _, g := range s.games {
		if g.IsDue(now) {
			due = append(due, copyGame(g))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].EndDate.Equal(due[j].EndDate) {
			return due[i].EndDate.Before(due[j].EndDate)
		}
		return due[i].Code < due[j].Code
	})
	return due, nil
}

func (s *MemoryStore) ListPlayers(_ context.Context, gameCode string) ([]*contracts.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.players[gameCode]
	out := make([]*contracts.Player, 0, len(src))
	for _, p := range src {
		cp := *p
		cp.Positions = append([]contracts.Position(nil), p.Positions...)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) HasResults(_ context.Context, gameCode string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results[gameCode]) > 0, nil
}

func (s *MemoryStore) GetLeaderboard(_ context.Context, gameCode string) ([]contracts.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.games[gameCode]; !ok {
		return nil, contracts.ErrNotFound
	}
	return append([]contracts.LeaderboardEntry(nil), s.leaderboard[gameCode]...), nil
}

func (s *MemoryStore) GetPlayerResult(_ context.Context, gameCode, playerID string) (*contracts.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.results[gameCode] {
		if r.PlayerID == playerID {
			cp := r
			return &cp, nil
		}
	}
	return nil, contracts.ErrNotFound
}

// CommitSettlement applies the whole batch under one lock, or nothing
func (s *MemoryStore) CommitSettlement(_ context.Context, batch *contracts.SettlementBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		return s.commitErr
	}

	g, ok := s.games[batch.GameCode]
	if !ok {
		return contracts.ErrNotFound
	}
	// LIVE → ENDED 이외의 전이는 거부
	if !g.Status.CanTransitionTo(contracts.GameStatusEnded) || len(s.results[batch.GameCode]) > 0 {
		return contracts.ErrAlreadySettled
	}

	settledAt := batch.SettledAt
	g.Status = contracts.GameStatusEnded
	g.DataQuality = batch.DataQuality
	g.SettledAt = &settledAt
	g.SettlementID = batch.SettlementID

	s.results[batch.GameCode] = append([]contracts.Result(nil), batch.Results...)
	s.leaderboard[batch.GameCode] = append([]contracts.LeaderboardEntry(nil), batch.Leaderboard...)
	s.commitCount++
	return nil
}

func (s *MemoryStore) GetUserStats(_ context.Context, userID string) (*contracts.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[userID]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) UpdateUserStats(_ context.Context, userID string, fn func(*contracts.UserStats) error) (*contracts.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statsErr != nil {
		return nil, s.statsErr
	}

	st := contracts.UserStats{UserID: userID}
	if existing, ok := s.stats[userID]; ok {
		st = *existing
	}
	if err := fn(&st); err != nil {
		return nil, err
	}
	s.stats[userID] = &st
	cp := st
	return &cp, nil
}

func snapshotKey(ticker string, date time.Time) string {
	return contracts.NormalizeTicker(ticker) + "|" + contracts.DateKey(date)
}

func (s *MemoryStore) GetSnapshot(_ context.Context, ticker string, date time.Time) (*contracts.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[snapshotKey(ticker, date)]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &snap, nil
}

func (s *MemoryStore) SaveSnapshots(_ context.Context, snapshots []contracts.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		snap.Ticker = contracts.NormalizeTicker(snap.Ticker)
		snap.Date = contracts.TradingDate(snap.Date)
		s.snapshots[snapshotKey(snap.Ticker, snap.Date)] = snap
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}
