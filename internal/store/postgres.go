package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/pkg/database"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements contracts.Store over pgx.
// Document-shaped fields (positions, awards, results) live in JSONB columns.
// ⭐ SSOT: 게임/결과 저장/조회는 여기서만
type PostgresStore struct {
	db         *database.DB
	txRetries  int
	retryDelay time.Duration
}

// NewPostgresStore creates a store; txRetries bounds serialization retries
func NewPostgresStore(db *database.DB, txRetries int) *PostgresStore {
	return &PostgresStore{db: db, txRetries: txRetries, retryDelay: 50 * time.Millisecond}
}

// Migrate creates the schema if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Close() { s.db.Close() }

const gameColumns = `code, status, creator_id, start_date, end_date, tickers, initial_prices,
	player_count, COALESCE(data_quality, ''), settled_at, COALESCE(settlement_id, '')`

func scanGame(row pgx.Row) (*contracts.Game, error) {
	var g contracts.Game
	var tickers, prices []byte
	var quality string

	if err := row.Scan(&g.Code, &g.Status, &g.CreatorID, &g.StartDate, &g.EndDate,
		&tickers, &prices, &g.PlayerCount, &quality, &g.SettledAt, &g.SettlementID); err != nil {
		return nil, err
	}
	g.DataQuality = contracts.DataQuality(quality)
	if err := json.Unmarshal(tickers, &g.Tickers); err != nil {
		return nil, fmt.Errorf("failed to decode tickers: %w", err)
	}
	var raw map[string]float64
	if err := json.Unmarshal(prices, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode initial prices: %w", err)
	}
	g.InitialPrices = make(map[string]float64, len(raw))
	for ticker, p := range raw {
		g.InitialPrices[contracts.NormalizeTicker(ticker)] = p
	}
	return &g, nil
}

// GetGame retrieves a game by code
func (s *PostgresStore) GetGame(ctx context.Context, code string) (*contracts.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM pickem.games WHERE code = $1`

	g, err := scanGame(s.db.Pool.QueryRow(ctx, query, code))
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game %s: %w", code, err)
	}
	return g, nil
}

// ListDueGames returns LIVE games whose end date has passed, oldest first
func (s *PostgresStore) ListDueGames(ctx context.Context, now time.Time) ([]*contracts.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM pickem.games
		WHERE status = 'LIVE' AND end_date <= $1
		ORDER BY end_date, code
	`

	rows, err := s.db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due games: %w", err)
	}
	defer rows.Close()

	var games []*contracts.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return games, nil
}

// ListPlayers returns every player of a game
func (s *PostgresStore) ListPlayers(ctx context.Context, gameCode string) ([]*contracts.Player, error) {
	query := `
		SELECT id, game_code, nickname, COALESCE(user_id, ''), positions, total_budget, submitted_at
		FROM pickem.players
		WHERE game_code = $1
		ORDER BY submitted_at, id
	`

	rows, err := s.db.Pool.Query(ctx, query, gameCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var players []*contracts.Player
	for rows.Next() {
		var p contracts.Player
		var positions []byte
		if err := rows.Scan(&p.ID, &p.GameCode, &p.Nickname, &p.UserID, &positions, &p.TotalBudget, &p.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		if err := json.Unmarshal(positions, &p.Positions); err != nil {
			return nil, fmt.Errorf("failed to decode positions of %s: %w", p.ID, err)
		}
		players = append(players, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return players, nil
}

// HasResults reports whether any result exists for the game
func (s *PostgresStore) HasResults(ctx context.Context, gameCode string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pickem.results WHERE game_code = $1)`, gameCode,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check results: %w", err)
	}
	return exists, nil
}

// GetLeaderboard returns the game's entries ordered by rank
func (s *PostgresStore) GetLeaderboard(ctx context.Context, gameCode string) ([]contracts.LeaderboardEntry, error) {
	if _, err := s.GetGame(ctx, gameCode); err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx,
		`SELECT doc FROM pickem.leaderboard_entries WHERE game_code = $1 ORDER BY rank`, gameCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []contracts.LeaderboardEntry{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		var entry contracts.LeaderboardEntry
		if err := json.Unmarshal(doc, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

// GetPlayerResult returns one player's settled result
func (s *PostgresStore) GetPlayerResult(ctx context.Context, gameCode, playerID string) (*contracts.Result, error) {
	var doc []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT doc FROM pickem.results WHERE game_code = $1 AND player_id = $2`, gameCode, playerID,
	).Scan(&doc)
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	var r contracts.Result
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &r, nil
}

// CommitSettlement ends the game and writes every derived row in one
// serializable transaction. The conditional status update is the guard:
// if the game already left LIVE, nothing is written.
func (s *PostgresStore) CommitSettlement(ctx context.Context, batch *contracts.SettlementBatch) error {
	opts := database.TxOptions{IsoLevel: pgx.Serializable, MaxRetries: s.txRetries, RetryDelay: s.retryDelay}

	return s.db.WithTx(ctx, opts, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE pickem.games
			SET status = 'ENDED', data_quality = $2, settled_at = $3, settlement_id = $4
			WHERE code = $1 AND status = 'LIVE'
		`, batch.GameCode, batch.DataQuality, batch.SettledAt, batch.SettlementID)
		if err != nil {
			return fmt.Errorf("failed to end game: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return contracts.ErrAlreadySettled
		}

		for i := range batch.Results {
			r := &batch.Results[i]
			doc, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO pickem.results (game_code, player_id, settlement_id, rank, doc, calculated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, r.GameCode, r.PlayerID, batch.SettlementID, r.Rank, doc, r.CalculatedAt); err != nil {
				return fmt.Errorf("failed to insert result for %s: %w", r.PlayerID, err)
			}
		}

		for i := range batch.Leaderboard {
			e := &batch.Leaderboard[i]
			doc, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to encode leaderboard entry: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO pickem.leaderboard_entries (game_code, player_id, settlement_id, rank, doc)
				VALUES ($1, $2, $3, $4, $5)
			`, e.GameCode, e.PlayerID, batch.SettlementID, e.Rank, doc); err != nil {
				return fmt.Errorf("failed to insert leaderboard entry for %s: %w", e.PlayerID, err)
			}
		}
		return nil
	})
}

// GetUserStats returns a user's aggregate
func (s *PostgresStore) GetUserStats(ctx context.Context, userID string) (*contracts.UserStats, error) {
	st, err := scanStats(s.db.Pool.QueryRow(ctx, `
		SELECT user_id, games_played, games_won, total_return, best_return, average_rank, updated_at
		FROM pickem.user_stats WHERE user_id = $1
	`, userID))
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return st, nil
}

func scanStats(row pgx.Row) (*contracts.UserStats, error) {
	var st contracts.UserStats
	if err := row.Scan(&st.UserID, &st.GamesPlayed, &st.GamesWon, &st.TotalReturn,
		&st.BestReturn, &st.AverageRank, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateUserStats runs fn against the row locked FOR UPDATE and upserts the result
func (s *PostgresStore) UpdateUserStats(ctx context.Context, userID string, fn func(*contracts.UserStats) error) (*contracts.UserStats, error) {
	var out *contracts.UserStats
	opts := database.TxOptions{IsoLevel: pgx.ReadCommitted, MaxRetries: s.txRetries, RetryDelay: s.retryDelay}

	err := s.db.WithTx(ctx, opts, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pickem.user_stats (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID,
		); err != nil {
			return fmt.Errorf("failed to ensure stats row: %w", err)
		}

		st, err := scanStats(tx.QueryRow(ctx, `
			SELECT user_id, games_played, games_won, total_return, best_return, average_rank, updated_at
			FROM pickem.user_stats WHERE user_id = $1 FOR UPDATE
		`, userID))
		if err != nil {
			return fmt.Errorf("failed to lock stats row: %w", err)
		}

		if err := fn(st); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE pickem.user_stats
			SET games_played = $2, games_won = $3, total_return = $4,
			    best_return = $5, average_rank = $6, updated_at = $7
			WHERE user_id = $1
		`, st.UserID, st.GamesPlayed, st.GamesWon, st.TotalReturn, st.BestReturn, st.AverageRank, st.UpdatedAt); err != nil {
			return fmt.Errorf("failed to update stats: %w", err)
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetSnapshot returns the persisted close of ticker on date
func (s *PostgresStore) GetSnapshot(ctx context.Context, ticker string, date time.Time) (*contracts.PriceSnapshot, error) {
	var snap contracts.PriceSnapshot
	err := s.db.Pool.QueryRow(ctx, `
		SELECT ticker, trade_date, close, source
		FROM pickem.price_snapshots
		WHERE ticker = $1 AND trade_date = $2
	`, contracts.NormalizeTicker(ticker), contracts.TradingDate(date)).Scan(&snap.Ticker, &snap.Date, &snap.Close, &snap.Source)
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshots upserts closes in one batch
func (s *PostgresStore) SaveSnapshots(ctx context.Context, snapshots []contracts.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO pickem.price_snapshots (ticker, trade_date, close, source)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (ticker, trade_date) DO UPDATE SET close = EXCLUDED.close, source = EXCLUDED.source
		`, contracts.NormalizeTicker(snap.Ticker), contracts.TradingDate(snap.Date), snap.Close, snap.Source)
	}

	results := s.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for range snapshots {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save price snapshot: %w", err)
		}
	}
	return nil
}

// CreateGame inserts a game; used by seeding tools and integration tests
func (s *PostgresStore) CreateGame(ctx context.Context, g *contracts.Game) error {
	tickers, err := json.Marshal(g.Tickers)
	if err != nil {
		return fmt.Errorf("failed to encode tickers: %w", err)
	}
	prices, err := json.Marshal(g.InitialPrices)
	if err != nil {
		return fmt.Errorf("failed to encode initial prices: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO pickem.games (code, status, creator_id, start_date, end_date, tickers, initial_prices, player_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, g.Code, g.Status, g.CreatorID, g.StartDate, g.EndDate, tickers, prices, g.PlayerCount)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// CreatePlayer inserts a player and bumps the game's player count
func (s *PostgresStore) CreatePlayer(ctx context.Context, p *contracts.Player) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}

	return s.db.WithTx(ctx, database.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pickem.players (id, game_code, nickname, user_id, positions, total_budget, submitted_at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		`, p.ID, p.GameCode, p.Nickname, p.UserID, positions, p.TotalBudget, p.SubmittedAt); err != nil {
			return fmt.Errorf("failed to create player: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE pickem.games SET player_count = player_count + 1 WHERE code = $1`, p.GameCode,
		); err != nil {
			return fmt.Errorf("failed to bump player count: %w", err)
		}
		return nil
	})
}
