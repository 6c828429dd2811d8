package contracts

import "time"

// UserStats is a linked user's lifetime aggregate across settled games
type UserStats struct {
	UserID      string    `json:"user_id"`
	GamesPlayed int       `json:"games_played"`
	GamesWon    int       `json:"games_won"`
	TotalReturn float64   `json:"total_return"`
	BestReturn  float64   `json:"best_return"`
	AverageRank float64   `json:"average_rank"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WinRate returns games won over games played
func (s *UserStats) WinRate() float64 {
	if s.GamesPlayed == 0 {
		return 0
	}
	return float64(s.GamesWon) / float64(s.GamesPlayed)
}

// PriceSource tells where a resolved final price came from
type PriceSource string

const (
	PriceSourceCache     PriceSource = "cache"
	PriceSourceSnapshot  PriceSource = "snapshot"
	PriceSourceQuote     PriceSource = "quote"
	PriceSourceSynthetic PriceSource = "synthetic"
)

// PriceSnapshot is a persisted closing price for one trading date
type PriceSnapshot struct {
	Ticker string      `json:"ticker"`
	Date   time.Time   `json:"date"`
	Close  float64     `json:"close"`
	Source PriceSource `json:"source"`
}

// DateKey renders the trading date used by caches and snapshot lookups
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// TradingDate truncates t to its UTC calendar day
func TradingDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
