package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// seedCmd creates a demo game that is already due for settlement
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "데모 게임 생성 (개발용)",
	Long: `정산 흐름 확인용 LIVE 게임과 플레이어 3명을 생성합니다.
게임 종료일은 어제이므로 다음 정산 틱에서 바로 정산됩니다.

Example:
  go run ./cmd/pickem seed
  go run ./cmd/pickem settle due`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Env == "production" {
		return fmt.Errorf("seed is disabled in production")
	}

	ctx := cmd.Context()
	end := contracts.TradingDate(time.Now()).AddDate(0, 0, -1)
	initial := map[string]float64{"AAPL": 180, "MSFT": 410, "TSLA": 200}

	game := &contracts.Game{
		Code:          "DEMO" + uuid.NewString()[:6],
		Status:        contracts.GameStatusLive,
		CreatorID:     "demo-creator",
		StartDate:     end.AddDate(0, 0, -7),
		EndDate:       end,
		Tickers:       []string{"AAPL", "MSFT", "TSLA"},
		InitialPrices: initial,
	}
	if err := a.store.CreateGame(ctx, game); err != nil {
		return err
	}

	picks := []struct {
		nickname string
		userID   string
		alloc    map[string]float64
	}{
		{"alice", "demo-alice", map[string]float64{"AAPL": 6000, "MSFT": 4000}},
		{"bob", "", map[string]float64{"TSLA": 10000}},
		{"carol", "demo-carol", map[string]float64{"AAPL": 2500, "MSFT": 2500, "TSLA": 5000}},
	}

	for i, p := range picks {
		player := &contracts.Player{
			ID:          uuid.NewString(),
			GameCode:    game.Code,
			Nickname:    p.nickname,
			UserID:      p.userID,
			TotalBudget: 10000,
			SubmittedAt: game.StartDate.Add(time.Duration(i) * time.Minute),
		}
		for _, ticker := range game.Tickers {
			budget, ok := p.alloc[ticker]
			if !ok {
				continue
			}
			player.Positions = append(player.Positions, contracts.Position{
				Ticker:         ticker,
				BudgetInvested: budget,
				Quantity:       budget / initial[ticker],
				InitialPrice:   initial[ticker],
			})
		}
		if err := a.store.CreatePlayer(ctx, player); err != nil {
			return err
		}
	}

	PrintSuccess(fmt.Sprintf("Seeded game %s with %d players (ends %s)", game.Code, len(picks), contracts.DateKey(end)))
	PrintInfo(fmt.Sprintf("Creator: %s", game.CreatorID))
	return nil
}
