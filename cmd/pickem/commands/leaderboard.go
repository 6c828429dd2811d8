package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// leaderboardCmd prints a settled game's board
var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard [code]",
	Short: "리더보드 조회",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeaderboard,
}

var leaderboardPlayer string

func init() {
	rootCmd.AddCommand(leaderboardCmd)
	leaderboardCmd.Flags().StringVar(&leaderboardPlayer, "player", "", "플레이어 상세 결과 출력")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	code := args[0]

	a, err := buildApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	game, err := a.store.GetGame(cmd.Context(), code)
	if err != nil {
		return err
	}

	PrintDoubleSeparator()
	fmt.Printf("  Game %s (%s)\n", game.Code, game.Status)
	if game.Status != contracts.GameStatusEnded {
		PrintSeparator()
		PrintWarning("Game is not settled yet")
		return nil
	}
	PrintKeyValue("Settlement", game.SettlementID, 12)
	PrintKeyValue("Quality", string(game.DataQuality), 12)
	PrintSeparator()

	entries, err := a.store.GetLeaderboard(cmd.Context(), code)
	if err != nil {
		return err
	}

	widths := []int{4, 20, 10, 12, 30}
	PrintTableHeader([]string{"#", "PLAYER", "RETURN", "VALUE", "AWARDS"}, widths)
	for _, e := range entries {
		PrintTableRow([]string{
			fmt.Sprint(e.Rank),
			e.Nickname,
			fmt.Sprintf("%+.2f%%", e.ReturnPercent),
			fmt.Sprintf("%.2f", e.FinalValue),
			awardList(e.Awards),
		}, widths)
	}

	if leaderboardPlayer != "" {
		return printPlayerResult(cmd, a, code, leaderboardPlayer)
	}
	return nil
}

func printPlayerResult(cmd *cobra.Command, a *app, code, playerID string) error {
	r, err := a.store.GetPlayerResult(cmd.Context(), code, playerID)
	if err != nil {
		return err
	}

	fmt.Println()
	PrintSeparator()
	fmt.Printf("  %s  #%d of %d  %+.2f%%\n", r.Nickname, r.Rank, r.TotalParticipants, r.PortfolioReturnPercent)
	PrintSeparator()
	widths := []int{10, 12, 12, 10}
	PrintTableHeader([]string{"TICKER", "INITIAL", "FINAL", "RETURN"}, widths)
	for _, p := range r.Positions {
		PrintTableRow([]string{
			p.Ticker,
			fmt.Sprintf("%.2f", p.InitialPrice),
			fmt.Sprintf("%.2f", p.FinalPrice),
			fmt.Sprintf("%+.2f%%", p.ReturnPercent),
		}, widths)
	}
	for _, aw := range r.Awards {
		PrintInfo(fmt.Sprintf("%s: %s", aw.Type, aw.Message))
	}
	if r.WhatIfMessage != "" {
		PrintInfo(r.WhatIfMessage)
	}
	return nil
}

func awardList(awards []contracts.Award) string {
	names := make([]string, 0, len(awards))
	for _, a := range awards {
		names = append(names, string(a.Type))
	}
	return strings.Join(names, ",")
}
