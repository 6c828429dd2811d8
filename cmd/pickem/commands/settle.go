package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/pickem/backend/internal/settlement"
)

// settleCmd represents the settle command
var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "게임 정산",
	Long: `스케줄러 없이 정산을 실행합니다. 이미 정산된 게임은 건너뜁니다.

Subcommands:
  due     - 종료 시각이 지난 모든 LIVE 게임 정산
  game    - 특정 게임 정산

Example:
  go run ./cmd/pickem settle due
  go run ./cmd/pickem settle game ABC123
  go run ./cmd/pickem settle game ABC123 --caller user-1`,
}

var (
	settleDueCmd = &cobra.Command{
		Use:   "due",
		Short: "종료된 게임 일괄 정산",
		RunE:  runSettleDue,
	}

	settleGameCmd = &cobra.Command{
		Use:   "game [code]",
		Short: "특정 게임 정산",
		Long: `특정 게임을 정산합니다.

--caller 를 지정하면 생성자 확인을 거치는 수동 정산(forceSettle)으로 실행되고,
지정하지 않으면 운영자 권한으로 바로 정산합니다.`,
		Args: cobra.ExactArgs(1),
		RunE: runSettleGame,
	}

	settleCaller string
)

func init() {
	rootCmd.AddCommand(settleCmd)
	settleCmd.AddCommand(settleDueCmd)
	settleCmd.AddCommand(settleGameCmd)

	settleGameCmd.Flags().StringVar(&settleCaller, "caller", "", "요청자 user id (생성자만 허용)")
}

func runSettleDue(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	PrintJobHeader("settle due")

	summary, err := a.settler.SettleDue(cmd.Context())
	if err != nil {
		return err
	}

	PrintKeyValue("Due", fmt.Sprint(summary.Due), 8)
	PrintKeyValue("Settled", fmt.Sprint(summary.Settled), 8)
	PrintKeyValue("Skipped", fmt.Sprint(summary.Skipped), 8)
	PrintKeyValue("Failed", fmt.Sprint(summary.Failed), 8)

	if summary.Failed > 0 {
		codes := make([]string, 0, len(summary.Failures))
		for code := range summary.Failures {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		PrintSeparator()
		for _, code := range codes {
			PrintError(fmt.Sprintf("%s: %s", code, summary.Failures[code]))
		}
		return fmt.Errorf("%d game(s) failed to settle", summary.Failed)
	}

	PrintJobCompletion("settle due", time.Since(start))
	return nil
}

func runSettleGame(cmd *cobra.Command, args []string) error {
	code := args[0]

	a, err := buildApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	var outcome *settlement.Outcome
	if settleCaller != "" {
		outcome, err = a.settler.ForceSettle(cmd.Context(), code, settleCaller)
	} else {
		outcome, err = a.settler.Settle(cmd.Context(), code)
	}
	if err != nil {
		PrintError(err.Error())
		return err
	}

	switch outcome.Status {
	case settlement.OutcomeSettled:
		PrintSuccess(fmt.Sprintf("%s settled: %d participants, data quality %s (settlement %s)",
			code, outcome.Participants, outcome.DataQuality, outcome.SettlementID))
	default:
		PrintWarning(fmt.Sprintf("%s skipped: %s", code, outcome.Status))
	}
	return nil
}
