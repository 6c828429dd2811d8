package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pickem",
	Short: "Pickem - 종목 선택 게임 정산 엔진",
	Long: `Pickem Settlement CLI

게임 종료 시 종가를 결정하고 수익률, 순위, 어워드를 계산해
결과를 한 번만 저장합니다.

Usage:
  go run ./cmd/pickem [command]

Examples:
  go run ./cmd/pickem api
  go run ./cmd/pickem scheduler start
  go run ./cmd/pickem settle due
  go run ./cmd/pickem settle game ABC123 --caller user-1
  go run ./cmd/pickem leaderboard ABC123`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// 플래그가 환경변수보다 우선
		if cmd.Flags().Changed("env") {
			_ = os.Setenv("ENV", env)
		}
		if verbose {
			_ = os.Setenv("LOG_LEVEL", "debug")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
