package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/pickem/backend/internal/scheduler"
	"github.com/wonny/pickem/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `정산 트리거 스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/pickem scheduler start
  go run ./cmd/pickem scheduler run settlement`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- settlement: SETTLEMENT_SCHEDULE (기본 15분마다, 종료된 게임 정산)
- cache_cleanup: SETTLEMENT_CACHE_SWEEP_SCHEDULE (기본 5분마다, 종가 캐시 정리)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers the settlement trigger and the cache sweep
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log, scheduler.WithRetry(a.cfg.Settlement.TxRetries, 30*time.Second))

	if err := sched.AddJob(jobs.NewSettlementJob(a.settler, a.cfg.Settlement.Schedule, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewCacheCleanupJob(a.cache, a.cfg.Settlement.CacheSweepSchedule, a.log)); err != nil {
		return nil, err
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()

	PrintSuccess("Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	PrintList(sched.GetAllJobs())
	PrintInfo("Press Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	printJobStats(sched)
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	widths := []int{16, 20}
	PrintTableHeader([]string{"JOB", "SCHEDULE"}, widths)
	for _, name := range sched.GetAllJobs() {
		PrintTableRow([]string{name, sched.GetJobStats()[name].Schedule}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := buildApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	PrintJobHeader(jobName)
	result, err := sched.RunJob(cmd.Context(), jobName)
	if err != nil {
		return err
	}
	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %d attempts: %s", jobName, result.Attempts, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintJobCompletion(jobName, result.Duration)
	return nil
}

func printJobStats(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	widths := []int{16, 8, 8, 8}
	PrintTableHeader([]string{"JOB", "RUNS", "OK", "FAILED"}, widths)
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		PrintTableRow([]string{
			name,
			fmt.Sprint(st.TotalRuns),
			fmt.Sprint(st.SuccessCount),
			fmt.Sprint(st.FailureCount),
		}, widths)
	}
}
