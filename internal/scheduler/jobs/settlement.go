package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/pickem/backend/internal/settlement"
	"github.com/wonny/pickem/backend/pkg/logger"
)

// DueSettler settles every game whose end date has passed
type DueSettler interface {
	SettleDue(ctx context.Context) (*settlement.DueSummary, error)
}

// SettlementJob is the periodic settlement trigger
// ⭐ SSOT: 자동 정산 스케줄은 이 Job에서만
type SettlementJob struct {
	settler  DueSettler
	schedule string
	logger   *logger.Logger
}

// NewSettlementJob creates the trigger; schedule is a six-field cron expression
func NewSettlementJob(settler DueSettler, schedule string, log *logger.Logger) *SettlementJob {
	return &SettlementJob{
		settler:  settler,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *SettlementJob) Name() string {
	return "settlement"
}

// Schedule returns the configured cron schedule
func (j *SettlementJob) Schedule() string {
	return j.schedule
}

// Run settles due games. Per-game failures stay in the summary and are
// picked up again on the next tick, so only a failed listing is an error.
func (j *SettlementJob) Run(ctx context.Context) error {
	summary, err := j.settler.SettleDue(ctx)
	if err != nil {
		return fmt.Errorf("settle due games: %w", err)
	}

	if summary.Failed > 0 {
		j.logger.WithFields(map[string]interface{}{
			"failed":   summary.Failed,
			"failures": summary.Failures,
		}).Warn("Some games failed to settle, retrying next tick")
	}
	return nil
}
