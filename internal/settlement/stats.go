package settlement

import (
	"context"
	"time"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/internal/metrics"
	"github.com/wonny/pickem/backend/pkg/logger"
)

// ApplyResult folds one settled game into st
func ApplyResult(st *contracts.UserStats, rank int, returnPercent float64, at time.Time) {
	n := float64(st.GamesPlayed)
	if st.GamesPlayed == 0 || returnPercent > st.BestReturn {
		st.BestReturn = returnPercent
	}
	st.AverageRank = (st.AverageRank*n + float64(rank)) / (n + 1)
	st.GamesPlayed++
	if rank == 1 {
		st.GamesWon++
	}
	st.TotalReturn += returnPercent
	st.UpdatedAt = at
}

// StatsReport summarizes one best-effort statistics pass
type StatsReport struct {
	Updated int
	Skipped int
	Failed  int
}

// StatsUpdater maintains per-user aggregates after settlement.
// Failures are logged and counted, never returned.
type StatsUpdater struct {
	repo   contracts.StatsRepository
	logger *logger.Logger
	now    func() time.Time
}

// NewStatsUpdater creates an updater over repo
func NewStatsUpdater(repo contracts.StatsRepository, log *logger.Logger) *StatsUpdater {
	return &StatsUpdater{repo: repo, logger: log, now: time.Now}
}

// Apply updates every linked user in results; anonymous players are skipped
func (u *StatsUpdater) Apply(ctx context.Context, results []contracts.Result) StatsReport {
	var report StatsReport
	at := u.now()

	for _, r := range results {
		if r.IsAnonymous() {
			report.Skipped++
			continue
		}

		rank, ret := r.Rank, r.PortfolioReturnPercent
		_, err := u.repo.UpdateUserStats(ctx, r.UserID, func(st *contracts.UserStats) error {
			ApplyResult(st, rank, ret, at)
			return nil
		})
		if err != nil {
			report.Failed++
			metrics.StatsFailures.Inc()
			u.logger.WithError(err).WithFields(map[string]interface{}{
				"game_code": r.GameCode,
				"user_id":   r.UserID,
			}).Warn("Failed to update user stats")
			continue
		}
		report.Updated++
	}
	return report
}
