package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/pickem/backend/internal/pricing"
	"github.com/wonny/pickem/backend/pkg/logger"
)

// CacheCleanupJob cleans stale prices from cache
type CacheCleanupJob struct {
	cache    pricing.Cache
	schedule string
	logger   *logger.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(priceCache pricing.Cache, schedule string, log *logger.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cache:    priceCache,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Schedule returns the cron schedule
func (j *CacheCleanupJob) Schedule() string {
	return j.schedule
}

// Run executes the cache cleanup
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled cache cleanup")

	count, err := j.cache.CleanStale(ctx)
	if err != nil {
		return fmt.Errorf("clean price cache: %w", err)
	}

	if count > 0 {
		j.logger.WithField("removed", count).Info("Cache cleanup completed")
	}

	return nil
}
