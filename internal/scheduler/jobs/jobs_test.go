package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pickem/backend/internal/settlement"
	"github.com/wonny/pickem/backend/pkg/logger"
)

type fakeSettler struct {
	summary *settlement.DueSummary
	err     error
	calls   int
}

func (f *fakeSettler) SettleDue(context.Context) (*settlement.DueSummary, error) {
	f.calls++
	return f.summary, f.err
}

func TestSettlementJob_PerGameFailuresAreNotJobFailures(t *testing.T) {
	f := &fakeSettler{summary: &settlement.DueSummary{Due: 2, Settled: 1, Failed: 1, Failures: map[string]string{"G2": "db down"}}}
	job := NewSettlementJob(f, "0 */15 * * * *", logger.Nop())

	assert.Equal(t, "settlement", job.Name())
	assert.Equal(t, "0 */15 * * * *", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, f.calls)
}

func TestSettlementJob_ListingFailure(t *testing.T) {
	f := &fakeSettler{err: errors.New("connection refused")}
	job := NewSettlementJob(f, "@every 1m", logger.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

type fakeCache struct {
	removed int
	err     error
}

func (c *fakeCache) Get(context.Context, string, time.Time) (float64, bool)      { return 0, false }
func (c *fakeCache) Set(context.Context, string, time.Time, float64) error       { return nil }
func (c *fakeCache) Invalidate(context.Context, string, time.Time) error         { return nil }
func (c *fakeCache) Clear(context.Context) error                                 { return nil }
func (c *fakeCache) CleanStale(context.Context) (int, error)                     { return c.removed, c.err }

func TestCacheCleanupJob(t *testing.T) {
	job := NewCacheCleanupJob(&fakeCache{removed: 3}, "0 */5 * * * *", logger.Nop())
	assert.Equal(t, "cache_cleanup", job.Name())
	assert.NoError(t, job.Run(context.Background()))

	job = NewCacheCleanupJob(&fakeCache{err: errors.New("nope")}, "0 */5 * * * *", logger.Nop())
	assert.Error(t, job.Run(context.Background()))
}
