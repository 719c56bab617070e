package worker

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// VendorListRefresher forces a vendor list refetch.
type VendorListRefresher interface {
	Refresh(ctx context.Context) error
}

// ConsentPurger removes expired consent records from the durable store.
type ConsentPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RefreshJob refetches the vendor list and purges expired consent
// records. Sessions pick the new list up on creation; running sessions
// keep the snapshot they started with.
type RefreshJob struct {
	config RefreshConfig
	logger zerolog.Logger

	lists  VendorListRefresher
	purger ConsentPurger

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRuns     int64
	FailedRuns    int64
	PurgedRecords int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config RefreshConfig
	Logger zerolog.Logger
	Lists  VendorListRefresher

	// Purger is optional; nil disables consent purging.
	Purger ConsentPurger
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:  cfg.Config.withDefaults(),
		logger:  cfg.Logger,
		lists:   cfg.Lists,
		purger:  cfg.Purger,
		metrics: &RefreshMetrics{},
	}
}

// RefreshResult contains the result of one refresh run.
type RefreshResult struct {
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	RefreshErr    error
	PurgedRecords int64
	PurgeErr      error
}

// Succeeded reports whether the vendor list fetch succeeded. A purge
// failure does not fail the run; stale rows are retried next cycle.
func (r *RefreshResult) Succeeded() bool {
	return r.RefreshErr == nil
}

// Run executes one refresh cycle: fetch the vendor list with retries,
// then purge expired consent records.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()
	result := &RefreshResult{StartTime: startTime}

	j.logger.Info().Msg("starting vendor list refresh")

	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result.RefreshErr = j.refreshWithRetry(runCtx)
	if result.RefreshErr != nil {
		j.logger.Error().Err(result.RefreshErr).Msg("vendor list refresh failed")
	}

	if j.config.PurgeExpired && j.purger != nil {
		purged, err := j.purger.PurgeExpired(ctx)
		result.PurgedRecords = purged
		result.PurgeErr = err
		if err != nil {
			j.logger.Warn().Err(err).Msg("consent purge failed")
		} else if purged > 0 {
			j.logger.Info().Int64("purged", purged).Msg("expired consent records purged")
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Bool("succeeded", result.Succeeded()).
		Int64("purged", result.PurgedRecords).
		Msg("vendor list refresh completed")

	return result
}

// refreshWithRetry fetches the vendor list, retrying transient failures
// with exponential backoff.
func (j *RefreshJob) refreshWithRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = j.config.InitialInterval
	bo.MaxInterval = j.config.MaxInterval
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		return j.lists.Refresh(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, j.config.MaxRetries), ctx))
}

// RunPeriodic runs refresh cycles at the configured interval until the
// context is cancelled. The first run happens immediately.
func (j *RefreshJob) RunPeriodic(ctx context.Context) {
	j.Run(ctx)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("periodic refresh stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if !result.Succeeded() {
		j.metrics.FailedRuns++
	}
	j.metrics.PurgedRecords += result.PurgedRecords
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		FailedRuns:      j.metrics.FailedRuns,
		PurgedRecords:   j.metrics.PurgedRecords,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"failed_runs":       m.FailedRuns,
		"purged_records":    m.PurgedRecords,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
	}
}
