package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/streampulse/internal/repository"
)

// DefaultMetricsRetention is how long metric samples are kept.
const DefaultMetricsRetention = 7 * 24 * time.Hour

// RetentionSweeper purges metric samples past the retention horizon on an
// hourly schedule.
type RetentionSweeper struct {
	metrics   repository.MetricRepository
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
	now       func() time.Time
}

// NewRetentionSweeper creates a sweeper with the given retention horizon.
func NewRetentionSweeper(metrics repository.MetricRepository, retention time.Duration, logger *slog.Logger) *RetentionSweeper {
	if retention <= 0 {
		retention = DefaultMetricsRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionSweeper{
		metrics:   metrics,
		retention: retention,
		logger:    logger.With("component", "retention"),
		cron:      cron.New(),
		now:       time.Now,
	}
}

// Start runs one purge immediately and schedules hourly purges after that.
func (s *RetentionSweeper) Start(ctx context.Context) error {
	s.Purge(ctx)
	_, err := s.cron.AddFunc("@hourly", func() {
		s.Purge(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running purge to finish.
func (s *RetentionSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Purge deletes samples older than the retention horizon. Failures are
// logged; the next run retries.
func (s *RetentionSweeper) Purge(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)
	purged, err := s.metrics.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("purging metrics failed", slog.String("error", err.Error()))
		return
	}
	if purged > 0 {
		s.logger.Info("purged expired metrics",
			slog.Int64("count", purged),
			slog.Time("cutoff", cutoff),
		)
	}
}
