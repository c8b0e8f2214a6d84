package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/streampulse/internal/models"
)

// metricRepo implements MetricRepository using GORM.
type metricRepo struct {
	db *gorm.DB
}

// NewMetricRepository creates a new MetricRepository.
func NewMetricRepository(db *gorm.DB) *metricRepo {
	return &metricRepo{db: db}
}

// Append stores one health sample.
func (r *metricRepo) Append(ctx context.Context, metric *models.Metric) error {
	if err := metric.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(metric).Error; err != nil {
		return fmt.Errorf("appending metric: %w", err)
	}
	return nil
}

// ListByStream retrieves samples for a stream newer than since, oldest first.
func (r *metricRepo) ListByStream(ctx context.Context, streamID models.ULID, since time.Time) ([]*models.Metric, error) {
	var metrics []*models.Metric
	err := r.db.WithContext(ctx).
		Where("stream_id = ? AND timestamp >= ?", streamID, since).
		Order("timestamp ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("listing metrics: %w", err)
	}
	return metrics, nil
}

// PurgeOlderThan hard-deletes samples older than cutoff. Returns the number
// of rows removed. Stands in for the store-level TTL on timestamp.
func (r *metricRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Unscoped().
		Where("timestamp < ?", cutoff).
		Delete(&models.Metric{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging metrics: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ensure metricRepo implements MetricRepository at compile time.
var _ MetricRepository = (*metricRepo)(nil)
