// Package repository provides data access layers for streampulse models.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/streampulse/internal/models"
)

// ErrVersionConflict is returned by Save when the record's version no longer
// matches the stored one, meaning a concurrent writer won the race. Callers
// follow a drop-don't-retry policy.
var ErrVersionConflict = errors.New("version conflict: record modified concurrently")

// StreamRepository manages monitored stream records.
type StreamRepository interface {
	Create(ctx context.Context, stream *models.Stream) error
	GetByID(ctx context.Context, id models.ULID) (*models.Stream, error)
	GetByURL(ctx context.Context, url string) (*models.Stream, error)
	GetAll(ctx context.Context) ([]*models.Stream, error)
	// Save persists the record with an optimistic version check, pruning
	// expired ledger entries first. Returns ErrVersionConflict on a lost race.
	Save(ctx context.Context, stream *models.Stream) error
	Delete(ctx context.Context, id models.ULID) error
}

// MetricRepository manages the append-only health sample history.
type MetricRepository interface {
	Append(ctx context.Context, metric *models.Metric) error
	ListByStream(ctx context.Context, streamID models.ULID, since time.Time) ([]*models.Metric, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
